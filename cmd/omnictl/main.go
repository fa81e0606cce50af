package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rainergb/omni-chat-app-sub001/internal/bus"
	"github.com/rainergb/omni-chat-app-sub001/internal/chat"
	"github.com/rainergb/omni-chat-app-sub001/internal/config"
	"github.com/rainergb/omni-chat-app-sub001/internal/gateway"
	"github.com/rainergb/omni-chat-app-sub001/internal/instance"
	"github.com/rainergb/omni-chat-app-sub001/internal/logging"
	"github.com/rainergb/omni-chat-app-sub001/internal/session"
	intsync "github.com/rainergb/omni-chat-app-sub001/internal/sync"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	sessionFlag string
	debugFlag   bool
	jsonFlag    bool
	timeoutFlag time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "omnictl",
	Short:         "Operate omni-chat instances",
	Long:          "Command-line interface for the remote instance service and the omnid daemon.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&sessionFlag, "session", "", "session name (overrides config default)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().DurationVar(&timeoutFlag, "timeout", 30*time.Second, "overall command timeout")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// env is the resolved configuration shared by every command.
type env struct {
	cfg     *config.Config
	session string
	logger  *zap.Logger
}

func loadEnv() (*env, error) {
	cfg, err := config.Resolve(session.ConfigPath())
	if err != nil {
		return nil, err
	}
	name := session.Resolve(sessionFlag, cfg)
	if err := session.ValidateName(name); err != nil {
		return nil, err
	}
	return &env{cfg: cfg, session: name, logger: logging.NewConsole(debugFlag)}, nil
}

// stack is an in-process copy of the daemon's stores and engine, without
// the realtime bridge unless a command attaches one. It never sends messages.
type stack struct {
	bus       *bus.Bus
	instances *instance.Store
	chats     *chat.Store
	gateway   *gateway.Client
	engine    *intsync.Engine
}

func (e *env) newStack() *stack {
	b := bus.New(bus.WithLogger(e.logger))
	st := &stack{
		bus:       b,
		instances: instance.New(b),
		chats:     chat.New(b),
		gateway: gateway.New(gateway.Options{
			BaseURL:     e.cfg.APIURL,
			WebhookBase: e.cfg.WebhookURL,
			Timeout:     e.cfg.RequestTimeout.Duration,
		}, e.logger),
	}
	st.engine = intsync.NewEngine(st.gateway, st.instances, st.chats, nil, b, e.logger, intsync.Options{
		StaleAfter:       e.cfg.StaleAfter.Duration,
		MaxRetries:       e.cfg.Retries(),
		OptimisticCreate: e.cfg.OptimisticCreate,
	})
	return st
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeoutFlag)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
