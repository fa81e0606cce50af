package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rainergb/omni-chat-app-sub001/internal/config"
	"github.com/rainergb/omni-chat-app-sub001/internal/daemon"
	"github.com/rainergb/omni-chat-app-sub001/internal/session"
	"go.uber.org/fx"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	debugFlag := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	cfg, err := config.Resolve(session.ConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	sessionName := session.Resolve(*sessionFlag, cfg)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			SessionName: sessionName,
			Debug:       *debugFlag,
			Config:      cfg,
		}),
		fx.NopLogger,
	)

	app.Run()
}
