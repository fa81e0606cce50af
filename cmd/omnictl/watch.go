package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rainergb/omni-chat-app-sub001/internal/bus"
	"github.com/rainergb/omni-chat-app-sub001/internal/chat"
	"github.com/rainergb/omni-chat-app-sub001/internal/lock"
	"github.com/rainergb/omni-chat-app-sub001/internal/model"
	"github.com/rainergb/omni-chat-app-sub001/internal/realtime"
	"github.com/rainergb/omni-chat-app-sub001/internal/session"
	"github.com/rainergb/omni-chat-app-sub001/internal/status"
	intsync "github.com/rainergb/omni-chat-app-sub001/internal/sync"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const watchOwner = "omnictl watch"

func init() {
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow realtime events",
	Long:  "Open the session's realtime channel and print events until interrupted. Refused while omnid holds the session.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		lk, err := lock.Acquire(session.LockPath(e.session), watchOwner)
		if err != nil {
			var held *lock.HeldError
			if errors.As(err, &held) {
				return fmt.Errorf("session %q already has a realtime channel: %w", e.session, err)
			}
			return err
		}
		defer func() { _ = lk.Release() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		st := e.newStack()
		events, unsub := st.bus.Subscribe("", 256)
		defer unsub()

		bridge := realtime.New(&realtime.WSTransport{URL: e.cfg.RealtimeURL}, st.bus, e.logger)
		st.engine.Start(ctx)
		if err := bridge.Start(ctx); err != nil {
			return err
		}
		e.logger.Info("watching", zap.String("session", e.session), zap.String("url", e.cfg.RealtimeURL))

		for {
			select {
			case evt := <-events:
				printEvent(evt)
			case <-ctx.Done():
				bridge.Stop()
				st.engine.Stop()
				return nil
			}
		}
	},
}

func printEvent(evt bus.Event) {
	if jsonFlag {
		payload := evt.Payload
		if err, ok := payload.(error); ok {
			payload = err.Error()
		}
		outputJSON(map[string]any{"kind": evt.Kind, "ts": evt.Timestamp, "payload": payload})
		return
	}
	ts := evt.Timestamp.Local().Format("15:04:05")
	if line := describe(evt); line != "" {
		fmt.Printf("%s  %-22s %s\n", ts, evt.Kind, line)
	}
}

// describe renders the events an operator cares about. Selection and typing
// chatter returns "".
func describe(evt bus.Event) string {
	switch p := evt.Payload.(type) {
	case status.StatusChange:
		return fmt.Sprintf("%s -> %s", p.From, p.To)
	case realtime.Disconnect:
		if p.ServerInitiated {
			return "closed by server: " + p.Reason
		}
		return p.Reason
	case realtime.StatusPayload:
		return fmt.Sprintf("%s %s (%s)", p.InstanceID, p.Resolve(), p.Event)
	case realtime.MessagePayload:
		return fmt.Sprintf("%s %s: %s", p.InstanceID, p.From, p.Body)
	case model.Instance:
		return fmt.Sprintf("%s %q %s", p.ID, p.Name, p.Status)
	case model.Message:
		return fmt.Sprintf("%s %s", p.ChatID, p.Content)
	case chat.MessageStatusChange:
		return fmt.Sprintf("%s %s", p.MessageID, p.Status)
	case intsync.Notification:
		return fmt.Sprintf("%s %s: %s", p.Op, p.InstanceID, p.Message)
	case error:
		return p.Error()
	}
	switch evt.Kind {
	case bus.RealtimeConnected:
		return "channel established"
	case bus.InstanceDeleted, bus.ChatRead:
		return fmt.Sprint(evt.Payload)
	case bus.InstanceReloaded:
		return fmt.Sprintf("%v instances", evt.Payload)
	case bus.ChatsReplaced:
		return fmt.Sprintf("%v chats", evt.Payload)
	}
	return ""
}
