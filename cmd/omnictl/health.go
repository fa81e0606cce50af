package main

import (
	"fmt"

	"github.com/rainergb/omni-chat-app-sub001/internal/daemon"
	"github.com/rainergb/omni-chat-app-sub001/internal/lock"
	"github.com/rainergb/omni-chat-app-sub001/internal/session"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"
)

func init() {
	rootCmd.AddCommand(healthCmd)
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check a running omnid",
	Long:  "Query the gRPC health service of the session's omnid. The realtime service is SERVING while the channel is established.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		socketPath := session.SocketPath(e.session)
		conn, err := grpc.NewClient(
			"unix://"+socketPath,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
		if err != nil {
			return fmt.Errorf("cannot connect to daemon for session %q: %w", e.session, err)
		}
		defer func() { _ = conn.Close() }()
		client := healthpb.NewHealthClient(conn)

		overall, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
		if err != nil {
			return fmt.Errorf("daemon for session %q is not reachable: %w", e.session, err)
		}
		realtime, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: daemon.RealtimeService})
		if err != nil {
			return err
		}

		if jsonFlag {
			m := protojson.MarshalOptions{UseProtoNames: true}
			o, _ := m.Marshal(overall)
			r, _ := m.Marshal(realtime)
			fmt.Printf("{\"session\":%q,\"daemon\":%s,\"realtime\":%s}\n", e.session, o, r)
			return nil
		}

		fmt.Printf("Session:  %s\n", e.session)
		fmt.Printf("Daemon:   %s\n", overall.Status)
		fmt.Printf("Realtime: %s\n", realtime.Status)
		if h, err := lock.ReadHolder(session.LockPath(e.session)); err == nil {
			fmt.Printf("Holder:   %s (PID %d since %s)\n", h.Owner, h.PID, formatTime(h.Since))
		}
		return nil
	},
}
