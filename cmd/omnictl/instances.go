package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rainergb/omni-chat-app-sub001/internal/model"
	"github.com/spf13/cobra"
)

func init() {
	instancesCmd.AddCommand(listCmd, createCmd, updateCmd, deleteCmd, disconnectCmd, reloadCmd, qrcodeCmd)
	rootCmd.AddCommand(instancesCmd)

	createCmd.Flags().String("type", string(model.PlatformWhatsApp), "platform (whatsapp, instagram, facebook, telegram)")
	createCmd.Flags().Int("send-delay", 0, "delay between outgoing messages, in seconds")

	updateCmd.Flags().String("name", "", "new display name")
	updateCmd.Flags().String("type", "", "new platform")
	updateCmd.Flags().String("webhook", "", "new webhook URL")
	updateCmd.Flags().String("avatar", "", "new avatar URL")

	qrcodeCmd.Flags().String("out", "", "write an image QR code to this file")
}

var instancesCmd = &cobra.Command{
	Use:     "instances",
	Aliases: []string{"instance", "inst"},
	Short:   "Manage remote instances",
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List instances",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		st := e.newStack()
		if err := st.engine.RefreshInstances(ctx, true); err != nil {
			return err
		}
		list := st.instances.List()
		if jsonFlag {
			outputJSON(list)
			return nil
		}
		if len(list) == 0 {
			fmt.Println("No instances found.")
			return nil
		}
		printInstances(list)
		fmt.Printf("\n%d instances, %d connected, %d messages\n",
			len(list), st.instances.ConnectedCount(), st.instances.TotalMessages())
		return nil
	},
}

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Register a new instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		typ, _ := cmd.Flags().GetString("type")
		delay, _ := cmd.Flags().GetInt("send-delay")
		ctx, cancel := commandContext(cmd)
		defer cancel()

		st := e.newStack()
		inst, err := st.engine.CreateInstance(ctx, model.InstanceDraft{
			Name: args[0],
			Type: model.ParsePlatform(typ),
		}, delay)
		if err != nil {
			return err
		}
		if jsonFlag {
			outputJSON(inst)
			return nil
		}
		fmt.Printf("Created instance %s (%s)\n", inst.ID, inst.Name)
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change instance fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := patchFromFlags(cmd)
		if err != nil {
			return err
		}
		return onInstance(cmd, args[0], "Updated", func(st *stack) error {
			return st.engine.UpdateInstance(cmd.Context(), args[0], patch)
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return onInstance(cmd, args[0], "Deleted", func(st *stack) error {
			return st.engine.DeleteInstance(cmd.Context(), args[0])
		})
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect <id>",
	Short: "End an instance's platform session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return onInstance(cmd, args[0], "Disconnected", func(st *stack) error {
			return st.engine.DisconnectInstance(cmd.Context(), args[0])
		})
	},
}

var reloadCmd = &cobra.Command{
	Use:   "reload <id>",
	Short: "Restart an instance's platform session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return onInstance(cmd, args[0], "Reloaded", func(st *stack) error {
			return st.engine.ReloadInstance(cmd.Context(), args[0])
		})
	},
}

var qrcodeCmd = &cobra.Command{
	Use:   "qrcode <id>",
	Short: "Show the pairing QR code of an instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("out")
		ctx, cancel := commandContext(cmd)
		defer cancel()

		st := e.newStack()
		code, err := st.engine.FetchQRCode(ctx, args[0])
		if err != nil {
			return err
		}
		if jsonFlag {
			outputJSON(map[string]string{"id": args[0], "qrcode": code})
			return nil
		}
		return showQR(os.Stdout, code, out, args[0])
	},
}

// onInstance loads the listing so the engine knows id, runs op and prints a
// confirmation.
func onInstance(cmd *cobra.Command, id, done string, op func(st *stack) error) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()
	cmd.SetContext(ctx)

	st := e.newStack()
	if err := st.engine.RefreshInstances(ctx, true); err != nil {
		return err
	}
	if _, ok := st.instances.Get(id); !ok {
		return fmt.Errorf("instance %q not found", id)
	}
	if err := op(st); err != nil {
		return err
	}
	if jsonFlag {
		inst, _ := st.instances.Get(id)
		outputJSON(map[string]any{"id": id, "ok": true, "instance": inst})
		return nil
	}
	fmt.Printf("%s instance %s\n", done, id)
	return nil
}

func patchFromFlags(cmd *cobra.Command) (model.InstancePatch, error) {
	var patch model.InstancePatch
	flags := cmd.Flags()
	if flags.Changed("name") {
		v, _ := flags.GetString("name")
		patch.Name = &v
	}
	if flags.Changed("type") {
		v, _ := flags.GetString("type")
		patch.Type = model.Ptr(model.ParsePlatform(v))
	}
	if flags.Changed("webhook") {
		v, _ := flags.GetString("webhook")
		patch.WebhookURL = &v
	}
	if flags.Changed("avatar") {
		v, _ := flags.GetString("avatar")
		patch.Avatar = &v
	}
	if patch.Empty() {
		return patch, errors.New("nothing to update: pass at least one of --name, --type, --webhook, --avatar")
	}
	return patch, nil
}

func printInstances(list []model.Instance) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tSTATUS\tMESSAGES\tLAST ACTIVITY")
	for _, inst := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			inst.ID, inst.Name, inst.Type, inst.Status, inst.MessagesCount, formatTime(inst.LastActivity))
	}
	_ = w.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
