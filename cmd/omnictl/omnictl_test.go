package main

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rainergb/omni-chat-app-sub001/internal/bus"
	"github.com/rainergb/omni-chat-app-sub001/internal/model"
	"github.com/rainergb/omni-chat-app-sub001/internal/realtime"
	"github.com/rainergb/omni-chat-app-sub001/internal/status"
	"github.com/spf13/cobra"
)

func TestRenderQRUsesHalfBlocks(t *testing.T) {
	out := renderQR("2@pairing-code")
	if strings.Contains(out, "failed") {
		t.Fatalf("render failed: %s", out)
	}
	if !strings.ContainsAny(out, "█▀▄") {
		t.Error("expected half-block characters")
	}
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) < 10 {
		t.Errorf("too few lines: %d", len(lines))
	}
}

func TestShowQRWritesDataURLImage(t *testing.T) {
	payload := []byte("\x89PNG fake")
	code := "data:image/png;base64," + base64.StdEncoding.EncodeToString(payload)
	out := filepath.Join(t.TempDir(), "qr.png")

	var buf bytes.Buffer
	if err := showQR(&buf, code, out, "i1"); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("written = %q", got)
	}
	if !strings.Contains(buf.String(), out) {
		t.Errorf("output = %q", buf.String())
	}
}

func TestShowQRRejectsEmpty(t *testing.T) {
	if err := showQR(&bytes.Buffer{}, "", "", "i1"); err == nil {
		t.Error("expected error")
	}
}

func TestDecodeDataURL(t *testing.T) {
	if _, _, err := decodeDataURL("data:image/png,notbase64"); err == nil {
		t.Error("expected error for non-base64 URL")
	}
	_, ext, err := decodeDataURL("data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte("<svg/>")))
	if err != nil || ext != "svg" {
		t.Errorf("ext = %q err = %v", ext, err)
	}
}

func TestPatchFromFlags(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("name", "", "")
	cmd.Flags().String("type", "", "")
	cmd.Flags().String("webhook", "", "")
	cmd.Flags().String("avatar", "", "")

	if _, err := patchFromFlags(cmd); err == nil {
		t.Error("expected error for empty patch")
	}

	_ = cmd.Flags().Set("name", "suporte")
	_ = cmd.Flags().Set("type", "telegram")
	patch, err := patchFromFlags(cmd)
	if err != nil {
		t.Fatal(err)
	}
	if patch.Name == nil || *patch.Name != "suporte" {
		t.Errorf("name = %v", patch.Name)
	}
	if patch.Type == nil || *patch.Type != model.PlatformTelegram {
		t.Errorf("type = %v", patch.Type)
	}
	if patch.WebhookURL != nil || patch.Avatar != nil {
		t.Error("unset flags must stay nil")
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		evt  bus.Event
		want string
	}{
		{bus.Event{Kind: bus.RealtimeState, Payload: status.StatusChange{From: status.Connecting, To: status.Connected}}, "CONNECTING -> CONNECTED"},
		{bus.Event{Kind: bus.RealtimeDisconnected, Payload: realtime.Disconnect{ServerInitiated: true, Reason: "restart"}}, "closed by server: restart"},
		{bus.Event{Kind: bus.RealtimeConnected}, "channel established"},
		{bus.Event{Kind: bus.ChatTyping, Payload: model.TypingIndicator{ChatID: "c1"}}, ""},
		{bus.Event{Kind: bus.InstanceSelected, Payload: "i1"}, ""},
	}
	for _, tt := range tests {
		if got := describe(tt.evt); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.evt.Kind, got, tt.want)
		}
	}
}

func TestFormatTime(t *testing.T) {
	if formatTime(time.Time{}) != "-" {
		t.Error("zero time should render as -")
	}
}
