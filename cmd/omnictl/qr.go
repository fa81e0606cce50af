package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// showQR prints a pairing code. Raw payloads are rendered in the terminal;
// services that answer with a data: image URL get the image written to disk.
func showQR(w io.Writer, code, out, id string) error {
	if code == "" {
		return errors.New("service returned an empty QR code")
	}
	if strings.HasPrefix(code, "data:") {
		data, ext, err := decodeDataURL(code)
		if err != nil {
			return err
		}
		if out == "" {
			out = id + "-qrcode." + ext
		}
		if err := os.WriteFile(out, data, 0600); err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "QR code image written to %s\n", out)
		return err
	}

	if out != "" {
		if err := qrcode.WriteFile(code, qrcode.Medium, 256, out); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "\n  Scan this QR code with the instance's app:\n\n%s\n", renderQR(code))
	return err
}

// decodeDataURL returns the bytes and file extension of a base64 data URL.
func decodeDataURL(s string) ([]byte, string, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return nil, "", errors.New("unsupported QR code data URL")
	}
	ext := "png"
	mime := strings.TrimSuffix(header, ";base64")
	if _, sub, ok := strings.Cut(mime, "/"); ok && sub != "" {
		ext = strings.TrimSuffix(sub, "+xml")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode QR code image: %w", err)
	}
	return data, ext, nil
}

// renderQR converts a string to a compact QR code using Unicode half-block
// characters. Two bitmap rows become one terminal line.
func renderQR(content string) string {
	qr, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return "  (QR generation failed: " + err.Error() + ")"
	}

	bitmap := qr.Bitmap()
	rows := len(bitmap)
	cols := 0
	if rows > 0 {
		cols = len(bitmap[0])
	}

	var sb strings.Builder
	for y := 0; y < rows; y += 2 {
		sb.WriteString("  ")
		for x := 0; x < cols; x++ {
			top := bitmap[y][x] // true = black module
			bot := false
			if y+1 < rows {
				bot = bitmap[y+1][x]
			}
			switch {
			case top && bot:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bot:
				sb.WriteRune('▄')
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteRune('\n')
	}
	return sb.String()
}
