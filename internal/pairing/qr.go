// Package pairing renders the device-linking code for presentation.
package pairing

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const pngSize = 256

// RenderPNG renders the pairing code as a base64-encoded QR PNG.
func RenderPNG(code string) (string, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, pngSize)
	if err != nil {
		return "", fmt.Errorf("failed to render QR code: %w", err)
	}
	return base64.StdEncoding.EncodeToString(png), nil
}

// RenderASCII renders the pairing code as terminal-friendly ASCII art.
func RenderASCII(code string) (string, error) {
	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to render QR code: %w", err)
	}
	return qr.ToSmallString(false), nil
}
