package qr

import (
	qrcode "github.com/skip2/go-qrcode"
)

// PNG renders a payload string into a scannable QR image. Pure transform,
// no state.
func PNG(payload string, size int) ([]byte, error) {
	return qrcode.Encode(payload, qrcode.Medium, size)
}
