package render

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// QRCodeSize is the edge length of generated QR code images in pixels.
const QRCodeSize = 512

// QRCode renders link as a PNG image.
func QRCode(link string) ([]byte, error) {
	png, err := qrcode.Encode(link, qrcode.Medium, QRCodeSize)
	if err != nil {
		return nil, fmt.Errorf("could not encode qr code: %w", err)
	}
	return png, nil
}
