package pickupcode

import (
	"github.com/skip2/go-qrcode"
)

// DefaultQRSize is the pixel width of rendered pickup QR images.
const DefaultQRSize = 256

// RenderQR encodes a pickup code as a PNG QR image for the buyer's receipt
// and share links. The QR carries only the code itself; scanning it at the
// shop is equivalent to reading the code out loud.
func RenderQR(code string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultQRSize
	}
	return qrcode.Encode(code, qrcode.Medium, size)
}
