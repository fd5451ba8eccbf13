package qr

import (
	"encoding/base64"

	qrcode "github.com/skip2/go-qrcode"
)

// Renderer turns payload bytes into a scannable artifact.
type Renderer interface {
	Render(payload []byte) ([]byte, error)
}

// PNGRenderer renders payloads as QR PNGs with high error correction, sized
// for on-screen scanning.
type PNGRenderer struct {
	// Size is the image edge in pixels; 0 means DefaultSize.
	Size int
}

// DefaultSize matches the 300px codes the desktop client displays.
const DefaultSize = 300

// Render encodes the payload into a PNG QR image.
func (r *PNGRenderer) Render(payload []byte) ([]byte, error) {
	size := r.Size
	if size <= 0 {
		size = DefaultSize
	}
	return qrcode.Encode(string(payload), qrcode.High, size)
}

// DataURL wraps a rendered PNG as a base64 data URL for direct embedding.
func DataURL(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
