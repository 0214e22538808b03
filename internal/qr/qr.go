// Package qr renders payment payloads as QR codes. The payload string passed
// to either renderer must stay byte-identical so a code produced by the local
// encoder and one produced by the hosted fallback scan to the same bytes.
package qr

import (
	"fmt"
	"net/url"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultSize is the pixel edge length used when no size hint is given.
const DefaultSize = 220

// Renderer encodes payloads locally and knows the hosted fallback.
type Renderer struct {
	FallbackBaseURL string
	Size            int
}

func (r Renderer) size() int {
	if r.Size > 0 {
		return r.Size
	}
	return DefaultSize
}

// Encode renders the payload as a PNG image.
func (r Renderer) Encode(payload string) ([]byte, error) {
	png, err := qrcode.Encode(payload, qrcode.Medium, r.size())
	if err != nil {
		return nil, fmt.Errorf("qr: encode: %w", err)
	}
	return png, nil
}

// FallbackURL builds the hosted-renderer URL carrying the identical payload
// bytes, for callers that cannot use the local PNG.
func (r Renderer) FallbackURL(payload string) string {
	base := r.FallbackBaseURL
	if base == "" {
		base = "https://api.qrserver.com/v1/create-qr-code/"
	}
	size := r.size()
	return fmt.Sprintf("%s?size=%dx%d&data=%s", base, size, size, url.QueryEscape(payload))
}
