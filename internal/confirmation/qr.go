package confirmation

import (
	"context"
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultQRSize is the PNG edge length in pixels.
const DefaultQRSize = 320

// Renderer turns a ticket id into a PNG.
type Renderer interface {
	Render(content string) ([]byte, error)
}

// QRRenderer renders PNG QR codes at medium (15%) error correction.
type QRRenderer struct {
	Size int
}

// Render encodes content as a QR PNG.
func (r QRRenderer) Render(content string) ([]byte, error) {
	size := r.Size
	if size <= 0 {
		size = DefaultQRSize
	}
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}

// ArtifactStore persists a rendered QR and returns a URL to it.
type ArtifactStore interface {
	StoreQR(ctx context.Context, ticketID string, png []byte) (string, error)
}

// Artifacts renders QR codes and, when a store is configured, publishes them.
type Artifacts struct {
	renderer Renderer
	store    ArtifactStore
}

// NewArtifacts creates an artifact provider. store may be nil, in which case
// QR codes are returned inline as data URIs.
func NewArtifacts(renderer Renderer, store ArtifactStore) *Artifacts {
	return &Artifacts{renderer: renderer, store: store}
}

// QRCode returns a URL or data URI for the ticket's QR image.
func (a *Artifacts) QRCode(ctx context.Context, ticketID string) (string, error) {
	png, err := a.renderer.Render(ticketID)
	if err != nil {
		return "", err
	}
	if a.store != nil {
		url, err := a.store.StoreQR(ctx, ticketID, png)
		if err == nil {
			return url, nil
		}
		return DataURI(png), fmt.Errorf("store qr: %w", err)
	}
	return DataURI(png), nil
}

// DataURI embeds a PNG for direct use in an <img src>.
func DataURI(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
