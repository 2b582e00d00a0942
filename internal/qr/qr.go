// Package qr builds the QR codes that lead to the public view page of a person.
package qr

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"
	"gitlab.com/dirk.krummacker/qrinfo-service/pkg/model"
)

// DefaultSize is the edge length in pixels of generated images.
const DefaultSize = 256

// Generator renders QR codes for the view pages below BaseURL.
type Generator struct {
	BaseURL string
}

// URL returns the address of the public view page of the person with the given id.
func (g Generator) URL(id string) string {
	return strings.TrimRight(g.BaseURL, "/") + "/view/" + url.PathEscape(id)
}

// PNG renders the view page URL of the given id as a PNG image of size x size pixels.
func (g Generator) PNG(id string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	png, err := qrcode.Encode(g.URL(id), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encoding QR code for %q: %w", id, err)
	}
	return png, nil
}

// FileName returns the download name of a person's QR code image.
func FileName(p model.Person, now time.Time) string {
	return fmt.Sprintf("qr-%s-%s-%d.png", p.Name, p.LastName, now.UnixMilli())
}
