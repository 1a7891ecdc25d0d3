// Package share builds public story links and QR codes for printed
// material at the market stall.
package share

import (
	"fmt"
	"net/url"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// StoryURL returns the public URL for a published story.
func StoryURL(publicBase, slug string) string {
	return strings.TrimRight(publicBase, "/") + "/stories/" + url.PathEscape(slug)
}

// QRPNG renders a QR code for the given URL as a PNG image.
func QRPNG(target string, size int) ([]byte, error) {
	if size <= 0 {
		size = 512
	}
	data, err := qrcode.Encode(target, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}
	return data, nil
}
