package report

import (
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// ManifestHashToQR encodes the hex digits of a manifest hash as a QR code
// PNG of size pixels.
func ManifestHashToQR(hash string, size int) ([]byte, error) {
	digits := hexDigits(hash)
	if digits == "" {
		return nil, fmt.Errorf("manifest hash is empty")
	}
	if size <= 0 {
		size = 128
	}
	return qrcode.Encode(digits, qrcode.Medium, size)
}

func hexDigits(hash string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(hash)) {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
