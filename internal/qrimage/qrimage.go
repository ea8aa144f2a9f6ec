// Package qrimage renders the scannable image for a minted session. It is a
// stateless wrapper around the QR encoder so the rest of the system only
// deals in strings.
package qrimage

import (
	"fmt"
	"time"

	qrcode "github.com/skip2/go-qrcode"
)

const defaultSize = 256

// Payload builds the text embedded in the QR code: the redemption URL a
// scanner should open, annotated with subject and mint time for humans
// pointing a plain reader at it.
func Payload(baseURL, token, subject string, mintedAt time.Time) string {
	return fmt.Sprintf("%s/v1/redeem?token=%s\nSubject: %s | Time: %s",
		baseURL, token, subject, mintedAt.Format(time.RFC3339))
}

// EncodePNG turns a payload into a PNG image.
func EncodePNG(payload string) ([]byte, error) {
	return qrcode.Encode(payload, qrcode.Medium, defaultSize)
}
