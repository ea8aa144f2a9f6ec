package qrimage

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestPayload(t *testing.T) {
	minted := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	p := Payload("http://localhost:8081", "1z", "Math", minted)

	if !strings.Contains(p, "http://localhost:8081/v1/redeem?token=1z") {
		t.Fatalf("payload missing redemption URL: %q", p)
	}
	if !strings.Contains(p, "Subject: Math") {
		t.Fatalf("payload missing subject: %q", p)
	}
}

func TestEncodePNG(t *testing.T) {
	png, err := EncodePNG("hello")
	if err != nil {
		t.Fatalf("EncodePNG() error = %v", err)
	}
	magic := []byte{0x89, 'P', 'N', 'G'}
	if len(png) < len(magic) || !bytes.Equal(png[:len(magic)], magic) {
		t.Fatal("output is not a PNG")
	}
}
