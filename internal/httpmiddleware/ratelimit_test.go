package httpmiddleware

import "testing"

func TestTokenBucketExhaustion(t *testing.T) {
	l := NewTokenBucket(3, 3)

	for i := 0; i < 3; i++ {
		if !l.Allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if l.Allow("1.2.3.4") {
		t.Fatal("request over capacity should be rejected")
	}
	// A different client has its own bucket.
	if !l.Allow("5.6.7.8") {
		t.Fatal("other client should be allowed")
	}
}
