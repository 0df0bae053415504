package logger

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestScrubRedactsAndHashes(t *testing.T) {
	out := scrub([]interface{}{
		"authorization", "Bearer abc",
		"patient_id", "PAT-0001",
		"patient_name", "DOE^JANE",
		"study_id", "1234",
	})
	if len(out) != 8 {
		t.Fatalf("expected 8 entries, got %d", len(out))
	}
	if out[1] != "[REDACTED]" || out[5] != "[REDACTED]" {
		t.Fatalf("sensitive values not redacted: %#v", out)
	}
	h, _ := out[3].(string)
	if !strings.HasPrefix(h, "hash:") || strings.Contains(h, "PAT-0001") {
		t.Fatalf("patient_id not hashed: %v", out[3])
	}
	if out[7] != "1234" {
		t.Fatalf("study_id should pass through, got %v", out[7])
	}
}

func TestScrubHashIsStable(t *testing.T) {
	id := uuid.New()
	a := scrub([]interface{}{"user_id", id})
	b := scrub([]interface{}{"owner_user_id", id.String()})
	if a[1] != b[1] {
		t.Fatalf("hash differs for the same id: %v vs %v", a[1], b[1])
	}
}

func TestScrubOddLength(t *testing.T) {
	out := scrub([]interface{}{"key", "v", "dangling"})
	if len(out) != 3 || out[2] != "dangling" {
		t.Fatalf("unexpected output: %#v", out)
	}
}

func TestLooksLikeJWT(t *testing.T) {
	if !looksLikeJWT("eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxMjM0NSJ9.sig") {
		t.Fatalf("expected jwt shape to match")
	}
	if looksLikeJWT("1.2.840.10008") {
		t.Fatalf("uid should not look like a jwt")
	}
}
