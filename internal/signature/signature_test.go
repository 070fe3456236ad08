package signature

import (
	"errors"
	"strings"
	"testing"
)

const testSecret = "test-webhook-secret"

func TestVerify_Valid(t *testing.T) {
	body := []byte(`{"event":"room_started"}`)
	v := NewVerifier(testSecret)

	sig := Sign(testSecret, body)
	if err := v.Verify(body, sig); err != nil {
		t.Fatalf("Verify valid signature: %v", err)
	}

	// Uppercase hex and a sha256= prefix are accepted.
	if err := v.Verify(body, strings.ToUpper(sig)); err != nil {
		t.Errorf("Verify uppercase signature: %v", err)
	}
	if err := v.Verify(body, "sha256="+sig); err != nil {
		t.Errorf("Verify prefixed signature: %v", err)
	}
}

func TestVerify_Rejects(t *testing.T) {
	body := []byte(`{"event":"room_started"}`)
	good := Sign(testSecret, body)

	tests := []struct {
		name    string
		body    []byte
		header  string
		wantErr error
	}{
		{"missing header", body, "", ErrMissing},
		{"whitespace header", body, "   ", ErrMissing},
		{"prefix only", body, "sha256=", ErrMissing},
		{"not hex", body, "zzzz", ErrMismatch},
		{"wrong secret", body, Sign("other-secret", body), ErrMismatch},
		{"tampered body", []byte(`{"event":"room_finished"}`), good, ErrMismatch},
		{"truncated", body, good[:len(good)-2], ErrMismatch},
	}

	v := NewVerifier(testSecret)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(tt.body, tt.header)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Verify() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestVerify_NoSecretFailsClosed(t *testing.T) {
	body := []byte(`{}`)

	for _, secret := range []string{"", "   "} {
		v := NewVerifier(secret)
		// Even a signature computed with the empty key must be rejected.
		if err := v.Verify(body, Sign("", body)); !errors.Is(err, ErrNoSecret) {
			t.Errorf("Verify with secret %q: error = %v, want ErrNoSecret", secret, err)
		}
	}

	var nilVerifier *Verifier
	if err := nilVerifier.Verify(body, "abc"); !errors.Is(err, ErrNoSecret) {
		t.Errorf("nil Verifier: error = %v, want ErrNoSecret", err)
	}
}

func TestSign_KnownVector(t *testing.T) {
	// RFC 4231 test case 2.
	got := Sign("Jefe", []byte("what do ya want for nothing?"))
	want := "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843"
	if got != want {
		t.Errorf("Sign = %s, want %s", got, want)
	}
}

func TestCheckHeader(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		header  string
		wantErr error
	}{
		{"present", "s", "abcd", nil},
		{"present with prefix", "s", "sha256=abcd", nil},
		{"empty", "s", "", ErrMissing},
		{"whitespace", "s", "  ", ErrMissing},
		{"prefix only", "s", "sha256=", ErrMissing},
		{"no secret", "", "abcd", ErrNoSecret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewVerifier(tt.secret).CheckHeader(tt.header)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CheckHeader(%q) = %v, want %v", tt.header, err, tt.wantErr)
			}
		})
	}
}
