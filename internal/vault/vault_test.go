package vault

import (
	"bytes"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	v := New("correct horse battery staple")

	sealed, err := v.Seal([]byte("sk-secret-key"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Contains(sealed, []byte("sk-secret-key")) {
		t.Fatal("sealed blob contains plaintext")
	}

	got, err := v.Open(sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if string(got) != "sk-secret-key" {
		t.Errorf("got %q", got)
	}
}

func TestOpenAcrossInstances(t *testing.T) {
	sealed, err := New("pass").Seal([]byte("payload"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	// Same passphrase derives the same key after a restart.
	got, err := New("pass").Open(sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("got %q", got)
	}
}

func TestOpenRejectsWrongPassphrase(t *testing.T) {
	sealed, _ := New("right").Seal([]byte("payload"))
	if _, err := New("wrong").Open(sealed); err == nil {
		t.Error("expected decryption failure")
	}
}

func TestOpenRejectsTamperedBlob(t *testing.T) {
	v := New("pass")
	sealed, _ := v.Seal([]byte("payload"))

	sealed[len(sealed)-1] ^= 0xff
	if _, err := v.Open(sealed); err == nil {
		t.Error("expected tamper detection")
	}

	if _, err := v.Open([]byte("short")); err == nil {
		t.Error("expected error for truncated blob")
	}
}

func TestSealIsNonDeterministic(t *testing.T) {
	v := New("pass")
	a, _ := v.Seal([]byte("payload"))
	b, _ := v.Seal([]byte("payload"))
	if bytes.Equal(a, b) {
		t.Error("two seals of the same plaintext should differ")
	}
}
