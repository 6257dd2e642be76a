package kyc

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	svc, err := New("https://storage.example.com/kyc", []byte("master-secret"), NewAdminList("admin-1"), nil, opts...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestSignedURL_AdminOnly(t *testing.T) {
	svc := newTestService(t)

	if _, err := svc.SignedURL("", "u1/passport.jpg"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("empty requester: err = %v, want ErrUnauthorized", err)
	}
	if _, err := svc.SignedURL("u1", "u1/passport.jpg"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-admin: err = %v, want ErrForbidden", err)
	}

	signed, err := svc.SignedURL("admin-1", "u1/passport.jpg")
	if err != nil {
		t.Fatalf("admin request: %v", err)
	}
	if !strings.HasPrefix(signed, "https://storage.example.com/kyc/u1/passport.jpg?") {
		t.Fatalf("unexpected url: %s", signed)
	}
	if err := svc.Verify(signed); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestSignedURL_RejectsTraversal(t *testing.T) {
	svc := newTestService(t)
	for _, path := range []string{"", "../secrets/key", "u1/../../etc/passwd"} {
		if _, err := svc.SignedURL("admin-1", path); err == nil {
			t.Errorf("path %q accepted", path)
		}
	}
}

func TestVerify_TamperedURL(t *testing.T) {
	svc := newTestService(t)

	signed, err := svc.SignedURL("admin-1", "u1/passport.jpg")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	tampered := strings.Replace(signed, "u1/passport.jpg", "u2/passport.jpg", 1)
	if err := svc.Verify(tampered); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("tampered path: err = %v, want ErrBadSignature", err)
	}

	noSig := strings.Split(signed, "?")[0] + "?expires=9999999999&signature=abc"
	if err := svc.Verify(noSig); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("forged signature: err = %v, want ErrBadSignature", err)
	}
}

func TestVerify_Expiry(t *testing.T) {
	svc := newTestService(t, WithTTL(time.Minute))

	issued := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issued }
	signed, err := svc.SignedURL("admin-1", "u1/passport.jpg")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := svc.Verify(signed); err != nil {
		t.Fatalf("fresh url rejected: %v", err)
	}

	svc.now = func() time.Time { return issued.Add(2 * time.Minute) }
	if err := svc.Verify(signed); !errors.Is(err, ErrExpired) {
		t.Fatalf("stale url: err = %v, want ErrExpired", err)
	}
}

func TestDerivedKeysDifferPerContext(t *testing.T) {
	a := newTestService(t)
	b, err := New("https://storage.example.com/kyc", []byte("other-secret"), NewAdminList("admin-1"), nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	signed, err := a.SignedURL("admin-1", "u1/passport.jpg")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := b.Verify(signed); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("cross-secret verify: err = %v, want ErrBadSignature", err)
	}
}
