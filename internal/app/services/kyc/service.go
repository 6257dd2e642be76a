// Package kyc issues short-lived signed URLs for identity documents. The
// documents bucket is private; reviewers fetch files only through URLs signed
// here, and only admins may request them.
package kyc

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/Van103/fun-charity-sub001/pkg/logger"
)

// DefaultTTL bounds how long a signed document URL stays valid.
const DefaultTTL = 10 * time.Minute

var (
	// ErrUnauthorized is returned when the requester identity is unknown.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when the requester is not an admin.
	ErrForbidden = errors.New("forbidden")
	// ErrExpired is returned when a signed URL's deadline has passed.
	ErrExpired = errors.New("signed url expired")
	// ErrBadSignature is returned when a signed URL fails verification.
	ErrBadSignature = errors.New("bad signature")
)

// AdminChecker reports whether a user has the admin role.
type AdminChecker interface {
	IsAdmin(userID string) bool
}

// AdminList is a fixed-set AdminChecker.
type AdminList map[string]struct{}

// NewAdminList builds an AdminList from user ids.
func NewAdminList(ids ...string) AdminList {
	set := make(AdminList, len(ids))
	for _, id := range ids {
		if id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}

// IsAdmin implements AdminChecker.
func (l AdminList) IsAdmin(userID string) bool {
	_, ok := l[userID]
	return ok
}

// Service signs document URLs with a key derived from the master secret, so
// the master secret itself never signs traffic.
type Service struct {
	baseURL string
	signKey []byte
	admins  AdminChecker
	ttl     time.Duration
	log     *logger.Logger
	now     func() time.Time
}

// Option configures the service.
type Option func(*Service)

// WithTTL overrides the signed URL lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// New creates a KYC URL signer. baseURL is the private bucket endpoint.
func New(baseURL string, masterSecret []byte, admins AdminChecker, log *logger.Logger, opts ...Option) (*Service, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if len(masterSecret) == 0 {
		return nil, fmt.Errorf("master secret is required")
	}
	if admins == nil {
		return nil, fmt.Errorf("admin checker is required")
	}
	if log == nil {
		log = logger.NewDefault("kyc")
	}

	signKey := make([]byte, 32)
	kdf := hkdf.New(sha256.New, masterSecret, nil, []byte("kyc-document-url-v1"))
	if _, err := io.ReadFull(kdf, signKey); err != nil {
		return nil, fmt.Errorf("derive signing key: %w", err)
	}

	s := &Service{
		baseURL: strings.TrimRight(baseURL, "/"),
		signKey: signKey,
		admins:  admins,
		ttl:     DefaultTTL,
		log:     log,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SignedURL issues a signed URL for a document path. requesterID must be a
// known admin; an empty requester is unauthorized, a non-admin is forbidden.
func (s *Service) SignedURL(requesterID, documentPath string) (string, error) {
	if requesterID == "" {
		return "", ErrUnauthorized
	}
	if !s.admins.IsAdmin(requesterID) {
		s.log.WithField("user_id", requesterID).Warn("non-admin requested kyc document url")
		return "", ErrForbidden
	}
	documentPath = strings.TrimLeft(documentPath, "/")
	if documentPath == "" || strings.Contains(documentPath, "..") {
		return "", fmt.Errorf("invalid document path %q", documentPath)
	}

	expires := s.now().UTC().Add(s.ttl).Unix()
	sig := s.sign(documentPath, expires)

	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("signature", sig)
	return s.baseURL + "/" + documentPath + "?" + q.Encode(), nil
}

// Verify checks a signed URL's path, expiry and signature.
func (s *Service) Verify(signedURL string) error {
	u, err := url.Parse(signedURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	expires, err := strconv.ParseInt(u.Query().Get("expires"), 10, 64)
	if err != nil {
		return ErrBadSignature
	}

	path := strings.TrimLeft(strings.TrimPrefix(signedURL, s.baseURL), "/")
	if idx := strings.Index(path, "?"); idx >= 0 {
		path = path[:idx]
	}

	expected := s.sign(path, expires)
	given := u.Query().Get("signature")
	if !hmac.Equal([]byte(expected), []byte(given)) {
		return ErrBadSignature
	}
	if s.now().UTC().Unix() > expires {
		return ErrExpired
	}
	return nil
}

func (s *Service) sign(path string, expires int64) string {
	mac := hmac.New(sha256.New, s.signKey)
	fmt.Fprintf(mac, "%s\n%d", path, expires)
	return hex.EncodeToString(mac.Sum(nil))
}
