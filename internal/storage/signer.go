// Package storage issues and honours time-limited retrieval handles for private files.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/nikolayk812/booksettle/internal/apperrors"
)

const audience = "booksettle-content"

var (
	ErrTokenInvalid = apperrors.New(apperrors.CodeAccessDenied, "content token is invalid")
	ErrTokenExpired = apperrors.New(apperrors.CodeAccessDenied, "content token is expired")
)

type contentClaims struct {
	jwt.RegisteredClaims
	Path string `json:"path"`
}

// Signer issues HS256 tokens bound to a single file path.
type Signer struct {
	baseURL *url.URL
	secret  []byte
	now     func() time.Time
}

func NewSigner(baseURL string, secret []byte, now func() time.Time) (*Signer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("secret must be at least 32 bytes")
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("url.Parse[%s]: %w", baseURL, err)
	}

	if now == nil {
		now = time.Now
	}

	return &Signer{baseURL: u, secret: secret, now: now}, nil
}

// SignURL returns a URL under baseURL that grants read access to path until ttl elapses.
func (s *Signer) SignURL(_ context.Context, path string, ttl time.Duration) (string, error) {
	path = strings.TrimPrefix(path, "/")
	if !fs.ValidPath(path) || path == "." {
		return "", fmt.Errorf("path[%s] is not valid", path)
	}
	if ttl <= 0 {
		return "", fmt.Errorf("ttl[%s] must be positive", ttl)
	}

	now := s.now().UTC()
	claims := contentClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Path: path,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("token.SignedString: %w", err)
	}

	u := s.baseURL.JoinPath(path)
	u.RawQuery = url.Values{"token": {token}}.Encode()

	return u.String(), nil
}

// Verify checks that token is unexpired and was issued for path.
func (s *Signer) Verify(token, path string) error {
	if token == "" {
		return ErrTokenInvalid
	}

	var claims contentClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return apperrors.Wrap(apperrors.CodeAccessDenied, ErrTokenInvalid.Message, err)
	}

	if claims.Path != strings.TrimPrefix(path, "/") {
		return ErrTokenInvalid
	}

	return nil
}

// ContentHandler serves files from fsys for requests carrying a valid token.
// It expects a {path...} wildcard in the route pattern.
func ContentHandler(signer *Signer, fsys fs.FS) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.PathValue("path")

		if err := signer.Verify(r.URL.Query().Get("token"), path); err != nil {
			http.Error(w, "access denied", http.StatusForbidden)
			return
		}

		if !fs.ValidPath(path) {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Cache-Control", "private, no-store")
		http.ServeFileFS(w, r, fsys, path)
	})
}
