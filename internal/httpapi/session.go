package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nikolayk812/booksettle/internal/apperrors"
)

// Session identifies the authenticated buyer of a request.
type Session struct {
	BuyerID string
	Email   string
}

type sessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// contextKey stores request values in context.
type contextKey string

const sessionContextKey contextKey = "booksettle-session"

func WithSession(ctx context.Context, session Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}

// SessionFromContext returns the zero Session for unauthenticated requests.
func SessionFromContext(ctx context.Context) Session {
	session, _ := ctx.Value(sessionContextKey).(Session)
	return session
}

// SessionVerifier validates HS256 session tokens issued by the identity service.
type SessionVerifier struct {
	secret []byte
	now    func() time.Time
}

func NewSessionVerifier(secret []byte, now func() time.Time) (*SessionVerifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("session secret is empty")
	}
	if now == nil {
		now = time.Now
	}

	return &SessionVerifier{secret: secret, now: now}, nil
}

func (v *SessionVerifier) Verify(token string) (Session, error) {
	claims := &sessionClaims{}

	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return Session{}, fmt.Errorf("jwt.ParseWithClaims: %w", err)
	}

	if claims.Subject == "" {
		return Session{}, errors.New("subject is empty")
	}

	return Session{BuyerID: claims.Subject, Email: claims.Email}, nil
}

// RequireSession rejects requests without a valid bearer token.
func (v *SessionVerifier) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, r, apperrors.ErrUnauthorized)
			return
		}

		session, err := v.Verify(token)
		if err != nil {
			writeError(w, r, apperrors.Wrap(apperrors.CodeUnauthorized, "unauthorized", err))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)
	return token, token != ""
}
