package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"

	"github.com/storekit/storefront/internal/domain/auth"
	"github.com/storekit/storefront/internal/domain/cart"
)

// Actor identifies who is making a request: an authenticated user or an
// anonymous guest session.
type Actor struct {
	UserID  string
	GuestID string
}

// Owner converts the actor to a cart owner reference.
func (a Actor) Owner() cart.Owner {
	return cart.Owner{UserID: a.UserID, GuestID: a.GuestID}
}

type actorKey struct{}

// ActorFromContext extracts the request actor set by Security.WithActor.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}

// Security authenticates API requests: bearer JWTs for users, the X-Guest-ID
// header for anonymous carts, and HMAC-hashed API keys for admin operations.
type Security struct {
	apikeys   auth.Repository
	pepper    []byte
	jwtSecret []byte
}

// NewSecurity creates a Security with the given API key repository, HMAC
// pepper and JWT signing secret.
func NewSecurity(apikeys auth.Repository, pepper, jwtSecret []byte) *Security {
	return &Security{
		apikeys:   apikeys,
		pepper:    pepper,
		jwtSecret: jwtSecret,
	}
}

// WithActor resolves the request identity. A valid Authorization bearer token
// wins; otherwise X-Guest-ID names an anonymous cart session. Requests with
// neither, or with an invalid token, get a 401.
func (s *Security) WithActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var actor Actor

		switch {
		case r.Header.Get("Authorization") != "":
			userID, err := s.userFromToken(r.Header.Get("Authorization"))
			if err != nil {
				writeErrorKind(w, http.StatusUnauthorized, kindUnauthorized, "invalid token")
				return
			}
			actor.UserID = userID
		case r.Header.Get("X-Guest-ID") != "":
			actor.GuestID = r.Header.Get("X-Guest-ID")
		default:
			writeErrorKind(w, http.StatusUnauthorized, kindUnauthorized, "authentication required")
			return
		}

		ctx := context.WithValue(r.Context(), actorKey{}, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// userFromToken validates an HS256 bearer token and returns its subject.
func (s *Security) userFromToken(header string) (string, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", errors.New("malformed authorization header")
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return "", err
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}

// RequireAdmin authenticates the X-API-Key header against the API key store
// and requires the "admin" scope. The key is HMAC-SHA256 hashed before lookup
// and the stored hash is compared in constant time.
func (s *Security) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if key == "" {
			writeErrorKind(w, http.StatusUnauthorized, kindUnauthorized, "api key required")
			return
		}

		mac := hmac.New(sha256.New, s.pepper)
		mac.Write([]byte(key))
		hash := mac.Sum(nil)

		info, err := s.apikeys.FindByHash(r.Context(), hex.EncodeToString(hash))
		if err != nil {
			writeErrorKind(w, http.StatusUnauthorized, kindUnauthorized, "invalid api key")
			return
		}

		stored, err := hex.DecodeString(info.KeyHash)
		if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
			writeErrorKind(w, http.StatusUnauthorized, kindUnauthorized, "invalid api key")
			return
		}

		if !info.HasScope("admin") {
			writeErrorKind(w, http.StatusForbidden, kindForbidden, "admin scope required")
			return
		}

		next.ServeHTTP(w, r)
	})
}
