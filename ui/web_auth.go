package ui

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"fwvoice/core/session"

	"github.com/golang-jwt/jwt/v5"
)

type sessionKey struct{}

func sessionFrom(ctx context.Context) *session.Session {
	s, _ := ctx.Value(sessionKey{}).(*session.Session)
	return s
}

func (w *WebInterface) createToken(sessionID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   sessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(w.tokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(w.secret)
}

func (w *WebInterface) verifyToken(tokenString string) (string, error) {
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
		return w.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		// Claims are filled in when only the expiry check failed.
		return claims.Subject, err
	}
	if !token.Valid || claims.Subject == "" {
		return "", fmt.Errorf("invalid token")
	}
	return claims.Subject, nil
}

// authenticate resolves a bearer token to a live session.
func (w *WebInterface) authenticate(tokenString string) (*session.Session, error) {
	id, err := w.verifyToken(tokenString)
	if errors.Is(err, jwt.ErrTokenExpired) && id != "" {
		w.drop(id)
	}
	if err != nil {
		return nil, err
	}
	sess, ok := w.lookup(id)
	if !ok || sess.LoggedOut() {
		return nil, session.ErrLoggedOut
	}
	return sess, nil
}

func (w *WebInterface) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(wr http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || tokenString == "" {
			writeError(wr, http.StatusUnauthorized, "missing authorization header")
			return
		}

		sess, err := w.authenticate(tokenString)
		if err != nil {
			writeError(wr, http.StatusUnauthorized, "invalid token")
			return
		}

		next(wr, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	}
}
