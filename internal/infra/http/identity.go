package http

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
)

const (
	headerUserID        = "X-User-ID"
	headerUserSignature = "X-User-Signature"
	headerAdminToken    = "X-Admin-Token"
)

type ctxKey int

const userIDKey ctxKey = iota

// SignUserID возвращает подпись идентификатора пользователя, которую ставит шлюз сессий.
func SignUserID(userID, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(userID))
	return hex.EncodeToString(h.Sum(nil))
}

func validSignature(userID, signature, secret string) bool {
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(userID))
	return hmac.Equal(h.Sum(nil), expected)
}

// IdentityMiddleware проверяет подписанный шлюзом идентификатор пользователя.
func IdentityMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := r.Header.Get(headerUserID)
			if userID == "" {
				WriteError(w, http.StatusUnauthorized, errors.New("идентификатор пользователя отсутствует"))
				return
			}
			if secret == "" || !validSignature(userID, r.Header.Get(headerUserSignature), secret) {
				WriteError(w, http.StatusUnauthorized, errors.New("подпись недействительна"))
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
		})
	}
}

// AdminMiddleware пропускает только запросы с административным токеном.
func AdminMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(headerAdminToken)
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				WriteError(w, http.StatusForbidden, errors.New("доступ запрещён"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserID возвращает идентификатор пользователя, проверенный IdentityMiddleware.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}
