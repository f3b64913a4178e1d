// Package middleware содержит HTTP middleware сервиса хранения коллекций.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AccessKeyHeader - заголовок, в котором клиент может передать ключ доступа.
const AccessKeyHeader = "apikey"

// AccessKeyMiddleware пропускает только запросы с верным ключом доступа.
type AccessKeyMiddleware struct {
	key []byte
}

// NewAccessKeyMiddleware создаёт middleware с ключом key. С пустым ключом отклоняются все запросы.
func NewAccessKeyMiddleware(key string) *AccessKeyMiddleware {
	return &AccessKeyMiddleware{key: []byte(key)}
}

// Middleware проверяет ключ из заголовка apikey или Authorization: Bearer.
func (a *AccessKeyMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.valid(accessKeyFromRequest(r)) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *AccessKeyMiddleware) valid(key string) bool {
	if len(a.key) == 0 || key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), a.key) == 1
}

func accessKeyFromRequest(r *http.Request) string {
	if v := r.Header.Get(AccessKeyHeader); v != "" {
		return v
	}
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
