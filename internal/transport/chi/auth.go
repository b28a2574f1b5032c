package chi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

// Paths served without a key.
var publicPaths = map[string]bool{
	"/ping":    true,
	"/health":  true,
	"/metrics": true,
}

type role int

const (
	roleNone role = iota
	roleReader
	roleAdmin
)

// keyring authenticates API keys. Reader keys open every route except
// those wrapped in requireAdmin; admin keys open all of them. With no
// admin keys configured, reader keys are admins too.
type keyring struct {
	readers [][]byte
	admins  [][]byte
}

func newKeyring(readers, admins []string) *keyring {
	k := &keyring{readers: nonEmpty(readers), admins: nonEmpty(admins)}
	if len(k.admins) == 0 {
		k.admins, k.readers = k.readers, nil
	}
	return k
}

func nonEmpty(keys []string) [][]byte {
	var out [][]byte
	for _, k := range keys {
		if k != "" {
			out = append(out, []byte(k))
		}
	}
	return out
}

func (k *keyring) enabled() bool { return len(k.readers)+len(k.admins) > 0 }

func (k *keyring) role(key []byte) role {
	if matchAny(k.admins, key) {
		return roleAdmin
	}
	if matchAny(k.readers, key) {
		return roleReader
	}
	return roleNone
}

// matchAny compares against every key so timing does not reveal which
// one matched.
func matchAny(keys [][]byte, key []byte) bool {
	found := 0
	for _, k := range keys {
		found |= subtle.ConstantTimeCompare(k, key)
	}
	return found == 1
}

// presentedKey reads the key from "Authorization: Bearer" or X-API-Key.
func presentedKey(r *http.Request) (string, string) {
	if auth := r.Header.Get("Authorization"); auth != "" {
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok {
			return "", "authorization header must use Bearer scheme"
		}
		return token, ""
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key, ""
	}
	return "", "missing api key"
}

// authenticate rejects requests without a known key. A disabled keyring
// passes everything through.
func (k *keyring) authenticate(next http.Handler) http.Handler {
	if !k.enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		key, problem := presentedKey(r)
		if problem != "" {
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, problem)
			return
		}
		rl := k.role([]byte(key))
		if rl == roleNone {
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), roleKey{}, rl)))
	})
}

type roleKey struct{}

// requireAdmin answers 403 to reader keys.
func (k *keyring) requireAdmin(next http.Handler) http.Handler {
	if !k.enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl, _ := r.Context().Value(roleKey{}).(role); rl != roleAdmin {
			writeError(w, http.StatusForbidden, CodeForbidden, "admin key required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
