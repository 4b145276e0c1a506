package httpx

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const RoleStaff = "staff"

type Identity struct {
	ParentID string
	Role     string
}

func (id Identity) Staff() bool { return id.Role == RoleStaff }

type ctxKey int

const identityKey ctxKey = iota

// Auth verifies the bearer token and stashes the caller identity in the
// request context. Token issuance itself lives in the school's SSO; this
// service only verifies.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if raw == "" || raw == r.Header.Get("Authorization") {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "UNAUTHORIZED"})
				return
			}
			parsed, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
				return []byte(secret), nil
			})
			if err != nil || !parsed.Valid {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "UNAUTHORIZED"})
				return
			}
			m, ok := parsed.Claims.(jwt.MapClaims)
			if !ok {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "UNAUTHORIZED"})
				return
			}
			id := Identity{}
			id.ParentID, _ = m["parent_id"].(string)
			id.Role, _ = m["role"].(string)
			if id.ParentID == "" && !id.Staff() {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "UNAUTHORIZED"})
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, id)))
		})
	}
}

func CallerIdentity(r *http.Request) Identity {
	id, _ := r.Context().Value(identityKey).(Identity)
	return id
}

// SignToken issues an HS256 token; used by local tooling and tests.
func SignToken(secret, parentID, role string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"parent_id": parentID,
		"role":      role,
		"exp":       time.Now().Add(ttl).Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(secret))
}
