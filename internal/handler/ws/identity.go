package ws

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const identityMaxAge = 365 * 24 * 60 * 60

// resolveClientID reads the identity cookie, minting a new identifier when it
// is missing or blank.
func resolveClientID(r *http.Request, cookieName string) (id string, minted bool) {
	if c, err := r.Cookie(cookieName); err == nil {
		if v := strings.TrimSpace(c.Value); v != "" {
			return v, false
		}
	}
	return uuid.NewString(), true
}

func identityCookie(cookieName, id string) *http.Cookie {
	return &http.Cookie{
		Name:     cookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   identityMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}
