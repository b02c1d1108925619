package server

import (
	"net/http"
	"strings"
	"time"
)

const tokenCookieName = "mm_token"

// authMiddleware checks for a valid token in the query param, a bearer
// header or the cookie
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check query param first
		queryToken := r.URL.Query().Get("token")
		if queryToken != "" {
			if queryToken != s.token {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			http.SetCookie(w, &http.Cookie{
				Name:     tokenCookieName,
				Value:    s.token,
				Path:     "/",
				HttpOnly: true,
				MaxAge:   int(24 * time.Hour / time.Second), // 24 hours
				SameSite: http.SameSiteLaxMode,
			})

			// Redirect reads to the same path without the token param.
			// Writes keep going so the body is not lost.
			if r.Method == http.MethodGet {
				newURL := *r.URL
				q := newURL.Query()
				q.Del("token")
				newURL.RawQuery = q.Encode()
				http.Redirect(w, r, newURL.String(), http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
			if bearer != s.token {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		// Check cookie
		cookie, err := r.Cookie(tokenCookieName)
		if err != nil || cookie.Value != s.token {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		// Valid cookie - proceed
		next.ServeHTTP(w, r)
	})
}
