package middleware

import (
	"net/http"
	"strings"

	"github.com/lumra/lumra-backend/internal/utils"
)

// GuardianHeader carries the acting guardian id. It is set by the upstream
// gateway after it has authenticated the caller.
const GuardianHeader = "X-Guardian-ID"

// ElderlyHeader carries the acting elderly user id for requests made from
// the elderly user's device.
const ElderlyHeader = "X-Elderly-ID"

type GuardianFetcher interface {
	GuardianExists(id string) (bool, error)
}

type ElderlyFetcher interface {
	ElderlyExists(id string) (bool, error)
}

// GuardianMiddleware rejects requests that do not name a known guardian and
// injects the guardian id into the request context.
func GuardianMiddleware(fetcher GuardianFetcher) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			guardianID := strings.TrimSpace(r.Header.Get(GuardianHeader))
			if guardianID == "" {
				http.Error(w, "Missing guardian identity", http.StatusUnauthorized)
				return
			}

			ok, err := fetcher.GuardianExists(guardianID)
			if err != nil {
				http.Error(w, "Couldn't look up guardian", http.StatusInternalServerError)
				return
			}
			if !ok {
				http.Error(w, "Unknown guardian", http.StatusUnauthorized)
				return
			}

			ctx := utils.WithGuardianID(r.Context(), guardianID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ElderlyMiddleware is GuardianMiddleware for elderly devices.
func ElderlyMiddleware(fetcher ElderlyFetcher) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			elderlyID := strings.TrimSpace(r.Header.Get(ElderlyHeader))
			if elderlyID == "" {
				http.Error(w, "Missing elderly identity", http.StatusUnauthorized)
				return
			}

			ok, err := fetcher.ElderlyExists(elderlyID)
			if err != nil {
				http.Error(w, "Couldn't look up elderly user", http.StatusInternalServerError)
				return
			}
			if !ok {
				http.Error(w, "Unknown elderly user", http.StatusUnauthorized)
				return
			}

			ctx := utils.WithElderlyID(r.Context(), elderlyID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CORSMiddleware echoes the request origin back only when it is on the
// allow-list.
func CORSMiddleware(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if _, ok := allowed[origin]; ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin") // important for caches
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods",
					"GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers",
					"Content-Type, Authorization, "+GuardianHeader+", "+ElderlyHeader)
			}

			w.Header().Set("Access-Control-Expose-Headers", "Retry-After")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
