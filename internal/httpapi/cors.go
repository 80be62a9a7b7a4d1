package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"order_pacer/internal/config"
)

func corsMiddleware(cfg config.CorsConfig) func(http.Handler) http.Handler {
	allowHeaders := []string{"Content-Type", "Authorization"}
	allowMethods := []string{"GET", "POST", "PUT", "OPTIONS"}
	maxAge := 600

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowedOrigin := ""
			for _, o := range cfg.AllowOrigins {
				if o == "*" {
					allowedOrigin = "*"
					break
				}
				if strings.EqualFold(o, origin) {
					allowedOrigin = origin
					break
				}
			}

			if allowedOrigin != "" {
				w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
				if cfg.AllowCredentials {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				w.Header().Set("Access-Control-Allow-Headers", strings.Join(allowHeaders, ", "))
				w.Header().Set("Access-Control-Allow-Methods", strings.Join(allowMethods, ", "))
				w.Header().Set("Access-Control-Max-Age", strconv.Itoa(maxAge))
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
