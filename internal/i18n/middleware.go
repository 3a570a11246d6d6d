package i18n

import "net/http"

// Middleware injects a localizer into every request context. The server's
// configured language is the default; a request may override it with an
// Accept-Language header.
func Middleware(defaultLang string) func(http.Handler) http.Handler {
	defaultLoc := NewLocalizer(defaultLang)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loc := defaultLoc
			if accept := r.Header.Get("Accept-Language"); accept != "" {
				loc = NewLocalizer(accept)
			}
			ctx := WithLocalizer(r.Context(), loc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
