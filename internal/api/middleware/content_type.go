package middleware

import (
	"mime"
	"net/http"
	"strings"

	"github.com/hershield/hershield/internal/api/models"
)

// ContentTypeJSON defaults responses to application/json. Handlers that
// export KML set their own type first.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// RequireJSON answers 415 to request bodies declared as anything but JSON.
// An absent Content-Type passes because SOS and tick accept an empty body.
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		declared := r.Header.Get("Content-Type")
		if !carriesBody(r.Method) || declared == "" || isJSON(declared) {
			next.ServeHTTP(w, r)
			return
		}
		models.NewUnsupportedMediaType(GetRequestID(r.Context()), "Content-Type must be application/json").
			WithInstance(r.URL.Path).
			Write(w)
	})
}

func carriesBody(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch
}

// isJSON accepts application/json and structured +json types, any parameters.
func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
