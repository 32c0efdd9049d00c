package httpmiddleware

import (
	"net/http"

	"github.com/boypt/torrentdesk/common"
)

// Liveness answers /healthz before anything else in the chain, so probes
// never need credentials.
func Liveness(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(http.StatusOK)
			_, err := w.Write([]byte("OK"))
			common.HandleError(err)
			return
		}
		h.ServeHTTP(w, r)
	})
}
