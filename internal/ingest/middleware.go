package ingest

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
)

// maxLoggedBody bounds how much of a request body ends up in one log line.
const maxLoggedBody = 64 * 1024

// DebugBodyLog logs the raw body of incoming requests at debug level, so
// notification shapes from misbehaving CSEs can be inspected without a
// packet capture. The body is re-wrapped and reaches downstream handlers
// unchanged. When debug logging is off the request passes through untouched.
func DebugBodyLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil && slog.Default().Enabled(r.Context(), slog.LevelDebug) {
			head, err := io.ReadAll(io.LimitReader(r.Body, maxLoggedBody))
			if err == nil {
				slog.Debug("raw request",
					"method", r.Method,
					"path", r.URL.Path,
					"body", string(head),
				)
				r.Body = rewoundBody{io.MultiReader(bytes.NewReader(head), r.Body), r.Body}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// rewoundBody stitches the already-read head back onto the remaining body
// while keeping the original Closer.
type rewoundBody struct {
	io.Reader
	io.Closer
}
