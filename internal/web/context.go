package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/salesboard/internal/core"
)

// withClient attaches the caller's IP and User-Agent for the import history.
// RemoteAddr has already been rewritten by TrustedRealIP.
func withClient(r *http.Request) context.Context {
	return core.ContextWithClient(r.Context(), clientIP(r), r.UserAgent())
}
