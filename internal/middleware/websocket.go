package middleware

import (
	"net/http"

	"github.com/clusterdeck/clusterdeck/internal/apierror"
	"github.com/clusterdeck/clusterdeck/internal/metrics"
	"github.com/clusterdeck/clusterdeck/internal/security"
	"github.com/clusterdeck/clusterdeck/pkg/logger"
)

// OriginGuard answers 403 to any WebSocket upgrade whose Origin the checker
// refuses, whatever route it targets. Plain HTTP requests pass through.
func OriginGuard(checker *security.OriginChecker, log *logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if security.IsWebSocketUpgrade(r) && !checker.CheckOrigin(r) {
				metrics.RecordOriginRejected()
				log.Warn("websocket origin rejected",
					"origin", r.Header.Get("Origin"),
					"host", r.Host,
					"path", r.URL.Path,
					"request_id", GetRequestID(r.Context()),
				)
				apierror.Write(w, http.StatusForbidden, apierror.CodeForbidden, "origin not allowed")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
