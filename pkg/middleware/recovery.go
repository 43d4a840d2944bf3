package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"
)

// Recovery middleware recovers from panics and answers with an RFC 7807
// problem document.
func Recovery(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				requestID := GetRequestID(r.Context())
				logger.Error("HTTP panic recovered",
					zap.String("error", fmt.Sprintf("%v", rec)),
					zap.String("stack", string(debug.Stack())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("request_id", requestID),
				)

				problem := map[string]interface{}{
					"type":     "about:blank",
					"title":    "Internal Server Error",
					"status":   http.StatusInternalServerError,
					"detail":   "An unexpected error occurred",
					"instance": r.URL.Path,
				}
				if requestID != "" {
					problem["request_id"] = requestID
				}

				w.Header().Set("Content-Type", "application/problem+json")
				w.WriteHeader(http.StatusInternalServerError)
				if err := json.NewEncoder(w).Encode(problem); err != nil {
					logger.Error("Failed to encode error response", zap.Error(err))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
