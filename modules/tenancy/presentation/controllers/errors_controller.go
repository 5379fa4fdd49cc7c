package controllers

import (
	"net/http"
	"strings"

	"github.com/iota-uz/tenancy/pkg/httpapi"
	"github.com/iota-uz/tenancy/pkg/routing"
)

type ErrorHandlersOptions struct {
	Entrypoint    string
	AllowlistPath string
}

func NotFound(opts ...ErrorHandlersOptions) http.HandlerFunc {
	classifier := classifierFor(opts)

	return func(w http.ResponseWriter, r *http.Request) {
		if classifier.IsJSON(r.URL.Path) {
			meta := map[string]string{
				"path": r.URL.Path,
			}
			if requestID := requestIDFromResponse(w, r); requestID != "" {
				meta["request_id"] = requestID
			}
			_ = httpapi.WriteError(w, http.StatusNotFound, "NOT_FOUND", "not found", meta)
			return
		}
		http.NotFound(w, r)
	}
}

func MethodNotAllowed(opts ...ErrorHandlersOptions) http.HandlerFunc {
	classifier := classifierFor(opts)

	return func(w http.ResponseWriter, r *http.Request) {
		if classifier.IsJSON(r.URL.Path) {
			meta := map[string]string{
				"method": r.Method,
				"path":   r.URL.Path,
			}
			if requestID := requestIDFromResponse(w, r); requestID != "" {
				meta["request_id"] = requestID
			}
			_ = httpapi.WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", meta)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func classifierFor(opts []ErrorHandlersOptions) *routing.Classifier {
	var resolvedOpts ErrorHandlersOptions
	if len(opts) > 0 {
		resolvedOpts = opts[0]
	}
	return routing.NewClassifier(routing.LoadAllowlistOrDefault(resolvedOpts.AllowlistPath, resolvedOpts.Entrypoint))
}

func requestIDFromResponse(w http.ResponseWriter, r *http.Request) string {
	if w != nil {
		if requestID := strings.TrimSpace(w.Header().Get("X-Request-Id")); requestID != "" {
			return requestID
		}
	}
	if r != nil {
		return strings.TrimSpace(r.Header.Get("X-Request-Id"))
	}
	return ""
}
