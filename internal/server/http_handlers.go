package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"log"
	"mime"
	"net/http"
	"time"

	"cvmatcher/internal/errors"
)

const serviceName = "cvmatcher"

// rootHandler reports the service name and version
func (s *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "cvmatcher résumé ingestion API",
		"version": s.Version,
	})
}

// healthCheckTimeout returns the configured health check timeout
func (s *Server) healthCheckTimeout() time.Duration {
	if timeout := s.App.Config.Observability.HealthCheck.Timeout; timeout > 0 {
		return timeout
	}
	return 5 * time.Second
}

// healthHandler answers liveness checks. It never touches a dependency.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": serviceName,
		"version": s.Version,
	})
}

// readyHandler answers readiness checks: 503 while the vector store is
// unreachable. The embedding provider is reported from config only.
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.healthCheckTimeout())
	defer cancel()

	response := map[string]any{
		"status":  "ready",
		"service": serviceName,
		"version": s.Version,
	}

	status := http.StatusOK
	storeStatus := map[string]any{"status": "ok"}
	if err := s.App.Ingest.Health(ctx); err != nil {
		s.Logger.LogError(err, "Vector store readiness check failed")
		storeStatus = map[string]any{"status": "unavailable", "error": publicMessage(err)}
		response["status"] = "not_ready"
		status = http.StatusServiceUnavailable
	}
	response["vector_store"] = storeStatus
	response["embedding"] = map[string]any{
		"provider": s.App.Config.Embedding.Provider,
		"model":    s.App.Config.Embedding.Model,
	}
	response["archive"] = map[string]any{"enabled": s.App.Archive != nil && s.App.Archive.Enabled()}

	writeJSON(w, status, response)
}

// statsHandler provides server, worker pool, breaker and rate limiting statistics
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"service": serviceName,
		"version": s.Version,
		"server": map[string]any{
			"max_request_size_bytes": s.MaxRequestSize,
		},
		"workers": s.App.Ingest.PoolStats(),
	}

	breakers := map[string]any{}
	if s.App.Store != nil {
		breakers["vector_store"] = s.App.Store.Stats()
	}
	if s.App.Embedder != nil {
		breakers["embedding"] = s.App.Embedder.Stats()
	}
	response["circuit_breakers"] = breakers

	if s.RateLimiter != nil {
		response["rate_limiting"] = s.RateLimiter.GetStats()
	} else {
		response["rate_limiting"] = map[string]any{
			"enabled": false,
		}
	}

	if s.RateLimit != nil {
		response["rate_limit_config"] = map[string]any{
			"enabled":          s.RateLimit.Enabled,
			"requests_per_min": s.RateLimit.RequestsPerMin,
			"burst_capacity":   s.RateLimit.BurstCapacity,
			"by_ip":            s.RateLimit.ByIP,
			"by_api_key":       s.RateLimit.ByAPIKey,
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// parseJSONRequest parses JSON request body into the provided struct
func parseJSONRequest(r *http.Request, v any) error {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return errors.NewValidationError(errors.ErrCodeInvalidRequest,
			"Content-Type must be application/json", err)
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return requestBodyError(err, "Failed to read request body")
	}
	defer func() {
		if err := r.Body.Close(); err != nil {
			log.Printf("Failed to close request body: %v", err)
		}
	}()

	if err := json.Unmarshal(body, v); err != nil {
		return errors.NewValidationError(errors.ErrCodeInvalidRequest,
			"Failed to parse JSON: "+err.Error(), err)
	}

	return nil
}

// requestBodyError reports an oversized body distinctly from other read failures
func requestBodyError(err error, message string) error {
	var maxBytesErr *http.MaxBytesError
	if stderrors.As(err, &maxBytesErr) {
		return errors.NewValidationError(errors.ErrCodeInvalidRequest,
			"Request body too large", err).WithContext("limit_bytes", maxBytesErr.Limit)
	}
	return errors.NewValidationError(errors.ErrCodeInvalidRequest, message, err)
}

// publicMessage is the text a client may see for err
func publicMessage(err error) string {
	if appErr, ok := errors.As(err); ok {
		return appErr.Message
	}
	return "Internal server error"
}

// writeAppError maps err to its HTTP status and writes the error body.
// Server-side failures are logged; causes never reach the client.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	code := errors.ErrCodeInternal
	if appErr, ok := errors.As(err); ok {
		code = appErr.Code
	}

	if status >= http.StatusInternalServerError {
		s.Logger.LogError(err, "Request failed", "endpoint", r.URL.Path, "method", r.Method)
	} else {
		s.Logger.Debug("Request rejected", "endpoint", r.URL.Path, "code", code, "status", status)
	}

	writeErrorResponse(w, code, publicMessage(err), status)
}

// writeErrorResponse writes a standardized error response
func writeErrorResponse(w http.ResponseWriter, error, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error:   error,
		Message: message,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Failed to encode error response: %v", err)
	}
}
