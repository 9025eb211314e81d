package server

import (
	"fmt"
	"strings"

	"cvmatcher/internal/utils"
)

// displayServerInfo prints the startup banner
func (s *Server) displayServerInfo() {
	s.displayEndpoints()
	s.displayIngestLimits()
	s.displayAuthInfo()
	s.displayRateLimitInfo()
}

var endpointHelp = []struct{ method, path, summary string }{
	{"GET", "/", "Service info"},
	{"GET", "/health", "Liveness check"},
	{"GET", "/ready", "Readiness check (vector store reachable)"},
	{"GET", "/stats", "Worker pool, breaker and rate limit statistics"},
	{"POST", "/upload", "Ingest résumés (multipart: jd + files)"},
	{"GET", "/search", "Semantic search (?query=&limit=)"},
	{"POST", "/search", "Semantic search (JSON: query, limit)"},
	{"GET", "/candidates", "List stored candidates (?limit=)"},
	{"DELETE", "/candidates/{id}", "Delete one candidate"},
	{"DELETE", "/candidates", "Delete all candidates"},
}

func (s *Server) displayEndpoints() {
	fmt.Println("Available endpoints:")
	for _, e := range endpointHelp {
		fmt.Printf("  %-6s %-18s - %s\n", e.method, e.path, e.summary)
	}
}

func (s *Server) displayIngestLimits() {
	cfg := s.App.Config
	fmt.Printf("Accepted file types: %s\n", strings.Join(s.App.Ingest.Extensions(), ", "))
	fmt.Printf("Per-file limit: %s, up to %d files per upload\n",
		utils.FormatFileSize(cfg.App.MaxFileSize), cfg.App.MaxUploadFiles)
	if s.MaxRequestSize > 0 {
		fmt.Printf("Request body limit: %s\n", utils.FormatFileSize(s.MaxRequestSize))
	}
	fmt.Printf("Vector store: %s (collection %q), embeddings: %s\n",
		cfg.VectorStore.Backend, cfg.VectorStore.Collection, cfg.Embedding.Provider)
}

func (s *Server) displayAuthInfo() {
	if len(s.APIKeys) == 0 {
		fmt.Println("API authentication: DISABLED (no API keys configured)")
		return
	}
	fmt.Printf("API authentication: ENABLED (%d keys); send X-API-Key or Authorization: Bearer\n", len(s.APIKeys))
}

func (s *Server) displayRateLimitInfo() {
	if s.RateLimiter == nil {
		fmt.Println("Rate limiting: DISABLED")
		return
	}
	var keys []string
	if s.RateLimit.ByAPIKey {
		keys = append(keys, "api key")
	}
	if s.RateLimit.ByIP {
		keys = append(keys, "client ip")
	}
	fmt.Printf("Rate limiting: %d requests/min, burst %d, keyed by %s\n",
		s.RateLimit.RequestsPerMin, s.RateLimit.BurstCapacity, strings.Join(keys, " then "))
}
