package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hoophead/bsky-stream/internal/config"
	"github.com/hoophead/bsky-stream/internal/domain"
)

// Server is the HTTP server that serves the stream aggregation endpoint.
type Server struct {
	cfg        *config.Config
	stream     *domain.StreamService
	knownDIDs  map[string]string
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates a new HTTP server. knownDIDs is the pre-resolved
// handle → DID mapping loaded from the persisted reporters file.
func NewServer(cfg *config.Config, stream *domain.StreamService, knownDIDs map[string]string, logger *slog.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		stream:    stream,
		knownDIDs: knownDIDs,
		logger:    logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/bsky/stream", s.handleStream)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     withLogging(logger, mux),
		ReadTimeout: 10 * time.Second,
		// The write timeout has to cover the full upstream fan-out.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// streamPost is the public projection of a matched post. Text and author
// are deliberately withheld from the wire response.
type streamPost struct {
	URL       string `json:"url"`
	CreatedAt string `json:"createdAt"`
}

type streamResponse struct {
	Posts []streamPost `json:"posts"`
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	terms := parseTerms(params.Get("queries"))
	if len(terms) == 0 {
		s.logger.Warn("stream called without queries")
		writeError(w, http.StatusBadRequest, "Missing queries")
		return
	}

	days := s.cfg.DefaultWindowDays
	if d := params.Get("days"); d != "" {
		if parsed, err := strconv.Atoi(d); err == nil {
			days = parsed
		}
	}

	handles := splitTrim(params.Get("reporters"), ",")
	if len(handles) == 0 {
		handles = s.cfg.DefaultReporters
	}

	q := domain.StreamQuery{
		Terms:     terms,
		Reporters: s.stream.ResolveReporters(r.Context(), handles, s.knownDIDs),
		Window:    time.Duration(days) * 24 * time.Hour,
	}

	s.logger.Info("stream request", "terms", terms, "reporters", len(q.Reporters), "days", days)

	posts := s.stream.Stream(r.Context(), q)

	resp := streamResponse{Posts: make([]streamPost, len(posts))}
	for i, p := range posts {
		resp.Posts[i] = streamPost{URL: p.URL, CreatedAt: p.CreatedAt}
	}

	// Let the CDN serve and revalidate cached copies so client polling does
	// not multiply upstream call volume.
	w.Header().Set("Cache-Control", "s-maxage=300, stale-while-revalidate=300")
	writeJSON(w, http.StatusOK, resp)
}

// parseTerms splits the pipe-delimited queries parameter into trimmed,
// lower-cased terms, dropping empties. Anything that survives is a valid
// term; malformed input simply fails to match downstream.
func parseTerms(raw string) []string {
	var terms []string
	for _, part := range strings.Split(raw, "|") {
		t := strings.ToLower(strings.TrimSpace(part))
		if t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

func splitTrim(raw, sep string) []string {
	var out []string
	for _, part := range strings.Split(raw, sep) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
