package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ellman12/WingTechBot-MK3-sub001/internal/config"
	"github.com/ellman12/WingTechBot-MK3-sub001/internal/metrics"
	"github.com/ellman12/WingTechBot-MK3-sub001/internal/player"
	"github.com/ellman12/WingTechBot-MK3-sub001/internal/transcode"
)

// HTTPServer provides HTTP API endpoints for playback control and monitoring
type HTTPServer struct {
	server  *http.Server
	logger  *slog.Logger
	config  *config.Config
	player  *player.Player
	transc  *transcode.Transcoder
	metrics *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger,
	appConfig *config.Config, p *player.Player, t *transcode.Transcoder, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		player:    p,
		transc:    t,
		metrics:   m,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Playback control endpoints
	mux.HandleFunc("/playbacks", h.withMetrics("/playbacks", h.handlePlaybacks))
	mux.HandleFunc("/playbacks/", h.withMetrics("/playbacks/{id}", h.handlePlaybackDetail))
	mux.HandleFunc("/stop-all", h.withMetrics("/stop-all", h.handleStopAll))
	mux.HandleFunc("/pause", h.withMetrics("/pause", h.handlePause))
	mux.HandleFunc("/resume", h.withMetrics("/resume", h.handleResume))

	// Configuration endpoint
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Statistics endpoint
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Response writer wrapper captures the status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)
	transcodeStats := h.transc.GetStats()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    "audio-engine",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"player": map[string]interface{}{
				"status":           "running",
				"transport_state":  h.player.TransportState().String(),
				"active_playbacks": h.player.GetActiveCount(),
			},
			"transcode": map[string]interface{}{
				"status":                "running",
				"conversions_started":   transcodeStats.Started,
				"conversions_succeeded": transcodeStats.Succeeded,
				"conversions_failed":    transcodeStats.Failed,
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// playRequest is the body of POST /playbacks
type playRequest struct {
	Path   string  `json:"path"`
	URL    string  `json:"url"`
	Volume float64 `json:"volume"`
}

// handlePlaybacks implements the /playbacks endpoint: GET lists active
// playbacks, POST starts one from a local file or a URL
func (h *HTTPServer) handlePlaybacks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		playbacks := h.player.GetPlaybacks()

		response := map[string]interface{}{
			"total_playbacks": len(playbacks),
			"timestamp":       time.Now().UTC(),
			"playbacks":       playbacks,
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)

	case http.MethodPost:
		var req playRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.Path == "" && req.URL == "" {
			http.Error(w, "Either path or url is required", http.StatusBadRequest)
			return
		}
		if req.Volume == 0 {
			req.Volume = 1.0
		}

		var id string
		var err error
		if req.Path != "" {
			id, err = h.player.PlayFile(r.Context(), req.Path, req.Volume)
		} else {
			id, err = h.playURL(r.Context(), req.URL, req.Volume)
		}
		if err != nil {
			h.logger.Warn("Failed to start playback", slog.String("error", err.Error()))
			http.Error(w, fmt.Sprintf("Failed to start playback: %v", err), http.StatusUnprocessableEntity)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": id})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// playURL fetches remote audio and starts it as a playback. The response
// body lives as long as the playback does.
func (h *HTTPServer) playURL(ctx context.Context, url string, volume float64) (string, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}

	// Deliberately not the request context: the download must outlive the
	// HTTP API call that started it
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return "", fmt.Errorf("fetch of %s returned status %d", url, resp.StatusCode)
	}

	id, err := h.player.PlayStream(context.Background(), resp.Body, nil, url, volume)
	if err != nil {
		resp.Body.Close()
		return "", err
	}
	return id, nil
}

// handlePlaybackDetail implements the /playbacks/{id} endpoint: GET returns
// one playback, DELETE stops it
func (h *HTTPServer) handlePlaybackDetail(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/playbacks/")
	if id == "" {
		http.Error(w, "Playback ID required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		info, exists := h.player.GetPlayback(id)
		if !exists {
			http.Error(w, "Playback not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(info)

	case http.MethodDelete:
		if !h.player.Stop(id) {
			http.Error(w, "Playback not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"stopped": id})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleStopAll implements the /stop-all endpoint
func (h *HTTPServer) handleStopAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stopped := h.player.StopAll()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"stopped": stopped})
}

// handlePause implements the /pause endpoint
func (h *HTTPServer) handlePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.player.Pause()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"transport_state": h.player.TransportState().String()})
}

// handleResume implements the /resume endpoint
func (h *HTTPServer) handleResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.player.Resume()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"transport_state": h.player.TransportState().String()})
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sanitizedConfig := map[string]interface{}{
		"audio": map[string]interface{}{
			"sample_rate":       h.config.Audio.SampleRate,
			"channels":          h.config.Audio.Channels,
			"frame_duration_ms": h.config.Audio.FrameDurationMS,
		},
		"mixer": map[string]interface{}{
			"max_streams": h.config.Mixer.MaxStreams,
		},
		"player": map[string]interface{}{
			"transport":        h.config.Player.Transport,
			"restart_delay_ms": h.config.Player.RestartDelayMS,
			"capture_path":     h.config.Player.CapturePath,
		},
		"probe": map[string]interface{}{
			"ffprobe_path":    h.config.Probe.FFprobePath,
			"timeout_seconds": h.config.Probe.TimeoutSeconds,
			"max_spool_bytes": h.config.Probe.MaxSpoolBytes,
		},
		"transcode": map[string]interface{}{
			"ffmpeg_path":     h.config.Transcode.FFmpegPath,
			"max_concurrent":  h.config.Transcode.MaxConcurrent,
			"loudnorm_i":      h.config.Transcode.LoudnormI,
			"loudnorm_tp":     h.config.Transcode.LoudnormTP,
			"loudnorm_lra":    h.config.Transcode.LoudnormLRA,
			"timeout_seconds": h.config.Transcode.TimeoutSeconds,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)

	stats := map[string]interface{}{
		"uptime":    uptime.String(),
		"timestamp": time.Now().UTC(),
		"player": map[string]interface{}{
			"transport_state":  h.player.TransportState().String(),
			"active_playbacks": h.player.GetActiveCount(),
		},
		"transcode": h.transc.GetStats(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Audio Mixing and Playback Engine",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                   "API documentation",
			"GET /health":             "Service health check",
			"GET /playbacks":          "List all active playbacks",
			"POST /playbacks":         "Start a playback from a file path or URL",
			"GET /playbacks/{id}":     "Get playback information",
			"DELETE /playbacks/{id}":  "Stop one playback",
			"POST /stop-all":          "Stop every playback",
			"POST /pause":             "Pause the transport",
			"POST /resume":            "Resume the transport",
			"GET /config":             "Get service configuration",
			"GET /stats":              "Get service statistics",
			"GET /metrics":            "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}
