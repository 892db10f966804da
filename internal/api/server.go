// Package api serves a small HTTP front end to a worker pool: status and
// metrics, job submission, handlers bounded by the pool, and a websocket
// feed of lifecycle events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"threadpool/internal/events"
	"threadpool/internal/logger"
	"threadpool/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"golang.org/x/net/websocket"
)

// MaxJobDuration はAPI経由で受け付けるジョブ実行時間の上限
const MaxJobDuration = 10 * time.Second

// Pool はサーバーが利用するプールの操作
// *worker.Pool がこれを満たす
type Pool interface {
	Submitter
	Size() int
	ActiveWorkers() int
	QueueLength() int
	IsStopped() bool
	Metrics() *metrics.Metrics
}

// Config はサーバー設定
type Config struct {
	Addr            string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

// Server はAPIサーバー
type Server struct {
	config Config
	pool   Pool
	bus    *events.Bus
	router chi.Router

	server *http.Server
}

// NewServer は新しいAPIサーバーを作成する
// bus が nil の場合、/ws はイベントを配信しない
func NewServer(config Config, pool Pool, bus *events.Bus) *Server {
	if bus == nil {
		bus = events.NewBus()
	}
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = []string{"*"}
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 5 * time.Second
	}

	s := &Server{
		config: config,
		pool:   pool,
		bus:    bus,
		router: chi.NewRouter(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/metrics", s.handleMetrics)
		r.Post("/jobs", s.handleSubmitJob)
		r.With(Bounded(s.pool)).Get("/work", s.handleWork)
	})

	s.router.Handle("/ws", websocket.Handler(s.handleWebSocket))
}

// Handler はルーティング済みのハンドラを返す
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start はサーバーを開始し、ctx の終了でグレースフルに停止する
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("api", "API Server starting on %s", s.config.Addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("api", "Server shutdown: %v", err)
		}
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StatusResponse はステータスレスポンス
type StatusResponse struct {
	Size          int  `json:"size"`
	ActiveWorkers int  `json:"active_workers"`
	QueueLength   int  `json:"queue_length"`
	Stopped       bool `json:"stopped"`
}

func (s *Server) status() StatusResponse {
	return StatusResponse{
		Size:          s.pool.Size(),
		ActiveWorkers: s.pool.ActiveWorkers(),
		QueueLength:   s.pool.QueueLength(),
		Stopped:       s.pool.IsStopped(),
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.status())
}

// MetricsResponse はメトリクスレスポンス
type MetricsResponse struct {
	Submitted    uint64  `json:"submitted"`
	Rejected     uint64  `json:"rejected"`
	Completed    uint64  `json:"completed"`
	Failed       uint64  `json:"failed"`
	Pending      uint64  `json:"pending"`
	Throughput   float64 `json:"throughput"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	P99LatencyMs float64 `json:"p99_latency_ms"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snap := s.pool.Metrics().Snapshot()

	s.writeJSON(w, http.StatusOK, MetricsResponse{
		Submitted:    snap.Submitted,
		Rejected:     snap.Rejected,
		Completed:    snap.Completed,
		Failed:       snap.Failed,
		Pending:      snap.Pending,
		Throughput:   snap.Throughput,
		AvgLatencyMs: float64(snap.AverageLatency) / float64(time.Millisecond),
		P99LatencyMs: float64(snap.P99Latency) / float64(time.Millisecond),
	})
}

// JobRequest はジョブ投入リクエスト
type JobRequest struct {
	Duration string `json:"duration"`
}

// JobResponse はジョブ投入レスポンス
type JobResponse struct {
	ID          string `json:"id"`
	QueueLength int    `json:"queue_length"`
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	d, err := parseDuration(req.Duration)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id := uuid.New().String()
	err = s.pool.Execute(func() {
		time.Sleep(d)
		logger.Debug("api", "Job %s finished after %v", id, d)
	})
	if err != nil {
		http.Error(w, "Worker pool is stopped", http.StatusServiceUnavailable)
		return
	}

	s.writeJSON(w, http.StatusAccepted, JobResponse{ID: id, QueueLength: s.pool.QueueLength()})
}

// handleWork は Bounded によってワーカー上で実行される
func (s *Server) handleWork(w http.ResponseWriter, r *http.Request) {
	d, err := parseDuration(r.URL.Query().Get("duration"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	time.Sleep(d)

	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":   "done",
		"duration": d.String(),
	})
}

// handleWebSocket はバスのイベントをJSONで配信する
func (s *Server) handleWebSocket(ws *websocket.Conn) {
	ch := s.bus.Subscribe()
	defer s.bus.Unsubscribe(ch)
	defer func() { _ = ws.Close() }()

	if err := websocket.JSON.Send(ws, map[string]any{"type": "status", "status": s.status()}); err != nil {
		return
	}

	// クライアントの切断を検知する
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			var msg string
			if err := websocket.Message.Receive(ws, &msg); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if err := websocket.JSON.Send(ws, e); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("api", "Failed to encode JSON: %v", err)
	}
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	if d < 0 || d > MaxJobDuration {
		return 0, fmt.Errorf("duration must be between 0 and %v", MaxJobDuration)
	}
	return d, nil
}
