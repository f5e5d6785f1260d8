package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/stuKim0221/smart-lotto/config"
	"github.com/stuKim0221/smart-lotto/logger"
	"github.com/stuKim0221/smart-lotto/pkg/business"
	"github.com/stuKim0221/smart-lotto/pkg/ingestion"
	"github.com/stuKim0221/smart-lotto/pkg/models"
	"github.com/stuKim0221/smart-lotto/services"
)

// SyncController is the part of the scheduler the API drives.
type SyncController interface {
	RunCycle(ctx context.Context, trigger string) (services.SyncReport, error)
	Status() services.SyncStatus
}

// Deps bundles what the handlers need. Metrics and StatsCache may be nil.
type Deps struct {
	Draws      ingestion.DrawReader
	Evaluation *business.EvaluationService
	Generation *business.GenerationService
	Sync       SyncController
	Metrics    *services.Metrics
	StatsCache *services.QueryCache
	Presets    map[string]models.FilterPolicy
}

type Server struct {
	config     *config.Config
	deps       Deps
	wsHub      *Hub
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

func NewServer(cfg *config.Config, deps Deps, hub *Hub) *Server {
	if deps.Presets == nil {
		deps.Presets = config.DefaultFilterPresets()
	}
	return &Server{
		config: cfg,
		deps:   deps,
		wsHub:  hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有来源(生产环境需要限制)
			},
		},
	}
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	if s.deps.Metrics != nil {
		router.Use(s.deps.Metrics.Middleware)
		router.Handle("/metrics", s.deps.Metrics.Handler()).Methods("GET")
	}

	// API路由
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/draws", s.handleListDraws).Methods("GET")
	api.HandleFunc("/draws/latest", s.handleLatestDraw).Methods("GET")
	api.HandleFunc("/draws/{round:[0-9]+}", s.handleGetDraw).Methods("GET")
	api.HandleFunc("/tickets/decode", s.handleDecodeTicket).Methods("POST")
	api.HandleFunc("/tickets/evaluate", s.handleEvaluateTicket).Methods("POST")
	api.HandleFunc("/combinations", s.handleGenerate).Methods("POST")
	api.HandleFunc("/combinations/analyze", s.handleAnalyze).Methods("POST")
	api.HandleFunc("/stats/numbers", s.handleNumberStats).Methods("GET")
	api.HandleFunc("/sync/status", s.handleSyncStatus).Methods("GET")
	api.HandleFunc("/sync", s.handleTriggerSync).Methods("POST")
	api.HandleFunc("/export/draws.csv", s.handleExportDraws).Methods("GET")

	// WebSocket路由
	if s.wsHub != nil {
		router.HandleFunc("/ws", s.handleWebSocket)
	}

	// CORS配置
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(router)
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         ":" + s.config.Port,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Printf("[Web] Listening on :%s", s.config.Port)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop() {
	if s.httpServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		logger.Errorf("[Web] Server shutdown error: %v", err)
	}
}

// handleWebSocket WebSocket连接处理
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("[Web] WebSocket upgrade error: %v", err)
		return
	}

	client := newClient(s.wsHub, conn)

	// 发送欢迎消息
	client.send <- s.wsHub.marshalMessage(&WSMessage{
		Type:      "connected",
		Timestamp: time.Now().Unix(),
		Data:      map[string]interface{}{"topics": services.AllEventTopics()},
	})

	if !s.wsHub.join(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
