package services

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/team-mirai/mirai-gikai-sub000/cache"
	"github.com/team-mirai/mirai-gikai-sub000/repository"
	ws "github.com/team-mirai/mirai-gikai-sub000/websocket"
	"gorm.io/gorm"
)

// Server holds all server dependencies
type Server struct {
	config             *Config
	pool               *pgxpool.Pool
	redisClient        *redis.Client
	repo               *repository.GORMRepository
	conversations      *repository.ConversationRepository
	generator          Generator
	cache              cache.InterviewCache
	monitor            *InflightMonitor
	chatService        *ChatService
	websocketHandler   *WebSocketHandler
	authService        *AuthService
	authEndpoints      *AuthEndpoints
	interviewEndpoints *InterviewEndpoints
	wsHub              *ws.Hub
	upgrader           websocket.Upgrader
}

// NewServer creates a new server instance
func NewServer(config *Config) *Server {
	return &Server{
		config: config,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return CheckOrigin(r, config.WebSocket.AllowedOrigins)
			},
		},
	}
}

// SetDatabase sets the connection pool and the GORM handle built on it
func (s *Server) SetDatabase(pool *pgxpool.Pool, db *gorm.DB) {
	s.pool = pool
	s.repo = repository.NewGORMRepository(db)
	s.conversations = repository.NewConversationRepository(db)
}

// SetRedis enables the read-through cache
func (s *Server) SetRedis(client *redis.Client) {
	s.redisClient = client
}

// SetGenerator overrides the Gemini generator
func (s *Server) SetGenerator(generator Generator) {
	s.generator = generator
}

// InitializeServices initializes all server services
func (s *Server) InitializeServices() error {
	if s.repo == nil {
		return errors.New("database not configured")
	}
	if s.config.JWT.Secret == "" {
		return errors.New("jwt secret not configured")
	}

	if s.generator == nil && s.config.AI.GeminiAPIKey != "" {
		if gemini := NewGeminiService(s.config.AI.GeminiAPIKey, s.config.AI.GeminiModel); gemini != nil {
			s.generator = gemini
			slog.Info("Gemini service initialized", "model", s.config.AI.GeminiModel)
		}
	}
	if s.generator == nil {
		return errors.New("gemini generator not configured")
	}

	s.cache = cache.NewInterviewCache(s.redisClient, s.config.Cache.TTL)
	if s.redisClient != nil {
		slog.Info("Interview cache initialized", "ttl", s.config.Cache.TTL)
	}

	catalog := NewCatalog(s.repo, s.cache)
	s.monitor = NewInflightMonitor(2 * s.config.Interview.GenerationTimeout)
	s.chatService = NewChatService(catalog, s.repo, s.conversations, s.generator, s.monitor, s.config.Interview.GenerationTimeout)
	completion := NewCompletionService(s.repo, s.conversations)

	s.authService = NewAuthService(s.repo, s.config.JWT.Secret, s.config.Server.IsProduction())
	s.authEndpoints = NewAuthEndpoints(s.authService)
	s.interviewEndpoints = NewInterviewEndpoints(catalog, s.chatService, completion)
	s.websocketHandler = NewWebSocketHandler(s.chatService)
	s.wsHub = ws.NewHub()

	slog.Info("Services initialized")
	return nil
}

// SetupRoutes configures all HTTP routes
func (s *Server) SetupRoutes() *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health endpoint
	r.Get("/health", s.healthHandler)

	// API v1 route group
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.apiV1Handler)

		s.authEndpoints.RegisterRoutes(r)

		// Interview routes decide per request what an anonymous caller gets
		r.Group(func(r chi.Router) {
			r.Use(s.authService.Identify)
			s.interviewEndpoints.RegisterRoutes(r)
			r.Get("/ws", s.websocketHandlerFunc)
		})
	})

	return r
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	port := s.config.Server.Port
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: s.SetupRoutes(),
	}

	go s.monitor.Run(ctx)
	go s.wsHub.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			slog.Error("Server error", "error", err)
			return err
		}
	case <-ctx.Done():
	}

	slog.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return err
	}

	slog.Info("Server exited")
	return nil
}

// CheckOrigin validates the origin of WebSocket connections to prevent CSRF attacks
func CheckOrigin(r *http.Request, allowedOriginsStr string) bool {
	origin := r.Header.Get("Origin")

	// If no allowed origins are configured, deny all requests for security
	if allowedOriginsStr == "" {
		slog.Warn("WebSocket connection rejected: no allowed origins configured", "origin", origin)
		return false
	}

	for _, allowed := range strings.Split(allowedOriginsStr, ",") {
		if strings.TrimSpace(allowed) == origin {
			slog.Info("WebSocket connection accepted", "origin", origin)
			return true
		}
	}

	slog.Warn("WebSocket connection rejected: origin not allowed", "origin", origin, "allowed_origins", allowedOriginsStr)
	return false
}

type HealthResponse struct {
	Status           string `json:"status"`
	Database         string `json:"database"`
	Cache            string `json:"cache"`
	WebSocketClients int    `json:"websocket_clients"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Database: "not configured", Cache: "not configured"}

	if s.pool != nil {
		if err := s.pool.Ping(r.Context()); err != nil {
			resp.Database = "down"
			resp.Status = "degraded"
		} else {
			resp.Database = "up"
		}
	}

	if s.redisClient != nil && s.cache != nil {
		if err := s.cache.Ping(r.Context()); err != nil {
			resp.Cache = "down"
			resp.Status = "degraded"
		} else {
			resp.Cache = "up"
		}
	}

	if s.wsHub != nil {
		resp.WebSocketClients = s.wsHub.ClientCount()
	}

	writeJSON(w, resp)

	slog.Info("Health check", "status", resp.Status, "database", resp.Database, "cache", resp.Cache)
}

func (s *Server) apiV1Handler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"message": "API v1",
		"version": "1.0.0",
	})
}

func (s *Server) websocketHandlerFunc(w http.ResponseWriter, r *http.Request) {
	auth := AuthFromContext(r.Context())
	if !auth.Authenticated() {
		writeError(w, ErrAuthenticationRequired)
		return
	}

	billID := r.URL.Query().Get("bill_id")
	if billID == "" {
		http.Error(w, "bill_id is required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	client := s.wsHub.RegisterClient(conn, auth.UserID, billID)
	client.MessageHandler = s.websocketHandler.HandleWebSocketMessage

	slog.Info("WebSocket connection established", "client_id", client.ID, "user_id", auth.UserID, "bill_id", billID)

	go client.WritePump()
	client.ReadPump()
}
