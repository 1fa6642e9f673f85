package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/chorekeeper/internal/auth"
	"github.com/dukerupert/chorekeeper/internal/backup"
	"github.com/dukerupert/chorekeeper/internal/handler"
	"github.com/dukerupert/chorekeeper/internal/middleware"
	"github.com/dukerupert/chorekeeper/internal/store"
	"github.com/dukerupert/chorekeeper/internal/workflow"
	ws "github.com/dukerupert/chorekeeper/internal/websocket"
)

type Deps struct {
	DB       *sql.DB
	Manager  *workflow.Manager
	Locker   *workflow.Locker
	Hub      *ws.Hub
	Tokens   *auth.Tokens
	Snapshot *backup.Snapshotter
	// RateLimit caps write requests per actor per minute; zero disables it.
	RateLimit int
	Logger    *slog.Logger
}

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	tokens      *auth.Tokens
	users       *store.UserStore
	choreH      *handler.ChoreHandler
	userH       *handler.UserHandler
	backupH     *handler.BackupHandler
	rateLimiter *middleware.RateLimiter
	rateLimit   int
	logger      *slog.Logger
}

func New(d Deps) *Server {
	logger := d.Logger
	users := store.NewUserStore(d.DB)

	s := &Server{
		db:          d.DB,
		hub:         d.Hub,
		tokens:      d.Tokens,
		users:       users,
		choreH:      handler.NewChoreHandler(d.Manager, d.Locker, logger.With("component", "chore")),
		userH:       handler.NewUserHandler(d.Manager, users, d.Locker, logger.With("component", "user")),
		rateLimiter: middleware.NewRateLimiter(),
		rateLimit:   d.RateLimit,
		logger:      logger,
	}
	if d.Snapshot != nil {
		s.backupH = handler.NewBackupHandler(d.Snapshot, store.NewBackupStore(d.DB), logger.With("component", "backup"))
	}
	return s
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("GET /health", s.healthHandler)

	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	var protected http.Handler = protectedMux
	if s.rateLimit > 0 {
		protected = middleware.RateLimit(s.rateLimiter, middleware.ActorKey, s.rateLimit, time.Minute)(protected)
	}
	authMiddleware := middleware.RequireActor(s.tokens, s.users)
	outerMux.Handle("/", authMiddleware(protected))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		status, code = "database unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Chores
	mux.HandleFunc("GET /api/chores", s.choreH.List)
	mux.HandleFunc("POST /api/chores", s.choreH.Create)
	mux.HandleFunc("GET /api/chores/{id}", s.choreH.Get)
	mux.HandleFunc("PUT /api/chores/{id}", s.choreH.Update)
	mux.HandleFunc("DELETE /api/chores/{id}", s.choreH.Delete)
	mux.HandleFunc("PUT /api/chores/{id}/assignees", s.choreH.SetAssignees)

	// Workflow transitions
	mux.HandleFunc("POST /api/chores/{id}/claim", s.choreH.Claim)
	mux.HandleFunc("POST /api/chores/{id}/approve", s.choreH.Approve)
	mux.HandleFunc("POST /api/chores/{id}/disapprove", s.choreH.Disapprove)
	mux.HandleFunc("POST /api/chores/{id}/reset", s.choreH.Reset)

	// Users
	mux.HandleFunc("GET /api/users", s.userH.List)
	mux.HandleFunc("GET /api/users/me", s.userH.Me)
	mux.HandleFunc("POST /api/users", s.userH.Create)
	mux.HandleFunc("PUT /api/users/{id}/capabilities", s.userH.UpdateCapabilities)
	mux.HandleFunc("DELETE /api/users/{id}", s.userH.Delete)

	// Backups (host admins only)
	if s.backupH != nil {
		mux.Handle("GET /api/backups", middleware.RequireAdmin(http.HandlerFunc(s.backupH.List)))
		mux.Handle("POST /api/backups", middleware.RequireAdmin(http.HandlerFunc(s.backupH.Create)))
	}

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub))
}
