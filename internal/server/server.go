package server

import (
	"database/sql"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"

	"github.com/devops-ind/jenkins-ha-sub004/internal/config"
	"github.com/devops-ind/jenkins-ha-sub004/internal/handlers"
	"github.com/devops-ind/jenkins-ha-sub004/internal/logger"
	"github.com/devops-ind/jenkins-ha-sub004/internal/metrics"
)

type Server struct {
	config  *config.Config
	handler *handlers.Handler
	router  *mux.Router
	logger  *logrus.Entry
	nrApp   *newrelic.Application
	sink    *metrics.PrometheusSink
}

func NewServer(cfg *config.Config, db *sql.DB, orch handlers.Orchestrator, teams handlers.TeamLister,
	sink *metrics.PrometheusSink, nrApp *newrelic.Application) *Server {
	// Initialize the global logger
	logger.Initialize()

	serverLogger := logger.WithComponent("server")

	handler := handlers.NewHandler(db, cfg, orch, teams)

	s := &Server{
		config:  cfg,
		handler: handler,
		router:  mux.NewRouter(),
		logger:  serverLogger,
		nrApp:   nrApp,
		sink:    sink,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Health and scrape endpoints (unprotected)
	s.router.HandleFunc(s.wrap("/health", s.handler.Health)).Methods("GET")
	if s.sink != nil {
		s.router.Handle("/metrics", s.sink.Handler()).Methods("GET")
	}

	// Protected routes with secret key validation
	protectedRouter := s.router.PathPrefix("/api/v1").Subrouter()
	protectedRouter.Use(s.authMiddleware)

	protectedRouter.HandleFunc(s.wrap("/operations", s.handler.Operate)).Methods("POST")
	protectedRouter.HandleFunc(s.wrap("/teams", s.handler.Teams)).Methods("GET")
	protectedRouter.HandleFunc(s.wrap("/teams/{team}/status", s.handler.TeamStatus)).Methods("GET")
	protectedRouter.HandleFunc(s.wrap("/audit", s.handler.Audit)).Methods("GET")
}

// wrap instruments a route with New Relic when the agent is configured.
func (s *Server) wrap(pattern string, handler http.HandlerFunc) (string, http.HandlerFunc) {
	if s.nrApp == nil {
		return pattern, handler
	}
	return newrelic.WrapHandleFunc(s.nrApp, pattern, handler)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Get secret key from header
		secretKey := r.Header.Get("X-Secret-Key")

		// Validate secret key
		if secretKey != s.config.ValidSecret {
			s.logger.WithFields(logrus.Fields{
				"path":   r.URL.Path,
				"method": r.Method,
				"ip":     r.RemoteAddr,
			}).Warn("Invalid secret key provided")
			http.Error(w, "Invalid secret key", http.StatusUnauthorized)
			return
		}

		// Continue to next handler
		next.ServeHTTP(w, r)
	})
}

// Router exposes the configured router for tests.
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) Start() error {
	s.logger.WithField("port", s.config.Port).Info("Server starting")
	return http.ListenAndServe(":"+s.config.Port, s.router)
}
