package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"product-admin/internal/config"
	"product-admin/internal/database"
	custommiddleware "product-admin/internal/middleware"
	"product-admin/internal/repository"
	"product-admin/internal/service"
	"product-admin/internal/storage"
	"product-admin/internal/transport"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Server struct {
	*http.Server
	config *config.Config
	logger *zap.Logger
	db     database.Service
}

func NewServer(cfg *config.Config, logger *zap.Logger, db database.Service, images *storage.FileSystem) *Server {
	// Create router
	router := chi.NewRouter()

	for _, mw := range custommiddleware.DefaultMiddlewareStack() {
		router.Use(mw)
	}
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))
	router.Use(custommiddleware.CORSMiddleware(cfg.Server.AllowedOrigins, cfg.IsDevelopment()))

	router.Get("/health", healthHandler(db))

	// Stored images are public, as the URLs handed out by the store
	router.Handle("/storage/*", http.StripPrefix("/storage/", publicFiles(images.Root())))

	// Initialize repositories
	productRepo := repository.NewProductRepository(db.DB())

	// Initialize services
	productService := service.NewProductService(productRepo, images, service.Options{
		ImageFolder:   cfg.Storage.ImageFolder,
		MaxImageBytes: cfg.Upload.MaxFileKB * 1024,
	}, logger)
	listing := service.NewListingQuery(productRepo, images)

	// Initialize handlers
	productHandler := transport.NewProductHandler(productService, listing, images, logger)

	protect := custommiddleware.RequireOperator(cfg.Auth.JWTSecret, cfg.Auth.OperatorRole, logger)
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("AUTH_JWT_SECRET is not set, product routes are unauthenticated")
	}

	// Register routes
	router.Group(func(r chi.Router) {
		r.Use(custommiddleware.MaxRequestBody(int64(cfg.Upload.MaxRequestMB) << 20))
		productHandler.RegisterRoutes(r, protect)
	})

	server := &Server{
		Server: &http.Server{
			Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:           router,
			IdleTimeout:       time.Minute,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       time.Minute,
			WriteTimeout:      time.Minute,
		},
		config: cfg,
		logger: logger,
		db:     db,
	}

	return server
}

func healthHandler(db database.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := db.Health(r.Context())
		if health["status"] != "up" {
			custommiddleware.RespondWithErrorDetails(w, http.StatusServiceUnavailable, "database unavailable", nil)
			return
		}

		custommiddleware.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
			"status":   "ok",
			"database": health,
		})
	}
}

// publicFiles serves files below root without directory listings
func publicFiles(root string) http.Handler {
	files := http.FileServer(http.Dir(root))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	// Close database connection
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	s.logger.Sync()
	return nil
}
