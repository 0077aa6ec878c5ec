package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	handlers "github.com/envio-tools/fleet-atlas/pkg/handlers/fleet"
	fleetmiddleware "github.com/envio-tools/fleet-atlas/pkg/server/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type WebAPI struct {
	router *chi.Mux
	logger *zerolog.Logger
	server *http.Server
}

type Dependencies struct {
	Verifier   handlers.Verifier
	Reconciler handlers.Reconciler
	Health     handlers.HealthChecker
}

type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	Dependencies    Dependencies
}

func NewWebAPI(logger zerolog.Logger, config Config) *WebAPI {
	handler := handlers.NewHandler(
		config.Dependencies.Verifier,
		config.Dependencies.Reconciler,
		config.Dependencies.Health,
	)

	router := chi.NewRouter()

	router.Use(fleetmiddleware.Logger(&logger))
	router.Use(middleware.Recoverer)

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/consistency/report", handler.GetConsistencyReport)
		r.Post("/reconciliation/automatic", handler.RunAutomaticReconciliation)
		r.Post("/reconciliation/manual", handler.RunManualReconciliation)
		r.Get("/reconciliation/jobs", handler.ListJobs)
		r.Get("/reconciliation/jobs/{id}", handler.GetJob)
		r.Get("/reconciliation/rules", handler.ListRules)
		r.Get("/gp51/health", handler.GetGP51Health)
	})

	return &WebAPI{
		router: router,
		logger: &logger,
		server: &http.Server{
			Addr:    config.Addr,
			Handler: router,
		},
	}
}

func (w *WebAPI) Start() error {
	serverErrors := make(chan error, 1)
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	go func() {
		w.logger.Info().Str("addr", w.server.Addr).Msg("starting server")
		serverErrors <- w.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-shutdown:
		w.logger.Info().Msg("shutdown initiated")

		// Give outstanding requests a deadline for completion.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := w.server.Shutdown(ctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("graceful shutdown failed")
			err = w.server.Close()
		}

		if err != nil {
			return err
		}
	}

	return nil
}
