package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"hostwatch/api/internal/handlers"
	"hostwatch/internal/alert"
	"hostwatch/internal/client"
	"hostwatch/internal/monitor"
	"hostwatch/internal/rules"
	"hostwatch/internal/utils"

	"github.com/gorilla/mux"
)

func main() {
	var (
		configFile = flag.String("config", utils.DefaultConfigPath, "Configuration file path (YAML)")
		port       = flag.String("port", "", "API server port (overrides application.api_port)")
		rulesFile  = flag.String("rules", "", "Extra seed rules file (YAML or JSON)")
	)
	flag.Parse()

	config, found, err := utils.LoadConfigOrDefault(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := utils.NewLogger(config.Logging.Level, config.Logging.Format)
	if !found {
		logger.Warnf("Config file %s not found, using defaults", *configFile)
	}
	if *port != "" {
		config.Application.APIPort = *port
	}
	if *rulesFile != "" {
		seed, err := rules.LoadRules(*rulesFile)
		if err != nil {
			logger.Fatalf("Failed to load rules: %v", err)
		}
		config.Rules = append(config.Rules, seed...)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	exporter := alert.NewPrometheusExporter(config.GetPrometheusPort(), logger)
	go func() {
		if err := exporter.Start(ctx); err != nil {
			logger.Fatalf("Prometheus exporter failed: %v", err)
		}
	}()

	m, err := monitor.New(client.NewHostClient(), monitor.OptionsFromConfig(config), exporter.GetMetrics(), logger)
	if err != nil {
		logger.Fatalf("Failed to build monitor: %v", err)
	}
	m.RegisterNotifiersFromConfig(config)

	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		m.Run(ctx)
	}()

	router := mux.NewRouter()
	router.Use(corsMiddleware)

	api := router.PathPrefix("/api/v1").Subrouter()
	handlers.NewHandlers(m, logger).Register(api)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods("GET", "OPTIONS")

	addr := fmt.Sprintf(":%s", config.Application.APIPort)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
	}

	logger.Infof("API server starting on port %s", config.Application.APIPort)

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down API server...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Server shutdown error: %v", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("Server failed: %v", err)
	}

	select {
	case <-monitorDone:
	case <-time.After(10 * time.Second):
		logger.Warn("Monitor did not stop in time")
	}
	logger.Info("API server stopped")
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowedOrigins := []string{
			"http://localhost:5000",
			"http://localhost:3000",
			"http://127.0.0.1:5000",
			"http://127.0.0.1:3000",
		}

		allowOrigin := "*"
		if origin != "" {
			for _, allowed := range allowedOrigins {
				if origin == allowed {
					allowOrigin = origin
					break
				}
			}
		}

		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if allowOrigin != "*" {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
