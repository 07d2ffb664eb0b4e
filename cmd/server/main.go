package main

import (
	"context"
	"dashsidx/internal/api"
	"dashsidx/internal/config"
	"dashsidx/internal/dash"
	"dashsidx/internal/logger"
	"dashsidx/internal/session"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	// 1. Parse command-line arguments
	listenAddr := flag.String("l", ":8080", "HTTP listen address")
	logLevel := flag.String("L", "info", "Log level (error, warn, info, debug)")
	configFile := flag.String("c", "channels.json", "Path to the channel config file")
	flag.Parse()

	// 2. Initialize logger
	log := logger.NewLogger(*logLevel)
	log.Infof("Starting SegmentBase index server...")
	log.Infof("Log level set to: %s", *logLevel)

	// 3. Load configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}
	log.Infof("Configuration loaded successfully for: %s (%d channels)", cfg.Name, len(cfg.Channels))

	// 4. Initialize services and managers
	dashClient := dash.NewClient(log)
	sessionMgr, err := session.NewManager(log, cfg, dashClient)
	if err != nil {
		log.Errorf("Failed to initialize session manager: %v", err)
		os.Exit(1)
	}
	sessionMgr.Start()

	// 5. Set up API router with dependencies
	router := api.New(sessionMgr, log)

	// 6. Set up and run the HTTP server with graceful shutdown
	server := &http.Server{
		Addr:    *listenAddr,
		Handler: router,
	}

	go func() {
		log.Infof("Server starting on %s", *listenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Could not listen on %s: %v", *listenAddr, err)
			os.Exit(1)
		}
	}()

	// Listen for shutdown signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Infof("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("Server shutdown failed: %v", err)
	}

	// Stop background services once no request can reach them
	sessionMgr.Stop()

	log.Infof("Server exited gracefully")
}
