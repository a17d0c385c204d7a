package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gwi.com/mermaid-studio/internal/api"
	"gwi.com/mermaid-studio/internal/app"
	"gwi.com/mermaid-studio/internal/config"
	"gwi.com/mermaid-studio/internal/watch"
)

func main() {
	// Load configuration
	config.LoadConfig()

	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if config.AppConfig.Debug() {
		log.Println("Service starting in DEBUG mode")
	}

	// Optionally follow a .mmd file edited outside the browser
	watchFlag := flag.String("watch", "", "Mirror edits to this Mermaid file into the studio")
	flag.Parse()

	studioApp, err := app.New(config.AppConfig)
	if err != nil {
		log.Fatalf("Failed to initialize studio: %v", err)
	}
	defer studioApp.Close()

	studio := studioApp.Studio
	studio.Start()

	// Pick up edits the CLI makes to the shared session
	syncCtx, stopSync := context.WithCancel(context.Background())
	defer stopSync()
	go studioApp.Follow(syncCtx)

	if *watchFlag != "" {
		watcher, err := watch.New(*watchFlag, config.AppConfig.RenderDebounce, func(content string) {
			if err := studio.Edit(content); err != nil {
				log.Printf("Failed to apply %s: %v", *watchFlag, err)
			}
		})
		if err != nil {
			log.Fatalf("Failed to watch %s: %v", *watchFlag, err)
		}
		defer watcher.Close()
		if content, err := watcher.Read(); err == nil {
			studio.Edit(content)
		}
		log.Printf("Watching %s for changes", watcher.Path())
	}

	// Live updates for connected editors
	hub := api.NewHub(studio, config.AppConfig.AllowedOrigins)
	go hub.Run()
	defer hub.Stop()

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(studio)
	router := api.NewRouter(apiHandler, hub, config.AppConfig.AllowedOrigins)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 3 * time.Minute, // AI generation retries can take a while
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	// hub, watcher and studio are closed by their defers.
	log.Println("Server exiting gracefully")
}
