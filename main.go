package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"gopkg.in/natefinch/lumberjack.v2"

	"cinesync/api"
	"cinesync/config"
	"cinesync/handlers"
	"cinesync/internal/database"
	"cinesync/services/lists"
	"cinesync/services/localstore"
	"cinesync/services/pod"
)

func main() {
	portOverride := flag.Int("port", 0, "override server port from config")
	flag.Parse()

	fmt.Println("🎬 cinesync starting...")

	// Init config manager and load settings (creates defaults if missing)
	configPath := config.Path()
	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	// Set up file logging with rotation
	logWriter := io.Writer(os.Stdout)
	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			logWriter = io.MultiWriter(os.Stdout, fileWriter)
			log.SetOutput(logWriter)
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			log.Printf("Logging to file: %s", settings.Log.File)
		}
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		Level: parseLogLevel(settings.Log.Level),
	})))

	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}

	// Open the local key-value store
	db, err := database.Open(settings.Database.Path)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	local := localstore.New(db)
	defer local.Close()

	// Pod client. The session token and WebID come from the environment;
	// without them the remote backend simply reports unavailable and the
	// manager stays local.
	keybox := pod.NewKeybox(settings.Pod.KeyboxPath)
	passphrase := pod.StaticPassphrase(os.Getenv("CINESYNC_POD_PASSPHRASE"))
	remote := pod.NewClient(settings.Pod.ServerURL, settings.Pod.Root, keybox, passphrase)

	token := strings.TrimSpace(os.Getenv("CINESYNC_POD_TOKEN"))
	webID := strings.TrimSpace(os.Getenv("CINESYNC_POD_WEBID"))
	if token != "" && webID != "" {
		remote.SetSession(pod.NewSession(webID, token, time.Time{}))
		fmt.Printf("🔗 Pod session configured for %s\n", webID)
	} else {
		fmt.Println("💾 No pod session configured, running local-only")
	}

	manager := lists.New(context.Background(), local, remote)

	// Construct router and register API routes
	r := mux.NewRouter()
	api.Register(
		r,
		handlers.NewListsHandler(manager),
		handlers.NewRatingsHandler(manager),
		handlers.NewCommentsHandler(manager),
		handlers.NewStorageHandler(manager),
		handlers.NewEventsHandler(manager),
	)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	fmt.Printf("Server starting on %s\n", addr)

	srv := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		// No write timeout, event streams stay open indefinitely
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Setup graceful shutdown
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdownChan
	log.Println("🛑 Shutdown signal received, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("✅ Shutdown complete")
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
