package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"chat-core/auth"
	"chat-core/infrastructure/ws"
	"chat-core/internal"
	"chat-core/moderation"
	"chat-core/repositories"
	"chat-core/runtime"
	"chat-core/runtime/workers"
	"chat-core/services"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting, so every defer (database close included)
// executes before the process exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := internal.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Moderation
	censoredChar, err := moderation.CharacterRune(config.CharReplacement)
	if err != nil {
		return err
	}
	censored, err := moderation.LoadCensoredWords()
	if err != nil {
		return fmt.Errorf("censored words loading failed: %w", err)
	}
	log.Info(fmt.Sprintf("%d censored words loaded [%s]",
		len(censored.Words), strings.Join(censored.Languages, ",")))
	moderator, err := moderation.NewModerator(censored.Words, censoredChar)
	if err != nil {
		return err
	}

	// 4. Core wiring
	registry := runtime.NewRegistry()
	users := repositories.NewUserRepository(db)
	conversations := repositories.NewConversationRepository(db)
	messages := repositories.NewMessageRepository(db, log, config.LimitMessages)

	fanout := workers.NewNotificationFanout(log, registry, config.NotificationBufferSize)
	messaging := services.NewMessaging(log, registry, conversations, messages,
		&moderator, fanout, config.MaxContentLength)

	authenticator := auth.NewAuthenticator(
		auth.NewTokenVerifier(config.JWTSecret), users, log)
	handler := ws.NewHandler(log, authenticator, messaging, registry,
		config.ConnectionBufferSize, config.MaxMessageSize)

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 6. Supervised workers
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(fanout)
	sup.Add(workers.NewTelemetryWorker(log, config.MetricInterval, registry.Stats))
	supDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supDone)
	}()

	// 7. HTTP server
	mux := http.NewServeMux()
	mux.Handle("/ws", handler)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{Addr: address, Handler: mux}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting websocket server", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 9. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	sup.Stop()
	<-supDone
	log.Info("Program stopped cleanly")

	return nil
}
