// Command streamd runs the stream layer runtime: it boots the world
// orchestrator and serves the admin/status API until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/CryptoStream-Network/stream_layer/internal/app"
)

func main() {
	// Optional .env for local development; environment wins over file values.
	_ = godotenv.Load()

	application, err := app.NewApplication()
	if err != nil {
		fmt.Fprintf(os.Stderr, "streamd: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := application.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "streamd: shutdown: %v\n", err)
		os.Exit(1)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "streamd: %v\n", runErr)
		os.Exit(1)
	}
}
