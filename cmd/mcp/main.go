package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/ai-ops-console/internal/adapters/mcp"
	"github.com/kirillkom/ai-ops-console/internal/bootstrap"
	"github.com/kirillkom/ai-ops-console/internal/config"
	"github.com/kirillkom/ai-ops-console/internal/observability/logging"
)

const (
	service = "mcp"
	version = "1.0.0"
)

// stdout carries the MCP protocol, so every log line goes to stderr.
func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewStderrJSONLogger(service, cfg.LogLevel))

	if err := run(cfg); err != nil {
		slog.Error("mcp_exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, service)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()

	mcpServer := mcpadapter.NewServer(mcpadapter.Services{
		Documents: app.Documents,
		Reviewer:  app.ReviewUC,
		Audit:     app.Audit,
		Pipeline:  app.Pipeline,
	}, version)

	stdio := server.NewStdioServer(mcpServer)
	stdio.SetErrorLogger(log.New(os.Stderr, "mcp: ", log.LstdFlags))

	slog.Info("mcp_serving_stdio", "store_backend", cfg.StoreBackend)
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp stdio: %w", err)
	}
	return nil
}
