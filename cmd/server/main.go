package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/docchat/client/internal/app"
	"github.com/docchat/client/internal/config"
	"github.com/docchat/client/internal/logging"
	"github.com/docchat/client/internal/web"
	"go.uber.org/zap"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Default config lives next to the executable
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	defaultConfig := filepath.Join(filepath.Dir(exePath), "docchat.yaml")

	configPath := flag.String("config", defaultConfig, "path to the YAML configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, *configPath)
	stop()
	os.Exit(code)
}

// run serves until ctx is done and returns the process exit code. Deferred
// cleanup always runs before it returns.
func run(ctx context.Context, configPath string) int {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		return 1
	}

	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize application", zap.Error(err))
		return 1
	}
	defer a.Close()

	printBanner(cfg, configPath)

	if err := a.Serve(ctx, Version); err != nil {
		logger.Error("server stopped", zap.Error(err))
		return 1
	}
	logger.Info("server stopped")
	return 0
}

func printBanner(cfg *config.AppConfig, configPath string) {
	mode := "API only"
	if web.HasEmbeddedFiles() {
		mode = "Embedded web client"
	}
	drops := cfg.Upload.DropDirectory
	if drops == "" {
		drops = "(disabled)"
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Document Chat Client                            ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Mode:       %-45s║\n", mode)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Backend:   %-46s║\n", cfg.Backend.BaseURL)
	fmt.Printf("║  Drops:     %-46s║\n", drops)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")
}
