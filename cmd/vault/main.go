package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/bootstrap"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/config"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/pkg/logger"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "vault",
		Short:         "Chat with your documents",
		Long:          "vault ingests documents into a local embedding store and answers questions about them with a chat model served over an OpenAI-compatible API.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $CONFIG_FILE or configs/config.toml)")

	open := func(ctx context.Context) (*bootstrap.App, error) {
		return openApp(ctx, configPath)
	}

	rootCmd.AddCommand(createServeCommand(open))
	rootCmd.AddCommand(createIngestCommand(open))
	rootCmd.AddCommand(createChatCommand(open))
	rootCmd.AddCommand(createWatchCommand(open))
	return rootCmd
}

type appOpener func(ctx context.Context) (*bootstrap.App, error)

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFile(path)
}

func openApp(ctx context.Context, configPath string) (*bootstrap.App, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	log := logger.New(logger.Options{
		Level: cfg.Log.Level,
		File:  cfg.Log.File,
		Prod:  cfg.App.Env == "prod",
	})

	app, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		log.Error("bootstrap failed", zap.Error(err))
		_ = log.Sync()
		return nil, err
	}
	return app, nil
}

func closeApp(app *bootstrap.App) {
	if err := app.Close(); err != nil {
		app.Logger.Warn("close resources failed", zap.Error(err))
	}
	_ = app.Logger.Sync()
}
