package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Aman-CERP/amanidx/internal/config"
	"github.com/Aman-CERP/amanidx/internal/embed"
	"github.com/Aman-CERP/amanidx/internal/index"
	"github.com/Aman-CERP/amanidx/internal/logging"
	"github.com/Aman-CERP/amanidx/internal/scanner"
)

// app is the wiring shared by the commands that touch an index: the
// workspace root, its configuration, a logger, the embedding gateway and
// the index service.
type app struct {
	root    string
	cfg     *config.Config
	logger  *slog.Logger
	gateway *embed.Gateway
	svc     index.Service

	closeLog func()
}

// resolveRoot returns the workspace for a command. An explicit path is
// used as is; without one the project root above the working directory is
// used.
func resolveRoot(args []string) (string, error) {
	if len(args) == 0 || args[0] == "" {
		return config.FindProjectRoot(".")
	}
	abs, err := filepath.Abs(args[0])
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("workspace %s: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("workspace %s is not a directory", abs)
	}
	return abs, nil
}

// openApp loads configuration for root and builds the gateway and index
// service. onProgress may be nil.
func openApp(root string, opts *rootOptions, onProgress func(index.IndexStatus)) (*app, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	if opts != nil && opts.debug {
		cfg.Logging.Level = "debug"
	}

	logger, closeLog, err := setupLogging(cfg)
	if err != nil {
		return nil, err
	}

	gw, err := embed.NewFromConfig(cfg, logger)
	if err != nil {
		closeLog()
		return nil, err
	}

	svc, err := index.NewService(cfg, gw, onProgress, logger)
	if err != nil {
		_ = gw.Close()
		closeLog()
		return nil, err
	}

	return &app{
		root:     root,
		cfg:      cfg,
		logger:   logger,
		gateway:  gw,
		svc:      svc,
		closeLog: closeLog,
	}, nil
}

// Close releases the service, then the gateway, then the log file.
func (a *app) Close() error {
	err := errors.Join(a.svc.Close(), a.gateway.Close())
	a.closeLog()
	return err
}

// scanOptions mirrors the scanner settings the index service uses.
func (a *app) scanOptions() scanner.Options {
	return scanner.Options{
		Root:             a.root,
		Exclude:          a.cfg.Indexing.Exclude,
		RespectGitignore: a.cfg.Indexing.RespectGitignore,
		MaxFileSize:      a.cfg.Indexing.MaxFileSize,
	}
}

// setupLogging writes JSON logs to logging.file, defaulting to
// <data_dir>/logs/amanidx.log, so that command output stays clean.
func setupLogging(cfg *config.Config) (*slog.Logger, func(), error) {
	path := cfg.Logging.File
	if path == "" {
		path = logging.DefaultLogPath(cfg.Storage.DataDir)
	}
	logger, cleanup, err := logging.Setup(logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      path,
		MaxSizeMB:     cfg.Logging.MaxSizeMB,
		MaxFiles:      cfg.Logging.MaxFiles,
		WriteToStderr: cfg.Logging.Stderr,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	slog.SetDefault(logger)
	return logger, cleanup, nil
}
