package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"matrixmcp/internal/config"
	"matrixmcp/pkg/logging"
)

// Application bootstraps and runs the matrix-mcp server.
//
// Initialization happens in two phases:
//  1. Bootstrap: load configuration, initialize logging, wire services
//  2. Execution: serve until the context is cancelled or a signal arrives
//
// Example usage:
//
//	application, err := app.NewApplication(app.NewConfig(false, "", version))
//	if err != nil {
//	    return err
//	}
//	return application.Run(ctx)
type Application struct {
	config   *Config
	settings config.Config
	services *Services
}

// NewApplication loads the configuration, initializes logging and wires
// every service. Configuration problems are returned unwrapped so callers
// can tell them apart from runtime failures.
func NewApplication(cfg *Config) (*Application, error) {
	// Until the configuration is loaded, log plainly to stderr.
	logging.InitForCLI(bootLevel(cfg.Debug), os.Stderr)

	configPath := cfg.ConfigPath
	if configPath == "" {
		var err error
		configPath, err = config.GetDefaultConfigPath()
		if err != nil {
			logging.Warn("Bootstrap", "Running without a configuration file: %v", err)
		}
	}

	settings, err := config.LoadConfig(configPath)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to load configuration")
		return nil, err
	}

	return NewApplicationWithSettings(cfg, settings, os.Stderr)
}

// NewApplicationWithSettings wires services from already loaded settings,
// logging to output.
func NewApplicationWithSettings(cfg *Config, settings config.Config, output io.Writer) (*Application, error) {
	initLogging(cfg.Debug, settings.Logging, output)

	services, err := InitializeServices(context.Background(), cfg, settings)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{
		config:   cfg,
		settings: settings,
		services: services,
	}, nil
}

// Run serves until ctx is cancelled or SIGINT/SIGTERM arrives.
func (a *Application) Run(ctx context.Context) error {
	return runServer(ctx, a.settings, a.services)
}

// Services returns the wired services.
func (a *Application) Services() *Services {
	return a.services
}

func bootLevel(debug bool) logging.LogLevel {
	if debug {
		return logging.LevelDebug
	}
	return logging.LevelInfo
}

func initLogging(debug bool, cfg config.LoggingConfig, output io.Writer) {
	level, _ := logging.ParseLevel(cfg.Level)
	if debug {
		level = logging.LevelDebug
	}
	format := logging.FormatText
	if cfg.Format == string(logging.FormatJSON) {
		format = logging.FormatJSON
	}
	logging.Init(level, output, format)
}
