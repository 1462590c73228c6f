package main

import (
	"context"
	"fmt"
	"os"

	"github.com/socialite-ai/supervisor/pkg/config"
	"github.com/socialite-ai/supervisor/pkg/lifecycle"
	"github.com/socialite-ai/supervisor/pkg/logging"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	Config   string `long:"config" description:"optional YAML configuration file"`
	LogLevel string `long:"log-level" description:"log level (debug, info, warn, error)" default:"info"`
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v", err)
		os.Exit(1)
	}

	zapLogger, err := logging.NewZapLogger(opts.LogLevel)
	if err != nil {
		fmt.Printf("Logger setup failed: %v", err)
		os.Exit(1)
	}

	logger := logging.NewLogger("supervisor: ", logging.LogFuncs{
		Debugf: zapLogger.Debugf,
		Infof:  zapLogger.Infof,
		Warnf:  zapLogger.Warnf,
		Errorf: zapLogger.Errorf,
	})

	cfg, err := config.Resolve(opts.Config)
	if err != nil {
		logger.Errorf("Configuration resolution failed: %v", err)
		os.Exit(2)
	}

	logger.Infof("Resolved configuration, mode: %s, api_port: %d, ui_port: %d, backend: %s",
		cfg.Mode, cfg.APIPort, cfg.UIPort, cfg.BackendModule)

	manager, err := lifecycle.NewManager(lifecycle.ManagerOptions{
		Config:      cfg,
		BackendSpec: cfg.BackendSpec(),
		UISpec:      cfg.UISpec(),
	}, logger)
	if err != nil {
		logger.Errorf("Failed to create lifecycle manager: %v", err)
		os.Exit(1)
	}

	os.Exit(manager.Run(context.Background()))
}
