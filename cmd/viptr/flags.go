package main

import (
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/halcyonreed/viptr/internal/logger"
)

var (
	variantName string
	weightsPath string
	modelsPath  string
	vocabName   string
	ignoreKeys  string
	workers     int64
	logLevel    string
	logFormat   string
	debug       bool
)

func commonModelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "variant",
			Aliases:     []string{"m"},
			Usage:       "model preset (viptr-tiny, viptr-base)",
			Value:       "viptr-tiny",
			Destination: &variantName,
		},
		&cli.StringFlag{
			Name:        "weights",
			Aliases:     []string{"w"},
			Usage:       "path to .safetensors weights",
			Destination: &weightsPath,
		},
		&cli.StringFlag{
			Name:        "models-path",
			Aliases:     []string{"path"},
			Usage:       "path to directory containing .safetensors weights",
			Destination: &modelsPath,
		},
		&cli.StringFlag{
			Name:        "vocab",
			Usage:       "override the preset vocabulary (digits, latin, english, french, german, spanish, portuguese)",
			Destination: &vocabName,
		},
		&cli.StringFlag{
			Name:        "ignore-keys",
			Usage:       "comma-separated parameter names to keep initialized when loading weights",
			Destination: &ignoreKeys,
		},
		&cli.Int64Flag{
			Name:        "workers",
			Usage:       "worker goroutines for tensor math (0 = all CPUs)",
			Destination: &workers,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

// setupLogger builds the logger selected by the logging flags.
func setupLogger() logger.Logger {
	level := logger.ParseLevel(logLevel)
	if debug {
		level = slog.LevelDebug
	}
	switch logFormat {
	case "json":
		return logger.JSON(os.Stderr, level)
	case "text":
		return logger.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	default:
		return logger.Pretty(os.Stderr, level)
	}
}
