package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"docfinder/internal/config"
)

const configKey = "config"

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "docfinder:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "docfinder",
		Usage: "Upload, search and download documents of a document search service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file (uses ./docfinder.yaml or ~/.config/docfinder/config.yaml if not provided)",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error); overrides log.level",
			},
		},
		Before: setup,
		Action: tuiCommand,
		Commands: []*cli.Command{
			{
				Name:   "tui",
				Usage:  "Interactive search and upload session",
				Action: tuiCommand,
			},
			{
				Name:      "upload",
				Usage:     "Upload files as one batch",
				ArgsUsage: "<path or glob>...",
				Action:    uploadCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "overwrite-all",
						Usage: "Overwrite every duplicate without asking",
					},
					&cli.BoolFlag{
						Name:  "no-overwrite",
						Usage: "Keep every duplicate without asking",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Search the indexed documents",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "top-k",
						Aliases: []string{"k"},
						Usage:   "Number of results (defaults to search.top_k)",
					},
					&cli.IntFlag{
						Name:    "summarize",
						Aliases: []string{"s"},
						Usage:   "Generate and print the summary of result N (1-based)",
					},
				},
			},
			{
				Name:      "download",
				Usage:     "Download a document by name into download.dir",
				ArgsUsage: "<name>",
				Action:    downloadCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "yes",
						Aliases: []string{"y"},
						Usage:   "Do not ask for confirmation",
					},
				},
			},
		},
	}
}

// setup loads the configuration and points the logger at stderr.
func setup(c *cli.Context) error {
	var (
		cfg *config.AppConfig
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, _, err = config.LoadDefault()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	config.ApplyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level))
	if err != nil {
		return fmt.Errorf("invalid log level %q", cfg.Log.Level)
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: c.App.ErrWriter, TimeFormat: time.RFC3339})

	if c.App.Metadata == nil {
		c.App.Metadata = map[string]interface{}{}
	}
	c.App.Metadata[configKey] = cfg
	return nil
}

func appConfig(c *cli.Context) *config.AppConfig {
	cfg, _ := c.App.Metadata[configKey].(*config.AppConfig)
	return cfg
}
