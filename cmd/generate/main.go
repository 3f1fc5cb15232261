// Command generate converts a Bible chapter archive into one HTML fragment
// per chapter, plus a verse search index and sitemaps.
//
// Usage:
//
//	generate eng-kjv_html.zip ./www
//	generate --config /etc/everywherebible/config.json --workers 4
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/everywherebible/generator/internal/catalog"
	"github.com/everywherebible/generator/internal/config"
	"github.com/everywherebible/generator/internal/logging"
	"github.com/everywherebible/generator/internal/pipeline"
	"github.com/everywherebible/generator/internal/search"
	"github.com/everywherebible/generator/internal/sitemap"
	"github.com/everywherebible/generator/internal/storage"
	"github.com/everywherebible/generator/internal/transform"
)

type generateCmd struct {
	Archive string `arg:"" optional:"" help:"Chapter archive (.zip, .tar.gz, .tar.xz)" type:"existingfile"`
	OutDir  string `arg:"" optional:"" name:"outdir" help:"Output directory" type:"path"`

	Config          string   `help:"Path to config JSON" type:"path" env:"EVERYWHEREBIBLE_CONFIG"`
	Translation     string   `help:"Translation to generate (${translations})"`
	Workers         int      `short:"j" help:"Chapters converted concurrently"`
	ContinueOnError bool     `name:"continue-on-error" help:"Record failing chapters and keep going"`
	Force           bool     `help:"Regenerate chapters whose source has not changed"`
	VerifySize      bool     `name:"verify-size" help:"Reject fragments much smaller than their source"`
	VerifyStructure bool     `name:"verify-structure" help:"Reject fragments that are not well-formed XML with one heading"`
	StripClass      []string `name:"strip-class" help:"Extra class to strip with its subtree (repeatable)"`
	Site            string   `help:"Base URL used in sitemaps"`
	Index           string   `help:"Search index path (default <outdir>/search.db)" type:"path"`
	WorkDir         string   `name:"workdir" help:"Directory for archive extraction" type:"path"`
	FailuresLog     string   `name:"failures-log" help:"File listing failed chapters (default <outdir>/failures.log)" type:"path"`
	LogLevel        string   `name:"log-level" default:"info" enum:"debug,info,warn,error" help:"Log level"`
	LogFormat       string   `name:"log-format" default:"text" enum:"text,json" help:"Log format"`
}

func main() {
	var cli generateCmd
	ctx := kong.Parse(&cli,
		kong.Name("generate"),
		kong.Description("Generate verse-anchored chapter pages from a Bible HTML archive."),
		kong.UsageOnError(),
		kong.Vars{"translations": strings.Join(transform.EditionNames(), ", ")},
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}

func (c *generateCmd) Run() error {
	logger := logging.BuildLogger(c.LogLevel, c.LogFormat)

	cfg, err := c.loadConfig()
	if err != nil {
		logger.Error("load config", "error", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := generate(ctx, logger, cfg); err != nil {
		logger.Error("generate failed", "error", err)
		return err
	}
	return nil
}

// loadConfig reads the config file when one is given (or when no archive is
// given on the command line) and applies flag overrides on top of it.
func (c *generateCmd) loadConfig() (*config.Config, error) {
	cfg := &config.Config{}
	path := c.Config
	if path == "" && c.Archive == "" {
		path = config.DefaultPath()
	}
	if path != "" {
		decoded, err := config.Decode(path)
		if err != nil {
			return nil, err
		}
		cfg = decoded
	}

	if c.Archive != "" {
		cfg.Archive = c.Archive
	}
	if c.OutDir != "" {
		cfg.OutputDir = c.OutDir
	}
	if c.Translation != "" {
		cfg.Translation = c.Translation
	}
	if c.Workers != 0 {
		cfg.Workers = c.Workers
	}
	if c.Site != "" {
		cfg.Site = c.Site
	}
	if c.Index != "" {
		cfg.IndexFile = c.Index
	}
	if c.WorkDir != "" {
		cfg.WorkDir = c.WorkDir
	}
	if c.FailuresLog != "" {
		cfg.FailuresLog = c.FailuresLog
	}
	cfg.StripClasses = append(cfg.StripClasses, c.StripClass...)
	cfg.ContinueOnError = cfg.ContinueOnError || c.ContinueOnError
	cfg.Force = cfg.Force || c.Force
	cfg.VerifySize = cfg.VerifySize || c.VerifySize
	cfg.VerifyStructure = cfg.VerifyStructure || c.VerifyStructure

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func generate(ctx context.Context, logger *slog.Logger, cfg *config.Config) error {
	edition, err := transform.LookupEdition(cfg.Translation)
	if err != nil {
		return err
	}
	edition = edition.WithStripClasses(cfg.StripClasses...)

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	indexer, err := search.NewSQLiteIndexer(cfg.IndexPath())
	if err != nil {
		return err
	}

	var sitemapGen *sitemap.SitemapGenerator
	if cfg.Site != "" {
		sitemapGen = &sitemap.SitemapGenerator{
			Root:    cfg.OutputDir,
			SiteURL: cfg.SiteURL(),
			Logger:  logger,
		}
	} else {
		logger.Info("no site configured, skipping sitemaps")
	}

	failuresPath := cfg.FailuresLog
	if failuresPath == "" {
		failuresPath = filepath.Join(cfg.OutputDir, "failures.log")
	}

	cat := catalog.Canonical()
	runner := &pipeline.Runner{
		Catalog:          cat,
		Extractor:        pipeline.NewExtractor(cfg.WorkDir),
		Converter:        pipeline.NewConverter(cat, edition),
		Indexer:          indexer,
		Storage:          storage.NewFSStorage(cfg.OutputDir),
		SitemapGenerator: sitemapGen,
		Logger:           logger,
		FailuresPath:     failuresPath,
		Workers:          cfg.Workers,
		ContinueOnError:  cfg.ContinueOnError,
		ForceProcess:     cfg.Force,
		VerifySize:       cfg.VerifySize,
		VerifyStructure:  cfg.VerifyStructure,
	}

	err = runner.Run(ctx, cfg.Archive)
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("interrupted after %d of %d chapters: %w", runner.Status().Done, runner.Status().Total, err)
	}
	return err
}
