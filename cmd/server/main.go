// Command server serves a generated chapter tree with browsing pages and
// verse search.
package main

import (
	"errors"

	"github.com/alecthomas/kong"

	"github.com/everywherebible/generator/internal/config"
	"github.com/everywherebible/generator/internal/logging"
	"github.com/everywherebible/generator/internal/web"
)

type serveCmd struct {
	Config    string `help:"Path to config JSON" type:"path" default:"${default_config}"`
	Root      string `help:"Override the output directory to serve" type:"existingdir"`
	Index     string `help:"Override the search index path" type:"path"`
	Addr      string `default:":8080" help:"HTTP bind address"`
	LogLevel  string `name:"log-level" default:"info" enum:"debug,info,warn,error" help:"Log level"`
	LogFormat string `name:"log-format" default:"text" enum:"text,json" help:"Log format"`
}

func main() {
	var cli serveCmd
	ctx := kong.Parse(&cli,
		kong.Name("server"),
		kong.Description("Serve generated Bible chapters."),
		kong.UsageOnError(),
		kong.Vars{"default_config": config.DefaultPath()},
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}

func (c *serveCmd) Run() error {
	logger := logging.BuildLogger(c.LogLevel, c.LogFormat)

	cfg, err := config.Decode(c.Config)
	if err != nil {
		if c.Root == "" {
			logger.Error("load config", "error", err)
			return err
		}
		logger.Warn("config unavailable, serving root only", "error", err)
		cfg = &config.Config{}
	}
	if c.Root != "" {
		cfg.OutputDir = c.Root
	}
	if c.Index != "" {
		cfg.IndexFile = c.Index
	}
	cfg.ApplyDefaults()
	if cfg.OutputDir == "" {
		return errors.New("no output directory: set output_dir or pass --root")
	}

	server := web.NewServer(cfg, logger)
	defer func() { _ = server.Close() }()
	return server.ListenAndServe(c.Addr)
}
