package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
)

// CLI is the booklookup command tree.
type CLI struct {
	Config string `help:"Path to a YAML config file (defaults to ./config.yaml when present)" type:"path"`

	Search SearchCmd `cmd:"" help:"Search books by free text"`
	Get    GetCmd    `cmd:"" help:"Fetch one book by its Google Books id"`
	Stats  StatsCmd  `cmd:"" help:"Show store and memory cache statistics"`
	Warm   WarmCmd   `cmd:"" help:"Run a list of searches to populate the store"`
	Shell  ShellCmd  `cmd:"" help:"Read queries from stdin and keep the memory cache between them"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("booklookup"),
		kong.Description("Book lookup backed by a memory cache, a local store and Google Books."),
		kong.UsageOnError(),
	)

	app, err := newApp(cli.Config, os.Stdout)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := ctx.Run(app); err != nil {
		app.logger.Error("command failed", "error", err)
		app.Close()
		os.Exit(1)
	}
}
