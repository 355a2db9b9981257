package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/astei/voxelchunk/chunk"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := newApp(os.Stdout, os.Stderr)
	if err := app.RunContext(ctx, os.Args); err != nil {
		logger(os.Stderr, false, "text").Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "voxelchunk",
		Usage:     "converts, packs and serves voxel chunk columns",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log debug output",
				EnvVars: []string{"VOXELCHUNK_VERBOSE"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "text",
				Usage:   "log output format: text or json",
				EnvVars: []string{"VOXELCHUNK_LOG_FORMAT"},
			},
		},
		Commands: []*cli.Command{
			convertCommand(),
			generateCommand(),
			inspectCommand(),
			exportCommand(),
			serveCommand(),
		},
	}
}

func logger(w io.Writer, verbose bool, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// contextLogger builds the logger configured by the global flags.
func contextLogger(c *cli.Context) *slog.Logger {
	return logger(c.App.ErrWriter, c.Bool("verbose"), c.String("log-format"))
}

func requireArgs(c *cli.Context, n int) error {
	if c.NArg() != n {
		return fmt.Errorf("%s: expected %d arguments (%s), got %d", c.Command.Name, n, c.Command.ArgsUsage, c.NArg())
	}
	return nil
}

func sortChunks(chunks []*chunk.Chunk) {
	sort.Slice(chunks, func(i, j int) bool {
		a, b := chunks[i].Position(), chunks[j].Position()
		if a.Z != b.Z {
			return a.Z < b.Z
		}
		return a.X < b.X
	})
}
