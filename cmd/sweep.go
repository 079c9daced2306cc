package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/encore/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Sweep purges expired documents and cache entries.
func (r *Runner) Sweep(ctx context.Context, cmd *cli.Command) error {
	if err := r.ensureStack(ctx); err != nil {
		return err
	}

	progress := make(chan tasks.ProgressUpdate, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			r.writePlain("→ %s\n", update.Message)
		}
	}()

	result, err := r.engine.Sweep(ctx, progress)
	close(progress)
	<-done
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, cmd.Bool("pretty"))
	}

	r.writePlain("%s\n", r.styles.OK(fmt.Sprintf(
		"Sweep removed %d documents and %d cache entries in %s",
		result.RemovedDocuments, result.RemovedCacheEntries, result.Elapsed.Round(0))))
	r.writePlain("%s\n", r.styles.Help(fmt.Sprintf(
		"Cache: %d entries, %.0f%% hit rate", result.CacheStats.Size, result.CacheStats.HitRate*100)))
	return nil
}

func sweepCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "Purge expired sessions, tokens, and cache entries",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Output as JSON"},
			&cli.BoolFlag{Name: "pretty", Usage: "Pretty-print JSON output"},
		},
		Action: r.Sweep,
	}
}
