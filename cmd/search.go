package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/encore/internal/catalog"
	"github.com/desertthunder/encore/internal/formatter"
	"github.com/desertthunder/encore/internal/shared"
	"github.com/urfave/cli/v3"
)

// Search queries the catalog, either across all types or scoped to one kind.
func (r *Runner) Search(ctx context.Context, cmd *cli.Command) error {
	query := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("%w: search query", shared.ErrMissingArgument)
	}

	if err := r.ensureStack(ctx); err != nil {
		return err
	}

	userID, accessToken, err := r.session(ctx)
	if err != nil {
		return err
	}

	kind := cmd.String("type")

	var result *catalog.SearchResult
	if kind == "" {
		result, err = r.catalog.Search(ctx, userID, accessToken, query)
	} else {
		result, err = r.catalog.SearchByType(ctx, userID, accessToken, catalog.ContextKind(kind), query)
	}
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, cmd.Bool("pretty"))
	}

	r.writePlain("%s\n", r.styles.Title(fmt.Sprintf("Results for %q", query)))

	if len(result.Tracks) > 0 {
		r.writePlain("%s", formatter.TracksToText("Tracks", result.Tracks))
	}
	for _, album := range result.Albums {
		r.writePlain("Album: %s - %s (%d tracks)\n", album.Artist, album.Name, album.TotalTracks)
	}
	for _, playlist := range result.Playlists {
		r.writePlain("Playlist: %s (%d tracks)\n", playlist.Name, playlist.TotalTracks)
	}
	for _, artist := range result.Artists {
		r.writePlain("Artist: %s\n", artist.Name)
	}

	if len(result.Tracks)+len(result.Albums)+len(result.Playlists)+len(result.Artists) == 0 {
		r.writePlain("%s\n", r.styles.Warn("No results"))
	}

	return nil
}

// Favorites lists the user's saved tracks.
func (r *Runner) Favorites(ctx context.Context, cmd *cli.Command) error {
	if err := r.ensureStack(ctx); err != nil {
		return err
	}

	userID, accessToken, err := r.session(ctx)
	if err != nil {
		return err
	}

	tracks, err := r.catalog.Favorites(ctx, userID, accessToken, int(cmd.Int("limit")))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(tracks, cmd.Bool("pretty"))
	}
	if base := cmd.String("csv"); base != "" {
		path, err := formatter.WriteTracksCSV(tracks, base)
		if err != nil {
			return err
		}
		r.writePlain("%s\n", r.styles.OK("Saved to "+path))
		return nil
	}

	r.writePlain("%s", formatter.TracksToText("Favorites", tracks))
	return nil
}

func searchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search the catalog",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "Restrict to one kind: track, album, playlist, artist"},
			&cli.BoolFlag{Name: "json", Usage: "Output as JSON"},
			&cli.BoolFlag{Name: "pretty", Usage: "Pretty-print JSON output"},
		},
		Action: r.Search,
	}
}

func favoritesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "favorites",
		Usage: "List your saved tracks",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Maximum tracks to list", Value: 20},
			&cli.BoolFlag{Name: "json", Usage: "Output as JSON"},
			&cli.BoolFlag{Name: "pretty", Usage: "Pretty-print JSON output"},
			&cli.StringFlag{Name: "csv", Usage: "Write tracks to {base}_tracks.csv"},
		},
		Action: r.Favorites,
	}
}
