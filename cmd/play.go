package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/encore/internal/catalog"
	"github.com/desertthunder/encore/internal/formatter"
	"github.com/desertthunder/encore/internal/playback"
	"github.com/desertthunder/encore/internal/shared"
	"github.com/urfave/cli/v3"
)

// Play starts playback. Given a bare query it plays the top track match;
// with --album, --playlist, or --artist it plays the whole track list.
func (r *Runner) Play(ctx context.Context, cmd *cli.Command) error {
	if err := r.ensureStack(ctx); err != nil {
		return err
	}

	userID, accessToken, err := r.session(ctx)
	if err != nil {
		return err
	}

	var track catalog.Track
	var trackList []catalog.Track

	switch {
	case cmd.String("album") != "":
		trackList, err = r.catalog.Tracks(ctx, userID, accessToken, catalog.KindAlbum, cmd.String("album"))
	case cmd.String("playlist") != "":
		trackList, err = r.catalog.Tracks(ctx, userID, accessToken, catalog.KindPlaylist, cmd.String("playlist"))
	case cmd.String("artist") != "":
		trackList, err = r.catalog.Tracks(ctx, userID, accessToken, catalog.KindArtist, cmd.String("artist"))
	default:
		query := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
		if query == "" {
			return fmt.Errorf("%w: track query or context flag", shared.ErrMissingArgument)
		}

		result, searchErr := r.catalog.SearchByType(ctx, userID, accessToken, catalog.KindTrack, query)
		if searchErr != nil {
			return searchErr
		}
		if len(result.Tracks) == 0 {
			return fmt.Errorf("%w: no track matching %q", shared.ErrNotFound, query)
		}
		track = result.Tracks[0]
	}
	if err != nil {
		return err
	}

	if len(trackList) > 0 {
		track = trackList[0]
	}

	next, err := r.machine.Start(ctx, userID, accessToken, track, trackList)
	if err != nil {
		return err
	}

	return r.printNowPlaying(next)
}

// Event applies a playback lifecycle event reported by the host.
func (r *Runner) Event(ctx context.Context, cmd *cli.Command) error {
	if err := r.ensureStack(ctx); err != nil {
		return err
	}

	userID, accessToken, err := r.session(ctx)
	if err != nil {
		return err
	}

	event := playback.Event{
		Type:         playback.EventType(cmd.String("type")),
		Token:        cmd.String("token"),
		OffsetMS:     int64(cmd.Int("offset")),
		ErrorType:    cmd.String("error-type"),
		ErrorMessage: cmd.String("error-message"),
	}

	next, err := r.machine.HandleEvent(ctx, userID, accessToken, event)
	if err != nil {
		return err
	}
	if next == nil {
		r.writePlain("%s\n", r.styles.OK(fmt.Sprintf("Recorded %s", event.Type)))
		return nil
	}

	return r.printNowPlaying(next)
}

// Resume restarts playback from the last stored offset.
func (r *Runner) Resume(ctx context.Context, cmd *cli.Command) error {
	if err := r.ensureStack(ctx); err != nil {
		return err
	}

	userID, accessToken, err := r.session(ctx)
	if err != nil {
		return err
	}

	next, err := r.machine.Resume(ctx, userID, accessToken)
	if err != nil {
		return err
	}

	return r.printNowPlaying(next)
}

// History lists recent playback snapshots, newest first.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	if err := r.ensureStack(ctx); err != nil {
		return err
	}

	userID, _, err := r.session(ctx)
	if err != nil {
		return err
	}

	snapshots, err := r.sessions.History(ctx, userID, int(cmd.Int("limit")))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(snapshots, cmd.Bool("pretty"))
	}
	if cmd.Bool("csv") {
		data, err := formatter.HistoryToCSV(snapshots)
		if err != nil {
			return err
		}
		return r.writePlain("%s", data)
	}

	if len(snapshots) == 0 {
		r.writePlain("%s\n", r.styles.Warn("No playback history"))
		return nil
	}

	r.writePlain("%s", formatter.HistoryToText(snapshots))
	return nil
}

func (r *Runner) printNowPlaying(next *playback.NextPlayback) error {
	r.writePlain("%s\n", r.styles.Title("Now Playing"))
	r.writePlain("%s\n", r.styles.OK(fmt.Sprintf("%s - %s", next.Track.Artist, next.Track.Title)))
	if next.OffsetMS > 0 {
		r.writePlain("Resuming at %s\n", shared.FormatDuration(next.OffsetMS))
	}
	return r.writePlain("%s\n", r.styles.Help("Stream: "+next.StreamURL))
}

func playCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "play",
		Usage:     "Start playback of a track, album, playlist, or artist",
		ArgsUsage: "[query]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "album", Usage: "Play an album by ID"},
			&cli.StringFlag{Name: "playlist", Usage: "Play a playlist by ID"},
			&cli.StringFlag{Name: "artist", Usage: "Play an artist's tracks by ID"},
		},
		Action: r.Play,
	}
}

func eventCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "event",
		Usage: "Apply a playback lifecycle event",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Usage: "started, finished, stopped, failed, or nearly_finished", Required: true},
			&cli.StringFlag{Name: "token", Usage: "Playback token of the reported track"},
			&cli.IntFlag{Name: "offset", Usage: "Offset in milliseconds (stopped)"},
			&cli.StringFlag{Name: "error-type", Usage: "Error category (failed)"},
			&cli.StringFlag{Name: "error-message", Usage: "Error detail (failed)"},
		},
		Action: r.Event,
	}
}

func resumeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "resume",
		Usage:  "Resume the last playback session",
		Action: r.Resume,
	}
}

func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recent playback snapshots",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Maximum snapshots to list", Value: 20},
			&cli.BoolFlag{Name: "json", Usage: "Output as JSON"},
			&cli.BoolFlag{Name: "pretty", Usage: "Pretty-print JSON output"},
			&cli.BoolFlag{Name: "csv", Usage: "Output as CSV"},
		},
		Action: r.History,
	}
}
