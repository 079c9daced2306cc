// package formatter provides functions to export track lists and playback
// history to various formats (CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/desertthunder/encore/internal/catalog"
	"github.com/desertthunder/encore/internal/playback"
	"github.com/desertthunder/encore/internal/shared"
)

// TracksToCSV converts a track list to CSV format with columns: ID, Title, Artist, Album, Duration
func TracksToCSV(tracks []catalog.Track) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Title", "Artist", "Album", "Duration"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range tracks {
		record := []string{
			track.ID,
			track.Title,
			track.Artist,
			track.AlbumName,
			strconv.Itoa(track.DurationMS),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// TracksToMarkdown converts a track list to Markdown format under the given title
func TracksToMarkdown(title string, tracks []catalog.Track) []byte {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# %s\n\n", title))
	buf.WriteString(fmt.Sprintf("**Tracks**: %d\n\n", len(tracks)))

	for i, track := range tracks {
		albumPart := ""
		if track.AlbumName != "" {
			albumPart = fmt.Sprintf(" (%s)", track.AlbumName)
		}
		buf.WriteString(fmt.Sprintf("%d. %s - %s%s [%s]\n", i+1, track.Artist, track.Title, albumPart, shared.FormatDuration(int64(track.DurationMS))))
	}

	return buf.Bytes()
}

// TracksToText converts a track list to plain text format
func TracksToText(title string, tracks []catalog.Track) []byte {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("%s\n", title))
	buf.WriteString(fmt.Sprintf("Tracks: %d\n\n", len(tracks)))

	for i, track := range tracks {
		buf.WriteString(fmt.Sprintf("%d. %s - %s\n", i+1, track.Artist, track.Title))
	}

	return buf.Bytes()
}

// HistoryToText converts playback history to plain text, newest first
func HistoryToText(snapshots []playback.Snapshot) []byte {
	var buf bytes.Buffer

	for _, s := range snapshots {
		line := fmt.Sprintf("%s  %-8s  %s - %s", s.Timestamp.Format("2006-01-02 15:04:05"), s.State, s.Artist, s.Title)
		if s.OffsetMS > 0 {
			line += fmt.Sprintf(" @ %s", shared.FormatDuration(s.OffsetMS))
		}
		if s.Error != "" {
			line += fmt.Sprintf(" (%s)", s.Error)
		}
		buf.WriteString(line + "\n")
	}

	return buf.Bytes()
}

// HistoryToCSV converts playback history to CSV format with columns: Timestamp, State, Track, Artist, Offset, Error
func HistoryToCSV(snapshots []playback.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Timestamp", "State", "Track", "Artist", "Offset", "Error"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, s := range snapshots {
		record := []string{
			s.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
			string(s.State),
			s.Title,
			s.Artist,
			strconv.FormatInt(s.OffsetMS, 10),
			s.Error,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// WriteTracksCSV exports a track list to a CSV file.
//
// Defaults to {base}_tracks.csv as the filename.
func WriteTracksCSV(tracks []catalog.Track, base string) (string, error) {
	if base == "" {
		base = "tracks"
	}

	csvData, err := TracksToCSV(tracks)
	if err != nil {
		return "", fmt.Errorf("failed to generate CSV: %w", err)
	}

	path := base + "_tracks.csv"
	if err := os.WriteFile(path, csvData, 0644); err != nil {
		return "", fmt.Errorf("failed to write CSV file: %w", err)
	}

	return path, nil
}
