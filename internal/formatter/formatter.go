// package formatter exports a discovered mix to various formats (JSON, CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/crawlmix/internal/models"
	"github.com/desertthunder/crawlmix/internal/shared"
)

// Format is an export file format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "md"
	FormatText     Format = "txt"
)

// Formats lists the supported formats.
var Formats = []Format{FormatJSON, FormatCSV, FormatMarkdown, FormatText}

// ParseFormat accepts a format name or common alias.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "txt", "text", "plain":
		return FormatText, nil
	}
	return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
}

// FormatFromPath infers the format from a file extension, defaulting to JSON.
func FormatFromPath(path string) Format {
	if f, err := ParseFormat(strings.TrimPrefix(filepath.Ext(path), ".")); err == nil {
		return f
	}
	return FormatJSON
}

// Export is a collected mix ready to be written out.
type Export struct {
	Playlist    models.PlaylistSpec     `json:"playlist"`
	URL         string                  `json:"url,omitempty"`
	Filter      string                  `json:"filter"`
	Seeds       []string                `json:"seeds"`
	Requested   int                     `json:"requested"`
	Tracks      []models.TrackCandidate `json:"tracks"`
	GeneratedAt time.Time               `json:"generated_at"`
}

// Render encodes export in format.
func Render(export *Export, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return ExportToJSON(export)
	case FormatCSV:
		return ExportToCSV(export)
	case FormatMarkdown:
		return ExportToMarkdown(export)
	case FormatText:
		return ExportToText(export)
	}
	return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
}

// ExportToJSON encodes the whole export as indented JSON.
func ExportToJSON(export *Export) ([]byte, error) {
	data, err := shared.MarshalJSON(export, true)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export: %w", err)
	}
	return append(data, '\n'), nil
}

// ExportToCSV converts tracks to CSV with columns: URI, Title, Artist, Album, Year, Popularity
func ExportToCSV(export *Export) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"URI", "Title", "Artist", "Album", "Year", "Popularity"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range export.Tracks {
		record := []string{
			track.URI,
			track.Name,
			track.Artist,
			track.Album,
			yearString(track),
			strconv.Itoa(track.Popularity),
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

// ExportToMarkdown renders a heading, a summary and a numbered track list
func ExportToMarkdown(export *Export) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", export.Playlist.Name)

	if export.Playlist.Description != "" {
		fmt.Fprintf(&buf, "%s\n\n", export.Playlist.Description)
	}
	if export.URL != "" {
		fmt.Fprintf(&buf, "**Playlist**: <%s>\n", export.URL)
	}
	if len(export.Seeds) > 0 {
		fmt.Fprintf(&buf, "**Seeds**: %s\n", strings.Join(export.Seeds, ", "))
	}
	fmt.Fprintf(&buf, "**Filter**: %s\n", export.Filter)
	fmt.Fprintf(&buf, "**Tracks**: %d/%d\n", len(export.Tracks), export.Requested)
	fmt.Fprintf(&buf, "**Visibility**: %s\n\n", shared.VisibilityString(export.Playlist.Public))

	buf.WriteString("## Tracks\n\n")
	for i, track := range export.Tracks {
		albumPart := ""
		if track.Album != "" {
			albumPart = fmt.Sprintf(" (%s)", track.Album)
		}
		fmt.Fprintf(&buf, "%d. %s - %s%s [%s, %d]\n", i+1, track.Artist, track.Name, albumPart, yearString(track), track.Popularity)
	}

	return buf.Bytes(), nil
}

// ExportToText converts tracks to plain text format
func ExportToText(export *Export) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Playlist: %s\n", export.Playlist.Name)
	if export.URL != "" {
		fmt.Fprintf(&buf, "URL: %s\n", export.URL)
	}
	fmt.Fprintf(&buf, "Tracks: %d\n\n", len(export.Tracks))

	for i, track := range export.Tracks {
		fmt.Fprintf(&buf, "%d. %s - %s\n", i+1, track.Artist, track.Name)
	}

	return buf.Bytes(), nil
}

// WriteExport renders export and writes it to path, creating parent directories.
// An empty format is inferred from the file extension.
func WriteExport(export *Export, path string, format Format) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: output path", shared.ErrMissingArgument)
	}
	if format == "" {
		format = FormatFromPath(path)
	}

	data, err := Render(export, format)
	if err != nil {
		return "", err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s file: %w", format, err)
	}
	return path, nil
}

func yearString(t models.TrackCandidate) string {
	if !t.YearKnown() {
		return "unknown"
	}
	return strconv.Itoa(t.ReleaseYear)
}
