// Package report renders index contents for people and scripts.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/marco/videomap/internal/video"
)

// Format selects the listing output.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatCSV   Format = "csv"
)

// Formats lists the accepted output formats.
var Formats = []Format{FormatTable, FormatJSON, FormatYAML, FormatCSV}

// ParseFormat converts a flag value to a Format.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(s))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown output format %q (want one of %v)", s, Formats)
}

// Entry is one record flattened for output.
type Entry struct {
	Path       string   `json:"path" yaml:"path"`
	SizeBytes  int64    `json:"size_bytes" yaml:"size_bytes"`
	Duration   float64  `json:"duration_seconds,omitempty" yaml:"duration_seconds,omitempty"`
	Quality    string   `json:"quality" yaml:"quality"`
	Resolution string   `json:"resolution,omitempty" yaml:"resolution,omitempty"`
	Width      int      `json:"width,omitempty" yaml:"width,omitempty"`
	Height     int      `json:"height,omitempty" yaml:"height,omitempty"`
	Codec      string   `json:"codec" yaml:"codec"`
	Encoder    string   `json:"encoder,omitempty" yaml:"encoder,omitempty"`
	Audio      []string `json:"audio_languages" yaml:"audio_languages"`
	Subtitles  []string `json:"subtitle_languages" yaml:"subtitle_languages"`
}

// NewEntries flattens records. Encoder is resolved for target and left empty
// when the codec has no encoder for it.
func NewEntries(records []*video.Record, target string) []Entry {
	entries := make([]Entry, 0, len(records))
	for _, rec := range records {
		e := Entry{
			Path:       rec.FullPath(),
			SizeBytes:  rec.SizeBytes,
			Quality:    string(rec.Quality),
			Resolution: string(rec.Resolution),
			Width:      rec.Width,
			Height:     rec.Height,
			Codec:      rec.Codec.String(),
			Audio:      nonNil(rec.AudioLanguages),
			Subtitles:  nonNil(rec.SubtitleLanguages),
		}
		if rec.Duration != nil {
			e.Duration = *rec.Duration
		}
		if enc, ok := rec.Codec.EncoderFor(target); ok {
			e.Encoder = enc
		}
		entries = append(entries, e)
	}
	return entries
}

// WriteListing renders records to w in the given format.
func WriteListing(w io.Writer, format Format, records []*video.Record, target string) error {
	entries := NewEntries(records, target)

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(entries); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case FormatCSV:
		return writeCSV(w, entries)
	case FormatTable, "":
		return writeTable(w, entries)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func writeTable(w io.Writer, entries []Entry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tSIZE\tDURATION\tQUALITY\tCODEC\tENCODER\tAUDIO\tSUBS")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Path,
			humanSize(e.SizeBytes),
			humanDuration(e.Duration),
			e.Quality,
			dash(e.Codec),
			dash(e.Encoder),
			dash(strings.Join(e.Audio, ",")),
			dash(strings.Join(e.Subtitles, ",")),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	var total int64
	for _, e := range entries {
		if e.SizeBytes > 0 {
			total += e.SizeBytes
		}
	}
	_, err := fmt.Fprintf(w, "\n%s files, %s\n", humanize.Comma(int64(len(entries))), humanSize(total))
	return err
}

func writeCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	header := []string{"path", "size_bytes", "duration_seconds", "quality", "resolution", "width", "height", "codec", "encoder", "audio_languages", "subtitle_languages"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, e := range entries {
		row := []string{
			e.Path,
			strconv.FormatInt(e.SizeBytes, 10),
			strconv.FormatFloat(e.Duration, 'f', 3, 64),
			e.Quality,
			e.Resolution,
			strconv.Itoa(e.Width),
			strconv.Itoa(e.Height),
			e.Codec,
			e.Encoder,
			strings.Join(e.Audio, ";"),
			strings.Join(e.Subtitles, ";"),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func humanSize(n int64) string {
	if n < 0 {
		return "-"
	}
	return humanize.Bytes(uint64(n))
}

func humanDuration(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	return (time.Duration(seconds) * time.Second).String()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
