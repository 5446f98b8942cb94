// Package probe extracts track metadata from media files.
package probe

import "context"

// Result holds the tracks found in a media file.
type Result struct {
	// Duration is nil when the container does not report one.
	Duration *float64
	// Video is the first video track, or nil if the file has none.
	Video *VideoTrack
	Audio []Track
	Text  []Track
}

// VideoTrack describes the primary video stream.
type VideoTrack struct {
	Width  int
	Height int
	// Format uses the codec-table vocabulary ("HEVC", "AVC", "MPEG-4 Visual").
	Format string
	// CodecName is the raw decoder name reported by the probe ("hevc", "h264").
	CodecName string
}

// Track is an audio or text stream with its raw language tag.
type Track struct {
	Language string
	Codec    string
}

// AudioLanguages returns the raw language tag of each audio track in order.
func (r *Result) AudioLanguages() []string {
	return languages(r.Audio)
}

// TextLanguages returns the raw language tag of each text track in order.
func (r *Result) TextLanguages() []string {
	return languages(r.Text)
}

func languages(tracks []Track) []string {
	if len(tracks) == 0 {
		return nil
	}
	out := make([]string, len(tracks))
	for i, t := range tracks {
		out[i] = t.Language
	}
	return out
}

// Prober extracts track metadata from the file at path.
type Prober interface {
	Probe(ctx context.Context, path string) (*Result, error)
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, path string) (*Result, error)

func (f ProberFunc) Probe(ctx context.Context, path string) (*Result, error) {
	return f(ctx, path)
}
