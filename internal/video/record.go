// Package video holds the cached metadata record for a single video file,
// the classifier that derives codec identity and quality from track data,
// and the refresh logic that keeps a record in sync with its file.
package video

import (
	"fmt"
	"path/filepath"
	"slices"
	"time"
)

// SchemaVersion is bumped whenever Record gains or changes fields. Records
// stored under an older version are re-probed on the next refresh.
const SchemaVersion = 2

// sizeUnknown marks a record that has never been refreshed.
const sizeUnknown = -1

// Record is the cached metadata for one video file.
type Record struct {
	Name      string `json:"name"`
	Directory string `json:"directory"`

	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time"`

	Duration   *float64   `json:"duration_seconds,omitempty"`
	Codec      Codec      `json:"codec"`
	Quality    Quality    `json:"quality"`
	Width      int        `json:"width,omitempty"`
	Height     int        `json:"height,omitempty"`
	Resolution Resolution `json:"resolution,omitempty"`

	AudioLanguages    []string `json:"audio_languages"`
	SubtitleLanguages []string `json:"subtitle_languages"`

	SchemaVersion int `json:"schema_version"`
}

// NewRecord creates an unrefreshed record for name inside dir. The directory
// is stored in its CanonicalDir form, so every alias of a directory yields the
// same record key.
func NewRecord(dir, name string) *Record {
	return &Record{
		Name:          name,
		Directory:     CanonicalDir(dir),
		SizeBytes:     sizeUnknown,
		Quality:       QualityUnknown,
		SchemaVersion: SchemaVersion,
	}
}

// CanonicalDir returns dir as an absolute, symlink-resolved path. If the
// directory cannot be resolved (it may have vanished) the cleaned absolute
// path is returned.
func CanonicalDir(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = filepath.Clean(dir)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

// FullPath is the record's identity key.
func (r *Record) FullPath() string {
	return filepath.Join(r.Directory, r.Name)
}

// Same reports whether two records describe the same file.
func (r *Record) Same(other *Record) bool {
	return other != nil && r.FullPath() == other.FullPath()
}

// Refreshed reports whether the record has been populated by a probe.
func (r *Record) Refreshed() bool {
	return r.SizeBytes != sizeUnknown
}

// SetQuality assigns q after checking it is one of the fixed buckets.
func (r *Record) SetQuality(q Quality) error {
	if !q.Valid() {
		return &ConfigurationError{Field: "quality", Value: string(q)}
	}
	r.Quality = q
	return nil
}

// SetCodec assigns c. A codec must carry a format name.
func (r *Record) SetCodec(c Codec) error {
	if c.FormatName == "" {
		return &ConfigurationError{Field: "codec", Value: c.String()}
	}
	r.Codec = c
	return nil
}

// Validate checks the invariants of a decoded record.
func (r *Record) Validate() error {
	if r.Name == "" || r.Directory == "" {
		return fmt.Errorf("record missing name or directory: %q", r.FullPath())
	}
	if !filepath.IsAbs(r.Directory) {
		return &ConfigurationError{Field: "directory", Value: r.Directory}
	}
	if !r.Quality.Valid() {
		return &ConfigurationError{Field: "quality", Value: string(r.Quality)}
	}
	return nil
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	c := *r
	if r.Duration != nil {
		d := *r.Duration
		c.Duration = &d
	}
	c.AudioLanguages = slices.Clone(r.AudioLanguages)
	c.SubtitleLanguages = slices.Clone(r.SubtitleLanguages)
	return &c
}

func (r *Record) String() string {
	return fmt.Sprintf("<Video name=%s codec=%s quality=%s resolution=%s>", r.Name, r.Codec, r.Quality, r.Resolution)
}
