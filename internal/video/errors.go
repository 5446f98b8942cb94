package video

import (
	"errors"
	"fmt"
)

var (
	// ErrPathVanished is returned when a record's file no longer exists on disk.
	ErrPathVanished = errors.New("video file no longer exists")

	// ErrNoVideoTrack is wrapped by a ProbeError when the probe found no usable video track.
	ErrNoVideoTrack = errors.New("no usable video track")
)

// ProbeError reports a failed metadata extraction for a single file.
type ProbeError struct {
	Path string
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.Path, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// ConfigurationError reports an invalid value assigned to a record field.
// These indicate programmer errors and are never produced by well-formed probe data.
type ConfigurationError struct {
	Field string
	Value string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.Field, e.Value)
}
