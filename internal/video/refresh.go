package video

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/marco/videomap/internal/lang"
	"github.com/marco/videomap/internal/probe"
)

// Refresh re-reads rec's metadata when policy reports it stale. It returns
// true when the record was re-probed and updated, false when it was fresh.
//
// A missing file yields an error wrapping ErrPathVanished. A failed probe or a
// file without a usable video track yields a *ProbeError and leaves rec
// untouched, so the file is retried on the next refresh.
func Refresh(ctx context.Context, rec *Record, prober probe.Prober, policy StalenessPolicy) (bool, error) {
	path := rec.FullPath()

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("%s: %w", path, ErrPathVanished)
		}
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return false, fmt.Errorf("%s is a directory: %w", path, ErrPathVanished)
	}

	if policy == nil {
		policy = SizePolicy{}
	}
	if !policy.IsStale(rec, info) {
		return false, nil
	}

	result, err := prober.Probe(ctx, path)
	if err != nil {
		return false, &ProbeError{Path: path, Err: err}
	}
	if result == nil || result.Video == nil || result.Video.Format == "" {
		return false, &ProbeError{Path: path, Err: ErrNoVideoTrack}
	}

	if err := apply(rec, info, result); err != nil {
		return false, err
	}
	return true, nil
}

func apply(rec *Record, info fs.FileInfo, result *probe.Result) error {
	track := result.Video

	updated := rec.Clone()
	if err := updated.SetCodec(ClassifyCodec(track.Format)); err != nil {
		return err
	}
	if err := updated.SetQuality(ClassifyQuality(track.Width, track.Height)); err != nil {
		return err
	}
	updated.SizeBytes = info.Size()
	updated.ModTime = info.ModTime().UTC()
	updated.Duration = result.Duration
	updated.Width = track.Width
	updated.Height = track.Height
	updated.Resolution = DetermineResolution(track.Width)
	updated.AudioLanguages = lang.NormalizeAll(result.AudioLanguages())
	updated.SubtitleLanguages = lang.NormalizeAll(result.TextLanguages())
	updated.SchemaVersion = SchemaVersion

	*rec = *updated
	return nil
}
