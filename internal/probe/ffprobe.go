package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// ffprobeOutput matches the JSON written by `ffprobe -show_format -show_streams`.
type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  ffprobeFormat   `json:"format"`
}

type ffprobeStream struct {
	Index     int               `json:"index"`
	CodecName string            `json:"codec_name"`
	CodecType string            `json:"codec_type"`
	Width     int               `json:"width,omitempty"`
	Height    int               `json:"height,omitempty"`
	Duration  string            `json:"duration,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
	// Attached pictures (cover art) are reported as video streams.
	Disposition map[string]int `json:"disposition,omitempty"`
}

type ffprobeFormat struct {
	Filename string `json:"filename"`
	Duration string `json:"duration"`
}

// formatNames maps ffprobe decoder names onto the format vocabulary used by
// the codec table.
var formatNames = map[string]string{
	"hevc":       "HEVC",
	"h265":       "HEVC",
	"h264":       "AVC",
	"av1":        "AV1",
	"aac":        "AAC",
	"mpeg4":      "MPEG-4 Visual",
	"msmpeg4v3":  "MPEG-4 Visual",
	"mpeg2video": "MPEG Video",
	"mpeg1video": "MPEG Video",
	"vp8":        "VP8",
	"vp9":        "VP9",
	"vc1":        "VC-1",
	"wmv3":       "VC-1",
	"theora":     "Theora",
	"mjpeg":      "JPEG",
	"prores":     "ProRes",
}

// FormatName returns the codec-table format for an ffprobe codec name.
// Unmapped names are upper-cased.
func FormatName(codecName string) string {
	lower := strings.ToLower(codecName)
	if name, ok := formatNames[lower]; ok {
		return name
	}
	return strings.ToUpper(codecName)
}

// FFprobe runs the ffprobe binary.
type FFprobe struct {
	path   string
	logger *slog.Logger
}

// NewFFprobe creates a prober for the ffprobe binary at path.
func NewFFprobe(path string, logger *slog.Logger) *FFprobe {
	return &FFprobe{path: path, logger: logger}
}

// Probe runs ffprobe on path and parses its streams.
func (f *FFprobe) Probe(ctx context.Context, path string) (*Result, error) {
	f.logger.Debug("probing file", "path", path)

	cmd := exec.CommandContext(ctx, f.path,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	var stderr strings.Builder
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("ffprobe exit code %d: %s", exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	result, err := Parse(output)
	if err != nil {
		return nil, err
	}

	f.logger.Debug("probe completed",
		"path", path,
		"has_video", result.Video != nil,
		"audio_tracks", len(result.Audio),
		"text_tracks", len(result.Text),
	)
	return result, nil
}

// Parse decodes ffprobe JSON output into a Result.
func Parse(data []byte) (*Result, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe JSON output: %w", err)
	}
	if len(out.Streams) == 0 {
		return nil, errors.New("ffprobe returned no streams")
	}

	result := &Result{}
	if d, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil {
		result.Duration = &d
	}

	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if result.Video != nil || s.Disposition["attached_pic"] == 1 {
				continue
			}
			result.Video = &VideoTrack{
				Width:     s.Width,
				Height:    s.Height,
				Format:    FormatName(s.CodecName),
				CodecName: s.CodecName,
			}
			if result.Duration == nil {
				if d, err := strconv.ParseFloat(s.Duration, 64); err == nil {
					result.Duration = &d
				}
			}
		case "audio":
			result.Audio = append(result.Audio, Track{
				Language: tagValue(s.Tags, "language"),
				Codec:    s.CodecName,
			})
		case "subtitle":
			result.Text = append(result.Text, Track{
				Language: tagValue(s.Tags, "language"),
				Codec:    s.CodecName,
			})
		}
	}

	return result, nil
}

// ResolveFFprobe finds the ffprobe binary. Search order:
// explicit path, FFPROBE_PATH, PATH, then next to the running executable.
func ResolveFFprobe(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("ffprobe not found at explicit path: %s", explicit)
		}
		return explicit, nil
	}

	if envPath := os.Getenv("FFPROBE_PATH"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
	}

	if p, err := exec.LookPath("ffprobe"); err == nil {
		return p, nil
	}

	if exePath, err := os.Executable(); err == nil {
		name := "ffprobe"
		if runtime.GOOS == "windows" {
			name = "ffprobe.exe"
		}
		adjacent := filepath.Join(filepath.Dir(exePath), name)
		if _, err := os.Stat(adjacent); err == nil {
			return adjacent, nil
		}
	}

	return "", errors.New("ffprobe not found in PATH - please install FFmpeg")
}

// tagValue gets a tag case-insensitively; containers write both "language" and "LANGUAGE".
func tagValue(tags map[string]string, key string) string {
	if v, ok := tags[key]; ok {
		return v
	}
	if v, ok := tags[strings.ToUpper(key)]; ok {
		return v
	}
	return ""
}
