package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// DefaultExtensions are the video file extensions picked up when none are configured.
var DefaultExtensions = []string{".avi", ".divx", ".mkv", ".mp4", ".mpg", ".mpeg", ".mov", ".m4v", ".flv", ".ts", ".wmv"}

// Dir is one directory visited by Walk.
type Dir struct {
	Path    string   // absolute and symlink-resolved
	Subdirs []string // names, sorted
	Files   []string // video file names, sorted
}

// WalkFunc is called once per directory. Returning an error stops the walk.
type WalkFunc func(dir Dir) error

// Scanner walks a directory tree and reports the video files in each directory
type Scanner struct {
	extensions  map[string]struct{}
	excludeDirs []string
	logger      *slog.Logger
}

// New creates a new Scanner instance. An empty extension list selects DefaultExtensions.
func New(extensions []string) *Scanner {
	return NewWithExclusions(extensions, nil)
}

// NewWithExclusions creates a new Scanner instance with directory exclusions
func NewWithExclusions(extensions []string, excludeDirs []string) *Scanner {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	exts := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[ext] = struct{}{}
	}
	return &Scanner{
		extensions:  exts,
		excludeDirs: excludeDirs,
		logger:      slog.Default(),
	}
}

// WithLogger sets the logger used for skipped directories and links.
func (s *Scanner) WithLogger(logger *slog.Logger) *Scanner {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// IsExcludedDir checks if a directory should be excluded based on exclusion patterns
func (s *Scanner) IsExcludedDir(dirPath string) bool {
	dirName := strings.ToLower(filepath.Base(dirPath))

	for _, pattern := range s.excludeDirs {
		pattern = strings.ToLower(pattern)
		if pattern == "" {
			continue
		}
		if dirName == pattern || strings.Contains(dirName, pattern) {
			return true
		}
	}
	return false
}

// IsVideo checks if a filename has a supported video extension
func (s *Scanner) IsVideo(filename string) bool {
	_, ok := s.extensions[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// Walk visits root depth-first, parent before children, following symbolic
// links. Each real directory is visited at most once, so link cycles end,
// and Dir.Path is always the resolved directory whichever alias reached it.
//
// When root is a regular file, fn is called once for its parent directory
// with the file as the only candidate (if it has a video extension).
// Unreadable subdirectories are logged and skipped; an unreadable root is an error.
func (s *Scanner) Walk(ctx context.Context, root string, fn WalkFunc) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", root, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("failed to stat scan root: %w", err)
	}

	if !info.IsDir() {
		parent := filepath.Dir(abs)
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			parent = resolved
		}
		dir := Dir{Path: parent}
		if name := filepath.Base(abs); s.IsVideo(name) {
			dir.Files = []string{name}
		}
		return fn(dir)
	}

	visited := make(map[string]bool)
	return s.walkDir(ctx, abs, true, visited, fn)
}

func (s *Scanner) walkDir(ctx context.Context, path string, isRoot bool, visited map[string]bool, fn WalkFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		resolved = path
	}
	if visited[resolved] {
		s.logger.Debug("skipping already visited directory", "path", path, "target", resolved)
		return nil
	}
	visited[resolved] = true
	path = resolved

	entries, err := os.ReadDir(path)
	if err != nil {
		if isRoot {
			return fmt.Errorf("failed to read directory %s: %w", path, err)
		}
		s.logger.Warn("skipping unreadable directory", "path", path, "error", err)
		return nil
	}

	dir := Dir{Path: path}
	for _, entry := range entries {
		name := entry.Name()
		isDir, isFile := s.classify(filepath.Join(path, name), entry)
		switch {
		case isDir:
			if s.IsExcludedDir(name) {
				s.logger.Debug("skipping excluded directory", "path", filepath.Join(path, name))
				continue
			}
			dir.Subdirs = append(dir.Subdirs, name)
		case isFile && s.IsVideo(name):
			dir.Files = append(dir.Files, name)
		}
	}

	if err := fn(dir); err != nil {
		return err
	}

	for _, sub := range dir.Subdirs {
		if err := s.walkDir(ctx, filepath.Join(path, sub), false, visited, fn); err != nil {
			return err
		}
	}
	return nil
}

// classify reports whether entry is a directory or a regular file, resolving
// symbolic links. Dangling links are neither.
func (s *Scanner) classify(path string, entry fs.DirEntry) (isDir, isFile bool) {
	if entry.Type()&fs.ModeSymlink == 0 {
		return entry.IsDir(), entry.Type().IsRegular()
	}
	info, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("failed to follow symlink", "path", path, "error", err)
		}
		return false, false
	}
	return info.IsDir(), info.Mode().IsRegular()
}
