// Package episode extracts show, season and episode information from TV
// episode file names.
package episode

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoEpisode is returned when a file name carries no season/episode marker.
var ErrNoEpisode = errors.New("no season/episode marker in file name")

var (
	// Matches "Show s01e04 Title", "Show - 20x04 - Title" and "Show [20x04] Title".
	episodePattern = regexp.MustCompile(`^(.*?) ?(?:- ?)?\[?[Ss]?(\d+)[XxEe](\d+)\]?(?: ?-)? ?(.*)$`)

	// Release source markers, best first in sourceRank.
	sourcePattern = regexp.MustCompile(`(?i)\b(BluRay|BRRip|BDRip|WEB-DL|WEBRip|HDRip|DVDRip|HDTV|WEB|DVDSCR|SCREENER)\b`)
)

var sourceRank = map[string]int{
	"bluray":   8,
	"bdrip":    7,
	"brrip":    7,
	"web-dl":   6,
	"webrip":   5,
	"web":      5,
	"hdrip":    4,
	"hdtv":     4,
	"dvdrip":   3,
	"dvdscr":   2,
	"screener": 2,
}

// Episode is the parsed form of an episode file name.
type Episode struct {
	Show    string `json:"show" yaml:"show"`
	Season  int    `json:"season" yaml:"season"`
	Episode int    `json:"episode" yaml:"episode"`
	Title   string `json:"title,omitempty" yaml:"title,omitempty"`
}

// Key identifies the episode independent of file name noise: the lowercase
// show name with season and episode numbers.
func (e Episode) Key() string {
	return fmt.Sprintf("%s|s%02de%02d", strings.ToLower(e.Show), e.Season, e.Episode)
}

func (e Episode) String() string {
	s := fmt.Sprintf("%s S%02dE%02d", e.Show, e.Season, e.Episode)
	if e.Title != "" {
		s += " " + e.Title
	}
	return s
}

// Parse reads show, season, episode and episode title from a file name or
// path. The directory and extension are ignored.
func Parse(filename string) (Episode, error) {
	name := filepath.Base(filename)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	m := episodePattern.FindStringSubmatch(name)
	if m == nil {
		return Episode{}, fmt.Errorf("%s: %w", filename, ErrNoEpisode)
	}

	season, err := strconv.Atoi(m[2])
	if err != nil {
		return Episode{}, fmt.Errorf("%s: bad season %q: %w", filename, m[2], ErrNoEpisode)
	}
	number, err := strconv.Atoi(m[3])
	if err != nil {
		return Episode{}, fmt.Errorf("%s: bad episode %q: %w", filename, m[3], ErrNoEpisode)
	}

	return Episode{
		Show:    strings.TrimSpace(m[1]),
		Season:  season,
		Episode: number,
		Title:   strings.TrimSpace(m[4]),
	}, nil
}

// Source returns the release source marker in a file name (BluRay, WEB-DL,
// HDTV...) and its rank, higher being better. Unmarked names rank 0.
func Source(filename string) (string, int) {
	match := sourcePattern.FindString(filename)
	if match == "" {
		return "", 0
	}
	return match, sourceRank[strings.ToLower(match)]
}
