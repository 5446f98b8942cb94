package episode

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	groups := []struct {
		name      string
		filenames []string
		expected  Episode
	}{
		{
			name: "sXXeXX",
			filenames: []string{
				"Stargate Atlantis s01e04 foo bar.mkv",
				"Stargate Atlantis S01e04 foo bar.mkv",
				"Stargate Atlantis s01E04 foo bar.mkv",
				"Stargate Atlantis S01E04 foo bar.mkv",
				"Stargate Atlantis - s01e04 foo bar.mkv",
				"Stargate Atlantis s01e04 - foo bar.mkv",
				"Stargate Atlantis - s01e04 - foo bar.mkv",
				"Stargate Atlantis S1E04 foo bar.mkv",
				"Stargate Atlantis S01E4 foo bar.mkv",
			},
			expected: Episode{Show: "Stargate Atlantis", Season: 1, Episode: 4, Title: "foo bar"},
		},
		{
			name: "SSxEE",
			filenames: []string{
				"One Two Three 20x04 Four Five.mkv",
				"One Two Three 20X04 Four Five.mkv",
				"One Two Three - 20x04 Four Five.mkv",
				"One Two Three 20x04 - Four Five.mkv",
				"One Two Three - 20x04 - Four Five.mkv",
				"One Two Three - 20x4 - Four Five.mkv",
				"One Two Three - 020x04 - Four Five.mkv",
			},
			expected: Episode{Show: "One Two Three", Season: 20, Episode: 4, Title: "Four Five"},
		},
		{
			name: "square brackets",
			filenames: []string{
				"One Two Three [20x04] Four Five.mkv",
				"One Two Three [20X04] Four Five.mkv",
				"One Two Three - [20x04] Four Five.mkv",
				"One Two Three [20x04] - Four Five.mkv",
				"One Two Three - [20x04] - Four Five.mkv",
				"One Two Three - [20x4] - Four Five.mkv",
				"One Two Three - [020x04] - Four Five.mkv",
			},
			expected: Episode{Show: "One Two Three", Season: 20, Episode: 4, Title: "Four Five"},
		},
	}

	for _, g := range groups {
		t.Run(g.name, func(t *testing.T) {
			for _, filename := range g.filenames {
				got, err := Parse(filename)
				if err != nil {
					t.Fatalf("Parse(%q) returned error: %v", filename, err)
				}
				if got != g.expected {
					t.Errorf("Parse(%q) = %+v, want %+v", filename, got, g.expected)
				}
			}
		})
	}
}

func TestParse_IgnoresDirectory(t *testing.T) {
	got, err := Parse("/media/tv/Show s02e10/Show s02e10 Finale.mkv")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := Episode{Show: "Show", Season: 2, Episode: 10, Title: "Finale"}
	if got != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
}

func TestParse_NoTitle(t *testing.T) {
	got, err := Parse("Show S03E07.mkv")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got.Title != "" || got.Season != 3 || got.Episode != 7 {
		t.Errorf("Expected season 3 episode 7 without title, got %+v", got)
	}
}

func TestParse_BadFilename(t *testing.T) {
	_, err := Parse("Star Trek (2009).mkv")
	if !errors.Is(err, ErrNoEpisode) {
		t.Errorf("Expected ErrNoEpisode, got %v", err)
	}
}

func TestKey(t *testing.T) {
	a, _ := Parse("Stargate Atlantis s01e04 foo bar.mkv")
	b, _ := Parse("stargate atlantis - [1x4] - Rising.avi")
	if a.Key() != b.Key() {
		t.Errorf("Expected equal keys, got %q and %q", a.Key(), b.Key())
	}
	if a.Key() != "stargate atlantis|s01e04" {
		t.Errorf("Unexpected key %q", a.Key())
	}
	if a.String() != "Stargate Atlantis S01E04 foo bar" {
		t.Errorf("Unexpected string %q", a.String())
	}
}

func TestSource(t *testing.T) {
	testCases := []struct {
		filename string
		source   string
		rank     int
	}{
		{"Show.S01E01.1080p.BluRay.x264.mkv", "BluRay", 8},
		{"Show.S01E01.720p.WEB-DL.mkv", "WEB-DL", 6},
		{"Show S01E01 HDTV.avi", "HDTV", 4},
		{"Show S01E01.mkv", "", 0},
	}

	for _, tc := range testCases {
		source, rank := Source(tc.filename)
		if source != tc.source || rank != tc.rank {
			t.Errorf("Source(%q) = (%q, %d), want (%q, %d)", tc.filename, source, rank, tc.source, tc.rank)
		}
	}
}
