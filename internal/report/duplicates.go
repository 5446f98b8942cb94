package report

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/marco/videomap/internal/episode"
	"github.com/marco/videomap/internal/video"
)

// DuplicateSet is a group of files holding the same episode.
type DuplicateSet struct {
	Key     string
	Episode episode.Episode
	Copies  []DuplicateCopy
}

// DuplicateCopy is one file in a duplicate set.
type DuplicateCopy struct {
	Path      string
	SizeBytes int64
	Quality   video.Quality
	Codec     string
	Source    string // release source marker from the file name, if any
	// QualityScore ranks copies: resolution first, then source.
	QualityScore  int
	IsRecommended bool
}

// FindDuplicates groups records by parsed episode and returns the groups with
// more than one copy, sorted by key. Files whose names carry no episode marker
// are skipped.
func FindDuplicates(records []*video.Record, logger *slog.Logger) []DuplicateSet {
	if logger == nil {
		logger = slog.Default()
	}

	groups := make(map[string]*DuplicateSet)
	skipped := 0
	for _, rec := range records {
		ep, err := episode.Parse(rec.Name)
		if err != nil {
			skipped++
			continue
		}

		source, sourceRank := episode.Source(rec.Name)
		c := DuplicateCopy{
			Path:         rec.FullPath(),
			SizeBytes:    rec.SizeBytes,
			Quality:      rec.Quality,
			Codec:        rec.Codec.String(),
			Source:       source,
			QualityScore: qualityScore(rec.Quality, sourceRank),
		}

		key := ep.Key()
		set, ok := groups[key]
		if !ok {
			set = &DuplicateSet{Key: key, Episode: ep}
			groups[key] = set
		}
		set.Copies = append(set.Copies, c)
	}
	logger.Debug("duplicate search complete", "episodes", len(groups), "unparsed", skipped)

	var duplicates []DuplicateSet
	for _, set := range groups {
		if len(set.Copies) < 2 {
			continue
		}
		sort.Slice(set.Copies, func(i, j int) bool {
			return set.Copies[i].Path < set.Copies[j].Path
		})
		markRecommended(set.Copies)
		duplicates = append(duplicates, *set)
	}

	sort.Slice(duplicates, func(i, j int) bool {
		return duplicates[i].Key < duplicates[j].Key
	})
	return duplicates
}

// qualityScore weights resolution above source so a 2160p WEB-DL beats a
// 1080p BluRay.
func qualityScore(q video.Quality, sourceRank int) int {
	return q.Rank()*10 + sourceRank
}

// markRecommended flags the highest scoring copy. Ties go to the larger file.
func markRecommended(copies []DuplicateCopy) {
	if len(copies) == 0 {
		return
	}

	best := 0
	for i := 1; i < len(copies); i++ {
		c, b := copies[i], copies[best]
		if c.QualityScore > b.QualityScore ||
			(c.QualityScore == b.QualityScore && c.SizeBytes > b.SizeBytes) {
			best = i
		}
	}
	copies[best].IsRecommended = true
}

// WriteDuplicateReport prints the duplicate sets. With detailed set, each
// copy also shows its codec and score.
func WriteDuplicateReport(w io.Writer, duplicates []DuplicateSet, detailed bool) error {
	if len(duplicates) == 0 {
		_, err := fmt.Fprintln(w, "No duplicates found.")
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d duplicate set(s):\n\n", len(duplicates))

	for i, set := range duplicates {
		fmt.Fprintf(&b, "━━━ Duplicate Set %d ━━━\n", i+1)
		fmt.Fprintf(&b, "Episode: %s S%02dE%02d\n", set.Episode.Show, set.Episode.Season, set.Episode.Episode)
		fmt.Fprintf(&b, "Copies: %d\n\n", len(set.Copies))

		for j, c := range set.Copies {
			marker := ""
			if c.IsRecommended {
				marker = " ★ RECOMMENDED"
			}
			fmt.Fprintf(&b, "  [%d] %s%s\n", j+1, c.Path, marker)
			fmt.Fprintf(&b, "      Quality: %s\n", formatQuality(c.Quality, c.Source))
			fmt.Fprintf(&b, "      Size: %s\n", humanSize(c.SizeBytes))
			if detailed {
				fmt.Fprintf(&b, "      Codec: %s\n", dash(c.Codec))
				fmt.Fprintf(&b, "      Quality Score: %d\n", c.QualityScore)
			}
			b.WriteString("\n")
		}
	}

	var reclaimable int64
	for _, set := range duplicates {
		for _, c := range set.Copies {
			if !c.IsRecommended && c.SizeBytes > 0 {
				reclaimable += c.SizeBytes
			}
		}
	}
	fmt.Fprintf(&b, "Removing non-recommended copies would free %s.\n", humanize.Bytes(uint64(reclaimable)))

	_, err := io.WriteString(w, b.String())
	return err
}

func formatQuality(q video.Quality, source string) string {
	if source == "" {
		return string(q)
	}
	return string(q) + " " + source
}
