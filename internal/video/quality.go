package video

// Quality is a discrete resolution bucket assigned to a video track.
type Quality string

const (
	Quality2160p   Quality = "2160p"
	Quality1080p   Quality = "1080p"
	Quality720p    Quality = "720p"
	QualitySD      Quality = "SD"
	QualityUnknown Quality = "Unknown"
)

// Qualities lists every valid bucket from best to worst.
var Qualities = []Quality{Quality2160p, Quality1080p, Quality720p, QualitySD, QualityUnknown}

// Tolerance band around a reference dimension.
const (
	lowerTolerance = 0.85
	upperTolerance = 1.20
	sdMaxWidth     = 1000
)

type reference struct {
	quality       Quality
	width, height int
}

// Evaluated in order; first match wins.
var qualityReferences = []reference{
	{Quality2160p, 3840, 2160},
	{Quality1080p, 1920, 1080},
	{Quality720p, 1280, 720},
}

// ParseQuality validates s against the fixed set of buckets.
func ParseQuality(s string) (Quality, error) {
	for _, q := range Qualities {
		if string(q) == s {
			return q, nil
		}
	}
	return "", &ConfigurationError{Field: "quality", Value: s}
}

// Valid reports whether q is one of the fixed buckets.
func (q Quality) Valid() bool {
	_, err := ParseQuality(string(q))
	return err == nil
}

// Rank orders buckets for comparisons; higher is better and Unknown is 0.
func (q Quality) Rank() int {
	switch q {
	case Quality2160p:
		return 4
	case Quality1080p:
		return 3
	case Quality720p:
		return 2
	case QualitySD:
		return 1
	default:
		return 0
	}
}

// ClassifyQuality maps track dimensions to a quality bucket. Either the width
// or the height falling inside a reference's tolerance band is enough to match.
// Anything narrower than sdMaxWidth that matches no reference is SD, including
// a track that reports no width at all.
func ClassifyQuality(width, height int) Quality {
	for _, ref := range qualityReferences {
		if similarTo(width, ref.width) || similarTo(height, ref.height) {
			return ref.quality
		}
	}
	if width < sdMaxWidth {
		return QualitySD
	}
	return QualityUnknown
}

func similarTo(value, target int) bool {
	if value <= 0 {
		return false
	}
	v := float64(value)
	t := float64(target)
	return t*lowerTolerance <= v && v <= t*upperTolerance
}

// Resolution is the width-based display class of a video track.
type Resolution string

const (
	Resolution576p  Resolution = "576p"
	Resolution720p  Resolution = "720p"
	Resolution1080p Resolution = "1080p"
	Resolution2160p Resolution = "2160p"
	ResolutionOther Resolution = "other"
)

var resolutionWidths = []struct {
	width      int
	resolution Resolution
}{
	{1024, Resolution576p},
	{1280, Resolution720p},
	{1920, Resolution1080p},
	{3840, Resolution2160p},
}

// DetermineResolution classifies a width within 10% of a standard frame width.
func DetermineResolution(width int) Resolution {
	if width <= 0 {
		return ResolutionOther
	}
	for _, r := range resolutionWidths {
		diff := float64(width-r.width) / float64(r.width)
		if diff < 0 {
			diff = -diff
		}
		if diff <= 0.1 {
			return r.resolution
		}
	}
	return ResolutionOther
}
