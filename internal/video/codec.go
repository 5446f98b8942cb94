package video

// Encoder targets understood by the codec table.
const (
	TargetSoftware = "software"
	TargetNvidia   = "nvidia"
	TargetIntel    = "intel"
	TargetApple    = "apple"
)

// Targets lists every encoder target the codec table knows about.
var Targets = []string{TargetSoftware, TargetNvidia, TargetIntel, TargetApple}

type codecInfo struct {
	encoders map[string]string
	label    string
}

// Keyed by the probe's format vocabulary.
var codecTable = map[string]codecInfo{
	"AV1": {
		encoders: map[string]string{TargetSoftware: "libaom-av1"},
		label:    "av1",
	},
	"HEVC": {
		encoders: map[string]string{
			TargetSoftware: "libx265",
			TargetNvidia:   "hevc_nvenc",
			TargetIntel:    "hevc_qsv",
			TargetApple:    "hevc_videotoolbox",
		},
		label: "HEVC",
	},
	"AVC": {
		encoders: map[string]string{
			TargetSoftware: "h264",
			TargetNvidia:   "h264_nvenc",
			TargetIntel:    "h264_qsv",
			TargetApple:    "h264_videotoolbox",
		},
		label: "h264",
	},
	"AAC": {
		encoders: map[string]string{TargetSoftware: "aac"},
		label:    "aac",
	},
}

// Codec identifies a track's coding format. Two codecs are equal when their
// FormatName matches; Encoder and Label are presentation details.
type Codec struct {
	FormatName string `json:"format_name"`
	// Encoder, when set, overrides the table lookup for every target.
	Encoder string `json:"encoder,omitempty"`
	Label   string `json:"label,omitempty"`
}

// ClassifyCodec looks formatName up in the codec table. Unknown formats yield
// a codec with no encoders and no label.
func ClassifyCodec(formatName string) Codec {
	c := Codec{FormatName: formatName}
	if info, ok := codecTable[formatName]; ok {
		c.Label = info.label
	}
	return c
}

// EncoderFor returns the ffmpeg encoder for target, if one is known.
func (c Codec) EncoderFor(target string) (string, bool) {
	if c.Encoder != "" {
		return c.Encoder, true
	}
	info, ok := codecTable[c.FormatName]
	if !ok {
		return "", false
	}
	enc, ok := info.encoders[target]
	return enc, ok
}

// Known reports whether the format is in the codec table.
func (c Codec) Known() bool {
	_, ok := codecTable[c.FormatName]
	return ok
}

// Equal compares codecs by format name only.
func (c Codec) Equal(other Codec) bool {
	return c.FormatName == other.FormatName
}

// String returns the label when known, otherwise the format name.
func (c Codec) String() string {
	if c.Label != "" {
		return c.Label
	}
	return c.FormatName
}

// ValidTarget reports whether target is a known encoder target.
func ValidTarget(target string) bool {
	for _, t := range Targets {
		if t == target {
			return true
		}
	}
	return false
}
