package video

import "testing"

func TestClassifyCodec(t *testing.T) {
	tests := []struct {
		format  string
		target  string
		encoder string
		found   bool
		label   string
	}{
		{"HEVC", TargetSoftware, "libx265", true, "HEVC"},
		{"HEVC", TargetNvidia, "hevc_nvenc", true, "HEVC"},
		{"HEVC", TargetIntel, "hevc_qsv", true, "HEVC"},
		{"AVC", TargetSoftware, "h264", true, "h264"},
		{"AVC", TargetApple, "h264_videotoolbox", true, "h264"},
		{"AV1", TargetSoftware, "libaom-av1", true, "av1"},
		{"AV1", TargetNvidia, "", false, "av1"},
		{"AAC", TargetSoftware, "aac", true, "aac"},
		{"unknown-format", TargetSoftware, "", false, ""},
		{"MPEG-4 Visual", TargetSoftware, "", false, ""},
	}

	for _, tt := range tests {
		c := ClassifyCodec(tt.format)
		if c.FormatName != tt.format {
			t.Errorf("ClassifyCodec(%q).FormatName = %q", tt.format, c.FormatName)
		}
		if c.Label != tt.label {
			t.Errorf("ClassifyCodec(%q).Label = %q, want %q", tt.format, c.Label, tt.label)
		}
		enc, ok := c.EncoderFor(tt.target)
		if enc != tt.encoder || ok != tt.found {
			t.Errorf("ClassifyCodec(%q).EncoderFor(%q) = (%q, %v), want (%q, %v)",
				tt.format, tt.target, enc, ok, tt.encoder, tt.found)
		}
	}
}

func TestCodec_EncoderOverride(t *testing.T) {
	c := Codec{FormatName: "AVC", Encoder: "libx264", Label: "x264"}
	for _, target := range Targets {
		enc, ok := c.EncoderFor(target)
		if !ok || enc != "libx264" {
			t.Errorf("EncoderFor(%q) = (%q, %v), want override libx264", target, enc, ok)
		}
	}
}

func TestCodec_Equality(t *testing.T) {
	avc := Codec{FormatName: "AVC", Encoder: "h264", Label: "x264"}
	sameFormat := ClassifyCodec("AVC")
	hevc := ClassifyCodec("HEVC")

	if !avc.Equal(sameFormat) {
		t.Error("Expected codecs with the same format name to be equal")
	}
	if avc.Equal(hevc) {
		t.Error("Expected codecs with different format names to differ")
	}
}

func TestCodec_String(t *testing.T) {
	if got := ClassifyCodec("HEVC").String(); got != "HEVC" {
		t.Errorf("Expected label, got %q", got)
	}
	if got := ClassifyCodec("VP9").String(); got != "VP9" {
		t.Errorf("Expected format name fallback, got %q", got)
	}
	if !ClassifyCodec("AVC").Known() || ClassifyCodec("VP9").Known() {
		t.Error("Known() disagrees with the codec table")
	}
}

func TestValidTarget(t *testing.T) {
	if !ValidTarget("software") || !ValidTarget("nvidia") {
		t.Error("Expected built-in targets to be valid")
	}
	if ValidTarget("amd") {
		t.Error("Expected unknown target to be invalid")
	}
}
