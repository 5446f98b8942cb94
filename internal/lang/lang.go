// Package lang normalizes track language tags to ISO 639-2/B codes.
package lang

import (
	"strings"

	"golang.org/x/text/language"
)

// Undetermined is the ISO 639-2 code for a missing or unrecognised tag.
const Undetermined = "und"

// bibliographic maps the ISO 639-2/T codes that have a distinct /B form.
var bibliographic = map[string]string{
	"sqi": "alb", "hye": "arm", "eus": "baq", "mya": "bur",
	"zho": "chi", "ces": "cze", "nld": "dut", "fra": "fre",
	"kat": "geo", "deu": "ger", "ell": "gre", "isl": "ice",
	"mkd": "mac", "mri": "mao", "msa": "may", "fas": "per",
	"ron": "rum", "slk": "slo", "bod": "tib", "cym": "wel",
}

var isBibliographic = func() map[string]bool {
	m := make(map[string]bool, len(bibliographic))
	for _, b := range bibliographic {
		m[b] = true
	}
	return m
}()

// Normalize converts a raw language tag to a three-letter ISO 639-2/B code.
// Region suffixes ("en-US", "pt_BR") are ignored. Anything that is not an
// ISO 639 code is Undetermined.
func Normalize(raw string) string {
	tag := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		tag = tag[:i]
	}
	if tag == "" {
		return Undetermined
	}
	if isBibliographic[tag] {
		return tag
	}

	base, err := language.ParseBase(tag)
	if err != nil {
		return Undetermined
	}
	code := base.ISO3()
	if len(code) != 3 {
		return Undetermined
	}
	if b, ok := bibliographic[code]; ok {
		return b
	}
	return code
}

// NormalizeAll normalizes each tag, preserving order.
func NormalizeAll(raw []string) []string {
	if len(raw) == 0 {
		return nil
	}
	out := make([]string, len(raw))
	for i, tag := range raw {
		out[i] = Normalize(tag)
	}
	return out
}
