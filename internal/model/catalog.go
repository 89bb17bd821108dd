package model

import (
	"fmt"
	"strings"
)

// Spec identifies a transcription model variant. Validity on disk is judged
// purely by size against ExpectedMinSizeBytes; there is no checksum.
type Spec struct {
	Name                 string
	ExpectedMinSizeBytes int64
}

// FileName is the conventional ggml artifact name for the variant.
func (s Spec) FileName() string {
	return fmt.Sprintf("ggml-%s.bin", s.Name)
}

// catalog lists the known whisper.cpp ggml variants with a conservative
// size floor for each. Ordered smallest to largest.
var catalog = []Spec{
	{Name: "tiny", ExpectedMinSizeBytes: 70_000_000},
	{Name: "tiny.en", ExpectedMinSizeBytes: 70_000_000},
	{Name: "base", ExpectedMinSizeBytes: 135_000_000},
	{Name: "base.en", ExpectedMinSizeBytes: 135_000_000},
	{Name: "small", ExpectedMinSizeBytes: 440_000_000},
	{Name: "small.en", ExpectedMinSizeBytes: 440_000_000},
	{Name: "medium", ExpectedMinSizeBytes: 1_400_000_000},
	{Name: "medium.en", ExpectedMinSizeBytes: 1_400_000_000},
	{Name: "large-v3", ExpectedMinSizeBytes: 2_800_000_000},
	{Name: "large-v3-turbo", ExpectedMinSizeBytes: 1_500_000_000},
}

// Catalog returns a copy of the built-in model presets.
func Catalog() []Spec {
	out := make([]Spec, len(catalog))
	copy(out, catalog)
	return out
}

// DefaultSpec is the smallest and fastest variant.
func DefaultSpec() Spec {
	return catalog[0]
}

// Lookup resolves a variant by name.
func Lookup(name string) (Spec, error) {
	trimmed := strings.TrimSpace(name)
	for _, spec := range catalog {
		if spec.Name == trimmed {
			return spec, nil
		}
	}
	return Spec{}, fmt.Errorf("unknown model %q", name)
}
