package deflick

import "strings"

// Mode names a memory/quality/time tradeoff profile.
type Mode string

const (
	// ModeFast runs few iterations and keeps the whole sequence resident.
	ModeFast Mode = "fast"
	// ModeBalanced runs more iterations and loads frames per batch.
	ModeBalanced Mode = "balanced"
	// ModeAccurate adds extra warm-started refinement passes on top of
	// ModeBalanced's memory strategy.
	ModeAccurate Mode = "accurate"
)

// ParseMode maps a configuration string onto a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeFast:
		return ModeFast, nil
	case ModeBalanced:
		return ModeBalanced, nil
	case ModeAccurate:
		return ModeAccurate, nil
	}
	return "", configErrorf("unknown mode %q (want fast, balanced or accurate)", s)
}

// Params is the concrete parameter set a mode expands to.
type Params struct {
	// Iterations is the propagation + random search round count per
	// correspondence field.
	Iterations int

	// RefinePasses is the number of extra warm-started search passes run on
	// top of the initial one.
	RefinePasses int

	// PreloadAll keeps every frame of the sequence resident instead of
	// loading and evicting per batch.
	PreloadAll bool

	// PatchSize is the comparison patch side length.
	PatchSize int
}

// ModeParams expands a mode plus resolution hints into concrete parameters.
// It is a pure function: no I/O, no side effects. Width and height may be
// zero when no resolution is known yet.
func ModeParams(mode Mode, width, height int) (Params, error) {
	// Larger patches hold up better at high resolutions.
	patch := 5
	if width >= 1080 && height >= 1080 || width >= 1920 || height >= 1920 {
		patch = 7
	}

	switch mode {
	case ModeFast:
		return Params{Iterations: 3, PreloadAll: true, PatchSize: patch}, nil
	case ModeBalanced:
		return Params{Iterations: 5, PatchSize: patch}, nil
	case ModeAccurate:
		return Params{Iterations: 10, RefinePasses: 1, PatchSize: patch}, nil
	}
	return Params{}, configErrorf("unknown mode %q (want fast, balanced or accurate)", string(mode))
}
