package deflick

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func noiseFrame(t *testing.T, width, height, channels int, seed int64) *Frame {
	t.Helper()

	rng := rand.New(rand.NewSource(seed))
	f := NewFrame(width, height, channels)
	for i := range f.Pix {
		f.Pix[i] = float32(rng.Intn(256))
	}
	return f
}

func TestNewSearcherValidation(t *testing.T) {
	cases := []SearchConfig{
		{PatchSize: 4, Iterations: 3},
		{PatchSize: 0, Iterations: 3},
		{PatchSize: -5, Iterations: 3},
		{PatchSize: 5, Iterations: 0},
	}

	for _, cfg := range cases {
		_, err := NewSearcher(cfg)
		if err == nil {
			t.Fatalf("expected error for config %+v", cfg)
		}
		var ce *ConfigError
		if !errors.As(err, &ce) {
			t.Fatalf("expected ConfigError for config %+v, got %T", cfg, err)
		}
	}

	if _, err := NewSearcher(SearchConfig{PatchSize: 5, Iterations: 3}); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestSearchReferenceSmallerThanPatch(t *testing.T) {
	s, err := NewSearcher(SearchConfig{PatchSize: 7, Iterations: 1})
	if err != nil {
		t.Fatal(err)
	}

	src := noiseFrame(t, 16, 16, 1, 1)
	ref := noiseFrame(t, 4, 4, 1, 2)
	_, err = s.Search(src, ref, nil)
	if err == nil {
		t.Fatal("expected error for reference smaller than one patch")
	}

	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %T: %v", err, err)
	}
}

func TestSearchIdenticalFramesConvergesToZero(t *testing.T) {
	s, err := NewSearcher(SearchConfig{PatchSize: 5, Iterations: 3, Seed: 11})
	if err != nil {
		t.Fatal(err)
	}

	src := noiseFrame(t, 32, 32, 3, 3)
	field, err := s.Search(src, src.Clone(), nil)
	if err != nil {
		t.Fatal(err)
	}

	for i, c := range field.Cost {
		if c != 0 {
			t.Fatalf("pixel %d: cost %g, want 0 on a static pair", i, c)
		}
	}
}

func TestSearchRecoversUniformShift(t *testing.T) {
	const shiftX, shiftY = 3, 2

	src := noiseFrame(t, 64, 64, 1, 4)
	ref := NewFrame(64, 64, 1)
	// ref carries src's content displaced by (shiftX, shiftY); uncovered
	// border pixels get values outside the source range.
	for i := range ref.Pix {
		ref.Pix[i] = -1000
	}
	for y := 0; y < src.Height; y++ {
		for x := 0; x < src.Width; x++ {
			tx, ty := x+shiftX, y+shiftY
			if tx < ref.Width && ty < ref.Height {
				ref.Pix[ref.index(tx, ty)] = src.Pix[src.index(x, y)]
			}
		}
	}

	s, err := NewSearcher(SearchConfig{PatchSize: 5, Iterations: 8, Seed: 5})
	if err != nil {
		t.Fatal(err)
	}

	field, err := s.Search(src, ref, nil)
	if err != nil {
		t.Fatal(err)
	}

	exact := 0
	count := 0
	var costSum float64
	for y := 8; y < src.Height-8; y++ {
		for x := 8; x < src.Width-8; x++ {
			dx, dy, cost := field.At(x, y)
			count++
			costSum += float64(cost)
			if dx == shiftX && dy == shiftY {
				exact++
			}
		}
	}

	if exact*2 < count {
		t.Fatalf("only %d of %d interior pixels found the true offset", exact, count)
	}
	if mean := costSum / float64(count); mean > 1.0 {
		t.Fatalf("interior mean cost %g, want near zero", mean)
	}
}

func TestSearchDeterministicForSeed(t *testing.T) {
	src := noiseFrame(t, 24, 24, 3, 6)
	ref := noiseFrame(t, 24, 24, 3, 7)

	run := func() *Field {
		s, err := NewSearcher(SearchConfig{PatchSize: 5, Iterations: 4, Seed: 99, Workers: 4})
		if err != nil {
			t.Fatal(err)
		}
		field, err := s.Search(src, ref, nil)
		if err != nil {
			t.Fatal(err)
		}
		return field
	}

	a, b := run(), run()
	for i := range a.Cost {
		if a.OffX[i] != b.OffX[i] || a.OffY[i] != b.OffY[i] || a.Cost[i] != b.Cost[i] {
			t.Fatalf("pixel %d differs between identical runs: (%d,%d,%g) vs (%d,%d,%g)",
				i, a.OffX[i], a.OffY[i], a.Cost[i], b.OffX[i], b.OffY[i], b.Cost[i])
		}
	}
}

func TestSearchWarmStartNeverIncreasesCost(t *testing.T) {
	src := noiseFrame(t, 24, 24, 1, 8)
	ref := noiseFrame(t, 24, 24, 1, 9)

	s, err := NewSearcher(SearchConfig{PatchSize: 3, Iterations: 1, Seed: 21})
	if err != nil {
		t.Fatal(err)
	}

	field, err := s.Search(src, ref, nil)
	if err != nil {
		t.Fatal(err)
	}

	for round := 0; round < 5; round++ {
		refined, err := s.Search(src, ref, field)
		if err != nil {
			t.Fatal(err)
		}

		for i := range refined.Cost {
			if refined.Cost[i] > field.Cost[i] {
				t.Fatalf("round %d pixel %d: cost rose from %g to %g", round, i, field.Cost[i], refined.Cost[i])
			}
		}
		field = refined
	}
}

func TestSearchOffsetsStayInBounds(t *testing.T) {
	src := noiseFrame(t, 20, 28, 3, 10)
	ref := noiseFrame(t, 20, 28, 3, 11)

	s, err := NewSearcher(SearchConfig{PatchSize: 5, Iterations: 4, Seed: 33})
	if err != nil {
		t.Fatal(err)
	}

	field, err := s.Search(src, ref, nil)
	if err != nil {
		t.Fatal(err)
	}

	for y := 0; y < src.Height; y++ {
		for x := 0; x < src.Width; x++ {
			dx, dy, cost := field.At(x, y)
			if math.IsInf(float64(cost), 1) {
				continue
			}
			rx, ry := x+int(dx), y+int(dy)
			if rx < 0 || rx >= ref.Width || ry < 0 || ry >= ref.Height {
				t.Fatalf("pixel (%d,%d) maps outside the reference: offset (%d,%d)", x, y, dx, dy)
			}
		}
	}
}
