package deflick

import (
	"math/rand"
	"runtime"
	"sync"
)

// SearchConfig controls one correspondence search.
type SearchConfig struct {
	// PatchSize is the full side length of the comparison patch. Must be a
	// positive odd integer.
	PatchSize int

	// Iterations is the number of propagation + random search rounds.
	Iterations int

	// Workers bounds the number of goroutines refining rows in parallel.
	// Zero means one per CPU.
	Workers int

	// Seed drives the random probe phase. Searches with the same seed on the
	// same input produce identical fields.
	Seed int64
}

// Searcher computes correspondence fields between frame pairs using
// iterative propagation plus randomized search. A Searcher is safe for
// sequential reuse across frame pairs; each Search call derives its own
// random state from the configured seed.
type Searcher struct {
	patch      int
	iterations int
	workers    int
	seed       int64
}

func NewSearcher(cfg SearchConfig) (*Searcher, error) {
	if cfg.PatchSize < 1 || cfg.PatchSize%2 == 0 {
		return nil, configErrorf("patch size must be a positive odd integer, got %d", cfg.PatchSize)
	}

	if cfg.Iterations < 1 {
		return nil, configErrorf("iteration count must be positive, got %d", cfg.Iterations)
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &Searcher{
		patch:      cfg.PatchSize,
		iterations: cfg.Iterations,
		workers:    workers,
		seed:       cfg.Seed,
	}, nil
}

// Search produces a correspondence field mapping every pixel of source to its
// best-matching location in reference. A non-nil warm field of matching
// dimensions seeds the search instead of the identity initialization.
//
// Iterations run strictly in sequence; within one iteration rows are refined
// in parallel against a read-only snapshot of the previous state, so the
// result does not depend on goroutine scheduling.
func (s *Searcher) Search(source, reference *Frame, warm *Field) (*Field, error) {
	if source.Channels != reference.Channels {
		return nil, configErrorf("source has %d channels, reference has %d", source.Channels, reference.Channels)
	}

	if reference.Width < s.patch || reference.Height < s.patch {
		return nil, configErrorf("reference frame %dx%d is smaller than one %dx%d patch",
			reference.Width, reference.Height, s.patch, s.patch)
	}

	cur := s.initField(source, reference, warm)
	next := NewField(source.Width, source.Height)

	for iter := 0; iter < s.iterations; iter++ {
		s.refine(source, reference, cur, next, iter)
		cur, next = next, cur
	}

	return cur, nil
}

// initField seeds every pixel, either from a prior result or with the
// identity offset, and computes the starting costs.
func (s *Searcher) initField(source, reference *Frame, warm *Field) *Field {
	f := NewField(source.Width, source.Height)
	warmOK := warm != nil && warm.Width == f.Width && warm.Height == f.Height

	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			i := y*f.Width + x
			var dx, dy int32
			if warmOK {
				dx, dy = warm.OffX[i], warm.OffY[i]
			}
			f.set(i, dx, dy, s.patchCost(source, reference, x, y, dx, dy))
		}
	}
	return f
}

// refine runs one propagation + random search round, reading cur and writing
// next. Scan direction alternates with the iteration parity.
func (s *Searcher) refine(source, reference *Frame, cur, next *Field, iter int) {
	rows := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < s.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for y := range rows {
				s.refineRow(source, reference, cur, next, iter, y)
			}
		}()
	}

	for y := 0; y < source.Height; y++ {
		rows <- y
	}
	close(rows)
	wg.Wait()
}

func (s *Searcher) refineRow(source, reference *Frame, cur, next *Field, iter, y int) {
	// Per-row random state keyed by iteration and row keeps the probe sequence
	// independent of which worker picks the row up.
	rng := rand.New(rand.NewSource(s.seed ^ int64(iter+1)*0x9e3779b9 ^ int64(y)<<17))
	forward := iter%2 == 0

	width := source.Width
	for step := 0; step < width; step++ {
		x := step
		if !forward {
			x = width - 1 - step
		}
		i := y*width + x

		bestDx, bestDy := cur.OffX[i], cur.OffY[i]
		bestCost := cur.Cost[i]

		// Propagation: adopt a neighbor's offset when it matches better
		// here. Neighbors come from the previous snapshot, upstream of the
		// current scan direction.
		nx, ny := x-1, y-1
		if !forward {
			nx, ny = x+1, y+1
		}
		if nx >= 0 && nx < width {
			j := y*width + nx
			bestDx, bestDy, bestCost = s.consider(source, reference, x, y, cur.OffX[j], cur.OffY[j], bestDx, bestDy, bestCost)
		}
		if ny >= 0 && ny < source.Height {
			j := ny*width + x
			bestDx, bestDy, bestCost = s.consider(source, reference, x, y, cur.OffX[j], cur.OffY[j], bestDx, bestDy, bestCost)
		}

		// Random search: probe a shrinking neighborhood around the current
		// best, radius halving each time.
		maxDim := reference.Width
		if reference.Height > maxDim {
			maxDim = reference.Height
		}
		for radius := maxDim / 2; radius >= 1; radius /= 2 {
			cdx := bestDx + int32(rng.Intn(2*radius+1)-radius)
			cdy := bestDy + int32(rng.Intn(2*radius+1)-radius)
			bestDx, bestDy, bestCost = s.consider(source, reference, x, y, cdx, cdy, bestDx, bestDy, bestCost)
		}

		next.set(i, bestDx, bestDy, bestCost)
	}
}

// consider evaluates a candidate offset and keeps it only on strict
// improvement; ties keep the existing offset.
func (s *Searcher) consider(source, reference *Frame, x, y int, cdx, cdy, bestDx, bestDy int32, bestCost float32) (int32, int32, float32) {
	if cdx == bestDx && cdy == bestDy {
		return bestDx, bestDy, bestCost
	}

	cost := s.patchCost(source, reference, x, y, cdx, cdy)
	if cost < bestCost {
		return cdx, cdy, cost
	}
	return bestDx, bestDy, bestCost
}

// patchCost is the mean absolute color difference over the patch footprint.
// Samples falling outside the source frame are not part of the footprint;
// a candidate whose footprint needs a reference sample outside the reference
// bounds is rejected outright with an infinite cost, never clamped.
func (s *Searcher) patchCost(source, reference *Frame, x int, y int, dx, dy int32) float32 {
	rx, ry := x+int(dx), y+int(dy)
	if rx < 0 || rx >= reference.Width || ry < 0 || ry >= reference.Height {
		return infCost
	}

	radius := s.patch / 2
	channels := source.Channels
	var acc float32
	var count int

	for v := -radius; v <= radius; v++ {
		sy := y + v
		if sy < 0 || sy >= source.Height {
			continue
		}

		for u := -radius; u <= radius; u++ {
			sx := x + u
			if sx < 0 || sx >= source.Width {
				continue
			}

			tx, ty := rx+u, ry+v
			if tx < 0 || tx >= reference.Width || ty < 0 || ty >= reference.Height {
				return infCost
			}

			si := source.index(sx, sy)
			ti := reference.index(tx, ty)
			for c := 0; c < channels; c++ {
				d := source.Pix[si+c] - reference.Pix[ti+c]
				if d < 0 {
					d = -d
				}
				acc += d
			}
			count++
		}
	}

	return acc / float32(count*channels)
}
