package deflick

import (
	"fmt"
	"math"
)

// WeightFunc maps a correspondence cost and a temporal distance in frames to
// a non-negative blending weight. Lower cost and smaller distance should give
// higher weight. An infinite cost must map to weight zero.
type WeightFunc func(cost float64, distance int) float64

// DefaultWeight returns the stock weighting function,
//
//	exp(-cost/guideWeight) / (1 + |distance|)
//
// which decays exponentially with matching cost and hyperbolically with
// temporal distance from the target frame.
func DefaultWeight(guideWeight float64) WeightFunc {
	if guideWeight <= 0 {
		guideWeight = DefaultGuideWeight
	}

	return func(cost float64, distance int) float64 {
		if math.IsInf(cost, 1) {
			return 0
		}

		if distance < 0 {
			distance = -distance
		}
		return math.Exp(-cost/guideWeight) / float64(1+distance)
	}
}

// DefaultGuideWeight is the cost scale of DefaultWeight.
const DefaultGuideWeight = 10.0

// Window returns the ordered frame indices consulted when blending target,
// clamped so the window never leaves [0, total).
func Window(target, size, total int) []int {
	if size > total {
		size = total
	}

	lo := target - size/2
	if lo < 0 {
		lo = 0
	}
	if lo+size > total {
		lo = total - size
	}

	win := make([]int, size)
	for i := range win {
		win[i] = lo + i
	}
	return win
}

// Contribution is one window member's vote for the blended output: the
// neighbor frame plus the correspondence field mapping the target's pixels
// into it.
type Contribution struct {
	Frame    *Frame
	Field    *Field
	Distance int
}

// Blender combines window correspondences into one output frame.
type Blender struct {
	weight WeightFunc
}

func NewBlender(weight WeightFunc) *Blender {
	if weight == nil {
		weight = DefaultWeight(DefaultGuideWeight)
	}
	return &Blender{weight: weight}
}

// Blend produces the weighted per-pixel consensus of the contributions.
// Weights are normalized to sum to one per pixel; a pixel with no valid
// correspondence anywhere in the window keeps its original value. The output
// always has the target's resolution and channel count.
func (b *Blender) Blend(target *Frame, contribs []Contribution) (*Frame, error) {
	for _, c := range contribs {
		if !c.Frame.SameShape(target) {
			return nil, fmt.Errorf("contribution frame %dx%dx%d does not match target %dx%dx%d",
				c.Frame.Width, c.Frame.Height, c.Frame.Channels, target.Width, target.Height, target.Channels)
		}

		if c.Field.Width != target.Width || c.Field.Height != target.Height {
			return nil, fmt.Errorf("correspondence field %dx%d does not match target %dx%d",
				c.Field.Width, c.Field.Height, target.Width, target.Height)
		}
	}

	out := NewFrame(target.Width, target.Height, target.Channels)
	channels := target.Channels
	accum := make([]float64, channels)

	for y := 0; y < target.Height; y++ {
		for x := 0; x < target.Width; x++ {
			var total float64
			for c := range accum {
				accum[c] = 0
			}

			for _, contrib := range contribs {
				dx, dy, cost := contrib.Field.At(x, y)
				w := b.weight(float64(cost), contrib.Distance)
				if w <= 0 {
					continue
				}

				ri := contrib.Frame.index(x+int(dx), y+int(dy))
				for c := 0; c < channels; c++ {
					accum[c] += w * float64(contrib.Frame.Pix[ri+c])
				}
				total += w
			}

			oi := out.index(x, y)
			if total == 0 {
				// No valid correspondence anywhere: pass the original
				// pixel through unchanged.
				ti := target.index(x, y)
				for c := 0; c < channels; c++ {
					out.Pix[oi+c] = target.Pix[ti+c]
				}
				continue
			}

			for c := 0; c < channels; c++ {
				out.Pix[oi+c] = float32(accum[c] / total)
			}
		}
	}

	return out, nil
}
