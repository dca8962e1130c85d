package deflick

import "math"

var infCost = float32(math.Inf(1))

// Field is a dense correspondence map: for every pixel of a source frame it
// holds an offset vector into a reference frame and the matching cost of that
// offset (lower is better). Every coordinate has exactly one entry; a cost of
// +Inf marks a pixel with no valid correspondence.
type Field struct {
	Width  int
	Height int
	OffX   []int32
	OffY   []int32
	Cost   []float32
}

// NewField allocates a field with zero offsets and infinite costs.
func NewField(width, height int) *Field {
	n := width * height
	f := &Field{
		Width:  width,
		Height: height,
		OffX:   make([]int32, n),
		OffY:   make([]int32, n),
		Cost:   make([]float32, n),
	}
	for i := range f.Cost {
		f.Cost[i] = infCost
	}
	return f
}

// IdentityField maps every pixel onto itself at zero cost. It is the
// correspondence of a frame with itself.
func IdentityField(width, height int) *Field {
	n := width * height
	return &Field{
		Width:  width,
		Height: height,
		OffX:   make([]int32, n),
		OffY:   make([]int32, n),
		Cost:   make([]float32, n),
	}
}

func (f *Field) Clone() *Field {
	c := &Field{
		Width:  f.Width,
		Height: f.Height,
		OffX:   make([]int32, len(f.OffX)),
		OffY:   make([]int32, len(f.OffY)),
		Cost:   make([]float32, len(f.Cost)),
	}
	copy(c.OffX, f.OffX)
	copy(c.OffY, f.OffY)
	copy(c.Cost, f.Cost)
	return c
}

// CopyFrom overwrites f with the contents of o. The two fields must have the
// same dimensions.
func (f *Field) CopyFrom(o *Field) {
	copy(f.OffX, o.OffX)
	copy(f.OffY, o.OffY)
	copy(f.Cost, o.Cost)
}

// At returns the offset vector and cost stored for pixel (x, y).
func (f *Field) At(x, y int) (dx, dy int32, cost float32) {
	i := y*f.Width + x
	return f.OffX[i], f.OffY[i], f.Cost[i]
}

func (f *Field) set(i int, dx, dy int32, cost float32) {
	f.OffX[i] = dx
	f.OffY[i] = dy
	f.Cost[i] = cost
}
