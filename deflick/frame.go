package deflick

import "fmt"

// Frame is a height x width x channels grid of color samples. Frames handed
// to the engine are treated as read-only for the duration of a run.
type Frame struct {
	Width    int
	Height   int
	Channels int
	Pix      []float32
}

// NewFrame allocates a zeroed frame.
func NewFrame(width, height, channels int) *Frame {
	return &Frame{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]float32, width*height*channels),
	}
}

// FrameFromBytes builds a frame from packed interleaved 8-bit samples, the
// layout ffmpeg emits for rawvideo rgb24 and gray pipes.
func FrameFromBytes(data []byte, width, height, channels int) (*Frame, error) {
	if width <= 0 || height <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid frame geometry %dx%dx%d", width, height, channels)
	}

	if len(data) != width*height*channels {
		return nil, fmt.Errorf("frame buffer has %d bytes, want %d", len(data), width*height*channels)
	}

	f := NewFrame(width, height, channels)
	for i, b := range data {
		f.Pix[i] = float32(b)
	}
	return f, nil
}

// Bytes packs the frame back into interleaved 8-bit samples, clamping and
// rounding each value.
func (f *Frame) Bytes() []byte {
	out := make([]byte, len(f.Pix))
	for i, v := range f.Pix {
		r := v + 0.5
		if r < 0 {
			r = 0
		} else if r > 255 {
			r = 255
		}
		out[i] = byte(r)
	}
	return out
}

func (f *Frame) Clone() *Frame {
	c := NewFrame(f.Width, f.Height, f.Channels)
	copy(c.Pix, f.Pix)
	return c
}

// SameShape reports whether two frames share resolution and channel count.
func (f *Frame) SameShape(o *Frame) bool {
	return f.Width == o.Width && f.Height == o.Height && f.Channels == o.Channels
}

func (f *Frame) index(x, y int) int {
	return (y*f.Width + x) * f.Channels
}
