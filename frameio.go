package main

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path"
	"sync"

	"deflickarr/deflick"
)

// ImageDirSource reads frames from a folder of numbered pngs written by
// ExtractFrames. Frame numbering starts at 1 to match ffmpeg's %06d output.
type ImageDirSource struct {
	dir   string
	count int
}

func NewImageDirSource(dir string, count int) *ImageDirSource {
	return &ImageDirSource{dir: dir, count: count}
}

func (s *ImageDirSource) Len() int {
	return s.count
}

func (s *ImageDirSource) Frame(ctx context.Context, i int) (*deflick.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(path.Join(s.dir, fmt.Sprintf("%06d.png", i+1)))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, err := png.Decode(file)
	if err != nil {
		return nil, err
	}

	return frameFromImage(img), nil
}

func frameFromImage(img image.Image) *deflick.Frame {
	bounds := img.Bounds()
	frame := deflick.NewFrame(bounds.Dx(), bounds.Dy(), 3)

	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			frame.Pix[i] = float32(r >> 8)
			frame.Pix[i+1] = float32(g >> 8)
			frame.Pix[i+2] = float32(b >> 8)
			i += 3
		}
	}

	return frame
}

// ImageDirSink writes deflickered frames as numbered pngs. Writes go through
// a temp file and a rename so an interrupted write never leaves a bad frame
// for a resumed run to pick up.
type ImageDirSink struct {
	dir  string
	lock sync.Mutex
	last int
}

func NewImageDirSink(dir string) *ImageDirSink {
	return &ImageDirSink{dir: dir, last: -1}
}

func (s *ImageDirSink) Write(ctx context.Context, i int, frame *deflick.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	img := imageFromFrame(frame)
	target := path.Join(s.dir, fmt.Sprintf("%06d.png", i+1))
	tmp := target + ".tmp"

	file, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if err := png.Encode(file, img); err != nil {
		file.Close()
		os.Remove(tmp)
		return err
	}

	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, target); err != nil {
		return err
	}

	s.lock.Lock()
	if i > s.last {
		s.last = i
	}
	s.lock.Unlock()
	return nil
}

// LastWritten returns the highest frame index written so far, or -1.
func (s *ImageDirSink) LastWritten() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.last
}

func imageFromFrame(frame *deflick.Frame) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, frame.Width, frame.Height))
	bytes := frame.Bytes()

	i := 0
	for y := 0; y < frame.Height; y++ {
		for x := 0; x < frame.Width; x++ {
			var r, g, b uint8
			switch frame.Channels {
			case 1:
				r, g, b = bytes[i], bytes[i], bytes[i]
			default:
				r, g, b = bytes[i], bytes[i+1], bytes[i+2]
			}

			img.SetRGBA(x, y, color.RGBA{R: r, G: g, B: b, A: 255})
			i += frame.Channels
		}
	}

	return img
}
