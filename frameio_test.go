package main

import (
	"context"
	"testing"

	"deflickarr/deflick"
)

func TestImageDirRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	frame := deflick.NewFrame(8, 6, 3)
	for i := range frame.Pix {
		frame.Pix[i] = float32((i * 7) % 256)
	}

	sink := NewImageDirSink(dir)
	if err := sink.Write(ctx, 0, frame); err != nil {
		t.Fatalf("Write: %v", err)
	}

	source := NewImageDirSource(dir, 1)
	if source.Len() != 1 {
		t.Fatalf("Len = %d, want 1", source.Len())
	}

	loaded, err := source.Frame(ctx, 0)
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}

	if loaded.Width != frame.Width || loaded.Height != frame.Height || loaded.Channels != 3 {
		t.Fatalf("shape = %dx%dx%d, want %dx%dx%d",
			loaded.Width, loaded.Height, loaded.Channels, frame.Width, frame.Height, 3)
	}

	want := frame.Bytes()
	got := loaded.Bytes()
	for i := range want {
		if want[i] != got[i] {
			t.Fatalf("pixel %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestImageDirSinkLastWritten(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	sink := NewImageDirSink(dir)

	if sink.LastWritten() != -1 {
		t.Fatalf("fresh sink LastWritten = %d, want -1", sink.LastWritten())
	}

	frame := deflick.NewFrame(4, 4, 3)
	for _, i := range []int{2, 0, 5} {
		if err := sink.Write(ctx, i, frame); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}

	if sink.LastWritten() != 5 {
		t.Fatalf("LastWritten = %d, want 5", sink.LastWritten())
	}
}

func TestImageDirSourceMissingFrame(t *testing.T) {
	source := NewImageDirSource(t.TempDir(), 3)

	if _, err := source.Frame(context.Background(), 0); err == nil {
		t.Fatal("expected error for missing frame file")
	}
}

func TestImageDirSinkNoTempLeftover(t *testing.T) {
	dir := t.TempDir()
	sink := NewImageDirSink(dir)

	frame := deflick.NewFrame(4, 4, 3)
	if err := sink.Write(context.Background(), 0, frame); err != nil {
		t.Fatalf("Write: %v", err)
	}

	count, err := countFrames(dir)
	if err != nil {
		t.Fatalf("countFrames: %v", err)
	}
	if count != 1 {
		t.Fatalf("frame files = %d, want 1", count)
	}
}
