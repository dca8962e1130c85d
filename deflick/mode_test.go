package deflick

import (
	"errors"
	"testing"
)

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{
		"fast":     ModeFast,
		"Balanced": ModeBalanced,
		"ACCURATE": ModeAccurate,
		" fast ":   ModeFast,
	}

	for in, want := range cases {
		got, err := ParseMode(in)
		if err != nil {
			t.Fatalf("ParseMode(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseMode(%q) = %q, want %q", in, got, want)
		}
	}

	_, err := ParseMode("turbo")
	if err == nil {
		t.Fatal("expected error for unknown mode")
	}
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %T", err)
	}
}

func TestModeParamsProfiles(t *testing.T) {
	fast, err := ModeParams(ModeFast, 640, 480)
	if err != nil {
		t.Fatal(err)
	}
	if fast.Iterations != 3 || !fast.PreloadAll || fast.RefinePasses != 0 {
		t.Fatalf("unexpected fast params: %+v", fast)
	}

	balanced, err := ModeParams(ModeBalanced, 640, 480)
	if err != nil {
		t.Fatal(err)
	}
	if balanced.Iterations != 5 || balanced.PreloadAll || balanced.RefinePasses != 0 {
		t.Fatalf("unexpected balanced params: %+v", balanced)
	}

	accurate, err := ModeParams(ModeAccurate, 640, 480)
	if err != nil {
		t.Fatal(err)
	}
	if accurate.Iterations != 10 || accurate.PreloadAll || accurate.RefinePasses != 1 {
		t.Fatalf("unexpected accurate params: %+v", accurate)
	}

	if fast.Iterations >= balanced.Iterations || balanced.Iterations >= accurate.Iterations {
		t.Fatal("iteration counts should increase from fast to accurate")
	}
}

func TestModeParamsResolutionHint(t *testing.T) {
	sd, err := ModeParams(ModeBalanced, 640, 480)
	if err != nil {
		t.Fatal(err)
	}

	hd, err := ModeParams(ModeBalanced, 1920, 1080)
	if err != nil {
		t.Fatal(err)
	}

	if hd.PatchSize <= sd.PatchSize {
		t.Fatalf("HD patch size %d should exceed SD patch size %d", hd.PatchSize, sd.PatchSize)
	}

	if sd.PatchSize%2 == 0 || hd.PatchSize%2 == 0 {
		t.Fatal("patch sizes must stay odd")
	}
}

func TestModeParamsUnknownMode(t *testing.T) {
	if _, err := ModeParams(Mode("warp"), 0, 0); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
