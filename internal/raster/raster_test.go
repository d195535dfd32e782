package raster

import (
	"image"
	"image/color"
	"testing"
)

func TestNewFillsDefaults(t *testing.T) {
	r := New(Options{})
	if r.opts != DefaultOptions() {
		t.Errorf("zero options not filled: %+v", r.opts)
	}

	r = New(Options{DPI: 72, MaxPages: 3})
	if r.opts.DPI != 72 || r.opts.MaxPages != 3 {
		t.Errorf("explicit options overwritten: %+v", r.opts)
	}
	if r.opts.Quality != DefaultOptions().Quality {
		t.Errorf("unset quality not defaulted: %+v", r.opts)
	}
}

func TestClampDimensions(t *testing.T) {
	tests := []struct {
		name         string
		w, h, maxPx  int
		wantW, wantH int
	}{
		{name: "within bounds untouched", w: 800, h: 600, maxPx: 1500, wantW: 800, wantH: 600},
		{name: "wide image clamped", w: 3000, h: 1500, maxPx: 1500, wantW: 1500, wantH: 750},
		{name: "tall image clamped", w: 1000, h: 4000, maxPx: 1500, wantW: 375, wantH: 1500},
		{name: "square at limit untouched", w: 1500, h: 1500, maxPx: 1500, wantW: 1500, wantH: 1500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := image.NewRGBA(image.Rect(0, 0, tt.w, tt.h))
			got := clampDimensions(src, tt.maxPx).Bounds()
			if got.Dx() != tt.wantW || got.Dy() != tt.wantH {
				t.Errorf("clamped to %dx%d, want %dx%d", got.Dx(), got.Dy(), tt.wantW, tt.wantH)
			}
		})
	}
}

func TestEncodeBoundedWithinCeiling(t *testing.T) {
	// Noise-free gradients compress well; a tiny byte ceiling still forces
	// the quality ladder and the downscale fallback to run.
	img := image.NewRGBA(image.Rect(0, 0, 400, 400))
	for y := 0; y < 400; y++ {
		for x := 0; x < 400; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: uint8((x + y) % 256), A: 255})
		}
	}

	r := New(Options{MaxImageBytes: 1 << 20})
	data, err := r.encodeBounded(img)
	if err != nil {
		t.Fatalf("encodeBounded: %v", err)
	}
	if len(data) == 0 || len(data) > 1<<20 {
		t.Errorf("encoded size %d out of bounds", len(data))
	}
}

func TestFallbackScale(t *testing.T) {
	tests := []struct {
		name        string
		have, limit int
		want        float64
	}{
		{name: "four times over", have: 4_000_000, limit: 1_000_000, want: 0.5},
		{name: "slightly over capped", have: 110, limit: 100, want: 0.9},
		{name: "far over", have: 1_000_000, limit: 10_000, want: 0.1},
		{name: "zero have", have: 0, limit: 100, want: 0.5},
		{name: "zero limit", have: 100, limit: 0, want: 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fallbackScale(tt.have, tt.limit)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("fallbackScale(%d, %d) = %f, want %f", tt.have, tt.limit, got, tt.want)
			}
		})
	}
}

func TestEncodeBoundedImpossibleCeiling(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 600, 600))
	for y := 0; y < 600; y++ {
		for x := 0; x < 600; x++ {
			// Pseudo-noise defeats JPEG compression.
			img.Set(x, y, color.RGBA{R: uint8(x * y % 251), G: uint8(x * 7 % 253), B: uint8(y * 13 % 255), A: 255})
		}
	}

	r := New(Options{MaxImageBytes: 64})
	if _, err := r.encodeBounded(img); err == nil {
		t.Error("want error when image cannot fit the byte ceiling")
	}
}

// grayPage builds a white page with dark rectangles painted on.
func grayPage(w, h int, boxes []image.Rectangle) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	for _, b := range boxes {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				img.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return img
}

func TestDominantComponentRatio(t *testing.T) {
	// One huge block covering most of the page, like a full-page scan.
	scan := grayPage(200, 200, []image.Rectangle{image.Rect(10, 10, 190, 190)})
	if ratio := dominantComponentRatio(scan); ratio < dominanceRatio {
		t.Errorf("scan-like page ratio %f, want >= %f", ratio, dominanceRatio)
	}

	// Many small blocks, like lines of text.
	var lines []image.Rectangle
	for y := 10; y < 190; y += 20 {
		lines = append(lines, image.Rect(10, y, 190, y+8))
	}
	text := grayPage(200, 200, lines)
	if ratio := dominantComponentRatio(text); ratio >= dominanceRatio {
		t.Errorf("text-like page ratio %f, want < %f", ratio, dominanceRatio)
	}

	// Blank page has no components at all.
	blank := grayPage(200, 200, nil)
	if ratio := dominantComponentRatio(blank); ratio != 0 {
		t.Errorf("blank page ratio %f, want 0", ratio)
	}
}

func TestConnectedComponentsFiltersNoise(t *testing.T) {
	page := grayPage(100, 100, []image.Rectangle{
		image.Rect(5, 5, 50, 50),   // 2025 px, kept
		image.Rect(90, 90, 95, 95), // 25 px, noise
	})
	comps := connectedComponents(binarize(page, binaryThreshold), minComponentPixels)
	if len(comps) != 1 {
		t.Fatalf("components = %d, want 1", len(comps))
	}
	if comps[0].width != 45 || comps[0].height != 45 {
		t.Errorf("component %dx%d, want 45x45", comps[0].width, comps[0].height)
	}
}
