// Package raster renders PDF pages to size-bounded JPEG images suitable for
// vision model requests.
package raster

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"

	"github.com/local/docextract/internal/extract"
	"github.com/local/docextract/internal/metrics"
)

// Options bound the rendered output. Vision APIs reject oversized payloads,
// so every page is clamped both in pixels and in encoded bytes.
type Options struct {
	DPI             float64
	MaxPages        int
	MaxDimensionPx  int
	MaxImageBytes   int
	Quality         int
	FallbackQuality int
	MinQuality      int
}

// DefaultOptions returns the production rendering bounds.
func DefaultOptions() Options {
	return Options{
		DPI:             150,
		MaxPages:        10,
		MaxDimensionPx:  1500,
		MaxImageBytes:   4_500_000,
		Quality:         85,
		FallbackQuality: 60,
		MinQuality:      30,
	}
}

// Renderer renders documents with go-fitz.
type Renderer struct {
	opts Options
}

// New builds a renderer, filling zero option fields from DefaultOptions.
func New(opts Options) *Renderer {
	def := DefaultOptions()
	if opts.DPI <= 0 {
		opts.DPI = def.DPI
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = def.MaxPages
	}
	if opts.MaxDimensionPx <= 0 {
		opts.MaxDimensionPx = def.MaxDimensionPx
	}
	if opts.MaxImageBytes <= 0 {
		opts.MaxImageBytes = def.MaxImageBytes
	}
	if opts.Quality <= 0 {
		opts.Quality = def.Quality
	}
	if opts.FallbackQuality <= 0 {
		opts.FallbackQuality = def.FallbackQuality
	}
	if opts.MinQuality <= 0 {
		opts.MinQuality = def.MinQuality
	}
	return &Renderer{opts: opts}
}

// Render rasterizes up to MaxPages pages. Pages that fail to render or
// encode are skipped rather than failing the document; the error return is
// reserved for documents that yield no pages at all.
func (r *Renderer) Render(ctx context.Context, pdfData []byte, progress extract.Progress) ([]extract.PageImage, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("open pdf for rendering: %w", err)
	}
	defer doc.Close()

	total := doc.NumPage()
	if total == 0 {
		return nil, fmt.Errorf("document has no pages")
	}
	limit := total
	if limit > r.opts.MaxPages {
		log.Info().Int("pages", total).Int("cap", r.opts.MaxPages).Msg("Capping rendered pages")
		limit = r.opts.MaxPages
	}

	var pages []extract.PageImage
	for i := 0; i < limit; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if progress != nil {
			progress(fmt.Sprintf("Converting page %d of %d", i+1, limit))
		}
		img, err := doc.ImageDPI(i, r.opts.DPI)
		if err != nil {
			log.Warn().Err(err).Int("page", i+1).Msg("Page render failed, skipping")
			continue
		}
		encoded, err := r.encodeBounded(clampDimensions(img, r.opts.MaxDimensionPx))
		if err != nil {
			log.Warn().Err(err).Int("page", i+1).Msg("Page encode failed, skipping")
			continue
		}
		pages = append(pages, extract.PageImage{PageNumber: i + 1, Bytes: encoded, MIMEType: "image/jpeg"})
		metrics.RecordPageRendered()
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages could be rendered")
	}
	return pages, nil
}

// encodeBounded encodes to JPEG under the byte ceiling, first by stepping
// quality down, then with one proportional downscale at fallback quality.
func (r *Renderer) encodeBounded(img image.Image) ([]byte, error) {
	var last []byte
	for q := r.opts.Quality; q >= r.opts.MinQuality; q -= 10 {
		data, err := encodeJPEG(img, q)
		if err != nil {
			return nil, err
		}
		if len(data) <= r.opts.MaxImageBytes {
			return data, nil
		}
		last = data
	}

	// Encoded size tracks pixel area, so shrink both dimensions by the
	// square root of the remaining overshoot.
	scale := fallbackScale(len(last), r.opts.MaxImageBytes)
	bounds := img.Bounds()
	small := scaleTo(img, int(float64(bounds.Dx())*scale), int(float64(bounds.Dy())*scale))
	data, err := encodeJPEG(small, r.opts.FallbackQuality)
	if err != nil {
		return nil, err
	}
	if len(data) > r.opts.MaxImageBytes {
		return nil, fmt.Errorf("page image exceeds %d bytes even after downscale", r.opts.MaxImageBytes)
	}
	return data, nil
}

// fallbackScale converts a byte overshoot into a per-dimension scale factor,
// capped so the retry always shrinks meaningfully. The fallback re-encode
// runs at a higher quality than the last attempt, so the cap also buys
// headroom for the size that adds back.
func fallbackScale(have, limit int) float64 {
	if have <= 0 || limit <= 0 {
		return 0.5
	}
	s := math.Sqrt(float64(limit) / float64(have))
	if s > 0.9 {
		s = 0.9
	}
	return s
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// clampDimensions downscales proportionally so neither dimension exceeds
// maxPx. Images already within bounds pass through unchanged.
func clampDimensions(img image.Image, maxPx int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxPx && h <= maxPx {
		return img
	}
	if w >= h {
		h = h * maxPx / w
		w = maxPx
	} else {
		w = w * maxPx / h
		h = maxPx
	}
	return scaleTo(img, w, h)
}

func scaleTo(img image.Image, w, h int) image.Image {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}
