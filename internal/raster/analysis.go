package raster

import (
	"image"
	"image/color"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"
)

const (
	analysisDPI = 96.0

	// Pixels darker than this count as content when binarizing.
	binaryThreshold = 200

	// Components smaller than this are treated as noise.
	minComponentPixels = 100

	// A page whose largest content component covers at least this fraction
	// of its area is treated as image-dominated.
	dominanceRatio = 0.45
)

// LooksImageOnly samples the first few pages and reports whether the
// document is dominated by large graphic regions rather than text. The
// pipeline uses it to route scanned documents straight to rendering.
func (r *Renderer) LooksImageOnly(pdfData []byte, samplePages int) bool {
	return looksImageOnly(pdfData, samplePages)
}

func looksImageOnly(pdfData []byte, samplePages int) bool {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return false
	}
	defer doc.Close()

	total := doc.NumPage()
	if total == 0 {
		return false
	}
	if samplePages <= 0 || samplePages > total {
		samplePages = total
	}

	dominated := 0
	for i := 0; i < samplePages; i++ {
		img, err := doc.ImageDPI(i, analysisDPI)
		if err != nil {
			continue
		}
		ratio := dominantComponentRatio(img)
		log.Debug().Int("page", i+1).Float64("ratio", ratio).Msg("Page content analysis")
		if ratio >= dominanceRatio {
			dominated++
		}
	}
	return dominated*2 > samplePages
}

// dominantComponentRatio binarizes the page and returns the bounding-box
// area of the largest connected content component as a fraction of the page
// area. Text pages produce many small components; scans produce one huge one.
func dominantComponentRatio(img image.Image) float64 {
	binary := binarize(img, binaryThreshold)
	components := connectedComponents(binary, minComponentPixels)

	bounds := binary.Bounds()
	pageArea := bounds.Dx() * bounds.Dy()
	if pageArea == 0 {
		return 0
	}

	largest := 0
	for _, c := range components {
		if area := c.width * c.height; area > largest {
			largest = area
		}
	}
	return float64(largest) / float64(pageArea)
}

type component struct {
	minX, minY, maxX, maxY int
	width, height          int
	pixels                 int
}

// binarize converts to grayscale and thresholds in one pass: content pixels
// become 0, background 255.
func binarize(img image.Image, threshold uint8) *image.Gray {
	bounds := img.Bounds()
	out := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			if g.Y < threshold {
				out.SetGray(x, y, color.Gray{Y: 0})
			} else {
				out.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return out
}

func connectedComponents(img *image.Gray, minPixels int) []component {
	bounds := img.Bounds()
	visited := make([][]bool, bounds.Dy())
	for i := range visited {
		visited[i] = make([]bool, bounds.Dx())
	}

	var out []component
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if visited[y-bounds.Min.Y][x-bounds.Min.X] || img.GrayAt(x, y).Y == 255 {
				continue
			}
			c := floodFill(img, visited, x, y, bounds)
			if c.pixels >= minPixels {
				out = append(out, c)
			}
		}
	}
	return out
}

// floodFill is iterative; recursion overflows on full-page scans.
func floodFill(img *image.Gray, visited [][]bool, startX, startY int, bounds image.Rectangle) component {
	c := component{minX: startX, minY: startY, maxX: startX, maxY: startY}
	stack := []image.Point{{X: startX, Y: startY}}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.X < bounds.Min.X || p.X >= bounds.Max.X || p.Y < bounds.Min.Y || p.Y >= bounds.Max.Y {
			continue
		}
		if visited[p.Y-bounds.Min.Y][p.X-bounds.Min.X] || img.GrayAt(p.X, p.Y).Y == 255 {
			continue
		}
		visited[p.Y-bounds.Min.Y][p.X-bounds.Min.X] = true
		c.pixels++

		if p.X < c.minX {
			c.minX = p.X
		}
		if p.X > c.maxX {
			c.maxX = p.X
		}
		if p.Y < c.minY {
			c.minY = p.Y
		}
		if p.Y > c.maxY {
			c.maxY = p.Y
		}

		stack = append(stack,
			image.Point{X: p.X + 1, Y: p.Y},
			image.Point{X: p.X - 1, Y: p.Y},
			image.Point{X: p.X, Y: p.Y + 1},
			image.Point{X: p.X, Y: p.Y - 1},
		)
	}

	c.width = c.maxX - c.minX + 1
	c.height = c.maxY - c.minY + 1
	return c
}
