package imageproc

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/stylegans/stylegans/ml"
)

const (
	ResizeBilinear = iota
	ResizeNearestNeighbor
	ResizeApproxBilinear
	ResizeCatmullrom
)

// Batch holds N generated images laid out as [N, H, W, 3] bytes in RGB
// order.
type Batch struct {
	N, Height, Width int
	Pix              []uint8
}

func NewBatch(n, height, width int) *Batch {
	return &Batch{N: n, Height: height, Width: width, Pix: make([]uint8, n*height*width*3)}
}

// Image returns the pixels of image i.
func (b *Batch) Image(i int) []uint8 {
	n := b.Height * b.Width * 3
	return b.Pix[i*n:][:n]
}

// Put quantizes t, laid out as [3, H, W] with values nominally in [-1, 1],
// into slot i.
func (b *Batch) Put(i int, t *ml.Tensor) error {
	if t.Rank() != 3 || t.Dim(0) != 3 || t.Dim(1) != b.Height || t.Dim(2) != b.Width {
		return fmt.Errorf("image %d has shape %v, want [3 %d %d]", i, t.Shape(), b.Height, b.Width)
	}

	if i < 0 || i >= b.N {
		return fmt.Errorf("image %d out of range [0, %d)", i, b.N)
	}

	plane := b.Height * b.Width
	src, dst := t.Data(), b.Image(i)
	for p := range plane {
		for c := range 3 {
			dst[p*3+c] = Quantize(src[c*plane+p])
		}
	}

	return nil
}

// Quantize clamps v to [-1, 1] and maps it to [0, 255], truncating the
// fraction.
func Quantize(v float32) uint8 {
	v = min(max(v, -1), 1)
	return uint8((v + 1) / 2 * 255)
}

// Canvas is a single H x W x 3 image in BGR order.
type Canvas struct {
	Height, Width int
	Pix           []uint8
}

// Tile arranges the first rows*cols images of b on a grid, filling cells
// row by row. Channels are reversed on the way so the canvas is BGR.
func Tile(b *Batch, rows, cols int) *Canvas {
	h, w := b.Height, b.Width
	c := &Canvas{Height: rows * h, Width: cols * w, Pix: make([]uint8, rows*h*cols*w*3)}

	for i := range min(b.N, rows*cols) {
		src := b.Image(i)
		top, left := i/cols*h, i%cols*w
		for y := range h {
			row := c.Pix[((top+y)*c.Width+left)*3:][:w*3]
			for x := range w {
				s := src[(y*w+x)*3:][:3]
				row[x*3], row[x*3+1], row[x*3+2] = s[2], s[1], s[0]
			}
		}
	}

	return c
}

// Image interprets the canvas as BGR and returns it as an RGBA image.
func (c *Canvas) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, c.Width, c.Height))
	for i := range c.Width * c.Height {
		img.Pix[i*4] = c.Pix[i*3+2]
		img.Pix[i*4+1] = c.Pix[i*3+1]
		img.Pix[i*4+2] = c.Pix[i*3]
		img.Pix[i*4+3] = 255
	}
	return img
}

// Resize returns an image which has been scaled to a new size.
func Resize(img image.Image, newSize image.Point, method int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, newSize.X, newSize.Y))

	kernels := map[int]draw.Interpolator{
		ResizeBilinear:        draw.BiLinear,
		ResizeNearestNeighbor: draw.NearestNeighbor,
		ResizeApproxBilinear:  draw.ApproxBiLinear,
		ResizeCatmullrom:      draw.CatmullRom,
	}

	kernel, ok := kernels[method]
	if !ok {
		panic("no resizing method found")
	}

	kernel.Scale(dst, dst.Rect, img, img.Bounds(), draw.Over, nil)

	return dst
}

// Scale resizes img by factor with Catmull-Rom resampling. A factor of 1
// returns img unchanged.
func Scale(img image.Image, factor float64) (image.Image, error) {
	if factor <= 0 {
		return nil, fmt.Errorf("invalid scale factor %v", factor)
	}

	if factor == 1 {
		return img, nil
	}

	b := img.Bounds()
	size := image.Point{X: max(int(float64(b.Dx())*factor), 1), Y: max(int(float64(b.Dy())*factor), 1)}
	return Resize(img, size, ResizeCatmullrom), nil
}
