package imageproc

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"github.com/stylegans/stylegans/ml"
)

func TestQuantize(t *testing.T) {
	cases := map[float32]uint8{
		-2:   0,
		-1:   0,
		0:    127,
		0.5:  191,
		1:    255,
		1.5:  255,
		-0.5: 63,
	}

	for v, want := range cases {
		if got := Quantize(v); got != want {
			t.Errorf("Quantize(%v) = %d, want %d", v, got, want)
		}
	}
}

func TestBatchPut(t *testing.T) {
	b := NewBatch(2, 1, 2)

	// channels first: r = [-1, 1], g = [0, 0], b = [1, -1]
	require.NoError(t, b.Put(1, ml.New([]float32{-1, 1, 0, 0, 1, -1}, 3, 1, 2)))

	want := []uint8{
		0, 0, 0, 0, 0, 0,
		0, 127, 255, 255, 127, 0,
	}
	if diff := cmp.Diff(want, b.Pix); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	require.ErrorContains(t, b.Put(0, ml.Zeros(3, 2, 2)), "want [3 1 2]")
	require.ErrorContains(t, b.Put(2, ml.Zeros(3, 1, 2)), "out of range")
}

// solid returns a batch where image i is filled with the RGB value (i, 100+i, 200+i).
func solid(n, res int) *Batch {
	b := NewBatch(n, res, res)
	for i := range n {
		img := b.Image(i)
		for p := 0; p < len(img); p += 3 {
			img[p], img[p+1], img[p+2] = uint8(i), uint8(100+i), uint8(200+i)
		}
	}
	return b
}

func TestTile(t *testing.T) {
	const res = 3
	c := Tile(solid(16, res), 4, 4)
	require.Equal(t, 4*res, c.Height)
	require.Equal(t, 4*res, c.Width)

	for y := range c.Height {
		for x := range c.Width {
			i := y/res*4 + x/res
			got := c.Pix[(y*c.Width+x)*3:][:3]
			want := []uint8{uint8(200 + i), uint8(100 + i), uint8(i)}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("pixel (%d, %d) of image %d (-want +got):\n%s", x, y, i, diff)
			}
		}
	}
}

func TestTilePartial(t *testing.T) {
	c := Tile(solid(3, 2), 4, 4)

	// the fourth cell of the first row stays black
	require.Equal(t, []uint8{0, 0, 0}, c.Pix[(0*c.Width+6)*3:][:3])
	require.Equal(t, []uint8{202, 102, 2}, c.Pix[(1*c.Width+5)*3:][:3])

	// only the first 16 images are drawn
	c = Tile(solid(20, 1), 4, 4)
	require.Len(t, c.Pix, 16*3)
	require.Equal(t, []uint8{215, 115, 15}, c.Pix[15*3:])
}

func TestCanvasImage(t *testing.T) {
	c := Tile(solid(1, 1), 1, 1)
	img := c.Image()

	// BGR canvas written back as the original RGB colour
	require.Equal(t, []uint8{0, 100, 200, 255}, img.Pix)
}

func TestScale(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))

	got, err := Scale(img, 1)
	require.NoError(t, err)
	require.Same(t, img, got)

	got, err = Scale(img, 2.5)
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 10, 5), got.Bounds())

	_, err = Scale(img, 0)
	require.Error(t, err)
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	img := Tile(solid(16, 2), 4, 4).Image()

	for _, name := range []string{"grid.png", "grid.BMP", "grid.tiff"} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, Write(filepath.Join(dir, name), img))
		})
	}

	f, err := os.Open(filepath.Join(dir, "grid.png"))
	require.NoError(t, err)
	defer f.Close()

	decoded, err := png.Decode(f)
	require.NoError(t, err)
	require.Equal(t, img.Bounds(), decoded.Bounds())

	r, g, b, _ := decoded.At(3, 5).RGBA()
	require.Equal(t, []uint32{9, 109, 209}, []uint32{r >> 8, g >> 8, b >> 8})

	bf, err := os.Open(filepath.Join(dir, "grid.BMP"))
	require.NoError(t, err)
	defer bf.Close()

	_, err = bmp.Decode(bf)
	require.NoError(t, err)

	require.ErrorContains(t, Write(filepath.Join(dir, "grid.jpg"), img), "unsupported image format")
}
