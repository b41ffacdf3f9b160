package render

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Theme is the color configuration a rasterized frame uses. It is
// opaque to the export pipeline.
type Theme struct {
	Background color.RGBA
	Text       color.RGBA
	Highlight  color.RGBA
	LineHeight int // pixels per slot step
}

// DefaultTheme is a dark background with warm highlight.
func DefaultTheme() Theme {
	return Theme{
		Background: color.RGBA{R: 0x10, G: 0x10, B: 0x18, A: 0xff},
		Text:       color.RGBA{R: 0xe8, G: 0xe8, B: 0xf0, A: 0xff},
		Highlight:  color.RGBA{R: 0xff, G: 0xb0, B: 0x30, A: 0xff},
		LineHeight: 48,
	}
}

// Rasterize draws a frame state into an RGBA image of the given size.
// The output is a pure function of its inputs: identical frame state,
// theme and dimensions produce identical pixels.
func Rasterize(frame FrameState, theme Theme, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(theme.Background), image.Point{}, draw.Src)

	if theme.LineHeight <= 0 {
		theme.LineHeight = 48
	}
	centerY := height / 2

	for _, ls := range frame {
		if ls.Opacity <= 0 {
			continue
		}
		y := centerY + int(ls.OffsetY*float64(theme.LineHeight))
		if y < 0 || y >= height {
			continue
		}

		runes := []rune(ls.Text)
		split := int(ls.Wipe * float64(len(runes)))
		if split > len(runes) {
			split = len(runes)
		}

		revealed := string(runes[:split])
		remainder := string(runes[split:])

		x := textStartX(ls.Text, width)
		x = drawString(img, revealed, x, y, fade(theme.Highlight, ls.Opacity))
		drawString(img, remainder, x, y, fade(theme.Text, ls.Opacity*0.8))
	}

	return img
}

func textStartX(s string, width int) int {
	w := font.MeasureString(basicfont.Face7x13, s).Ceil()
	x := (width - w) / 2
	if x < 0 {
		x = 0
	}
	return x
}

// drawString draws s at (x, y) and returns the x position after the
// last glyph.
func drawString(img *image.RGBA, s string, x, y int, c color.RGBA) int {
	if s == "" {
		return x
	}
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
	return d.Dot.X.Ceil()
}

func fade(c color.RGBA, opacity float64) color.RGBA {
	if opacity >= 1 {
		return c
	}
	if opacity < 0 {
		opacity = 0
	}
	return color.RGBA{
		R: uint8(float64(c.R) * opacity),
		G: uint8(float64(c.G) * opacity),
		B: uint8(float64(c.B) * opacity),
		A: c.A,
	}
}
