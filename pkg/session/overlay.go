package session

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/bitanath/dental-triage/pkg/types"
)

// groupColors maps top-level tooth groups to their display colors.
var groupColors = map[string]color.NRGBA{
	"molar":    {128, 0, 128, 255},
	"premolar": {0, 0, 255, 255},
	"canine":   {0, 128, 0, 255},
	"incisor":  {255, 165, 0, 255},
}

var (
	unknownColor   = color.NRGBA{128, 128, 128, 255}
	treatmentColor = color.NRGBA{255, 0, 0, 255}
)

// Annotated renders the current detections onto a copy of the session
// image: a thick red box for teeth needing treatment, the group color
// otherwise, with the 1-based display number and group next to each
// box. Returns nil before detection has run.
func (s *Session) Annotated() image.Image {
	if s.img == nil || len(s.detections) == 0 {
		return nil
	}
	return Annotate(s.img, s.detections)
}

// Annotate draws detection boxes and display numbers on a copy of img.
func Annotate(img image.Image, detections []types.Detection) image.Image {
	canvas := imaging.Clone(img)

	for _, det := range detections {
		group := strings.TrimSuffix(strings.ToLower(det.Label), " treatment")

		c, stroke := boxStyle(group, det.Treated())
		drawBox(canvas, det.Box, c, stroke)
		drawLabel(canvas, fmt.Sprintf("%d: %s", det.Index+1, group),
			int(det.Box.X1), int(det.Box.Y1)-3, c)
	}

	return canvas
}

func boxStyle(group string, treated bool) (color.NRGBA, int) {
	if treated {
		return treatmentColor, 4
	}
	if c, ok := groupColors[group]; ok {
		return c, 3
	}
	return unknownColor, 3
}

func drawBox(img *image.NRGBA, box types.PixelBox, c color.NRGBA, stroke int) {
	x1, y1, x2, y2 := int(box.X1), int(box.Y1), int(box.X2), int(box.Y2)
	for s := 0; s < stroke; s++ {
		drawHLine(img, y1+s, x1, x2, c)
		drawHLine(img, y2-1-s, x1, x2, c)
		drawVLine(img, x1+s, y1, y2, c)
		drawVLine(img, x2-1-s, y1, y2, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}

func drawLabel(img *image.NRGBA, text string, x, y int, c color.NRGBA) {
	if y < basicfont.Face7x13.Ascent {
		y = basicfont.Face7x13.Ascent
	}
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
