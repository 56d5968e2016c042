package geometry

import (
	"errors"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/bitanath/dental-triage/pkg/types"
)

// ErrEmptyRegion reports a crop whose width or height rounds to zero.
var ErrEmptyRegion = errors.New("crop region is empty")

// ExpandByFraction grows the box by ratio times its own size on each
// side, so a ratio of 0.2 adds 20% of the width left and right and 20%
// of the height above and below. The result is not clamped.
//
// This is one of two expansion conventions used by crop consumers; see
// ExpandByMultiplier for the other. They are kept as separate operations
// so a call site can never silently apply the wrong one.
func ExpandByFraction(box types.PixelBox, ratio float64) types.PixelBox {
	dw := ratio * box.Width()
	dh := ratio * box.Height()
	return types.PixelBox{
		X1: box.X1 - dw,
		Y1: box.Y1 - dh,
		X2: box.X2 + dw,
		Y2: box.Y2 + dh,
	}
}

// ExpandByMultiplier grows the box symmetrically so its total size
// scales by factor: a factor of 1.2 adds 10% of the width on each side.
// The result is not clamped.
func ExpandByMultiplier(box types.PixelBox, factor float64) types.PixelBox {
	dw := (factor - 1) * box.Width() / 2
	dh := (factor - 1) * box.Height() / 2
	return types.PixelBox{
		X1: box.X1 - dw,
		Y1: box.Y1 - dh,
		X2: box.X2 + dw,
		Y2: box.Y2 + dh,
	}
}

// Clamp restricts the box component-wise into [0, width] x [0, height].
// A box fully outside the image collapses to zero area at the edge,
// which is a valid degenerate result.
func Clamp(box types.PixelBox, width, height int) types.PixelBox {
	w, h := float64(width), float64(height)
	return types.PixelBox{
		X1: clamp(box.X1, 0, w),
		Y1: clamp(box.Y1, 0, h),
		X2: clamp(box.X2, 0, w),
		Y2: clamp(box.Y2, 0, h),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Crop extracts the pixel region bounded by an already-clamped box.
func Crop(img image.Image, box types.PixelBox) (image.Image, error) {
	rect := image.Rect(int(box.X1), int(box.Y1), int(box.X2), int(box.Y2))
	if rect.Dx() <= 0 || rect.Dy() <= 0 {
		return nil, ErrEmptyRegion
	}
	return imaging.Crop(img, rect), nil
}

// SquarePad centers the image on a square canvas of side
// max(width, height) filled with the given color. Offsets are
// floor((side-dim)/2) per axis.
func SquarePad(img image.Image, fill color.Color) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	side := w
	if h > side {
		side = h
	}
	canvas := imaging.New(side, side, fill)
	return imaging.Paste(canvas, img, image.Pt((side-w)/2, (side-h)/2))
}

// Resize scales the image to size x size with Lanczos resampling. The
// input is expected to already be square from SquarePad, so no aspect
// ratio handling is done.
func Resize(img image.Image, size int) image.Image {
	return imaging.Resize(img, size, size, imaging.Lanczos)
}

// Pipeline is the crop preparation contract shared by training-crop
// conversion and live inference. A model consumer only produces
// meaningful results on crops prepared with the exact parameters its
// training data was built with, so the triple travels together instead
// of as loose constants at call sites.
type Pipeline struct {
	// ExpandFraction grows the box per side (ExpandByFraction) when
	// ExpandMultiplier is zero.
	ExpandFraction float64
	// ExpandMultiplier scales total box size (ExpandByMultiplier);
	// takes precedence over ExpandFraction when non-zero.
	ExpandMultiplier float64
	// Fill is the square padding color.
	Fill color.Color
	// TargetSize is the final square resolution.
	TargetSize int
}

// Apply expands and clamps the box against the image, crops, square
// pads and resizes. Returns ErrEmptyRegion when the clamped box has no
// area inside the image.
func (p Pipeline) Apply(img image.Image, box types.PixelBox) (image.Image, error) {
	b := img.Bounds()

	expanded := box
	if p.ExpandMultiplier != 0 {
		expanded = ExpandByMultiplier(box, p.ExpandMultiplier)
	} else if p.ExpandFraction != 0 {
		expanded = ExpandByFraction(box, p.ExpandFraction)
	}
	clamped := Clamp(expanded, b.Dx(), b.Dy())

	cropped, err := Crop(img, clamped)
	if err != nil {
		return nil, err
	}

	fill := p.Fill
	if fill == nil {
		fill = color.Black
	}
	return Resize(SquarePad(cropped, fill), p.TargetSize), nil
}
