package render

import "esign-backend/internal/envelopes"

// Stored field geometry is screen-space, captured at a fixed editor zoom
// with the device pixel ratio folded into the scale factors. Rendering
// inverts the zoom to land in PDF points; the page origin is top-left on
// both sides so no Y flip is needed here.
const baseZoom = 1.75

const (
	textPaddingX    = 3.0
	lineSpacing     = 5.0
	documentIDSize  = 7.0
	minimumTextSize = 4.0
)

// Box is a field's bounding box in page points.
type Box struct {
	X float64
	Y float64
	W float64
	H float64
}

// FieldBox converts stored geometry to page points.
func FieldBox(f envelopes.Field) Box {
	zx, zy := zoomOf(f.ZoomX), zoomOf(f.ZoomY)
	sx, sy := scaleOf(f.ScaleX), scaleOf(f.ScaleY)
	return Box{
		X: f.X / zx,
		Y: f.Y / zy,
		W: f.Width * sx / zx,
		H: f.Height * sy / zy,
	}
}

// TextSize returns the effective font size for a field: the stored size
// when present, otherwise half the scaled field height.
func TextSize(f envelopes.Field) float64 {
	if f.FontSize > 0 {
		return f.FontSize
	}
	size := (f.Height * scaleOf(f.ScaleY)) / (2 * zoomOf(f.ZoomY))
	if size < minimumTextSize {
		size = minimumTextSize
	}
	return size
}

// LineHeight is the vertical advance between wrapped lines.
func LineHeight(textSize float64) float64 {
	return textSize + lineSpacing
}

// MaxLines is the number of wrapped lines a fixed multi-line box can hold.
func MaxLines(box Box, textSize float64) int {
	lines := int(box.H / LineHeight(textSize))
	if lines < 1 {
		lines = 1
	}
	return lines
}

// RadioPoint converts a radio button's stored position to page points,
// using the owning field's zoom factors.
func RadioPoint(f envelopes.Field, radio envelopes.RadioButton) (float64, float64) {
	return radio.X / zoomOf(f.ZoomX), radio.Y / zoomOf(f.ZoomY)
}

func zoomOf(zoom float64) float64 {
	if zoom <= 0 {
		return baseZoom
	}
	return zoom
}

func scaleOf(scale float64) float64 {
	if scale <= 0 {
		return 1
	}
	return scale
}
