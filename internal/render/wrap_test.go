package render

import (
	"reflect"
	"testing"

	"esign-backend/internal/envelopes"
)

// fixedMeasure gives every rune a width of 6 points.
func fixedMeasure(s string) (float64, error) {
	return float64(len([]rune(s))) * 6, nil
}

func TestWrapTextFitsSingleLine(t *testing.T) {
	lines, err := WrapText("hello world", 200, fixedMeasure)
	if err != nil {
		t.Fatalf("WrapText: %v", err)
	}
	want := []string{"hello world"}
	if !reflect.DeepEqual(lines, want) {
		t.Fatalf("got %v, want %v", lines, want)
	}
}

func TestWrapTextBreaksAtWords(t *testing.T) {
	// 60 points fits ten characters per line.
	lines, err := WrapText("alpha beta gamma", 60, fixedMeasure)
	if err != nil {
		t.Fatalf("WrapText: %v", err)
	}
	want := []string{"alpha beta", "gamma"}
	if !reflect.DeepEqual(lines, want) {
		t.Fatalf("got %v, want %v", lines, want)
	}
}

func TestWrapTextSplitsOverlongToken(t *testing.T) {
	lines, err := WrapText("abcdefghij", 24, fixedMeasure)
	if err != nil {
		t.Fatalf("WrapText: %v", err)
	}
	want := []string{"abcd", "efgh", "ij"}
	if !reflect.DeepEqual(lines, want) {
		t.Fatalf("got %v, want %v", lines, want)
	}
}

func TestWrapTextPreservesBlankParagraphs(t *testing.T) {
	lines, err := WrapText("one\n\ntwo", 200, fixedMeasure)
	if err != nil {
		t.Fatalf("WrapText: %v", err)
	}
	want := []string{"one", "", "two"}
	if !reflect.DeepEqual(lines, want) {
		t.Fatalf("got %v, want %v", lines, want)
	}
}

func TestFieldBoxInvertsZoom(t *testing.T) {
	f := envelopes.Field{
		X: 175, Y: 350, Width: 100, Height: 40,
		ZoomX: 1.75, ZoomY: 1.75, ScaleX: 1, ScaleY: 1,
	}
	box := FieldBox(f)
	if box.X != 100 || box.Y != 200 {
		t.Fatalf("origin = (%v, %v), want (100, 200)", box.X, box.Y)
	}
	if box.W != 100/1.75 || box.H != 40/1.75 {
		t.Fatalf("size = (%v, %v)", box.W, box.H)
	}
}

func TestFieldBoxDefaultsMissingFactors(t *testing.T) {
	f := envelopes.Field{X: 17.5, Y: 35, Width: 175, Height: 35}
	box := FieldBox(f)
	if box.X != 10 || box.Y != 20 || box.W != 100 || box.H != 20 {
		t.Fatalf("box = %+v", box)
	}
}

func TestTextSizeDerivedFromHeight(t *testing.T) {
	f := envelopes.Field{Height: 35, ZoomY: 1.75, ScaleY: 1}
	if got := TextSize(f); got != 10 {
		t.Fatalf("TextSize = %v, want 10", got)
	}
}

func TestTextSizeFloor(t *testing.T) {
	f := envelopes.Field{Height: 7, ZoomY: 1.75, ScaleY: 1}
	if got := TextSize(f); got != minimumTextSize {
		t.Fatalf("TextSize = %v, want %v", got, minimumTextSize)
	}
}

func TestTextSizeExplicitWins(t *testing.T) {
	f := envelopes.Field{Height: 70, FontSize: 9, ZoomY: 1.75}
	if got := TextSize(f); got != 9 {
		t.Fatalf("TextSize = %v, want 9", got)
	}
}

func TestMaxLines(t *testing.T) {
	box := Box{H: 46}
	// line height 15 for size 10, two full lines fit.
	if got := MaxLines(box, 10); got != 3 {
		t.Fatalf("MaxLines = %v, want 3", got)
	}
	if got := MaxLines(Box{H: 5}, 10); got != 1 {
		t.Fatalf("MaxLines floor = %v, want 1", got)
	}
}
