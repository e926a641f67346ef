package render

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
	"github.com/signintech/gopdf"
)

// Fallback when a page carries no resolvable MediaBox (A4 portrait).
var defaultPageSize = gopdf.Rect{W: 595.28, H: 841.89}

// probePages reads the page count and MediaBox dimensions of a PDF.
func probePages(data []byte) ([]gopdf.Rect, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	count := reader.NumPage()
	if count < 1 {
		return nil, fmt.Errorf("pdf has no pages")
	}

	out := make([]gopdf.Rect, 0, count)
	for i := 1; i <= count; i++ {
		out = append(out, pageSize(reader.Page(i).V))
	}
	return out, nil
}

func pageSize(page pdf.Value) gopdf.Rect {
	box := mediaBoxOf(page, 16)
	if box.Kind() != pdf.Array || box.Len() != 4 {
		return defaultPageSize
	}
	w := numValue(box.Index(2)) - numValue(box.Index(0))
	h := numValue(box.Index(3)) - numValue(box.Index(1))
	if w <= 0 || h <= 0 {
		return defaultPageSize
	}
	return gopdf.Rect{W: w, H: h}
}

// mediaBoxOf resolves MediaBox with page-tree inheritance, bounded so a
// cyclic Parent chain cannot loop forever.
func mediaBoxOf(node pdf.Value, depth int) pdf.Value {
	for depth > 0 && node.Kind() == pdf.Dict {
		if box := node.Key("MediaBox"); box.Kind() == pdf.Array {
			return box
		}
		node = node.Key("Parent")
		depth--
	}
	return pdf.Value{}
}

func numValue(v pdf.Value) float64 {
	switch v.Kind() {
	case pdf.Integer:
		return float64(v.Int64())
	case pdf.Real:
		return v.Float64()
	default:
		return 0
	}
}
