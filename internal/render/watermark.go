package render

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

const voidWatermarkDesc = "font:Helvetica-Bold, points:50, col: 0.95 0.1 0.1, rot:45, sc:1 abs, op:0.5"

// VoidWatermark stamps a diagonal VOID mark across every page. pdfcpu works
// on files, so the document round-trips through a temp directory.
func VoidWatermark(pdfBytes []byte) ([]byte, error) {
	dir, err := os.MkdirTemp("", "void-watermark-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in.pdf")
	out := filepath.Join(dir, "out.pdf")
	if err := os.WriteFile(in, pdfBytes, 0o600); err != nil {
		return nil, fmt.Errorf("write temp pdf: %w", err)
	}

	wm, err := api.TextWatermark("VOID", voidWatermarkDesc, true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("build watermark: %w", err)
	}
	if err := api.AddWatermarksFile(in, out, nil, wm, nil); err != nil {
		return nil, fmt.Errorf("apply watermark: %w", err)
	}

	stamped, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("read stamped pdf: %w", err)
	}
	return stamped, nil
}

// MergePDFs concatenates documents in order into a single file.
func MergePDFs(docs ...[]byte) ([]byte, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("nothing to merge")
	}

	dir, err := os.MkdirTemp("", "merge-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	inFiles := make([]string, 0, len(docs))
	for i, doc := range docs {
		path := filepath.Join(dir, fmt.Sprintf("part-%d.pdf", i))
		if err := os.WriteFile(path, doc, 0o600); err != nil {
			return nil, fmt.Errorf("write merge input %d: %w", i, err)
		}
		inFiles = append(inFiles, path)
	}

	out := filepath.Join(dir, "merged.pdf")
	if err := api.MergeCreateFile(inFiles, out, false, nil); err != nil {
		return nil, fmt.Errorf("merge pdfs: %w", err)
	}

	merged, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("read merged pdf: %w", err)
	}
	return merged, nil
}

// ValidatePDF checks document structure with pdfcpu's validator.
func ValidatePDF(pdfBytes []byte) error {
	dir, err := os.MkdirTemp("", "validate-*")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "doc.pdf")
	if err := os.WriteFile(path, pdfBytes, 0o600); err != nil {
		return fmt.Errorf("write temp pdf: %w", err)
	}
	if err := api.ValidateFile(path, nil); err != nil {
		return fmt.Errorf("validate pdf: %w", err)
	}
	return nil
}
