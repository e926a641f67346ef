package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/signintech/gopdf"

	"esign-backend/internal/envelopes"
)

// Renderer overlays field values onto PDF pages with gopdf. TTF fonts are
// discovered in FontDir; a field's fontFamily falls back to the default
// family when no matching file exists.
type Renderer struct {
	fontFiles     map[string]string
	defaultFamily string
}

// New scans fontDir for TTF files and builds a renderer.
func New(fontDir string) (*Renderer, error) {
	entries, err := os.ReadDir(fontDir)
	if err != nil {
		return nil, fmt.Errorf("read font dir %s: %w", fontDir, err)
	}

	fonts := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.EqualFold(filepath.Ext(name), ".ttf") {
			continue
		}
		family := strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
		fonts[family] = filepath.Join(fontDir, name)
	}
	if len(fonts) == 0 {
		return nil, fmt.Errorf("no ttf fonts found in %s", fontDir)
	}

	return &Renderer{
		fontFiles:     fonts,
		defaultFamily: pickDefaultFamily(fonts),
	}, nil
}

func pickDefaultFamily(fonts map[string]string) string {
	for _, preferred := range []string{"helvetica", "arial", "roboto"} {
		if _, ok := fonts[preferred]; ok {
			return preferred
		}
	}
	names := make([]string, 0, len(fonts))
	for name := range fonts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names[0]
}

func (r *Renderer) family(requested string) string {
	name := strings.ToLower(strings.TrimSpace(requested))
	if _, ok := r.fontFiles[name]; ok {
		return name
	}
	return r.defaultFamily
}

// RenderFields draws each field's value onto its page and returns the new
// document bytes.
func (r *Renderer) RenderFields(ctx context.Context, pdfBytes []byte, fields []envelopes.Field, images map[string][]byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	byPage := make(map[int][]envelopes.Field)
	for _, f := range fields {
		byPage[f.PageIndex] = append(byPage[f.PageIndex], f)
	}

	return r.overlay(pdfBytes, func(gp *gopdf.GoPdf, page int) error {
		for _, f := range byPage[page] {
			if err := r.drawField(gp, f, images); err != nil {
				return fmt.Errorf("draw field %s: %w", f.UUID, err)
			}
		}
		return nil
	})
}

// StampDocumentID writes a small identifier line at the top-left of every
// page.
func (r *Renderer) StampDocumentID(pdfBytes []byte, envelopeID string) ([]byte, error) {
	label := "Document Id: " + envelopeID
	return r.overlay(pdfBytes, func(gp *gopdf.GoPdf, page int) error {
		if err := gp.SetFont(r.defaultFamily, "", documentIDSize); err != nil {
			return err
		}
		gp.SetTextColor(90, 90, 90)
		gp.SetXY(10, 4)
		return gp.Cell(nil, label)
	})
}

// ApplyVoidWatermark stamps a diagonal VOID mark across every page.
func (r *Renderer) ApplyVoidWatermark(pdfBytes []byte) ([]byte, error) {
	return VoidWatermark(pdfBytes)
}

// overlay rebuilds the document page by page, importing each original page
// as a template and running draw on top of it.
func (r *Renderer) overlay(pdfBytes []byte, draw func(gp *gopdf.GoPdf, page int) error) ([]byte, error) {
	pages, err := probePages(pdfBytes)
	if err != nil {
		return nil, err
	}

	gp := &gopdf.GoPdf{}
	gp.Start(gopdf.Config{PageSize: defaultPageSize})
	for family, path := range r.fontFiles {
		if err := gp.AddTTFFont(family, path); err != nil {
			return nil, fmt.Errorf("load font %s: %w", family, err)
		}
	}

	var rs io.ReadSeeker = bytes.NewReader(pdfBytes)
	for i, dim := range pages {
		size := dim
		gp.AddPageWithOption(gopdf.PageOption{PageSize: &size})
		tpl := gp.ImportPageStream(&rs, i+1, "/MediaBox")
		gp.UseImportedTemplate(tpl, 0, 0, dim.W, dim.H)
		if err := draw(gp, i); err != nil {
			return nil, err
		}
	}

	out, err := gp.GetBytesPdfReturnErr()
	if err != nil {
		return nil, fmt.Errorf("serialize pdf: %w", err)
	}
	return out, nil
}

func (r *Renderer) drawField(gp *gopdf.GoPdf, f envelopes.Field, images map[string][]byte) error {
	switch f.Type {
	case envelopes.FieldCheckbox:
		if isChecked(f.Value) {
			return drawCheckGlyph(gp, FieldBox(f))
		}
		return nil
	case envelopes.FieldRadio:
		return drawRadioSelection(gp, f)
	case envelopes.FieldDropdown:
		return r.drawText(gp, f, dropdownLabel(f))
	case envelopes.FieldSignature, envelopes.FieldDigitalSignature, envelopes.FieldInitial:
		return drawImageField(gp, f, images)
	default:
		return r.drawText(gp, f, f.Value)
	}
}

// drawText wraps the value into the field box. A multi-row field is a fixed
// box with a computed line budget; a single-row field grows downward from
// its vertical center.
func (r *Renderer) drawText(gp *gopdf.GoPdf, f envelopes.Field, value string) error {
	if strings.TrimSpace(value) == "" {
		return nil
	}

	size := TextSize(f)
	if err := gp.SetFont(r.family(f.FontFamily), "", size); err != nil {
		return err
	}
	gp.SetTextColor(0, 0, 0)

	box := FieldBox(f)
	maxWidth := box.W - 2*textPaddingX
	if maxWidth <= 0 {
		maxWidth = box.W
	}
	lines, err := WrapText(value, maxWidth, gp.MeasureTextWidth)
	if err != nil {
		return err
	}

	lineHeight := LineHeight(size)
	y := box.Y + (box.H-size)/2
	if f.Rows > 1 {
		if budget := MaxLines(box, size); len(lines) > budget {
			lines = lines[:budget]
		}
		y = box.Y + 1
	}

	for _, line := range lines {
		gp.SetXY(box.X+textPaddingX, y)
		if err := gp.Cell(nil, line); err != nil {
			return err
		}
		y += lineHeight
	}
	return nil
}

func drawCheckGlyph(gp *gopdf.GoPdf, box Box) error {
	gp.SetStrokeColor(32, 32, 32)
	width := box.H * 0.12
	if width < 0.8 {
		width = 0.8
	}
	gp.SetLineWidth(width)
	gp.Line(box.X+0.20*box.W, box.Y+0.55*box.H, box.X+0.45*box.W, box.Y+0.80*box.H)
	gp.Line(box.X+0.45*box.W, box.Y+0.80*box.H, box.X+0.85*box.W, box.Y+0.20*box.H)
	return nil
}

// drawRadioSelection resolves the selected option and fills its glyph at
// the option's own coordinates.
func drawRadioSelection(gp *gopdf.GoPdf, f envelopes.Field) error {
	var selected *envelopes.RadioButton
	for i := range f.Radios {
		if f.Radios[i].ID == f.SelectedOptionID {
			selected = &f.Radios[i]
			break
		}
	}
	if selected == nil {
		return nil
	}

	x, y := RadioPoint(f, *selected)
	d := FieldBox(f).H
	if d <= 0 {
		d = 12 / baseZoom
	}

	gp.SetStrokeColor(32, 32, 32)
	gp.SetLineWidth(0.8)
	gp.Oval(x, y, x+d, y+d)
	gp.SetFillColor(32, 32, 32)
	gp.RectFromUpperLeftWithStyle(x+0.3*d, y+0.3*d, 0.4*d, 0.4*d, "F")
	return nil
}

func dropdownLabel(f envelopes.Field) string {
	for _, opt := range f.Options {
		if opt.ID == f.SelectedOptionID {
			return opt.Label
		}
	}
	return f.Value
}

// drawImageField embeds the signature/initial image, preserving aspect
// ratio and centering it in the field box, with multiply blending so the
// underlying page shows through.
func drawImageField(gp *gopdf.GoPdf, f envelopes.Field, images map[string][]byte) error {
	data, ok := images[f.Value]
	if !ok || len(data) == 0 {
		return nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode signature image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("signature image has no dimensions")
	}

	box := FieldBox(f)
	ratio := float64(cfg.Width) / float64(cfg.Height)
	h := box.H
	w := h * ratio
	if w > box.W {
		w = box.W
		h = w / ratio
	}
	x := box.X + (box.W-w)/2
	y := box.Y + (box.H-h)/2

	holder, err := gopdf.ImageHolderByBytes(data)
	if err != nil {
		return err
	}
	if err := gp.SetTransparency(gopdf.Transparency{Alpha: 1, BlendModeType: gopdf.Multiply}); err != nil {
		return err
	}
	defer gp.ClearTransparency()

	return gp.ImageByHolder(holder, x, y, &gopdf.Rect{W: w, H: h})
}

func isChecked(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "checked", "yes", "on", "1":
		return true
	default:
		return false
	}
}

var _ envelopes.Renderer = (*Renderer)(nil)
