package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/signintech/gopdf"

	"esign-backend/internal/envelopes"
	"esign-backend/internal/render"
)

const (
	pageWidth  = 595.28
	pageHeight = 841.89

	marginX       = 40.0
	marginTop     = 48.0
	marginBottom  = 56.0
	titleSize     = 16.0
	headingSize   = 10.0
	bodySize      = 9.0
	rowHeight     = 16.0
	timestampFmt  = "Jan 02, 2006 15:04:05 MST"
	colTimeWidth  = 150.0
	colEventWidth = 95.0
	colActorWidth = 150.0
)

// Composer renders the envelope event timeline to a certificate page and
// merges it with the signed document.
type Composer struct {
	fontFile   string
	fontFamily string
}

// New picks a TTF font from fontDir for the certificate page.
func New(fontDir string) (*Composer, error) {
	entries, err := os.ReadDir(fontDir)
	if err != nil {
		return nil, fmt.Errorf("read font dir %s: %w", fontDir, err)
	}

	var fonts []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".ttf") {
			continue
		}
		fonts = append(fonts, entry.Name())
	}
	if len(fonts) == 0 {
		return nil, fmt.Errorf("no ttf fonts found in %s", fontDir)
	}
	sort.Strings(fonts)

	name := fonts[0]
	for _, candidate := range fonts {
		base := strings.ToLower(strings.TrimSuffix(candidate, filepath.Ext(candidate)))
		if base == "helvetica" || base == "arial" {
			name = candidate
			break
		}
	}

	return &Composer{
		fontFile:   filepath.Join(fontDir, name),
		fontFamily: strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name))),
	}, nil
}

// Compose builds the audit certificate and combines it with the document.
// With AttachAuditLog set, the certificate pages are appended to the
// document itself; otherwise the certificate is produced standalone along
// with a combined convenience copy.
func (c *Composer) Compose(ctx context.Context, doc []byte, env envelopes.Envelope, events []envelopes.HistoryEvent) (envelopes.AuditArtifacts, error) {
	if err := ctx.Err(); err != nil {
		return envelopes.AuditArtifacts{}, err
	}

	certificate, err := c.certificate(env, events)
	if err != nil {
		return envelopes.AuditArtifacts{}, fmt.Errorf("render audit certificate: %w", err)
	}

	merged, err := render.MergePDFs(doc, certificate)
	if err != nil {
		return envelopes.AuditArtifacts{}, fmt.Errorf("merge audit certificate: %w", err)
	}

	if env.AttachAuditLog {
		return envelopes.AuditArtifacts{Document: merged}, nil
	}
	return envelopes.AuditArtifacts{AuditLog: certificate, Combined: merged}, nil
}

// certificate lays out the timeline table, paginating as needed.
func (c *Composer) certificate(env envelopes.Envelope, events []envelopes.HistoryEvent) ([]byte, error) {
	gp := &gopdf.GoPdf{}
	gp.Start(gopdf.Config{PageSize: gopdf.Rect{W: pageWidth, H: pageHeight}})
	if err := gp.AddTTFFont(c.fontFamily, c.fontFile); err != nil {
		return nil, fmt.Errorf("load font: %w", err)
	}

	y, err := c.pageHeader(gp, env)
	if err != nil {
		return nil, err
	}

	for _, ev := range events {
		if y > pageHeight-marginBottom {
			if y, err = c.pageHeader(gp, env); err != nil {
				return nil, err
			}
		}
		if err := c.eventRow(gp, y, ev); err != nil {
			return nil, err
		}
		y += rowHeight
	}

	out, err := gp.GetBytesPdfReturnErr()
	if err != nil {
		return nil, fmt.Errorf("serialize certificate: %w", err)
	}
	return out, nil
}

// pageHeader starts a fresh page with the title block and column headings,
// returning the Y position of the first table row.
func (c *Composer) pageHeader(gp *gopdf.GoPdf, env envelopes.Envelope) (float64, error) {
	gp.AddPage()

	if err := gp.SetFont(c.fontFamily, "", titleSize); err != nil {
		return 0, err
	}
	gp.SetTextColor(20, 20, 20)
	gp.SetXY(marginX, marginTop)
	if err := gp.Cell(nil, "Audit Trail"); err != nil {
		return 0, err
	}

	if err := gp.SetFont(c.fontFamily, "", bodySize); err != nil {
		return 0, err
	}
	gp.SetTextColor(90, 90, 90)
	gp.SetXY(marginX, marginTop+22)
	if err := gp.Cell(nil, truncate("Document: "+env.Title, 90)); err != nil {
		return 0, err
	}
	gp.SetXY(marginX, marginTop+34)
	if err := gp.Cell(nil, "Envelope Id: "+env.ID); err != nil {
		return 0, err
	}

	y := marginTop + 58
	if err := gp.SetFont(c.fontFamily, "", headingSize); err != nil {
		return 0, err
	}
	gp.SetTextColor(20, 20, 20)
	for _, col := range []struct {
		x     float64
		label string
	}{
		{marginX, "Timestamp"},
		{marginX + colTimeWidth, "Event"},
		{marginX + colTimeWidth + colEventWidth, "Actor"},
		{marginX + colTimeWidth + colEventWidth + colActorWidth, "Origin"},
	} {
		gp.SetXY(col.x, y)
		if err := gp.Cell(nil, col.label); err != nil {
			return 0, err
		}
	}

	y += 6
	gp.SetStrokeColor(160, 160, 160)
	gp.SetLineWidth(0.5)
	gp.Line(marginX, y+8, pageWidth-marginX, y+8)

	return y + 14, nil
}

func (c *Composer) eventRow(gp *gopdf.GoPdf, y float64, ev envelopes.HistoryEvent) error {
	if err := gp.SetFont(c.fontFamily, "", bodySize); err != nil {
		return err
	}
	gp.SetTextColor(40, 40, 40)

	origin := ev.IP
	if ev.Browser != "" {
		if origin != "" {
			origin += " "
		}
		origin += ev.Browser
	}

	cells := []struct {
		x    float64
		text string
	}{
		{marginX, ev.CreatedAt.Format(timestampFmt)},
		{marginX + colTimeWidth, string(ev.Action)},
		{marginX + colTimeWidth + colEventWidth, truncate(ev.ActorName, 30)},
		{marginX + colTimeWidth + colEventWidth + colActorWidth, truncate(origin, 38)},
	}
	for _, cell := range cells {
		gp.SetXY(cell.x, y)
		if err := gp.Cell(nil, cell.text); err != nil {
			return err
		}
	}
	return nil
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}

var _ envelopes.AuditComposer = (*Composer)(nil)
