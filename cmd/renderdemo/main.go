package main

// Render sample fields onto a PDF and validate the output:
//   go run ./cmd/renderdemo -in ./testdata/form.pdf -out ./out/rendered.pdf

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"esign-backend/internal/envelopes"
	"esign-backend/internal/render"
)

func main() {
	inPath := flag.String("in", "", "input PDF to overlay")
	outPath := flag.String("out", "./out/rendered.pdf", "output path for the rendered PDF")
	fontDir := flag.String("fonts", "./assets/fonts", "directory holding TTF fonts")
	flag.Parse()

	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "usage: renderdemo -in <form.pdf> [-out <rendered.pdf>]")
		os.Exit(2)
	}

	pdfBytes, err := os.ReadFile(*inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read input: %v\n", err)
		os.Exit(1)
	}

	renderer, err := render.New(*fontDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fonts: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	rendered, err := renderer.RenderFields(ctx, pdfBytes, sampleFields(), nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "render failed: %v\n", err)
		os.Exit(1)
	}

	stamped, err := renderer.StampDocumentID(rendered, "demo-envelope")
	if err != nil {
		fmt.Fprintf(os.Stderr, "stamp failed: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(*outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "write failed: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*outPath, stamped, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write failed: %v\n", err)
		os.Exit(1)
	}

	if err := render.ValidatePDF(stamped); err != nil {
		fmt.Fprintf(os.Stderr, "output validation failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OK: wrote %s\n", *outPath)
}

func sampleFields() []envelopes.Field {
	return []envelopes.Field{
		{
			ID: "f-name", Type: envelopes.FieldFullName,
			X: 120, Y: 160, Width: 180, Height: 28, PageIndex: 0,
			Value: "Jordan Lee", Status: envelopes.FieldCompletedStatus,
		},
		{
			ID: "f-date", Type: envelopes.FieldDate,
			X: 360, Y: 160, Width: 120, Height: 28, PageIndex: 0,
			Value: "Aug 28, 2026", Status: envelopes.FieldCompletedStatus,
		},
		{
			ID: "f-agree", Type: envelopes.FieldCheckbox,
			X: 120, Y: 220, Width: 20, Height: 20, PageIndex: 0,
			Value: "checked", Status: envelopes.FieldCompletedStatus,
		},
		{
			ID: "f-notes", Type: envelopes.FieldText,
			X: 120, Y: 280, Width: 320, Height: 70, PageIndex: 0, Rows: 3,
			Value: "Signed during onboarding. Original retained by HR for the employee file.",
			Status: envelopes.FieldCompletedStatus,
		},
	}
}
