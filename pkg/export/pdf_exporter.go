package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pageWidth   = 190.0
	lineHeight  = 6.0
	headerFont  = 9.0
	bodyFont    = 8.0
	titleFont   = 14.0
	summaryFont = 10.0
)

// PDFExporter renders documents into a portrait A4 PDF with a summary block
// and a wrapped table body.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// ContentType of the rendered bytes.
func (e *PDFExporter) ContentType() string { return "application/pdf" }

// Extension used for stored files.
func (e *PDFExporter) Extension() string { return "pdf" }

// Render creates the PDF document.
func (e *PDFExporter) Render(doc Document) ([]byte, error) {
	if len(doc.Table.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(true, 15)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	if doc.Title != "" {
		pdf.SetFont("Arial", "B", titleFont)
		pdf.CellFormat(0, 10, tr(doc.Title), "", 1, "C", false, 0, "")
		pdf.Ln(3)
	}

	if len(doc.Summary) > 0 {
		pdf.SetFont("Arial", "", summaryFont)
		for _, f := range doc.Summary {
			pdf.CellFormat(50, lineHeight, tr(f.Label), "", 0, "L", false, 0, "")
			pdf.MultiCell(pageWidth-50, lineHeight, tr(f.Value), "", "L", false)
		}
		pdf.Ln(4)
	}

	colWidth := pageWidth / float64(len(doc.Table.Headers))
	pdf.SetFont("Arial", "B", headerFont)
	pdf.SetFillColor(230, 236, 230)
	for _, header := range doc.Table.Headers {
		pdf.CellFormat(colWidth, 8, tr(header), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", bodyFont)
	for _, row := range doc.Table.Rows {
		height := lineHeight
		for _, header := range doc.Table.Headers {
			lines := pdf.SplitLines([]byte(tr(row[header])), colWidth-2)
			if h := float64(len(lines)) * lineHeight; h > height {
				height = h
			}
		}
		x, y := pdf.GetXY()
		for i, header := range doc.Table.Headers {
			pdf.SetXY(x+float64(i)*colWidth, y)
			pdf.Rect(x+float64(i)*colWidth, y, colWidth, height, "D")
			pdf.MultiCell(colWidth, lineHeight, tr(row[header]), "", "L", false)
		}
		pdf.SetXY(x, y+height)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
