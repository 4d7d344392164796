package report

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"example.com/fitfaker/internal/batch"
	"example.com/fitfaker/internal/convert"
)

// PDFOptions controls SaveSummaryPDF.
type PDFOptions struct {
	Lang Language
	// ManifestHash, when set, is printed and embedded as a QR code.
	ManifestHash string
}

// SaveSummaryPDF renders a batch summary into a PDF document.
func SaveSummaryPDF(sum batch.Summary, opts PDFOptions, out string) error {
	tr := NewTranslator(opts.Lang)
	pdf := gofpdf.New("P", "mm", "A4", "")
	text := pdfText(pdf)
	pdf.SetTitle(text(tr.T("title")), false)
	pdf.SetAuthor("fitctl", false)
	pdf.SetCreator("fitctl", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, text(tr.T("title")))
	pdf.Ln(12)
	addSummarySection(pdf, text, tr, sum)
	addFilesSection(pdf, text, tr, sum.Results)
	if opts.ManifestHash != "" {
		if err := addManifestSection(pdf, text, tr, opts.ManifestHash); err != nil {
			return err
		}
	}

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.OutputFileAndClose(out)
}

// turkishFold maps letters outside the core font encoding to their closest
// cp1252 form.
var turkishFold = strings.NewReplacer("ş", "s", "Ş", "S", "ğ", "g", "Ğ", "G", "ı", "i", "İ", "I")

func pdfText(pdf *gofpdf.Fpdf) func(string) string {
	encode := pdf.UnicodeTranslatorFromDescriptor("")
	return func(s string) string {
		return encode(turkishFold.Replace(s))
	}
}

func sectionHeading(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, title)
	pdf.Ln(9)
}

func addSummarySection(pdf *gofpdf.Fpdf, text func(string) string, tr Translator, sum batch.Summary) {
	sectionHeading(pdf, text(tr.T("summary")))

	overall := tr.T("pass")
	if batch.ExitCode(sum) != 0 || sum.Failed > 0 {
		overall = tr.T("fail")
	}
	items := []struct {
		label string
		value string
	}{
		{"run_id", sum.RunID},
		{"target", emptyFallback(sum.Target, "-")},
		{"started", formatTime(sum.Started)},
		{"finished", formatTime(sum.Finished)},
		{"found", strconv.Itoa(sum.Found)},
		{"skipped", strconv.Itoa(sum.Skipped)},
		{"succeeded", strconv.Itoa(sum.Succeeded)},
		{"failed", strconv.Itoa(sum.Failed)},
		{"canceled", strconv.Itoa(sum.Canceled)},
		{"recovered", strconv.Itoa(sum.Recovered)},
		{"overall", overall},
	}
	pdf.SetFont("Helvetica", "", 11)
	for _, item := range items {
		pdf.CellFormat(55, 6, text(tr.T(item.label)), "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, text(item.value), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func addFilesSection(pdf *gofpdf.Fpdf, text func(string) string, tr Translator, results []batch.FileResult) {
	sectionHeading(pdf, text(tr.T("files")))
	if len(results) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, text(tr.T("no_files")), "", "L", false)
		pdf.Ln(4)
		return
	}

	headers := []string{"col_file", "col_status", "col_messages", "col_identity", "col_detail"}
	widths := []float64{50, 28, 20, 18, 64}
	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, text(tr.T(h)), "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, r := range results {
		status, messages, identity, detail := tr.T("status_failed"), "-", "-", r.Error
		switch {
		case r.OK():
			status = tr.T("status_ok")
			if r.Result.Recovered {
				status = tr.T("status_recovered")
			}
			messages = strconv.Itoa(r.Result.MessagesProcessed)
			identity = fmt.Sprintf("%d/%d", r.Result.IdentityModified, r.Result.IdentityMessages)
			detail = filepath.Base(r.Output)
		case r.Kind == convert.KindCanceled:
			status = tr.T("status_canceled")
		}
		values := []string{filepath.Base(r.Input), status, messages, identity, detail}
		for i := range values {
			values[i] = text(values[i])
		}
		renderTableRow(pdf, widths, values, 5)
	}
	pdf.Ln(4)
}

func addManifestSection(pdf *gofpdf.Fpdf, text func(string) string, tr Translator, hash string) error {
	png, err := ManifestHashToQR(hash, 256)
	if err != nil {
		return err
	}
	sectionHeading(pdf, text(tr.T("manifest")))
	pdf.SetFont("Courier", "", 8)
	pdf.MultiCell(0, 4, tr.Format("manifest_hash", hexDigits(hash)), "", "L", false)
	pdf.Ln(2)

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("manifest-qr", opts, bytes.NewReader(png))
	pdf.ImageOptions("manifest-qr", pdf.GetX(), pdf.GetY(), 35, 35, true, opts, 0, "")
	return nil
}

func renderTableRow(pdf *gofpdf.Fpdf, widths []float64, values []string, lineHeight float64) {
	xStart := pdf.GetX()
	yStart := pdf.GetY()
	maxLines := 1
	splitCols := make([][]string, len(values))
	for i, val := range values {
		text := strings.TrimSpace(val)
		if text == "" {
			text = "-"
		}
		lines := pdf.SplitText(text, widths[i]-2)
		if len(lines) == 0 {
			lines = []string{""}
		}
		splitCols[i] = lines
		if len(lines) > maxLines {
			maxLines = len(lines)
		}
	}
	rowHeight := float64(maxLines) * lineHeight
	x := xStart
	for i, lines := range splitCols {
		pdf.SetXY(x, yStart)
		pdf.MultiCell(widths[i], lineHeight, strings.Join(lines, "\n"), "1", "L", false)
		x += widths[i]
	}
	pdf.SetXY(xStart, yStart+rowHeight)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}

func emptyFallback(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}
