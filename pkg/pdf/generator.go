package pdf

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Options configures certificate rendering
type Options struct {
	PageSize      string  `json:"page_size"`
	Orientation   string  `json:"orientation"`
	FontFamily    string  `json:"font_family"`
	FontSize      float64 `json:"font_size"`
	TitleFontSize float64 `json:"title_font_size"`
	DateFormat    string  `json:"date_format"`
	HeaderColor   Color   `json:"header_color"`
	AlternateRows bool    `json:"alternate_rows"`
	AlternateFill Color   `json:"alternate_fill"`
	Margins       Margins `json:"margins"`
}

// Color represents an RGB color
type Color struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

// Margins represents page margins in millimetres
type Margins struct {
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
}

// DefaultOptions returns the A4 portrait layout
func DefaultOptions() Options {
	return Options{
		PageSize:      "A4",
		Orientation:   "portrait",
		FontFamily:    "Arial",
		FontSize:      10,
		TitleFontSize: 18,
		DateFormat:    "2006-01-02 15:04:05 MST",
		HeaderColor:   Color{R: 46, G: 125, B: 50},
		AlternateRows: true,
		AlternateFill: Color{R: 242, G: 242, B: 242},
		Margins:       Margins{Left: 15, Right: 15, Top: 20, Bottom: 20},
	}
}

// CertificateData is everything printed on a certificate
type CertificateData struct {
	ProductName string
	AssetID     string
	Serial      int64
	Reference   string
	Locator     string
	ContentID   string
	MintedAt    time.Time
	Owner       string
	// Attestation holds the published payload fields, printed sorted by key
	Attestation map[string]interface{}
	GeneratedAt time.Time
}

// Generator renders verification certificates. It keeps no per-document
// state and may be shared across requests.
type Generator struct {
	options Options
}

// NewGenerator creates a generator
func NewGenerator(options Options) *Generator {
	return &Generator{options: options}
}

// Certificate renders one certificate and returns the PDF bytes
func (g *Generator) Certificate(data CertificateData) ([]byte, error) {
	orientation := "P"
	if g.options.Orientation == "landscape" {
		orientation = "L"
	}

	pdf := gofpdf.New(orientation, "mm", g.options.PageSize, "")
	pdf.SetMargins(g.options.Margins.Left, g.options.Margins.Top, g.options.Margins.Right)
	pdf.SetAutoPageBreak(true, g.options.Margins.Bottom)
	pdf.SetTitle("Certificate of Authenticity", true)
	if !data.GeneratedAt.IsZero() {
		pdf.SetCreationDate(data.GeneratedAt)
	}
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	g.setFooter(pdf, tr)
	pdf.AddPage()

	pdf.SetFont(g.options.FontFamily, "B", g.options.TitleFontSize)
	pdf.SetTextColor(g.options.HeaderColor.R, g.options.HeaderColor.G, g.options.HeaderColor.B)
	pdf.CellFormat(0, 12, "Certificate of Authenticity", "", 1, "C", false, 0, "")

	if data.ProductName != "" {
		pdf.SetFont(g.options.FontFamily, "", g.options.FontSize+4)
		pdf.SetTextColor(60, 60, 60)
		pdf.CellFormat(0, 9, tr(data.ProductName), "", 1, "C", false, 0, "")
	}
	pdf.Ln(8)

	g.addSection(pdf, tr, "Ledger record", [][2]string{
		{"Asset", data.AssetID},
		{"Serial", fmt.Sprintf("%d", data.Serial)},
		{"Minted", g.formatTime(data.MintedAt)},
		{"Owner", data.Owner},
		{"Attestation", data.Locator},
		{"Content ID", data.ContentID},
	})

	if len(data.Attestation) > 0 {
		keys := make([]string, 0, len(data.Attestation))
		for k := range data.Attestation {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		rows := make([][2]string, 0, len(keys))
		for _, k := range keys {
			rows = append(rows, [2]string{k, g.formatValue(data.Attestation[k])})
		}
		pdf.Ln(6)
		g.addSection(pdf, tr, "Attested data", rows)
	}

	pdf.Ln(8)
	pdf.SetFont(g.options.FontFamily, "", g.options.FontSize-1)
	pdf.SetTextColor(90, 90, 90)
	pdf.MultiCell(0, 5, tr("Verify independently at "+data.Reference), "", "L", false)

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("failed to render certificate: %w", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write certificate: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *Generator) addSection(pdf *gofpdf.Fpdf, tr func(string) string, title string, rows [][2]string) {
	pdf.SetFont(g.options.FontFamily, "B", g.options.FontSize+2)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 8, title, "", 1, "L", false, 0, "")

	pageWidth, _ := pdf.GetPageSize()
	available := pageWidth - g.options.Margins.Left - g.options.Margins.Right
	labelWidth := 45.0

	for i, row := range rows {
		if row[1] == "" {
			continue
		}
		if g.options.AlternateRows && i%2 == 1 {
			pdf.SetFillColor(g.options.AlternateFill.R, g.options.AlternateFill.G, g.options.AlternateFill.B)
		} else {
			pdf.SetFillColor(255, 255, 255)
		}
		pdf.SetFont(g.options.FontFamily, "B", g.options.FontSize)
		pdf.CellFormat(labelWidth, 7, tr(row[0]), "1", 0, "L", true, 0, "")
		pdf.SetFont(g.options.FontFamily, "", g.options.FontSize)
		pdf.CellFormat(available-labelWidth, 7, tr(g.truncate(pdf, row[1], available-labelWidth-2)), "1", 1, "L", true, 0, "")
	}
}

// truncate shortens s until it fits width
func (g *Generator) truncate(pdf *gofpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && pdf.GetStringWidth(string(r)+"...") > width {
		r = r[:len(r)-1]
	}
	return string(r) + "..."
}

func (g *Generator) formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(g.options.DateFormat)
}

func (g *Generator) formatValue(val interface{}) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "Yes"
		}
		return "No"
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (g *Generator) setFooter(pdf *gofpdf.Fpdf, tr func(string) string) {
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(g.options.FontFamily, "", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 10, tr(fmt.Sprintf("Page %d", pdf.PageNo())), "", 0, "C", false, 0, "")
	})
}
