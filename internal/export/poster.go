// Package export renders printable market-stall posters for published
// stories using headless Chrome.
package export

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// ErrPDFDependencyMissing indicates the headless Chrome runtime is unavailable.
var ErrPDFDependencyMissing = errors.New("export pdf dependency missing")

// Poster holds the fields rendered onto a market-stall poster.
type Poster struct {
	Title    string
	Tagline  string
	Region   string
	Producer string
	Products []string
	HeroURL  string
	ShareURL string
	QRPNG    []byte // rendered inline as a data URL
}

// Result is the finished poster file.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var posterTemplate = template.Must(template.New("poster").Parse(posterHTML))

type posterData struct {
	Poster
	QRDataURL template.URL
}

// RenderHTML builds the poster page. Split from PDF generation so it can
// be tested without a Chrome install.
func RenderHTML(p Poster) (string, error) {
	data := posterData{Poster: p}
	if len(p.QRPNG) > 0 {
		data.QRDataURL = template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(p.QRPNG))
	}
	var buf bytes.Buffer
	if err := posterTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render poster template: %w", err)
	}
	return buf.String(), nil
}

// GeneratePoster renders the poster to a PDF via headless Chrome.
func GeneratePoster(p Poster) (*Result, error) {
	html, err := RenderHTML(p)
	if err != nil {
		return nil, err
	}

	if _, err := exec.LookPath("chromium-browser"); err != nil {
		if _, fallbackErr := exec.LookPath("chromium"); fallbackErr != nil {
			return nil, fmt.Errorf("%w: chromium not installed", ErrPDFDependencyMissing)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	// url.QueryEscape uses + for spaces, which data URLs reject.
	dataURL := "data:text/html;charset=utf-8," + percentEncode(html)

	var pdfData []byte
	err = chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdfData, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(8.27). // A4 portrait
				WithPaperHeight(11.69).
				WithMarginTop(0).
				WithMarginBottom(0).
				WithMarginLeft(0).
				WithMarginRight(0).
				WithPreferCSSPageSize(true).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("chrome pdf generation failed: %w", err)
	}

	return &Result{
		Data:     pdfData,
		Filename: sanitizeFilename(p.Title) + "-poster.pdf",
		MimeType: "application/pdf",
	}, nil
}

func percentEncode(s string) string {
	var result strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '-', r == '_', r == '.', r == '~':
			result.WriteRune(r)
		case r == ' ':
			result.WriteString("%20")
		default:
			for _, b := range []byte(string(r)) {
				result.WriteString(fmt.Sprintf("%%%02X", b))
			}
		}
	}
	return result.String()
}

func sanitizeFilename(title string) string {
	result := ""
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			result += string(r)
		case r == ' ':
			result += "-"
		case r == '-', r == '_':
			result += string(r)
		}
	}
	if len(result) > 50 {
		result = result[:50]
	}
	if result == "" {
		result = "story"
	}
	return result
}

const posterHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    @page { size: A4 portrait; margin: 0; }
    body { font-family: Georgia, serif; margin: 0; color: #2b2620; }
    .hero { width: 100%; height: 40vh; object-fit: cover; display: block; }
    .inner { padding: 2.5rem 3rem; }
    h1 { font-size: 2.6rem; margin: 0 0 0.3rem; }
    .tagline { font-size: 1.3rem; font-style: italic; color: #6b5d4f; margin: 0 0 1.5rem; }
    .region { text-transform: uppercase; letter-spacing: 0.15em; font-size: 0.85rem; color: #8a7a66; }
    ul.products { list-style: none; padding: 0; font-size: 1.1rem; }
    ul.products li { padding: 0.25rem 0; border-bottom: 1px solid #e5ddd2; }
    .footer { display: flex; align-items: center; gap: 1.5rem; margin-top: 2rem; }
    .footer img { width: 140px; height: 140px; }
    .footer .url { font-size: 0.9rem; color: #6b5d4f; word-break: break-all; }
  </style>
</head>
<body>
  {{if .HeroURL}}<img class="hero" src="{{.HeroURL}}" alt="">{{end}}
  <div class="inner">
    <p class="region">{{.Region}}</p>
    <h1>{{.Title}}</h1>
    {{if .Tagline}}<p class="tagline">{{.Tagline}}</p>{{end}}
    {{if .Producer}}<p>by {{.Producer}}</p>{{end}}
    {{if .Products}}
    <ul class="products">
      {{range .Products}}<li>{{.}}</li>{{end}}
    </ul>
    {{end}}
    <div class="footer">
      {{if .QRDataURL}}<img src="{{.QRDataURL}}" alt="scan to read the full story">{{end}}
      <div>
        <p>Scan to read the full story</p>
        <p class="url">{{.ShareURL}}</p>
      </div>
    </div>
  </div>
</body>
</html>`
