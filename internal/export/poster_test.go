package export

import (
	"strings"
	"testing"
)

func TestRenderHTML(t *testing.T) {
	html, err := RenderHTML(Poster{
		Title:    "Willow Creek Dairy",
		Tagline:  "Raw milk & aged cheese",
		Region:   "Willamette Valley",
		Producer: "Marta Reyes",
		Products: []string{"Tomme", "Yogurt"},
		ShareURL: "https://terroir.example/stories/willow-creek",
		QRPNG:    []byte{0x89, 0x50, 0x4e, 0x47},
	})
	if err != nil {
		t.Fatalf("RenderHTML() error = %v", err)
	}

	for _, want := range []string{
		"Willow Creek Dairy",
		"Raw milk &amp; aged cheese",
		"Willamette Valley",
		"Marta Reyes",
		"<li>Tomme</li>",
		"https://terroir.example/stories/willow-creek",
		"data:image/png;base64,",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("poster html missing %q", want)
		}
	}
}

func TestRenderHTMLEscapesMarkup(t *testing.T) {
	html, err := RenderHTML(Poster{Title: `<script>alert("x")</script>`})
	if err != nil {
		t.Fatalf("RenderHTML() error = %v", err)
	}
	if strings.Contains(html, "<script>alert") {
		t.Fatal("title markup was not escaped")
	}
}

func TestPercentEncodeEmitsUTF8Bytes(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a b", "a%20b"},
		{"crème", "cr%C3%A8me"},
		{"麦", "%E9%BA%A6"},
		{"plain-safe_.~", "plain-safe_.~"},
	}
	for _, tt := range tests {
		if got := percentEncode(tt.in); got != tt.want {
			t.Errorf("percentEncode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Willow Creek Dairy", "Willow-Creek-Dairy"},
		{"crème / fraîche!", "crme--frache"},
		{"", "story"},
		{strings.Repeat("a", 80), strings.Repeat("a", 50)},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
