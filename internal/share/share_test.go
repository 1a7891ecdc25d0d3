package share

import (
	"bytes"
	"testing"
)

func TestStoryURL(t *testing.T) {
	got := StoryURL("https://terroir.example/", "willow-creek-dairy")
	want := "https://terroir.example/stories/willow-creek-dairy"
	if got != want {
		t.Fatalf("StoryURL() = %q, want %q", got, want)
	}

	// Slugs should survive characters that need escaping.
	got = StoryURL("https://terroir.example", "crème fraîche")
	if got != "https://terroir.example/stories/cr%C3%A8me%20fra%C3%AEche" {
		t.Fatalf("unexpected escaped url: %q", got)
	}
}

func TestQRPNG(t *testing.T) {
	data, err := QRPNG("https://terroir.example/stories/s1", 0)
	if err != nil {
		t.Fatalf("QRPNG() error = %v", err)
	}

	pngMagic := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	if !bytes.HasPrefix(data, pngMagic) {
		t.Fatalf("expected PNG output, got prefix %x", data[:8])
	}
}
