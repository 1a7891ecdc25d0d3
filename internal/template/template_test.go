package template

import "testing"

func TestLookup(t *testing.T) {
	tmpl, ok := Lookup("farm-story")
	if !ok || tmpl.ID != "farm-story" {
		t.Fatalf("expected farm-story, got %+v ok=%v", tmpl, ok)
	}
	if _, ok := Lookup("no-such-template"); ok {
		t.Fatal("expected lookup miss")
	}
}

func TestAllowsConcretePaths(t *testing.T) {
	tmpl, _ := Lookup("farm-story")

	allowed := []string{
		"heroTitle",
		"steps.0.title",
		"steps.12.text",
		"galleryImages.3",
		"testimonials.0.quote",
	}
	for _, path := range allowed {
		if !tmpl.Allows(path) {
			t.Fatalf("expected %q allowed", path)
		}
	}

	rejected := []string{
		"heroTitle.0",
		"steps.title",
		"steps.x.title",
		"steps.0",
		"galleryImages",
		"ownerPassword",
		"",
	}
	for _, path := range rejected {
		if tmpl.Allows(path) {
			t.Fatalf("expected %q rejected", path)
		}
	}
}

// A wildcard segment admits only indices a story section can actually hold;
// the patch applier grows arrays to the addressed index, so an unbounded
// index here would be an unbounded allocation there.
func TestAllowsBoundsArrayIndices(t *testing.T) {
	tmpl, _ := Lookup("farm-story")

	if !tmpl.Allows("steps.100.title") {
		t.Fatal("expected index at the cap allowed")
	}
	for _, path := range []string{
		"steps.101.title",
		"steps.5000000.title",
		"steps.999999999999.title",
		"galleryImages.123456789012345678901234567890",
	} {
		if tmpl.Allows(path) {
			t.Fatalf("expected %q rejected", path)
		}
	}
}

func TestDefaultDocumentIsACopy(t *testing.T) {
	tmpl, _ := Lookup("farm-story")

	first := tmpl.DefaultDocument()
	first["heroTitle"] = "mutated"
	first["steps"].([]any)[0].(map[string]any)["title"] = "mutated"

	second := tmpl.DefaultDocument()
	if second["heroTitle"] == "mutated" {
		t.Fatal("default document shared between drafts")
	}
	if second["steps"].([]any)[0].(map[string]any)["title"] == "mutated" {
		t.Fatal("nested defaults shared between drafts")
	}
}
