package risk_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vigil/internal/risk"
)

func TestDefaultCatalogCoversDetectorSources(t *testing.T) {
	catalog := risk.Default()
	sources := []string{
		"whisper_profanity",
		"whisper_brand",
		"falconsai_nsfw",
		"violence_detector",
		"yolo_object",
		"easyocr_text",
	}
	for _, source := range sources {
		def, ok := catalog.Lookup(source)
		if !ok {
			t.Fatalf("expected embedded definition for %s", source)
		}
		if def.Name == "" || def.Description == "" {
			t.Fatalf("definition for %s missing name or description: %+v", source, def)
		}
		switch def.Level {
		case risk.LevelLow, risk.LevelMedium, risk.LevelHigh:
		default:
			t.Fatalf("definition for %s has invalid level %q", source, def.Level)
		}
	}
	if _, ok := catalog.Lookup("unknown_model"); ok {
		t.Fatal("expected lookup miss for unknown source")
	}
}

func TestLoadOverlayReplacesAndAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.toml")
	overlay := `[[definitions]]
source = "whisper_brand"
name = "Sponsored mention"
description = "Brand term matched in speech."
level = "medium"

[[definitions]]
source = "custom_detector"
name = "Custom detector"
description = "Site-specific detector."
level = "high"
`
	if err := os.WriteFile(path, []byte(overlay), 0o644); err != nil {
		t.Fatalf("write overlay: %v", err)
	}

	catalog, err := risk.Load(path)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}

	brand, ok := catalog.Lookup("whisper_brand")
	if !ok {
		t.Fatal("expected whisper_brand definition")
	}
	if brand.Name != "Sponsored mention" || brand.Level != risk.LevelMedium {
		t.Fatalf("overlay did not replace whisper_brand: %+v", brand)
	}

	custom, ok := catalog.Lookup("custom_detector")
	if !ok {
		t.Fatal("expected custom_detector definition")
	}
	if custom.Level != risk.LevelHigh {
		t.Fatalf("unexpected custom_detector level %q", custom.Level)
	}

	if _, ok := catalog.Lookup("whisper_profanity"); !ok {
		t.Fatal("embedded definitions should survive the overlay")
	}

	defs := catalog.Definitions()
	if len(defs) != 7 {
		t.Fatalf("expected 7 definitions after overlay, got %d", len(defs))
	}
	if defs[len(defs)-1].Source != "custom_detector" {
		t.Fatalf("expected appended source last, got %s", defs[len(defs)-1].Source)
	}
}

func TestLoadEmptyPathReturnsDefault(t *testing.T) {
	catalog, err := risk.Load("")
	if err != nil {
		t.Fatalf("load default: %v", err)
	}
	if len(catalog.Definitions()) == 0 {
		t.Fatal("expected embedded definitions")
	}
}

func TestLoadRejectsInvalidLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.toml")
	overlay := `[[definitions]]
source = "whisper_brand"
name = "Sponsored mention"
description = "Brand term matched in speech."
level = "critical"
`
	if err := os.WriteFile(path, []byte(overlay), 0o644); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	if _, err := risk.Load(path); err == nil || !strings.Contains(err.Error(), "level must be one of") {
		t.Fatalf("expected level validation error, got %v", err)
	}
}
