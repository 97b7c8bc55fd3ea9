package stages_test

import (
	"testing"

	"vigil/internal/inference"
	"vigil/internal/pipeline"
	"vigil/internal/stages"
)

func TestScannerMatchesTermsCaseFolded(t *testing.T) {
	scanner := stages.NewScanner(
		[]string{"damn", "чёрт"},
		[]string{"MegaCola"},
	)

	segments := []inference.Segment{
		{Start: 1.5, End: 3.0, Text: "Well DAMN that was loud"},
		{Start: 4.0, End: 6.0, Text: "Пей MEGACOLA каждый день"},
		{Start: 7.0, End: 9.0, Text: "ЧЁРТ возьми"},
		{Start: 10.0, End: 12.0, Text: "nothing to see here"},
	}

	hits := scanner.Scan(segments)
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d: %+v", len(hits), hits)
	}

	profanity := hits[0]
	if profanity.Source != pipeline.SourceWhisperProfanity {
		t.Errorf("source = %s, want %s", profanity.Source, pipeline.SourceWhisperProfanity)
	}
	if profanity.Confidence != 0.9 {
		t.Errorf("profanity confidence = %v, want 0.9", profanity.Confidence)
	}
	if profanity.TimestampOffset != 1.5 {
		t.Errorf("timestamp = %v, want 1.5", profanity.TimestampOffset)
	}
	if profanity.Data["matched_word"] != "damn" {
		t.Errorf("matched_word = %v, want damn", profanity.Data["matched_word"])
	}
	if profanity.Data["text"] != "Well DAMN that was loud" {
		t.Errorf("text payload = %v", profanity.Data["text"])
	}

	brand := hits[1]
	if brand.Source != pipeline.SourceWhisperBrand {
		t.Errorf("source = %s, want %s", brand.Source, pipeline.SourceWhisperBrand)
	}
	if brand.Confidence != 0.8 {
		t.Errorf("brand confidence = %v, want 0.8", brand.Confidence)
	}
	if brand.Data["matched_brand"] != "MegaCola" {
		t.Errorf("matched_brand = %v, want MegaCola", brand.Data["matched_brand"])
	}

	cyrillic := hits[2]
	if cyrillic.Source != pipeline.SourceWhisperProfanity {
		t.Errorf("source = %s, want %s", cyrillic.Source, pipeline.SourceWhisperProfanity)
	}
	if cyrillic.Data["matched_word"] != "чёрт" {
		t.Errorf("matched_word = %v, want чёрт", cyrillic.Data["matched_word"])
	}
}

func TestScannerEmitsOneHitPerMatchedTerm(t *testing.T) {
	scanner := stages.NewScanner([]string{"damn", "hell"}, []string{"MegaCola"})

	hits := scanner.Scan([]inference.Segment{
		{Start: 0, Text: "damn this hell of a MegaCola ad"},
	})
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits from one segment, got %d", len(hits))
	}
}

func TestScannerDeduplicatesConfiguredTerms(t *testing.T) {
	scanner := stages.NewScanner([]string{"damn", "DAMN", "  damn  ", ""}, nil)

	hits := scanner.Scan([]inference.Segment{{Start: 0, Text: "damn"}})
	if len(hits) != 1 {
		t.Fatalf("duplicate config terms should collapse to one hit, got %d", len(hits))
	}
}

func TestScannerIgnoresBlankSegments(t *testing.T) {
	scanner := stages.NewScanner([]string{"damn"}, nil)

	hits := scanner.Scan([]inference.Segment{
		{Start: 0, Text: "   "},
		{Start: 1, Text: ""},
	})
	if len(hits) != 0 {
		t.Fatalf("expected no hits from blank segments, got %d", len(hits))
	}
}
