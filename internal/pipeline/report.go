package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"vigil/internal/risk"
	"vigil/internal/services"
	"vigil/internal/sqliteutil"
)

// ReportRisk is one still-pending trigger rendered for operator review.
type ReportRisk struct {
	TriggerID   int64   `json:"trigger_id"`
	Timestamp   float64 `json:"timestamp"`
	Source      string  `json:"source"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description"`
	RiskName    string  `json:"risk_name"`
	RiskLevel   string  `json:"risk_level"`
}

// Report lists the still-pending triggers of a video as open risks.
// TotalTriggers records how many were ever saved so reviewers can see how
// much has already been adjudicated.
type Report struct {
	VideoID         string         `json:"video_id"`
	GeneratedAt     time.Time      `json:"generated_at"`
	TotalTriggers   int            `json:"total_triggers"`
	PendingTriggers int            `json:"pending_triggers"`
	CountsBySource  map[string]int `json:"counts_by_source"`
	Risks           []ReportRisk   `json:"risks"`
}

// CompileReport builds a moderation report from the trigger table. The body
// is read back from storage at compile time and covers only pending
// triggers, so a report generated after adjudication excludes everything
// already decided.
func (s *Store) CompileReport(ctx context.Context, videoID string, catalog *risk.Catalog) (*Report, error) {
	ctx = sqliteutil.EnsureContext(ctx)
	video, err := s.VideoByID(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if video == nil {
		return nil, services.Wrap(services.ErrNotFound, "", "compile report", fmt.Sprintf("video %s not found", videoID), nil)
	}

	total, err := s.CountTriggers(ctx, videoID)
	if err != nil {
		return nil, err
	}
	pending, err := s.PendingTriggersByVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}

	report := &Report{
		VideoID:         videoID,
		GeneratedAt:     time.Now().UTC(),
		TotalTriggers:   total,
		PendingTriggers: len(pending),
		CountsBySource:  make(map[string]int),
	}
	for _, trigger := range pending {
		report.CountsBySource[trigger.Source]++

		entry := ReportRisk{
			TriggerID:   trigger.ID,
			Timestamp:   trigger.TimestampOffset,
			Source:      trigger.Source,
			Confidence:  trigger.Confidence,
			Description: describeTrigger(trigger),
			RiskName:    trigger.Source,
			RiskLevel:   "unknown",
		}
		if catalog != nil {
			if def, ok := catalog.Lookup(trigger.Source); ok {
				entry.RiskName = def.Name
				entry.RiskLevel = def.Level
			}
		}
		report.Risks = append(report.Risks, entry)
	}
	return report, nil
}

// describeTrigger renders a human-readable line for one detection, pulling
// the matched word, brand, label, or text out of the detector payload.
func describeTrigger(trigger *Trigger) string {
	switch trigger.Source {
	case SourceWhisperProfanity:
		if word := stringField(trigger.Data, "matched_word"); word != "" {
			return fmt.Sprintf("profanity %q detected in speech", word)
		}
		return "profanity detected in speech"
	case SourceWhisperBrand:
		if brand := stringField(trigger.Data, "matched_brand"); brand != "" {
			return fmt.Sprintf("brand mention %q detected in speech", brand)
		}
		return "brand mention detected in speech"
	case SourceFalconsaiNSFW:
		return fmt.Sprintf("NSFW frame content (score %.2f)", trigger.Confidence)
	case SourceViolenceDetector:
		return fmt.Sprintf("violent frame content (score %.2f)", trigger.Confidence)
	case SourceYOLOObject:
		if label := stringField(trigger.Data, "label"); label != "" {
			return fmt.Sprintf("flagged object %q in frame", label)
		}
		return "flagged object in frame"
	case SourceEasyOCRText:
		if text := stringField(trigger.Data, "text"); text != "" {
			return fmt.Sprintf("on-screen text %q matched watchlist", text)
		}
		return "on-screen text matched watchlist"
	default:
		return fmt.Sprintf("flagged by %s", trigger.Source)
	}
}

func stringField(data map[string]any, key string) string {
	if data == nil {
		return ""
	}
	value, ok := data[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}
