package stages

import (
	"context"
	"strings"

	"golang.org/x/text/cases"

	"vigil/internal/inference"
	"vigil/internal/logging"
	"vigil/internal/pipeline"
	"vigil/internal/services"
)

// Confidence assigned to lexical matches. Term hits are deterministic string
// matches, so profanity carries a fixed high confidence and brand mentions a
// slightly lower one.
const (
	profanityConfidence = 0.9
	brandConfidence     = 0.8
)

type term struct {
	display string
	folded  string
}

// Scanner matches configured profanity and brand term lists against
// transcript segments. Matching is case-folded so terms hit regardless of
// letter case, including non-ASCII alphabets.
type Scanner struct {
	profanity []term
	brand     []term
}

// NewScanner folds and deduplicates the configured term lists once so every
// Scan call only folds the segment text.
func NewScanner(profanity, brand []string) *Scanner {
	folder := cases.Fold()
	return &Scanner{
		profanity: foldTerms(folder, profanity),
		brand:     foldTerms(folder, brand),
	}
}

// Scan walks every transcript segment and returns one detection per matched
// term. A segment matching several terms yields several detections.
func (s *Scanner) Scan(segments []inference.Segment) []pipeline.Detection {
	if s == nil || len(segments) == 0 {
		return nil
	}

	// Casers are stateful, so each Scan folds with its own.
	folder := cases.Fold()
	var hits []pipeline.Detection
	for _, segment := range segments {
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		folded := folder.String(text)
		for _, t := range s.profanity {
			if strings.Contains(folded, t.folded) {
				hits = append(hits, pipeline.Detection{
					TimestampOffset: segment.Start,
					Source:          pipeline.SourceWhisperProfanity,
					Confidence:      profanityConfidence,
					Data: map[string]any{
						"text":         text,
						"matched_word": t.display,
					},
				})
			}
		}
		for _, t := range s.brand {
			if strings.Contains(folded, t.folded) {
				hits = append(hits, pipeline.Detection{
					TimestampOffset: segment.Start,
					Source:          pipeline.SourceWhisperBrand,
					Confidence:      brandConfidence,
					Data: map[string]any{
						"text":          text,
						"matched_brand": t.display,
					},
				})
			}
		}
	}
	return hits
}

func foldTerms(folder cases.Caser, raw []string) []term {
	seen := make(map[string]struct{}, len(raw))
	terms := make([]term, 0, len(raw))
	for _, entry := range raw {
		display := strings.TrimSpace(entry)
		if display == "" {
			continue
		}
		folded := folder.String(display)
		if _, dup := seen[folded]; dup {
			continue
		}
		seen[folded] = struct{}{}
		terms = append(terms, term{display: display, folded: folded})
	}
	return terms
}

// LexicalScan matches the transcript against the configured term lists and
// records one detection per hit on the audio branch. The hit set is written
// into the workspace so a resumed run that skips this stage still carries it
// into the compile step.
func (r *Runner) LexicalScan(ctx context.Context, st *State) error {
	transcript := st.Audio.Transcript
	if transcript == nil {
		loaded, err := loadTranscript(st.Workspace.TranscriptPath())
		if err != nil {
			return services.Wrap(services.ErrValidation, pipeline.StageLexicalScan, "load transcript",
				"transcript unavailable; transcription has not produced one", err)
		}
		transcript = loaded
		st.Audio.Transcript = transcript
	}

	hits := r.scanner.Scan(transcript.Segments)
	st.Audio.Detections = hits

	if err := saveDetections(st.Workspace.LexicalDetectionsPath(), hits); err != nil {
		return services.Wrap(services.ErrTransient, pipeline.StageLexicalScan, "persist detections",
			"could not persist the lexical detections artifact", err)
	}

	logging.WithContext(ctx, r.logger).Info("lexical scan complete",
		logging.Int("segments", len(transcript.Segments)),
		logging.Int("matches", len(hits)),
	)
	return nil
}
