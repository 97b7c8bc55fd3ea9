package pipeline

import (
	"strings"
	"time"
)

// VideoStatus represents the lifecycle of a submitted video.
type VideoStatus string

const (
	VideoUploaded     VideoStatus = "uploaded"
	VideoProcessing   VideoStatus = "processing"
	VideoVerification VideoStatus = "verification"
	VideoCompleted    VideoStatus = "completed"
	VideoFailed       VideoStatus = "failed"
)

var allVideoStatuses = []VideoStatus{
	VideoUploaded,
	VideoProcessing,
	VideoVerification,
	VideoCompleted,
	VideoFailed,
}

var videoStatusSet = func() map[VideoStatus]struct{} {
	set := make(map[VideoStatus]struct{}, len(allVideoStatuses))
	for _, status := range allVideoStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllVideoStatuses returns the ordered list of known video statuses.
func AllVideoStatuses() []VideoStatus {
	cp := make([]VideoStatus, len(allVideoStatuses))
	copy(cp, allVideoStatuses)
	return cp
}

// ParseVideoStatus converts a string into a known VideoStatus.
func ParseVideoStatus(value string) (VideoStatus, bool) {
	normalized := VideoStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := videoStatusSet[normalized]
	return normalized, ok
}

// Video represents a registered video persisted in SQLite.
type Video struct {
	ID              string
	OriginalName    string
	SourcePath      string
	SizeBytes       int64
	DurationSeconds float64
	Format          string
	Status          VideoStatus
	StatusMessage   string
	UploadedAt      time.Time
	ProcessedAt     *time.Time
}

// ExecutionStatus represents the lifecycle of a pipeline execution.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// ParseExecutionStatus converts a string into a known ExecutionStatus.
func ParseExecutionStatus(value string) (ExecutionStatus, bool) {
	normalized := ExecutionStatus(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case ExecutionPending, ExecutionRunning, ExecutionCompleted, ExecutionFailed:
		return normalized, true
	}
	return "", false
}

// TraceEntry is one append-only error_trace record. Later successes never
// remove earlier entries.
type TraceEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Stage     string    `json:"stage"`
	Message   string    `json:"message"`
}

// Execution represents the durable per-video pipeline record: current stage,
// resume checkpoint, progress, retry bookkeeping, and metering accumulators.
type Execution struct {
	ID                 int64
	VideoID            string
	Status             ExecutionStatus
	CurrentStage       string
	LastCompletedStage string
	Progress           int
	RetryCount         int
	ErrorTrace         []TraceEntry
	StartedAt          *time.Time
	CompletedAt        *time.Time
	ProcessingSeconds  float64
	APICallCount       int
	CostEstimate       float64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// AppendTrace records a stage error without touching earlier entries.
func (e *Execution) AppendTrace(stage, message string) {
	e.ErrorTrace = append(e.ErrorTrace, TraceEntry{
		Timestamp: time.Now().UTC(),
		Stage:     stage,
		Message:   message,
	})
}

// AdvanceProgress raises progress to the given checkpoint. Progress is
// monotonic; a lower value is ignored so resume never regresses.
func (e *Execution) AdvanceProgress(progress int) {
	if progress > e.Progress {
		e.Progress = progress
	}
}

// AdvanceCheckpoint moves last_completed_stage forward along the canonical
// stage order. A stage ranked at or below the current checkpoint is ignored.
func (e *Execution) AdvanceCheckpoint(stage string) {
	if StageRank(stage) > StageRank(e.LastCompletedStage) {
		e.LastCompletedStage = stage
	}
}

// Pipeline stage names, in canonical checkpoint order.
const (
	StagePreprocess    = "preprocess"
	StageExtractAudio  = "extract_audio"
	StageExtractFrames = "extract_frames"
	StageTranscribe    = "transcribe"
	StageFrameAnalysis = "frame_analysis"
	StageLexicalScan   = "lexical_scan"
	StageCompileReport = "compile_report"
)

// Progress checkpoints outside the per-stage table.
const (
	ProgressSubmitted = 5
	ProgressComplete  = 100
)

// stageOrder doubles as the checkpoint order: a checkpoint at index i means
// every stage at or below i has completed.
var stageOrder = []string{
	StagePreprocess,
	StageExtractAudio,
	StageExtractFrames,
	StageTranscribe,
	StageFrameAnalysis,
	StageLexicalScan,
	StageCompileReport,
}

var stageProgress = map[string]int{
	StagePreprocess:    10,
	StageExtractAudio:  20,
	StageExtractFrames: 30,
	StageTranscribe:    40,
	StageFrameAnalysis: 50,
	StageLexicalScan:   80,
	StageCompileReport: 90,
}

var stageRanks = func() map[string]int {
	ranks := make(map[string]int, len(stageOrder))
	for i, stage := range stageOrder {
		ranks[stage] = i
	}
	return ranks
}()

// StageOrder returns the canonical stage sequence.
func StageOrder() []string {
	cp := make([]string, len(stageOrder))
	copy(cp, stageOrder)
	return cp
}

// StageRank returns the position of a stage in the checkpoint order, or -1
// for an empty or unknown stage name.
func StageRank(stage string) int {
	rank, ok := stageRanks[stage]
	if !ok {
		return -1
	}
	return rank
}

// KnownStage reports whether the name is one of the pipeline stages.
func KnownStage(stage string) bool {
	_, ok := stageRanks[stage]
	return ok
}

// StageProgress returns the progress checkpoint reached when the stage
// completes.
func StageProgress(stage string) int {
	return stageProgress[stage]
}

// TriggerStatus represents the adjudication state of a trigger.
type TriggerStatus string

const (
	TriggerPending   TriggerStatus = "pending"
	TriggerProcessed TriggerStatus = "processed"
)

// Detector sources, one per model emitting detections.
const (
	SourceWhisperProfanity = "whisper_profanity"
	SourceWhisperBrand     = "whisper_brand"
	SourceFalconsaiNSFW    = "falconsai_nsfw"
	SourceViolenceDetector = "violence_detector"
	SourceYOLOObject       = "yolo_object"
	SourceEasyOCRText      = "easyocr_text"
)

// Decision labels an operator may assign when processing a trigger.
const (
	DecisionOK            = "ok"
	DecisionFalsePositive = "ok_false"
	DecisionBrandAd       = "reklama_brand"
	DecisionProfanity     = "mat_speech"
	DecisionNSFW          = "nsfw_18"
	DecisionViolence      = "violence_18"
)

var decisionLabels = []string{
	DecisionOK,
	DecisionFalsePositive,
	DecisionBrandAd,
	DecisionProfanity,
	DecisionNSFW,
	DecisionViolence,
}

// DecisionLabels returns the accepted adjudication labels.
func DecisionLabels() []string {
	cp := make([]string, len(decisionLabels))
	copy(cp, decisionLabels)
	return cp
}

// ValidDecisionLabel reports whether a label is one of the accepted values.
func ValidDecisionLabel(label string) bool {
	for _, known := range decisionLabels {
		if label == known {
			return true
		}
	}
	return false
}

// Detection is one flagged moment produced by a detector, not yet persisted.
type Detection struct {
	TimestampOffset float64
	Source          string
	Confidence      float64
	Data            map[string]any
}

// Trigger is a persisted detection awaiting (or past) operator adjudication.
type Trigger struct {
	ID              int64
	VideoID         string
	TimestampOffset float64
	Source          string
	Confidence      float64
	Data            map[string]any
	Status          TriggerStatus
	DecisionLabel   string
	DecisionNote    string
	DecidedBy       string
	DecidedAt       *time.Time
	CreatedAt       time.Time
}

// ExecutionSummary describes aggregated execution counts per lifecycle state.
type ExecutionSummary struct {
	Total     int
	Pending   int
	Running   int
	Completed int
	Failed    int
}
