package domain

import "time"

// Stage is one sequential step of the per-item pipeline.
type Stage string

const (
	StageItem       Stage = "item"
	StageDownload   Stage = "download"
	StageTranscribe Stage = "transcribe"
	StageCorrect    Stage = "correct"
	StageFormat     Stage = "format"
	StageInternal   Stage = "internal"
)

// WorkItem is one URL plus its position in the batch.
type WorkItem struct {
	URL   string `json:"url"`
	Index int    `json:"index"`
}

// StageError describes where and why an item failed.
type StageError struct {
	Stage   Stage       `json:"stage"`
	Kind    FailureKind `json:"kind,omitempty"`
	Message string      `json:"message"`
}

// Artifacts collects everything an item produced.
type Artifacts struct {
	AudioPath       string    `json:"audio_path,omitempty"`
	Title           string    `json:"title,omitempty"`
	DurationSeconds float64   `json:"duration_seconds,omitempty"`
	FileSizeBytes   int64     `json:"file_size_bytes,omitempty"`
	Language        string    `json:"language,omitempty"`
	Segments        []Segment `json:"segments,omitempty"`
	Transcript      string    `json:"transcript,omitempty"`
	CorrectedText   string    `json:"corrected_text,omitempty"`
	Summary         string    `json:"summary,omitempty"`
	Keywords        []string  `json:"keywords,omitempty"`
	OutputFiles     []string  `json:"output_files,omitempty"`
}

// Produced reports whether any stage left something behind.
func (a *Artifacts) Produced() bool {
	return a.AudioPath != "" || a.Title != "" || a.Transcript != "" ||
		len(a.Segments) > 0 || a.CorrectedText != "" || len(a.OutputFiles) > 0
}

// ItemResult is the terminal outcome for one WorkItem.
type ItemResult struct {
	Item      WorkItem      `json:"item"`
	Success   bool          `json:"success"`
	Artifacts *Artifacts    `json:"artifacts,omitempty"`
	Error     *StageError   `json:"error,omitempty"`
	Attempts  map[Stage]int `json:"attempts,omitempty"`
	Cached    bool          `json:"cached"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Bytes returns the downloaded size attributed to the item.
func (r ItemResult) Bytes() int64 {
	if r.Artifacts == nil {
		return 0
	}
	return r.Artifacts.FileSizeBytes
}

// MediaSeconds returns the media duration attributed to the item.
func (r ItemResult) MediaSeconds() float64 {
	if r.Artifacts == nil {
		return 0
	}
	return r.Artifacts.DurationSeconds
}

// FailedResult builds a failed ItemResult for the given stage.
func FailedResult(item WorkItem, stage Stage, kind FailureKind, message string) ItemResult {
	return ItemResult{
		Item:    item,
		Success: false,
		Error:   &StageError{Stage: stage, Kind: kind, Message: message},
	}
}

// BatchReport aggregates the results of one batch run.
type BatchReport struct {
	RunID     string
	Results   []ItemResult
	Succeeded int
	Failed    int
	StartedAt time.Time
	Elapsed   time.Duration
}

// NewBatchReport counts successes and failures over results.
func NewBatchReport(runID string, results []ItemResult, startedAt time.Time, elapsed time.Duration) *BatchReport {
	report := &BatchReport{
		RunID:     runID,
		Results:   results,
		StartedAt: startedAt,
		Elapsed:   elapsed,
	}
	for _, r := range results {
		if r.Success {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}
	return report
}

// FailedResults returns only the failed results
func (r *BatchReport) FailedResults() []ItemResult {
	var failed []ItemResult
	for _, res := range r.Results {
		if !res.Success {
			failed = append(failed, res)
		}
	}
	return failed
}
