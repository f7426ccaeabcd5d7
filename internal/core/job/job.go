package job

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a job. Transitions are strictly
// queued -> processing -> completed|failed; terminal states never change.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status is completed or failed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Progress is a best-effort snapshot of what the engine process is doing,
// scraped from its stderr. Current/Total are zero for stages that have no
// segment counter.
type Progress struct {
	Stage   string `json:"stage"`
	Current int    `json:"current,omitempty"`
	Total   int    `json:"total,omitempty"`
}

// Overrides are per-job parameter overrides. Nil fields fall back to the
// profile defaults at command-build time.
type Overrides struct {
	Temperature   *float64 `json:"temperature,omitempty"`
	InitialPrompt *string  `json:"initial_prompt,omitempty"`
	VADMergeGap   *float64 `json:"vad_merge_gap,omitempty"`
	VADMaxChunk   *float64 `json:"vad_max_chunk,omitempty"`
	VADSplitGap   *float64 `json:"vad_split_gap,omitempty"`
}

// Job is one transcription request. Result and Error are mutually
// exclusive and gated by Status; Progress is only set while processing.
type Job struct {
	ID           string          `json:"id"`
	Profile      string          `json:"profile"`
	InputPath    string          `json:"-"`
	Overrides    Overrides       `json:"overrides,omitempty"`
	Status       Status          `json:"status"`
	Progress     *Progress       `json:"progress,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	LastPolledAt time.Time       `json:"-"`
}

// clone returns a deep copy so readers never alias store-internal state.
func (j *Job) clone() Job {
	c := *j
	if j.Progress != nil {
		p := *j.Progress
		c.Progress = &p
	}
	if j.Result != nil {
		c.Result = append(json.RawMessage(nil), j.Result...)
	}
	c.Overrides = j.Overrides.clone()
	return c
}

func (o Overrides) clone() Overrides {
	c := o
	if o.Temperature != nil {
		v := *o.Temperature
		c.Temperature = &v
	}
	if o.InitialPrompt != nil {
		v := *o.InitialPrompt
		c.InitialPrompt = &v
	}
	if o.VADMergeGap != nil {
		v := *o.VADMergeGap
		c.VADMergeGap = &v
	}
	if o.VADMaxChunk != nil {
		v := *o.VADMaxChunk
		c.VADMaxChunk = &v
	}
	if o.VADSplitGap != nil {
		v := *o.VADSplitGap
		c.VADSplitGap = &v
	}
	return c
}
