// Package engine defines the closed set of transcription backends. Each
// engine owns its command-line construction and its progress-line parsing;
// the supervisor's launch/drain/wait/cancel loop is identical across them.
package engine

import (
	"github.com/petergeneric/whisperx-windows-service/internal/core/job"
)

// Profile is a named, immutable engine configuration loaded at startup.
type Profile struct {
	Engine        string  `koanf:"engine" json:"engine"`
	Model         string  `koanf:"model" json:"model"`
	Device        string  `koanf:"device" json:"device"`
	ComputeType   string  `koanf:"compute_type" json:"compute_type,omitempty"`
	Language      string  `koanf:"language" json:"language,omitempty"`
	AlignModel    string  `koanf:"align_model" json:"align_model,omitempty"`
	VADMethod     string  `koanf:"vad_method" json:"vad_method,omitempty"`
	ParakeetModel string  `koanf:"parakeet_model" json:"parakeet_model,omitempty"`
	Temperature   float64 `koanf:"temperature" json:"temperature,omitempty"`
	InitialPrompt string  `koanf:"initial_prompt" json:"initial_prompt,omitempty"`
}

// Invocation is everything an engine needs to build one command line. The
// input path may point at a converted intermediate file rather than the
// original upload.
type Invocation struct {
	JobID     string
	InputPath string
	OutputDir string
	Profile   Profile
	Overrides job.Overrides
}

// Engine is one transcription backend.
type Engine interface {
	Name() string

	// Command builds the deterministic command line for one invocation.
	// Job-level overrides take precedence over profile defaults.
	Command(inv Invocation) (bin string, args []string)

	// ParseProgress maps one stderr line to a progress event. It is pure:
	// no engine state, best-effort, and returns false for lines it does
	// not recognize.
	ParseProgress(line string) (job.Progress, bool)

	// NeedsConversion reports whether an input with the given lowercase
	// extension (".m4a") must first be converted to WAV.
	NeedsConversion(ext string) bool
}
