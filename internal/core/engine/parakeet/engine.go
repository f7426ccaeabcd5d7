// Package parakeet drives the NVIDIA Parakeet transcription script
// (Scripts/parakeet_transcribe.py), which runs Silero VAD and transcribes
// each detected speech segment, reporting progress on stderr.
package parakeet

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/petergeneric/whisperx-windows-service/internal/core/engine"
	"github.com/petergeneric/whisperx-windows-service/internal/core/job"
)

type Engine struct {
	python string
	script string
}

func New(python, script string) *Engine {
	if python == "" {
		python = "python"
	}
	return &Engine{python: python, script: script}
}

func (e *Engine) Name() string { return "parakeet" }

// librosa/soundfile formats the script reads without help.
var nativeExts = map[string]bool{
	".wav":  true,
	".flac": true,
	".mp3":  true,
	".ogg":  true,
}

func (e *Engine) NeedsConversion(ext string) bool {
	return !nativeExts[ext]
}

func (e *Engine) Command(inv engine.Invocation) (string, []string) {
	p := inv.Profile
	args := []string{
		e.script,
		inv.InputPath,
		"--output_dir", inv.OutputDir,
	}
	if p.ParakeetModel != "" {
		args = append(args, "--model", p.ParakeetModel)
	}
	if p.Language != "" {
		args = append(args, "--language", p.Language)
	}
	return e.python, args
}

// "Processing segment 3/120: 5.2s - 9.9s (4.7s)"
var segmentRe = regexp.MustCompile(`^Processing segment (\d+)/(\d+):`)

func (e *Engine) ParseProgress(line string) (job.Progress, bool) {
	if m := segmentRe.FindStringSubmatch(line); m != nil {
		cur, _ := strconv.Atoi(m[1])
		total, _ := strconv.Atoi(m[2])
		return job.Progress{Stage: "transcribe", Current: cur, Total: total}, true
	}

	switch {
	case strings.HasPrefix(line, "Loading Silero VAD"):
		return job.Progress{Stage: "loading-vad"}, true
	case strings.HasPrefix(line, "Loading model:"):
		return job.Progress{Stage: "loading-model"}, true
	case strings.HasPrefix(line, "Running Silero VAD"):
		return job.Progress{Stage: "vad"}, true
	case strings.HasPrefix(line, "Transcribing:"):
		return job.Progress{Stage: "transcribe"}, true
	}

	return job.Progress{}, false
}
