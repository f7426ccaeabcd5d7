// Package whisperx drives the WhisperX CLI (faster-whisper + pyannote
// alignment pipeline).
package whisperx

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/petergeneric/whisperx-windows-service/internal/core/engine"
	"github.com/petergeneric/whisperx-windows-service/internal/core/job"
)

type Engine struct {
	binary string
}

func New(binary string) *Engine {
	if binary == "" {
		binary = "whisperx"
	}
	return &Engine{binary: binary}
}

func (e *Engine) Name() string { return "whisperx" }

// Formats faster-whisper decodes natively through its bundled ffmpeg.
var nativeExts = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".m4a":  true,
	".flac": true,
	".ogg":  true,
	".opus": true,
}

func (e *Engine) NeedsConversion(ext string) bool {
	return !nativeExts[ext]
}

func (e *Engine) Command(inv engine.Invocation) (string, []string) {
	p := inv.Profile
	args := []string{
		inv.InputPath,
		"--model", p.Model,
		"--device", p.Device,
		"--output_dir", inv.OutputDir,
		"--output_format", "json",
	}
	if p.ComputeType != "" {
		args = append(args, "--compute_type", p.ComputeType)
	}
	if p.Language != "" {
		args = append(args, "--language", p.Language)
	}
	if p.AlignModel != "" {
		args = append(args, "--align_model", p.AlignModel)
	}
	if p.VADMethod != "" {
		args = append(args, "--vad_method", p.VADMethod)
	}

	temperature := p.Temperature
	if inv.Overrides.Temperature != nil {
		temperature = *inv.Overrides.Temperature
	}
	args = append(args, "--temperature", formatFloat(temperature))

	prompt := p.InitialPrompt
	if inv.Overrides.InitialPrompt != nil {
		prompt = *inv.Overrides.InitialPrompt
	}
	if prompt != "" {
		args = append(args, "--initial_prompt", prompt)
	}

	if v := inv.Overrides.VADMergeGap; v != nil {
		args = append(args, "--vad_merge_gap", formatFloat(*v))
	}
	if v := inv.Overrides.VADMaxChunk; v != nil {
		args = append(args, "--vad_max_chunk", formatFloat(*v))
	}
	if v := inv.Overrides.VADSplitGap; v != nil {
		args = append(args, "--vad_split_gap", formatFloat(*v))
	}

	return e.binary, args
}

// tqdm-style counter emitted during batched transcription,
// e.g. " 45%|####      | 9/20 [00:12<00:15, 1.4s/it]".
var segmentRe = regexp.MustCompile(`\s(\d+)/(\d+)\s`)

func (e *Engine) ParseProgress(line string) (job.Progress, bool) {
	switch {
	case strings.Contains(line, ">>Performing voice activity detection"):
		return job.Progress{Stage: "vad"}, true
	case strings.Contains(line, ">>Performing transcription"):
		return job.Progress{Stage: "transcribe"}, true
	case strings.Contains(line, ">>Performing alignment"):
		return job.Progress{Stage: "align"}, true
	case strings.Contains(line, "Loading model"),
		strings.Contains(line, "Downloading model"):
		return job.Progress{Stage: "loading-model"}, true
	}

	if strings.Contains(line, "%|") {
		if m := segmentRe.FindStringSubmatch(line); m != nil {
			cur, _ := strconv.Atoi(m[1])
			total, _ := strconv.Atoi(m[2])
			if total > 0 {
				return job.Progress{Stage: "transcribe", Current: cur, Total: total}, true
			}
		}
	}

	return job.Progress{}, false
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
