// Package supervisor runs one external engine invocation to completion on
// behalf of one job: launch, drain output streams, scrape progress, cancel
// (killing the whole process tree), reap, and collect the result document.
package supervisor

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/petergeneric/whisperx-windows-service/internal/core/engine"
	"github.com/petergeneric/whisperx-windows-service/internal/core/job"
)

var (
	// ErrCancelled marks a run terminated by cancellation rather than by
	// the engine itself.
	ErrCancelled = errors.New("cancelled")

	// ErrNoOutput marks a zero-exit run that produced no result file.
	ErrNoOutput = errors.New("engine produced no output file")
)

const (
	// Lines of stderr kept for failure reasons.
	tailLines = 20

	// Bytes of a single line retained for progress parsing and the tail;
	// anything past this is consumed and discarded so the pipe keeps
	// draining.
	maxLineBytes = 1 << 20

	// Grace period for Wait after the process tree has been killed.
	reapDelay = 10 * time.Second
)

// ProgressFunc receives progress events scraped from the engine's stderr,
// in emission order.
type ProgressFunc func(job.Progress)

type Supervisor struct {
	registry *engine.Registry
	ffmpeg   string
	workDir  string
}

// New returns a supervisor that creates job-scoped output directories
// under workDir and uses ffmpeg for audio conversion sub-invocations.
func New(registry *engine.Registry, ffmpeg, workDir string) *Supervisor {
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	return &Supervisor{registry: registry, ffmpeg: ffmpeg, workDir: workDir}
}

// Run executes the engine selected by the profile against inputPath and
// returns the parsed result document. The caller enforces that only one
// Run is active system-wide. Cancelling ctx kills the entire process tree
// and surfaces ErrCancelled. The job-scoped output directory and any
// converted intermediate file are removed regardless of outcome.
func (s *Supervisor) Run(ctx context.Context, jobID, inputPath string, prof engine.Profile, ov job.Overrides, onProgress ProgressFunc) (json.RawMessage, error) {
	eng, err := s.registry.Get(prof.Engine)
	if err != nil {
		return nil, err
	}

	outDir := filepath.Join(s.workDir, jobID)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(outDir); err != nil {
			log.Warn().Err(err).Str("job_id", jobID).Str("dir", outDir).Msg("output dir cleanup failed")
		}
	}()

	enginePath := inputPath
	if ext := strings.ToLower(filepath.Ext(inputPath)); eng.NeedsConversion(ext) {
		converted := filepath.Join(outDir, jobID+".wav")
		if err := s.convert(ctx, jobID, inputPath, converted); err != nil {
			return nil, err
		}
		defer func() {
			if err := os.Remove(converted); err != nil && !errors.Is(err, fs.ErrNotExist) {
				log.Warn().Err(err).Str("job_id", jobID).Msg("converted file cleanup failed")
			}
		}()
		enginePath = converted
	}

	bin, args := eng.Command(engine.Invocation{
		JobID:     jobID,
		InputPath: enginePath,
		OutputDir: outDir,
		Profile:   prof,
		Overrides: ov,
	})

	log.Info().Str("job_id", jobID).Str("engine", eng.Name()).Str("bin", bin).Msg("launching engine")

	onLine := func(line string) {
		if p, ok := eng.ParseProgress(line); ok && onProgress != nil {
			onProgress(p)
		}
	}
	if err := s.runCommand(ctx, eng.Name(), bin, args, onLine); err != nil {
		return nil, err
	}

	return readResult(outDir, enginePath)
}

// convert normalizes the input to 16 kHz mono WAV via ffmpeg, under the
// same cancellation and error-propagation contract as the main invocation.
func (s *Supervisor) convert(ctx context.Context, jobID, src, dst string) error {
	log.Info().Str("job_id", jobID).Str("src", filepath.Base(src)).Msg("converting audio")
	args := []string{"-hide_banner", "-loglevel", "error", "-y", "-i", src, "-ar", "16000", "-ac", "1", dst}
	if err := s.runCommand(ctx, "ffmpeg", s.ffmpeg, args, nil); err != nil {
		return fmt.Errorf("convert audio: %w", err)
	}
	return nil
}

// runCommand launches one process with independently drained stdout and
// stderr. Each stderr line is handed to onLine before being retained in
// the failure tail. Neither drain can stall the other or the exit reap:
// Wait runs only after both pipes hit EOF, and WaitDelay bounds the reap
// when a grandchild holds a pipe open past the kill.
func (s *Supervisor) runCommand(ctx context.Context, name, bin string, args []string, onLine func(string)) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	setProcGroup(cmd)
	cmd.Cancel = func() error { return killTree(cmd) }
	cmd.WaitDelay = reapDelay

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%s stdout pipe: %w", name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("%s stderr pipe: %w", name, err)
	}

	if err := cmd.Start(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", name, ErrCancelled)
		}
		return fmt.Errorf("start %s: %w", name, err)
	}

	tail := newTail(tailLines)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		drain(stdout, func(line string) {
			log.Debug().Str("proc", name).Str("stdout", line).Msg("engine output")
		})
	}()
	go func() {
		defer wg.Done()
		drain(stderr, func(line string) {
			log.Debug().Str("proc", name).Str("stderr", line).Msg("engine output")
			tail.add(line)
			if onLine != nil {
				onLine(line)
			}
		})
	}()
	wg.Wait()

	err = cmd.Wait()
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", name, ErrCancelled)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%s exited with code %d: %s", name, exitErr.ExitCode(), tail.String())
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// readResult locates and parses the single expected output document:
// <output dir>/<input stem>.json, the naming convention both engines share.
func readResult(outDir, enginePath string) (json.RawMessage, error) {
	base := filepath.Base(enginePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	resultPath := filepath.Join(outDir, stem+".json")

	data, err := os.ReadFile(resultPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: expected %s", ErrNoOutput, filepath.Base(resultPath))
	}
	if err != nil {
		return nil, fmt.Errorf("read result: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("result file %s is not valid JSON", filepath.Base(resultPath))
	}
	return json.RawMessage(data), nil
}

// drain reads r line by line until EOF. A stalled consumer here would
// back-pressure the child's own writes, so callbacks must stay cheap and
// the loop must never stop mid-stream: a line longer than maxLineBytes is
// truncated for the callback but its remainder is still consumed.
func drain(r io.Reader, onLine func(string)) {
	br := bufio.NewReaderSize(r, 64*1024)
	var line []byte
	for {
		chunk, isPrefix, err := br.ReadLine()
		if len(chunk) > 0 && len(line) < maxLineBytes {
			keep := maxLineBytes - len(line)
			if keep > len(chunk) {
				keep = len(chunk)
			}
			line = append(line, chunk[:keep]...)
		}
		if err != nil {
			if len(line) > 0 {
				onLine(string(line))
			}
			return
		}
		if !isPrefix {
			onLine(string(line))
			line = line[:0]
		}
	}
}

// tail keeps the last n lines for failure reasons.
type tail struct {
	n     int
	lines []string
}

func newTail(n int) *tail {
	return &tail{n: n}
}

func (t *tail) add(line string) {
	if line == "" {
		return
	}
	t.lines = append(t.lines, line)
	if len(t.lines) > t.n {
		t.lines = t.lines[1:]
	}
}

func (t *tail) String() string {
	return strings.Join(t.lines, "\n")
}
