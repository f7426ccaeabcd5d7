package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/petergeneric/whisperx-windows-service/internal/core/engine"
	"github.com/petergeneric/whisperx-windows-service/internal/core/job"
	"github.com/petergeneric/whisperx-windows-service/internal/core/service"
)

type JobsHandler struct {
	svc       *service.Service
	uploadDir string
}

func NewJobsHandler(svc *service.Service, uploadDir string) *JobsHandler {
	return &JobsHandler{svc: svc, uploadDir: uploadDir}
}

// Shared types

type JobSummary struct {
	ID        string    `json:"id" doc:"Job ID"`
	Profile   string    `json:"profile" doc:"Profile the job was submitted with"`
	Status    string    `json:"status" doc:"Job status (queued, processing, completed, failed)"`
	CreatedAt time.Time `json:"created_at" doc:"Creation time"`
}

type ListJobsOutput struct {
	Body struct {
		Jobs []JobSummary `json:"jobs" doc:"All jobs, newest first"`
	}
}

type JobIDInput struct {
	ID string `path:"id" doc:"Job ID"`
}

type JobStatusBody struct {
	ID        string          `json:"id" doc:"Job ID"`
	Profile   string          `json:"profile" doc:"Profile name"`
	Status    string          `json:"status" doc:"Job status (queued, processing, completed, failed)"`
	Progress  *job.Progress   `json:"progress,omitempty" doc:"Engine progress, only while processing"`
	Result    json.RawMessage `json:"result,omitempty" doc:"Transcript document, only when completed"`
	Error     string          `json:"error,omitempty" doc:"Failure reason, only when failed"`
	CreatedAt time.Time       `json:"created_at" doc:"Creation time"`
}

type JobStatusOutput struct {
	Body JobStatusBody
}

type StatusOutput struct {
	Body struct {
		Status string `json:"status" doc:"Operation result"`
	}
}

type ListProfilesOutput struct {
	Body struct {
		Profiles map[string]engine.Profile `json:"profiles" doc:"Configured profiles by name"`
	}
}

// Handlers

func (h *JobsHandler) List(_ context.Context, _ *struct{}) (*ListJobsOutput, error) {
	jobs := h.svc.List()
	out := &ListJobsOutput{}
	out.Body.Jobs = make([]JobSummary, 0, len(jobs))
	for _, j := range jobs {
		out.Body.Jobs = append(out.Body.Jobs, JobSummary{
			ID:        j.ID,
			Profile:   j.Profile,
			Status:    string(j.Status),
			CreatedAt: j.CreatedAt,
		})
	}
	return out, nil
}

func (h *JobsHandler) Get(_ context.Context, input *JobIDInput) (*JobStatusOutput, error) {
	j, err := h.svc.Status(input.ID)
	if err != nil {
		return nil, huma.Error404NotFound("job not found")
	}
	return &JobStatusOutput{Body: JobStatusBody{
		ID:        j.ID,
		Profile:   j.Profile,
		Status:    string(j.Status),
		Progress:  j.Progress,
		Result:    j.Result,
		Error:     j.Error,
		CreatedAt: j.CreatedAt,
	}}, nil
}

func (h *JobsHandler) Delete(_ context.Context, input *JobIDInput) (*StatusOutput, error) {
	if err := h.svc.Delete(input.ID); err != nil {
		return nil, huma.Error404NotFound("job not found")
	}
	out := &StatusOutput{}
	out.Body.Status = "deleted"
	return out, nil
}

func (h *JobsHandler) Profiles(_ context.Context, _ *struct{}) (*ListProfilesOutput, error) {
	out := &ListProfilesOutput{}
	out.Body.Profiles = h.svc.Profiles()
	return out, nil
}

// Upload is the multipart admission endpoint. It stays a plain echo
// handler; the remaining operations are registered through huma.
func (h *JobsHandler) Upload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "missing file field")
	}

	ov, err := parseOverrides(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if ext == "" {
		ext = ".wav"
	}
	dst := filepath.Join(h.uploadDir, uuid.NewString()+ext)
	if err := saveUpload(fh, dst); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "store upload: "+err.Error())
	}

	j, err := h.svc.Submit(c.FormValue("profile"), dst, ov)
	if err != nil {
		os.Remove(dst)
		if errors.Is(err, service.ErrUnknownProfile) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusCreated, map[string]string{
		"id":     j.ID,
		"status": string(j.Status),
	})
}

func saveUpload(fh *multipart.FileHeader, dst string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

func parseOverrides(c echo.Context) (job.Overrides, error) {
	var ov job.Overrides

	if v := c.FormValue("initial_prompt"); v != "" {
		ov.InitialPrompt = &v
	}
	for _, f := range []struct {
		field string
		dst   **float64
	}{
		{"temperature", &ov.Temperature},
		{"vad_merge_gap", &ov.VADMergeGap},
		{"vad_max_chunk", &ov.VADMaxChunk},
		{"vad_split_gap", &ov.VADSplitGap},
	} {
		v := c.FormValue(f.field)
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return job.Overrides{}, errors.New("invalid " + f.field + ": " + v)
		}
		*f.dst = &parsed
	}
	return ov, nil
}
