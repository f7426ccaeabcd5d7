package server

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humaecho"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/petergeneric/whisperx-windows-service/internal/core/service"
)

type RouterConfig struct {
	Svc       *service.Service
	KeyHashes []string
	UploadDir string
}

func SetupRouter(e *echo.Echo, cfg RouterConfig) {
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	v1 := e.Group("/api/v1", APIKeyAuth(cfg.KeyHashes))

	apiCfg := huma.DefaultConfig("WhisperX Service API", "1.0.0")
	apiCfg.Servers = []*huma.Server{{URL: "/api/v1"}}
	apiCfg.Info.Description = "Single-GPU transcription queue"
	apiCfg.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"ApiKeyAuth": {
			Type:        "apiKey",
			In:          "header",
			Name:        "X-API-Key",
			Description: "API key",
		},
	}

	api := humaecho.NewWithGroup(e, v1, apiCfg)
	security := []map[string][]string{{"ApiKeyAuth": {}}}

	h := NewJobsHandler(cfg.Svc, cfg.UploadDir)

	// Multipart upload stays a raw echo route; it shares the group's
	// auth middleware.
	v1.POST("/jobs", h.Upload)

	huma.Register(api, huma.Operation{
		OperationID: "list-jobs",
		Method:      http.MethodGet,
		Path:        "/jobs",
		Summary:     "List all jobs",
		Tags:        []string{"Jobs"},
		Security:    security,
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "get-job",
		Method:      http.MethodGet,
		Path:        "/jobs/{id}",
		Summary:     "Poll job status and result",
		Tags:        []string{"Jobs"},
		Security:    security,
	}, h.Get)

	huma.Register(api, huma.Operation{
		OperationID: "delete-job",
		Method:      http.MethodDelete,
		Path:        "/jobs/{id}",
		Summary:     "Delete a job, cancelling it if in flight",
		Tags:        []string{"Jobs"},
		Security:    security,
	}, h.Delete)

	huma.Register(api, huma.Operation{
		OperationID: "list-profiles",
		Method:      http.MethodGet,
		Path:        "/profiles",
		Summary:     "List configured profiles",
		Tags:        []string{"Profiles"},
		Security:    security,
	}, h.Profiles)
}
