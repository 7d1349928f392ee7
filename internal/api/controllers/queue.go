// Package controllers holds the HTTP handlers for the control API: a thin
// echo/v5 layer over C8's queue manager (spec §1: "the core exposes a small
// set of operations... a CLI or HTTP layer built on top of the core is
// explicitly out of scope" — this is that outer layer, kept deliberately
// thin). Grounded on the teacher's NewznabController shape: one controller
// struct holding *app.Context, one handler method per operation.
package controllers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/fetchd/fetchd/internal/app"
	"github.com/fetchd/fetchd/internal/domain"
	"github.com/fetchd/fetchd/internal/store"
)

type QueueController struct {
	App *app.Context
}

type addRequest struct {
	URL            string            `json:"url"`
	Filename       string            `json:"filename,omitempty"`
	OutputDir      string            `json:"output_dir,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	MaxConnections int               `json:"max_connections,omitempty"`
}

type queueItemResponse struct {
	ID                 string  `json:"id"`
	URL                string  `json:"url"`
	Status             string  `json:"status"`
	ProgressPercentage float64 `json:"progress_percentage"`
	DownloadSpeedBps   float64 `json:"download_speed_bps"`
	ETASeconds         float64 `json:"eta_seconds"`
	FilePath           string  `json:"file_path,omitempty"`
	Error              string  `json:"error,omitempty"`
}

func toResponse(item *domain.QueueItem) queueItemResponse {
	return queueItemResponse{
		ID:                 item.ID,
		URL:                item.URL,
		Status:             string(item.Status),
		ProgressPercentage: item.ProgressPercentage,
		DownloadSpeedBps:   item.DownloadSpeed,
		ETASeconds:         item.ETASeconds,
		FilePath:           item.FilePath,
		Error:              item.Error,
	}
}

// Add enqueues a new download (spec §4.9 `add`).
func (ctrl *QueueController) Add(c *echo.Context) error {
	var req addRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.URL == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "url is required"})
	}

	overrides := domain.Overrides{
		Filename:       req.Filename,
		OutputDir:      req.OutputDir,
		Headers:        req.Headers,
		MaxConnections: req.MaxConnections,
	}

	item, err := ctrl.App.Queue.Add(c.Request().Context(), req.URL, overrides)
	if err != nil {
		ctrl.App.Logger.Error("add failed for %s: %v", req.URL, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, toResponse(item))
}

// List returns every queue item, optionally filtered by ?status= (spec §4.9 `list`).
func (ctrl *QueueController) List(c *echo.Context) error {
	status := domain.QueueItemStatus(c.QueryParam("status"))
	items, err := ctrl.App.Queue.List(c.Request().Context(), status)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	out := make([]queueItemResponse, len(items))
	for i, item := range items {
		out[i] = toResponse(item)
	}
	return c.JSON(http.StatusOK, out)
}

// Get resolves a single item by id or unique prefix (spec §4.9 `get`).
func (ctrl *QueueController) Get(c *echo.Context) error {
	item, err := ctrl.App.Queue.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return resolveErr(c, err)
	}
	if item == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "item not found"})
	}
	return c.JSON(http.StatusOK, toResponse(item))
}

// Pause requests a cooperative stop for a downloading item (spec §4.9 `pause`).
func (ctrl *QueueController) Pause(c *echo.Context) error {
	if err := ctrl.App.Queue.Pause(c.Request().Context(), c.Param("id")); err != nil {
		return resolveErr(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Resume re-queues a paused or failed item (spec §4.9 `resume`).
func (ctrl *QueueController) Resume(c *echo.Context) error {
	if err := ctrl.App.Queue.Resume(c.Request().Context(), c.Param("id")); err != nil {
		return resolveErr(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Cancel stops a running item or marks a queued one cancelled (spec §4.9 `cancel`).
func (ctrl *QueueController) Cancel(c *echo.Context) error {
	if err := ctrl.App.Queue.Cancel(c.Request().Context(), c.Param("id")); err != nil {
		return resolveErr(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Stats reports aggregate counts across the queue (spec §4.9 `stats`).
func (ctrl *QueueController) Stats(c *echo.Context) error {
	stats, err := ctrl.App.Queue.Stats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, stats)
}

func resolveErr(c *echo.Context, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "item not found"})
	case errors.Is(err, store.ErrAmbiguous):
		return c.JSON(http.StatusConflict, map[string]string{"error": "id prefix is ambiguous"})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}
