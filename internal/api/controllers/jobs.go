package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/datallboy/gonzb/internal/app"
	"github.com/datallboy/gonzb/internal/events"
	"github.com/datallboy/gonzb/internal/nzb"
	"github.com/labstack/echo/v5"
	"github.com/segmentio/ksuid"
)

// JobsController exposes job.Manager over HTTP: submit, cancel, pause, and
// an SSE stream of download-progress/download-completed events.
type JobsController struct {
	App *app.Context
}

// Submit accepts a multipart-uploaded NZB file and queues it for download.
func (ctrl *JobsController) Submit(c *echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing 'file' field"})
	}

	src, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	defer src.Close()

	model, err := nzb.NewParser().Parse(src)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("parsing nzb: %v", err)})
	}

	j, err := ctrl.App.Builder.BuildJob(ksuid.New().String(), fh.Filename, c.FormValue("password"), model)
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	}
	if cat := c.FormValue("category"); cat != "" {
		j.Category = cat
	}
	if ext := c.FormValue("externalId"); ext != "" {
		j.ExternalID = ext
	}

	if err := ctrl.App.Jobs.Submit(c.Request().Context(), j); err != nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusAccepted, map[string]string{"id": j.ID})
}

// List returns every known job.
func (ctrl *JobsController) List(c *echo.Context) error {
	return c.JSON(http.StatusOK, ctrl.App.Jobs.All())
}

// Get returns one job by ID.
func (ctrl *JobsController) Get(c *echo.Context) error {
	j := ctrl.App.Jobs.Get(c.Param("id"))
	if j == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	}
	return c.JSON(http.StatusOK, j)
}

// Pause stops dispatching new segment fetches for a job.
func (ctrl *JobsController) Pause(c *echo.Context) error {
	if err := ctrl.App.Jobs.Pause(c.Param("id")); err != nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

// Resume un-pauses a job.
func (ctrl *JobsController) Resume(c *echo.Context) error {
	if err := ctrl.App.Jobs.Resume(c.Param("id")); err != nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

// Delete cancels a job and, when removeFiles=true is passed, deletes its
// partial output from disk.
func (ctrl *JobsController) Delete(c *echo.Context) error {
	j := ctrl.App.Jobs.Get(c.Param("id"))
	if j == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	}
	if err := ctrl.App.Jobs.Cancel(j.ID); err != nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}

	if c.QueryParam("removeFiles") == "true" {
		for _, f := range j.Files {
			_ = os.Remove(f.PartPath)
			_ = os.Remove(f.FinalPath)
		}
	}
	return c.NoContent(http.StatusNoContent)
}

// Events streams job-progress as server-sent events until the job reaches a
// terminal state or the client disconnects.
func (ctrl *JobsController) Events(c *echo.Context) error {
	id := c.Param("id")
	if ctrl.App.Jobs.Get(id) == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	}

	sub, unsubscribe := ctrl.App.Events.Subscribe(id)
	defer unsubscribe()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx := c.Request().Context()
	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return nil
			}
			eventName := "download-progress"
			if ev.Kind == events.KindCompleted {
				eventName = "download-completed"
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventName, payload)
			w.Flush()
			if ev.Kind == events.KindCompleted {
				return nil
			}
		case <-ctx.Done():
			return nil
		}
	}
}
