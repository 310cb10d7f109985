package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/whisperplaud/api/internal/model"
	"github.com/whisperplaud/api/internal/service"
	"github.com/whisperplaud/api/internal/store"
	"github.com/whisperplaud/api/pkg/response"
)

type JobHandler struct {
	jobs    *service.JobService
	streams *service.StreamServer
}

func NewJobHandler(jobs *service.JobService, streams *service.StreamServer) *JobHandler {
	return &JobHandler{jobs: jobs, streams: streams}
}

// List handles GET /api/jobs?fileIds=a,b,c
func (h *JobHandler) List(c *fiber.Ctx) error {
	var fileIDs []string
	for _, id := range strings.Split(c.Query("fileIds"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			fileIDs = append(fileIDs, id)
		}
	}
	if len(fileIDs) == 0 {
		return response.OK(c, model.JobListResponse{Jobs: []model.Job{}})
	}

	jobs, err := h.jobs.ListJobs(c.Context(), fileIDs)
	if err != nil {
		return response.ServiceError(c, "Failed to fetch jobs")
	}
	if jobs == nil {
		jobs = []model.Job{}
	}
	return response.OK(c, model.JobListResponse{Jobs: jobs})
}

// Get handles GET /api/jobs/:id. The id is tried as a job id first, then as
// a file id resolving to that file's newest job.
func (h *JobHandler) Get(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.jobs.GetJob(c.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, "Failed to fetch job")
	}
	return response.OK(c, job)
}

// Events handles GET /api/jobs/:id/events — the SSE progress stream. One
// event per poll tick; the connection closes after a terminal or job-missing
// event, on client disconnect, or when the stream lifetime cap expires.
func (h *JobHandler) Events(c *fiber.Ctx) error {
	jobID := c.Params("id")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache, no-transform")
	c.Set(fiber.HeaderConnection, "keep-alive")

	streams := h.streams
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		// The fiber ctx is not valid inside the stream writer; client
		// disconnects surface as flush errors, which stop the poller on the
		// next tick.
		_ = streams.Serve(context.Background(), jobID, func(ev model.StreamEvent) error {
			payload, err := json.Marshal(ev)
			if err != nil {
				return err
			}
			if _, err := w.WriteString("data: " + string(payload) + "\n\n"); err != nil {
				return err
			}
			return w.Flush()
		})
	}))

	return nil
}

// EventsWS serves the WebSocket variant of the progress stream on
// /ws/jobs/:id. Same poller, same termination rules; frames are plain JSON.
func (h *JobHandler) EventsWS() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		defer conn.Close()

		jobID := conn.Params("id")
		if jobID == "" {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Reader loop exists only to notice the peer going away.
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		_ = h.streams.Serve(ctx, jobID, func(ev model.StreamEvent) error {
			return conn.WriteJSON(ev)
		})
	})
}
