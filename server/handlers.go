package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/Luismorlan/community/model"
	"github.com/Luismorlan/community/panoptic"
	Logger "github.com/Luismorlan/community/utils/log"
	"github.com/gin-gonic/gin"
)

// TaskEnqueuer is where admin triggers go, the dispatcher in production.
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, task *panoptic.Task) error
}

type processRequest struct {
	JobIDs []uint `json:"job_ids" binding:"required"`
}

type crawlRequest struct {
	// Empty means every known source of the platform.
	SourceIDs []int64 `json:"source_ids"`
}

type populateRequest struct {
	// Empty means every project.
	ProjectIDs []uint `json:"project_ids"`
	Merge      bool   `json:"merge"`
}

// AddRoutes registers the admin triggers on rg. Every trigger answers with the
// number of tasks it queued and nothing else.
func AddRoutes(rg *gin.RouterGroup, enqueuer TaskEnqueuer) {
	h := &handlers{enqueuer: enqueuer}

	rg.GET("/healthcheck", h.healthcheck)

	jobs := rg.Group("/jobs")
	jobs.POST("/process", h.processJobs)
	jobs.POST("/:id/stages/:stage", h.runStage)

	rg.POST("/sources/:platform/crawl", h.crawlSources)
	rg.POST("/projects/populate_users", h.populateUsers)
	rg.POST("/users/merge", h.mergeUsers)
}

type handlers struct {
	enqueuer TaskEnqueuer
}

func (h *handlers) healthcheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) processJobs(c *gin.Context) {
	var req processRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	tasks := make([]*panoptic.Task, 0, len(req.JobIDs))
	for _, id := range req.JobIDs {
		task := panoptic.NewTask(panoptic.TaskProcessJob)
		task.Ids = []uint{id}
		tasks = append(tasks, task)
	}
	h.enqueue(c, tasks...)
}

func (h *handlers) runStage(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, err)
		return
	}
	task := panoptic.NewTask(panoptic.TaskRunStage)
	task.Ids = []uint{uint(id)}
	task.Stage = c.Param("stage")
	h.enqueue(c, task)
}

func (h *handlers) crawlSources(c *gin.Context) {
	platform, err := model.ParsePlatform(c.Param("platform"))
	if err != nil {
		badRequest(c, err)
		return
	}
	var req crawlRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}
	if len(req.SourceIDs) == 0 {
		task := panoptic.NewTask(panoptic.TaskCrawlSource)
		task.Platform = platform.String()
		h.enqueue(c, task)
		return
	}
	tasks := make([]*panoptic.Task, 0, len(req.SourceIDs))
	for _, id := range req.SourceIDs {
		task := panoptic.NewTask(panoptic.TaskCrawlSource)
		task.Platform = platform.String()
		task.SourceIds = []int64{id}
		tasks = append(tasks, task)
	}
	h.enqueue(c, tasks...)
}

func (h *handlers) populateUsers(c *gin.Context) {
	var req populateRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}
	if len(req.ProjectIDs) == 0 {
		task := panoptic.NewTask(panoptic.TaskPopulateProjectUsers)
		task.Merge = req.Merge
		h.enqueue(c, task)
		return
	}
	tasks := make([]*panoptic.Task, 0, len(req.ProjectIDs))
	for _, id := range req.ProjectIDs {
		task := panoptic.NewTask(panoptic.TaskPopulateProjectUsers)
		task.Ids = []uint{id}
		task.Merge = req.Merge
		tasks = append(tasks, task)
	}
	h.enqueue(c, tasks...)
}

func (h *handlers) mergeUsers(c *gin.Context) {
	h.enqueue(c, panoptic.NewTask(panoptic.TaskMergeUsers))
}

func (h *handlers) enqueue(c *gin.Context, tasks ...*panoptic.Task) {
	queued := 0
	for _, task := range tasks {
		if err := h.enqueuer.Enqueue(c.Request.Context(), task); err != nil {
			Logger.Log.WithError(err).WithField("type", task.Type).Error("fail to enqueue admin task")
			c.JSON(http.StatusInternalServerError, gin.H{"queued": queued})
			return
		}
		queued++
	}
	c.JSON(http.StatusOK, gin.H{"queued": queued})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"queued": 0, "msg": err.Error()})
}
