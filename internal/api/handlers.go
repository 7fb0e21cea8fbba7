// Package api exposes the curation control surface over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/timeline/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/timeline/infrastructure/sse"
	"github.com/jonesrussell/north-cloud/timeline/internal/database"
	"github.com/jonesrussell/north-cloud/timeline/internal/domain"
	"github.com/jonesrussell/north-cloud/timeline/internal/duplicates"
	"github.com/jonesrussell/north-cloud/timeline/internal/pipeline"
	"github.com/jonesrussell/north-cloud/timeline/internal/scheduler"
)

// maxBatchDates caps a single batch request at roughly ten years of days.
const maxBatchDates = 3660

var errTooManyDates = fmt.Errorf("at most %d dates per batch", maxBatchDates)

// Curator is the pipeline surface used by the handlers.
type Curator interface {
	StartCurate(ctx context.Context, dates []string) (*pipeline.Run, error)
	StartDedupe(ctx context.Context, dates []string) (*pipeline.Run, error)
	Stop(job string) bool
	Status(job string) pipeline.JobStatus
	Reanalyze(ctx context.Context, date string) (*domain.DailyRecord, error)
	Record(ctx context.Context, date string) (*domain.DailyRecord, error)
	Records(ctx context.Context, start, end string) ([]domain.DailyRecord, error)
	ConfirmSelection(ctx context.Context, date, documentID string) (*domain.DailyRecord, error)
	Flag(ctx context.Context, date string, flag domain.Flag) (*domain.DailyRecord, error)
}

// ClusterService reads and edits duplicate clusters.
type ClusterService interface {
	Clusters(ctx context.Context, start, end string) ([]domain.Cluster, error)
	DeleteEdge(ctx context.Context, a, b string) error
}

// Handler serves the /api/v1 routes.
type Handler struct {
	curator  Curator
	clusters ClusterService
	events   sse.Broker
	log      logger.Logger
}

// NewHandler creates a Handler. clusters may be nil when duplicate
// detection is disabled.
func NewHandler(curator Curator, clusters ClusterService, log logger.Logger) *Handler {
	return &Handler{curator: curator, clusters: clusters, log: logger.Component(log, "api")}
}

// WithEvents enables the batch progress stream at /api/v1/events.
func (h *Handler) WithEvents(b sse.Broker) *Handler {
	h.events = b
	return h
}

// BatchRequest selects the dates of a batch, either listed or as an
// inclusive range.
type BatchRequest struct {
	Dates []string `json:"dates"`
	Start string   `json:"start"`
	End   string   `json:"end"`
}

// BatchResponse acknowledges a started batch.
type BatchResponse struct {
	RunID string `json:"run_id"`
	Job   string `json:"job"`
	Total int    `json:"total"`
}

// SelectRequest confirms a document for a date.
type SelectRequest struct {
	DocumentID string `json:"document_id" binding:"required"`
}

// FlagRequest marks or clears the reviewer flag of a date.
type FlagRequest struct {
	Flagged *bool  `json:"flagged" binding:"required"`
	Reason  string `json:"reason"`
}

// ClustersResponse lists clusters in a range.
type ClustersResponse struct {
	Clusters []domain.Cluster `json:"clusters"`
	Total    int              `json:"total"`
}

// RecordsResponse lists records in a range.
type RecordsResponse struct {
	Records []domain.DailyRecord `json:"records"`
	Total   int                  `json:"total"`
}

func (r BatchRequest) resolve() ([]string, error) {
	if len(r.Dates) > 0 {
		if r.Start != "" || r.End != "" {
			return nil, errors.New("give either dates or start and end, not both")
		}
		return r.Dates, domain.ValidateDates(r.Dates)
	}
	if r.Start == "" || r.End == "" {
		return nil, fmt.Errorf("%w: dates or start and end are required", domain.ErrEmptyInput)
	}
	from, err := domain.ParseDate(r.Start)
	if err != nil {
		return nil, err
	}
	to, err := domain.ParseDate(r.End)
	if err != nil {
		return nil, err
	}
	// Checked before expansion so a wide range never allocates its dates.
	if to.After(from.AddDate(0, 0, maxBatchDates-1)) {
		return nil, errTooManyDates
	}
	return domain.DateRange(r.Start, r.End)
}

// StartCurate handles POST /api/v1/curate
func (h *Handler) StartCurate(c *gin.Context) {
	h.startBatch(c, scheduler.JobCurate, h.curator.StartCurate)
}

// StartDedupe handles POST /api/v1/dedupe
func (h *Handler) StartDedupe(c *gin.Context) {
	h.startBatch(c, scheduler.JobDedupe, h.curator.StartDedupe)
}

func (h *Handler) startBatch(c *gin.Context, job string, start func(context.Context, []string) (*pipeline.Run, error)) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dates, err := req.resolve()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(dates) > maxBatchDates {
		c.JSON(http.StatusBadRequest, gin.H{"error": errTooManyDates.Error()})
		return
	}

	// The batch outlives the request.
	run, err := start(context.WithoutCancel(c.Request.Context()), dates)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.log.Info("Batch accepted",
		logger.String("job", job),
		logger.String("run_id", run.ID),
		logger.Int("dates", len(dates)),
	)
	c.JSON(http.StatusAccepted, BatchResponse{RunID: run.ID, Job: job, Total: len(dates)})
}

// StopCurate handles POST /api/v1/curate/stop
func (h *Handler) StopCurate(c *gin.Context) {
	h.stop(c, scheduler.JobCurate)
}

// StopDedupe handles POST /api/v1/dedupe/stop
func (h *Handler) StopDedupe(c *gin.Context) {
	h.stop(c, scheduler.JobDedupe)
}

func (h *Handler) stop(c *gin.Context, job string) {
	if !h.curator.Stop(job) {
		c.JSON(http.StatusConflict, gin.H{"error": job + " is not running"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job, "stop_requested": true})
}

// CurateStatus handles GET /api/v1/curate/status
func (h *Handler) CurateStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.curator.Status(scheduler.JobCurate))
}

// DedupeStatus handles GET /api/v1/dedupe/status
func (h *Handler) DedupeStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.curator.Status(scheduler.JobDedupe))
}

// GetRecord handles GET /api/v1/records/:date
func (h *Handler) GetRecord(c *gin.Context) {
	rec, err := h.curator.Record(c.Request.Context(), c.Param("date"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ListRecords handles GET /api/v1/records?start=&end=
func (h *Handler) ListRecords(c *gin.Context) {
	recs, err := h.curator.Records(c.Request.Context(), c.Query("start"), c.Query("end"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if recs == nil {
		recs = []domain.DailyRecord{}
	}
	c.JSON(http.StatusOK, RecordsResponse{Records: recs, Total: len(recs)})
}

// Reanalyze handles POST /api/v1/records/:date/reanalyze
func (h *Handler) Reanalyze(c *gin.Context) {
	rec, err := h.curator.Reanalyze(c.Request.Context(), c.Param("date"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// SelectDocument handles POST /api/v1/records/:date/select
func (h *Handler) SelectDocument(c *gin.Context) {
	var req SelectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := h.curator.ConfirmSelection(c.Request.Context(), c.Param("date"), req.DocumentID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// FlagRecord handles POST /api/v1/records/:date/flag
func (h *Handler) FlagRecord(c *gin.Context) {
	var req FlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := h.curator.Flag(c.Request.Context(), c.Param("date"), domain.Flag{IsFlagged: *req.Flagged, Reason: req.Reason})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ListClusters handles GET /api/v1/clusters?start=&end=
func (h *Handler) ListClusters(c *gin.Context) {
	if h.clusters == nil {
		h.writeError(c, pipeline.ErrDuplicatesDisabled)
		return
	}
	clusters, err := h.clusters.Clusters(c.Request.Context(), c.Query("start"), c.Query("end"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if clusters == nil {
		clusters = []domain.Cluster{}
	}
	c.JSON(http.StatusOK, ClustersResponse{Clusters: clusters, Total: len(clusters)})
}

// DeleteEdge handles DELETE /api/v1/edges/:a/:b
func (h *Handler) DeleteEdge(c *gin.Context) {
	if h.clusters == nil {
		h.writeError(c, pipeline.ErrDuplicatesDisabled)
		return
	}
	if err := h.clusters.DeleteEdge(c.Request.Context(), c.Param("a"), c.Param("b")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidDate), errors.Is(err, domain.ErrEmptyInput):
		status = http.StatusBadRequest
	case errors.Is(err, database.ErrRecordNotFound), errors.Is(err, duplicates.ErrEdgeNotFound):
		status = http.StatusNotFound
	case errors.Is(err, pipeline.ErrUnknownDocument):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, scheduler.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, pipeline.ErrDuplicatesDisabled):
		status = http.StatusNotImplemented
	}

	if status == http.StatusInternalServerError {
		logger.FromContext(c.Request.Context(), h.log).Error("Request failed",
			logger.String("path", c.FullPath()),
			logger.Error(err),
		)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
