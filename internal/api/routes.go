package api

import (
	"github.com/gin-gonic/gin"

	infragin "github.com/jonesrussell/north-cloud/timeline/infrastructure/gin"
	"github.com/jonesrussell/north-cloud/timeline/infrastructure/sse"
)

// SetupRoutes registers the /api/v1 routes. A non-empty jwtSecret puts them
// behind bearer authentication.
func SetupRoutes(router *gin.Engine, h *Handler, jwtSecret string) {
	v1 := infragin.ProtectedGroup(router, "/api/v1", jwtSecret)

	curate := v1.Group("/curate")
	curate.POST("", h.StartCurate)
	curate.POST("/stop", h.StopCurate)
	curate.GET("/status", h.CurateStatus)

	dedupe := v1.Group("/dedupe")
	dedupe.POST("", h.StartDedupe)
	dedupe.POST("/stop", h.StopDedupe)
	dedupe.GET("/status", h.DedupeStatus)

	records := v1.Group("/records")
	records.GET("", h.ListRecords)
	records.GET("/:date", h.GetRecord)
	records.POST("/:date/reanalyze", h.Reanalyze)
	records.POST("/:date/select", h.SelectDocument)
	records.POST("/:date/flag", h.FlagRecord)

	v1.GET("/clusters", h.ListClusters)
	v1.DELETE("/edges/:a/:b", h.DeleteEdge)

	if h.events != nil {
		v1.GET("/events", sse.Handler(h.events, h.log, 0))
	}
}
