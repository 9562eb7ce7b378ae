package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/septivank/buoy-telemetry/internal/service"
)

const (
	// /messages keeps the sizes the v1 dashboard expects
	legacyMessageLimit      = 50
	legacyNotificationLimit = 10

	noContentError = "No message content provided"
	xlsxMIME       = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	pdfMIME        = "application/pdf"
)

// handleIngest accepts {content, type?, buoyId?} from the SMS gateway
// POST /message, POST /api/messages
func (s *Server) handleIngest(c *gin.Context) {
	var req service.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": noContentError})
		return
	}
	req.RequestID = c.GetString(requestIDKey)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	result, err := s.ingester.Ingest(ctx, req)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ingestResponse{Success: true, IngestResult: result})
}

// handleMessages returns raw messages and notifications, oldest first
// GET /messages
func (s *Server) handleMessages(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	messages, err := s.queries.RecentMessages(ctx, legacyMessageLimit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	notifications, err := s.queries.RecentNotifications(ctx, legacyNotificationLimit)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages":      oldestFirst(toRawDTOs(messages)),
		"notifications": oldestFirst(toRawDTOs(notifications)),
	})
}

// GET /api/readings?buoyId=&limit=
func (s *Server) handleReadings(c *gin.Context) {
	buoyID, limit, ok := s.readingFilter(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	readings, err := s.queries.RecentReadings(ctx, buoyID, limit)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": toReadingDTOs(readings),
		"meta": gin.H{"count": len(readings), "limit": limit},
	})
}

// GET /api/readings/path?buoyId=
func (s *Server) handleReadingPath(c *gin.Context) {
	buoyID, ok := parseBuoyQuery(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	readings, err := s.queries.LocatedReadings(ctx, buoyID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": toReadingDTOs(readings),
		"meta": gin.H{"count": len(readings)},
	})
}

// GET /api/readings/export.xlsx?buoyId=&limit=
func (s *Server) handleExport(c *gin.Context) {
	buoyID, limit, ok := s.readingFilter(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	readings, err := s.queries.RecentReadings(ctx, buoyID, limit)
	if err != nil {
		s.respondError(c, err)
		return
	}

	data, err := BuildReadingsXLSX(readings)
	if err != nil {
		s.logger.Error("failed to build xlsx export", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="readings.xlsx"`)
	c.Data(http.StatusOK, xlsxMIME, data)
}

// GET /api/notifications?limit=
func (s *Server) handleNotifications(c *gin.Context) {
	limit, ok := s.parseLimit(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	notifications, err := s.queries.RecentNotifications(ctx, limit)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": toRawDTOs(notifications),
		"meta": gin.H{"count": len(notifications)},
	})
}

// GET /api/buoys
func (s *Server) handleBuoys(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	buoys, err := s.queries.Buoys(ctx)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": toBuoyDTOs(buoys),
		"meta": gin.H{"count": len(buoys)},
	})
}

// GET /api/buoys/report.pdf
func (s *Server) handleBuoyReport(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	buoys, err := s.queries.Buoys(ctx)
	if err != nil {
		s.respondError(c, err)
		return
	}

	data, err := BuildBuoyReportPDF(buoys, time.Now())
	if err != nil {
		s.logger.Error("failed to build pdf report", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "report failed"})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="buoys.pdf"`)
	c.Data(http.StatusOK, pdfMIME, data)
}

// DELETE /api/readings/:id
func (s *Server) handleDeleteReading(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reading id"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := s.queries.DeleteReading(ctx, id); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DELETE /api/raw/:id
func (s *Server) handleDeleteRaw(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid raw id"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := s.queries.DeleteRaw(ctx, id); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DELETE /api/buoys/:buoyId
func (s *Server) handleDeleteBuoy(c *gin.Context) {
	buoyID, err := strconv.Atoi(c.Param("buoyId"))
	if err != nil || buoyID < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid buoyId"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	counts, err := s.queries.DeleteBuoy(ctx, buoyID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "deleted": counts})
}

// POST /api/admin/reconcile?batchSize=
func (s *Server) handleReconcile(c *gin.Context) {
	batchSize := s.cfg.ReconcileBatchSize
	if v := c.Query("batchSize"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid batchSize"})
			return
		}
		batchSize = parsed
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Minute)
	defer cancel()

	result, err := s.reconciler.Reconcile(ctx, batchSize)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GET /readyz
func (s *Server) handleReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.health.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// readingFilter parses the buoyId and limit query parameters, writing a 400
// response when either is invalid.
func (s *Server) readingFilter(c *gin.Context) (*int, int, bool) {
	buoyID, ok := parseBuoyQuery(c)
	if !ok {
		return nil, 0, false
	}
	limit, ok := s.parseLimit(c)
	if !ok {
		return nil, 0, false
	}
	return buoyID, limit, true
}

// parseLimit applies the default limit and caps it at the maximum
func (s *Server) parseLimit(c *gin.Context) (int, bool) {
	limitStr := c.Query("limit")
	if limitStr == "" {
		return s.cfg.DefaultLimit, true
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return 0, false
	}
	if limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}
	return limit, true
}

func parseBuoyQuery(c *gin.Context) (*int, bool) {
	v := c.Query("buoyId")
	if v == "" {
		return nil, true
	}
	id, err := strconv.Atoi(v)
	if err != nil || id < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid buoyId"})
		return nil, false
	}
	return &id, true
}

func (s *Server) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		s.logger.Error("request failed",
			zap.Error(err),
			zap.String("path", c.FullPath()),
			zap.String(requestIDKey, c.GetString(requestIDKey)),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
