package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ContentDigest/internal/domain"
	"ContentDigest/internal/scheduler"
)

type scheduleRequest struct {
	Kind           string    `json:"kind"`
	Schedule       string    `json:"schedule"`
	At             string    `json:"at"`
	WindowStart    time.Time `json:"window_start"`
	WindowEnd      time.Time `json:"window_end"`
	Types          []string  `json:"types"`
	Tags           []string  `json:"tags"`
	Recipient      string    `json:"recipient"`
	DeliveryMethod string    `json:"delivery_method"`
}

func (s *Server) createSchedule(c *gin.Context) {
	var body scheduleRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	kind := domain.RequestKind(body.Kind)
	if kind == "" {
		kind = domain.KindRecurring
	}
	if kind != domain.KindRecurring && kind != domain.KindOneShot {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be recurring or oneshot"})
		return
	}

	req := domain.NewDigestRequest(kind)
	req.At = body.At
	req.Tags = body.Tags
	req.Recipient = body.Recipient
	req.DeliveryMethod = domain.DeliveryMethod(body.DeliveryMethod)
	if req.DeliveryMethod == "" {
		req.DeliveryMethod = domain.DeliverView
	}
	for _, t := range body.Types {
		req.Types = append(req.Types, domain.ContentType(t))
	}

	switch kind {
	case domain.KindRecurring:
		req.Schedule = domain.ScheduleType(body.Schedule)
		next, err := scheduler.NextRun(req, time.Now().In(s.loc), s.loc)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		req.NextRun = next.UTC()
	case domain.KindOneShot:
		if body.WindowStart.IsZero() || body.WindowEnd.IsZero() || !body.WindowEnd.After(body.WindowStart) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "oneshot requests need a valid window_start and window_end"})
			return
		}
		req.WindowStart = body.WindowStart.UTC()
		req.WindowEnd = body.WindowEnd.UTC()
		req.NextRun = time.Now().UTC()
	}

	if err := s.schedules.SaveRequest(c.Request.Context(), req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, scheduleResponse(req))
}

func (s *Server) listSchedules(c *gin.Context) {
	activeOnly := c.Query("all") == ""
	reqs, err := s.schedules.ListRequests(c.Request.Context(), activeOnly)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]gin.H, 0, len(reqs))
	for i := range reqs {
		out = append(out, scheduleResponse(&reqs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"schedules": out})
}

func (s *Server) getSchedule(c *gin.Context) {
	req, err := s.schedules.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, scheduleResponse(req))
}

// deleteSchedule deactivates a request. Records generated from it remain
// readable, so this is a soft delete.
func (s *Server) deleteSchedule(c *gin.Context) {
	req, err := s.schedules.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	req.Active = false
	req.UpdatedAt = time.Now().UTC()
	if err := s.schedules.UpdateRequest(c.Request.Context(), req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type runRequest struct {
	RequestID string    `json:"request_id"`
	Recipient string    `json:"recipient"`
	Since     time.Time `json:"since"`
	Until     time.Time `json:"until"`
}

// runDigest fires an existing request immediately, or generates an ad-hoc
// digest over the given window when no request id is supplied.
func (s *Server) runDigest(c *gin.Context) {
	var body runRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if body.RequestID != "" {
		if err := s.sched.FireNow(c.Request.Context(), body.RequestID); err != nil {
			if errors.Is(err, scheduler.ErrAlreadyRunning) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			if errors.Is(err, scheduler.ErrNotActive) {
				c.JSON(http.StatusGone, gin.H{"error": err.Error()})
				return
			}
			s.renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "fired", "request_id": body.RequestID})
		return
	}

	until := body.Until
	if until.IsZero() {
		until = time.Now().UTC()
	}
	since := body.Since
	if since.IsZero() {
		since = until.Add(-24 * time.Hour)
	}
	rec, err := s.agg.RunOnDemand(c.Request.Context(), body.Recipient, since, until)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, recordResponse(rec))
}

func (s *Server) listRecords(c *gin.Context) {
	recs, err := s.schedules.ListRecords(c.Request.Context(), c.Query("request_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]gin.H, 0, len(recs))
	for i := range recs {
		out = append(out, recordResponse(&recs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"records": out})
}

func (s *Server) getRecord(c *gin.Context) {
	rec, err := s.schedules.GetRecord(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, recordResponse(rec))
}

func (s *Server) redeliverRecord(c *gin.Context) {
	rec, err := s.agg.Redeliver(c.Request.Context(), c.Param("id"))
	if err != nil {
		if rec != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "record": recordResponse(rec)})
			return
		}
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, recordResponse(rec))
}

func scheduleResponse(req *domain.DigestRequest) gin.H {
	return gin.H{
		"id":              req.ID,
		"kind":            req.Kind,
		"schedule":        req.Schedule,
		"at":              req.At,
		"window_start":    req.WindowStart,
		"window_end":      req.WindowEnd,
		"types":           req.Types,
		"tags":            req.Tags,
		"recipient":       req.Recipient,
		"delivery_method": req.DeliveryMethod,
		"state":           req.State,
		"active":          req.Active,
		"last_run":        req.LastRun,
		"next_run":        req.NextRun,
		"created_at":      req.CreatedAt,
	}
}

func recordResponse(rec *domain.DigestRecord) gin.H {
	themes := make([]gin.H, 0, len(rec.Themes))
	for _, t := range rec.Themes {
		themes = append(themes, gin.H{"label": t.Label, "item_ids": t.ItemIDs})
	}
	connections := make([]gin.H, 0, len(rec.Connections))
	for _, conn := range rec.Connections {
		connections = append(connections, gin.H{
			"item_a": conn.ItemA,
			"item_b": conn.ItemB,
			"shared": conn.Shared,
		})
	}
	return gin.H{
		"id":              rec.ID,
		"request_id":      rec.RequestID,
		"item_ids":        rec.ItemIDs,
		"themes":          themes,
		"connections":     connections,
		"body":            rec.Body,
		"html_body":       rec.HTMLBody,
		"recipient":       rec.Recipient,
		"delivery_method": rec.DeliveryMethod,
		"delivery_status": rec.DeliveryStatus,
		"generated_at":    rec.GeneratedAt,
	}
}
