// Package api exposes the HTTP surface: gateway ingestion, content lookup,
// digest schedule management, and agent discovery.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ContentDigest/internal/agent"
	"ContentDigest/internal/digest"
	"ContentDigest/internal/domain"
	"ContentDigest/internal/infrastructure/gateway"
	"ContentDigest/internal/ports"
	"ContentDigest/internal/scheduler"
	"ContentDigest/internal/usecase"
)

// Server carries handler dependencies.
type Server struct {
	intake    *usecase.Intake
	knowledge ports.KnowledgeStore
	schedules ports.ScheduleStore
	registry  *agent.Registry
	agg       *digest.Aggregator
	sched     *scheduler.Scheduler
	loc       *time.Location
	log       *slog.Logger
}

func NewServer(
	intake *usecase.Intake,
	knowledge ports.KnowledgeStore,
	schedules ports.ScheduleStore,
	registry *agent.Registry,
	agg *digest.Aggregator,
	sched *scheduler.Scheduler,
	loc *time.Location,
	log *slog.Logger,
) *Server {
	return &Server{
		intake:    intake,
		knowledge: knowledge,
		schedules: schedules,
		registry:  registry,
		agg:       agg,
		sched:     sched,
		loc:       loc,
		log:       log,
	}
}

// Routes builds the gin engine with all endpoints registered.
func (s *Server) Routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.health)
	r.GET("/agents", s.listAgents)

	r.POST("/gateway/email", s.ingestEmail)
	r.POST("/gateway/whatsapp", s.ingestWhatsApp)

	r.POST("/content", s.submitContent)
	r.GET("/content/:id", s.getContent)
	r.GET("/content/:id/result", s.getResult)
	r.GET("/content/:id/decisions", s.getDecisions)
	r.POST("/content/:id/resubmit", s.resubmitContent)

	d := r.Group("/digests")
	d.POST("/schedules", s.createSchedule)
	d.GET("/schedules", s.listSchedules)
	d.GET("/schedules/:id", s.getSchedule)
	d.DELETE("/schedules/:id", s.deleteSchedule)
	d.POST("/run", s.runDigest)
	d.GET("/records", s.listRecords)
	d.GET("/records/:id", s.getRecord)
	d.POST("/records/:id/redeliver", s.redeliverRecord)

	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listAgents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agents": s.registry.List()})
}

func (s *Server) ingestEmail(c *gin.Context) {
	var msg gateway.EmailMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	item, err := gateway.FromEmail(msg)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	s.submit(c, item)
}

func (s *Server) ingestWhatsApp(c *gin.Context) {
	var msg gateway.WhatsAppMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	item, err := gateway.FromWhatsApp(msg)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	s.submit(c, item)
}

type submitRequest struct {
	Type    string `json:"type"`
	Payload string `json:"payload"`
	Title   string `json:"title"`
	Sender  string `json:"sender"`
	Command string `json:"command"`
}

func (s *Server) submitContent(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Payload == "" && req.Command == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payload or command is required"})
		return
	}

	item := domain.NewContentItem(domain.ChannelUpload, req.Payload)
	item.Title = req.Title
	item.Sender = req.Sender
	item.Command = req.Command
	if req.Type != "" {
		item.Type = domain.ContentType(req.Type)
	} else if req.Payload != "" {
		item.Type = domain.TypeText
	}

	s.submit(c, item)
}

func (s *Server) submit(c *gin.Context, item *domain.ContentItem) {
	item, err := s.intake.Submit(c.Request.Context(), item)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, itemResponse(item))
}

func (s *Server) getContent(c *gin.Context) {
	item, err := s.knowledge.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, itemResponse(item))
}

func (s *Server) getResult(c *gin.Context) {
	result, err := s.knowledge.ResultForItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, resultResponse(result))
}

func (s *Server) getDecisions(c *gin.Context) {
	decisions, err := s.knowledge.DecisionsForItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	out := make([]gin.H, 0, len(decisions))
	for _, d := range decisions {
		out = append(out, gin.H{
			"agent":      d.Agent,
			"rule":       d.Rule,
			"reason":     d.Reason,
			"decided_at": d.DecidedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"decisions": out})
}

func (s *Server) resubmitContent(c *gin.Context) {
	item, err := s.intake.Resubmit(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, itemResponse(item))
}

func (s *Server) renderError(c *gin.Context, err error) {
	if errors.Is(err, ports.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func itemResponse(item *domain.ContentItem) gin.H {
	return gin.H{
		"id":             item.ID,
		"channel":        item.Channel,
		"type":           item.Type,
		"title":          item.Title,
		"sender":         item.Sender,
		"command":        item.Command,
		"tags":           item.Tags,
		"status":         item.Status,
		"failure_reason": item.FailureReason,
		"created_at":     item.CreatedAt,
		"updated_at":     item.UpdatedAt,
	}
}

func resultResponse(r *domain.AgentResult) gin.H {
	entities := make([]gin.H, 0, len(r.Entities))
	for _, e := range r.Entities {
		entities = append(entities, gin.H{"type": e.Type, "name": e.Name})
	}
	return gin.H{
		"id":           r.ID,
		"item_id":      r.ItemID,
		"agent":        r.Agent,
		"summary":      r.Summary,
		"processed":    r.Processed,
		"content_type": r.ContentType,
		"entities":     entities,
		"tags":         r.Tags,
		"providers":    r.Providers,
		"completed_at": r.CompletedAt,
	}
}
