package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"studyguider/internal/chat"
	"studyguider/internal/ingest"
	"studyguider/internal/models"
	"studyguider/internal/observability"
	"studyguider/internal/worker"
)

const rootMessage = "Study abroad assistant API is running"

// ChatService runs chat turns and manages session history.
type ChatService interface {
	Send(ctx context.Context, sessionID, message string) (*chat.Reply, error)
	History(ctx context.Context, sessionID string) ([]models.Message, error)
	Reset(ctx context.Context, sessionID string) error
	Transcript(ctx context.Context, sessionID string) ([]models.Message, error)
}

// KnowledgeCounter reports the size of the knowledge base.
type KnowledgeCounter interface {
	Count() int
}

// TextIngester adds raw text to the knowledge base.
type TextIngester interface {
	IngestText(ctx context.Context, source, text string) (int, error)
}

// Options configures the admin surface. Admin routes are only registered
// when AdminToken is set.
type Options struct {
	AdminToken string
	Knowledge  KnowledgeCounter
	Ingester   TextIngester
}

// Handler wires HTTP routes to the chat service.
type Handler struct {
	chat       ChatService
	knowledge  KnowledgeCounter
	ingester   TextIngester
	adminToken string
}

// NewHandler constructs a Handler instance.
func NewHandler(chatService ChatService, opts Options) *Handler {
	return &Handler{
		chat:       chatService,
		knowledge:  opts.Knowledge,
		ingester:   opts.Ingester,
		adminToken: strings.TrimSpace(opts.AdminToken),
	}
}

// NewRouter builds the gin engine with recovery, access logging and CORS.
func NewRouter(h *Handler, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), observability.RequestLogger(logger), cors.New(corsConfig()))
	h.RegisterRoutes(router)
	return router
}

func corsConfig() cors.Config {
	return cors.Config{
		AllowAllOrigins:           true,
		AllowMethods:              []string{http.MethodPost, http.MethodGet, http.MethodOptions},
		AllowHeaders:              []string{"*"},
		OptionsResponseStatusCode: http.StatusOK,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.root)
	router.GET("/health", h.health)
	router.POST("/chat", h.chatTurn)
	router.OPTIONS("/chat", h.chatOptions)

	if h.adminToken == "" {
		return
	}
	admin := router.Group("/admin")
	admin.Use(requireAdminToken(h.adminToken))
	admin.GET("/sessions/:id", h.getSession)
	admin.DELETE("/sessions/:id", h.deleteSession)
	admin.GET("/sessions/:id/transcript", h.getTranscript)
	admin.GET("/knowledge", h.knowledgeStats)
	admin.POST("/knowledge", h.addKnowledge)
}

func (h *Handler) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": rootMessage, "status": "healthy"})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "message": "Service is running"})
}

// chatOptions answers preflight requests that reach the router without an Origin header.
func (h *Handler) chatOptions(c *gin.Context) {
	c.Status(http.StatusOK)
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	SessionID string `json:"session_id"`
	Response  string `json:"response"`
}

func (h *Handler) chatTurn(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request body"})
		return
	}
	reply, err := h.chat.Send(c.Request.Context(), req.SessionID, req.Message)
	if err != nil {
		h.writeChatError(c, err)
		return
	}
	c.JSON(http.StatusOK, chatResponse{SessionID: reply.SessionID, Response: reply.Response})
}

func (h *Handler) writeChatError(c *gin.Context, err error) {
	_ = c.Error(err)
	var agentErr *chat.AgentError
	switch {
	case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, chat.ErrEmptySessionID):
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
	case errors.Is(err, worker.ErrDispatcherBusy):
		c.JSON(http.StatusTooManyRequests, gin.H{"detail": "server is busy, please retry"})
	case errors.As(err, &agentErr):
		c.JSON(http.StatusInternalServerError, gin.H{"detail": agentErr.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Agent error: " + err.Error()})
	}
}

func (h *Handler) getSession(c *gin.Context) {
	id := c.Param("id")
	messages, err := h.chat.History(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.Session{ID: id, Messages: messages})
}

func (h *Handler) deleteSession(c *gin.Context) {
	if err := h.chat.Reset(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getTranscript(c *gin.Context) {
	id := c.Param("id")
	messages, err := h.chat.Transcript(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, chat.ErrNoArchive) {
			c.JSON(http.StatusNotFound, gin.H{"detail": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.Session{ID: id, Messages: messages})
}

func (h *Handler) knowledgeStats(c *gin.Context) {
	if h.knowledge == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "knowledge store unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chunks": h.knowledge.Count()})
}

type knowledgeRequest struct {
	Source string `json:"source"`
	Text   string `json:"text"`
}

func (h *Handler) addKnowledge(c *gin.Context) {
	if h.ingester == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "ingestion unavailable"})
		return
	}
	var req knowledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request body"})
		return
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "source is required"})
		return
	}
	n, err := h.ingester.IngestText(c.Request.Context(), source, req.Text)
	if err != nil {
		if errors.Is(err, ingest.ErrNoContent) {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		observability.LoggerFromContext(c.Request.Context()).Error("ingest text failed",
			zap.String("source", source), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"source": source, "chunks": n})
}
