package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"keyshop-service/internal/models"
	"keyshop-service/internal/service"
	"keyshop-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	orderService *service.OrderService
	callbacks    *service.CallbackProcessor
	allocator    *service.Allocator
}

// NewHandler creates a new HTTP handler
func NewHandler(orderService *service.OrderService, callbacks *service.CallbackProcessor, allocator *service.Allocator) *Handler {
	return &Handler{
		orderService: orderService,
		callbacks:    callbacks,
		allocator:    allocator,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/gateways", h.listGateways)
		v1.POST("/orders", h.createOrder)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/:id/payment", h.selectPayment)
		v1.GET("/users/:user_id/orders", h.listUserOrders)
		v1.POST("/callbacks/:gateway_id", h.gatewayCallback)

		admin := v1.Group("/admin")
		{
			admin.POST("/keys", h.importKeys)
			admin.POST("/keys/:id/revoke", h.revokeKey)
			admin.GET("/orders/:id", h.inspectOrder)
			admin.POST("/orders/:id/cancel", h.cancelOrder)
		}
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// listGateways returns the enabled payment gateways
func (h *Handler) listGateways(c *gin.Context) {
	gateways, err := h.orderService.ListGateways(c.Request.Context())
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"gateways": gateways})
}

// listUserOrders returns a user's order history
func (h *Handler) listUserOrders(c *gin.Context) {
	orders, err := h.orderService.ListForUser(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// createOrder handles order submission
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.orderService.Create(c.Request.Context(), &req)
	if err != nil {
		status := statusForError(err)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// getOrder returns an order and, once fulfilled, its keys
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}

	order, keys, err := h.orderService.Get(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{"order": order}
	if len(keys) > 0 {
		secrets := make([]string, len(keys))
		for i, k := range keys {
			secrets[i] = k.Secret
		}
		resp["keys"] = secrets
	}
	c.JSON(http.StatusOK, resp)
}

type selectPaymentRequest struct {
	GatewayID int64 `json:"gateway_id" binding:"required"`
}

// selectPayment picks a gateway for an order and returns the payment intent
func (h *Handler) selectPayment(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req selectPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	intent, err := h.orderService.SelectGateway(c.Request.Context(), orderID, req.GatewayID)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, intent)
}

// gatewayCallback processes a raw provider notification. Always answers
// quickly; identical payloads may be posted any number of times.
func (h *Handler) gatewayCallback(c *gin.Context) {
	gatewayID, ok := parseID(c, "gateway_id")
	if !ok {
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read payload"})
		return
	}

	result, err := h.callbacks.HandleCallback(c.Request.Context(), gatewayID, raw)
	if result == service.ResultRetry {
		c.JSON(http.StatusInternalServerError, gin.H{"result": result, "error": "temporary failure, retry"})
		return
	}

	resp := gin.H{"result": result}
	if err != nil {
		resp["error"] = err.Error()
	}

	switch result {
	case service.ResultFulfilled, service.ResultAlreadyProcessed, service.ResultNoStock:
		c.JSON(http.StatusOK, resp)
	default:
		c.JSON(http.StatusBadRequest, resp)
	}
}

type importKeysRequest struct {
	ProductID int64    `json:"product_id" binding:"required"`
	Secrets   []string `json:"secrets" binding:"required,min=1"`
}

// importKeys bulk-loads new keys into a product's pool
func (h *Handler) importKeys(c *gin.Context) {
	var req importKeysRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	count, err := h.allocator.Import(c.Request.Context(), req.ProductID, req.Secrets)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"imported": count})
}

// revokeKey permanently removes a key from circulation
func (h *Handler) revokeKey(c *gin.Context) {
	keyID, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.allocator.Revoke(c.Request.Context(), keyID); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// inspectOrder returns an order with its keys and ledger entries
func (h *Handler) inspectOrder(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}

	order, keys, txns, err := h.orderService.Inspect(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order":        order,
		"keys":         keys,
		"transactions": txns,
	})
}

// cancelOrder cancels an unpaid order
func (h *Handler) cancelOrder(c *gin.Context) {
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.orderService.Cancel(c.Request.Context(), orderID, "admin"); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrProductNotFound),
		errors.Is(err, models.ErrOrderNotFound),
		errors.Is(err, models.ErrGatewayNotFound),
		errors.Is(err, models.ErrKeyNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInsufficientInventory),
		errors.Is(err, models.ErrInvalidStateTransition),
		errors.Is(err, models.ErrDuplicateAccessCode):
		return http.StatusConflict
	case errors.Is(err, models.ErrGatewayUnavailable),
		errors.Is(err, models.ErrSignatureInvalid),
		errors.Is(err, models.ErrAmountMismatch):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
