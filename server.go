package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/gasbygas/dispatch_backend/config"
	"github.com/gasbygas/dispatch_backend/middlewares"
	"github.com/gasbygas/dispatch_backend/models"
	"github.com/gasbygas/dispatch_backend/models/reports"
	"github.com/gasbygas/dispatch_backend/utils"
	"github.com/gasbygas/dispatch_backend/workflow"
)

const defaultPort = "8080"

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func getRedisClient(redisAddress string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
	return client
}

// respondError translates the error taxonomy onto HTTP statuses so
// clients can tell a bad request from a blocked transition.
func respondError(c *gin.Context, err error) {
	switch {
	case utils.IsValidationError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case utils.IsTransitionError(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrorStockNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrorInsufficientStock):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, workflow.ErrIdempotencyInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func pathId(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a positive integer"})
		return 0, false
	}
	return id, true
}

func createOutletHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewOutlet
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		outlet, err := models.CreateOutlet(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, outlet)
	}
}

func listOutletsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var name *string
		if v := c.Query("name"); v != "" {
			name = &v
		}
		outlets, err := models.ListOutlets(c.Request.Context(), name)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, outlets)
	}
}

func getOutletHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		outlet, err := models.GetOutlet(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, outlet)
	}
}

func updateOutletHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var input models.NewOutlet
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		outlet, err := models.UpdateOutlet(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, outlet)
	}
}

func createCustomerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewCustomer
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		customer, err := models.CreateCustomer(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, customer)
	}
}

func getCustomerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		customer, err := models.GetCustomer(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, customer)
	}
}

func listOutletCustomersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		customers, err := models.ListCustomersByOutlet(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, customers)
	}
}

func createRequestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewStockRequest
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		// An outlet session orders for itself only.
		if !utils.IsHeadOffice(c.Request.Context()) {
			if sessionOutletId, ok := utils.GetOutletIdFromContext(c.Request.Context()); ok && sessionOutletId != input.OutletId {
				c.JSON(http.StatusForbidden, gin.H{"error": "cannot request stock for another outlet"})
				return
			}
		}
		request, schedule, err := models.CreateStockRequest(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"request": request, "schedule": schedule})
	}
}

func listRequestsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var outletId *int
		if v := c.Query("outlet_id"); v != "" {
			id, err := strconv.Atoi(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "outlet_id must be an integer"})
				return
			}
			outletId = &id
		}
		// An outlet session sees its own requests regardless of filters.
		if !utils.IsHeadOffice(c.Request.Context()) {
			if sessionOutletId, ok := utils.GetOutletIdFromContext(c.Request.Context()); ok && sessionOutletId != 0 {
				outletId = &sessionOutletId
			}
		}
		var status *models.RequestStatus
		if v := c.Query("status"); v != "" {
			s := models.RequestStatus(v)
			status = &s
		}
		requests, err := models.ListRequests(c.Request.Context(), outletId, status)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, requests)
	}
}

func getRequestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		request, err := models.GetRequest(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, request)
	}
}

func getRequestScheduleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		schedule, err := models.GetScheduleByRequestId(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, schedule)
	}
}

func listScheduleTokensHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		tokens, err := models.ListTokensBySchedule(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, tokens)
	}
}

func listCustomerTokensHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		tokens, err := models.ListTokensByCustomer(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, tokens)
	}
}

type editScheduleDateRequest struct {
	ScheduleDate time.Time `json:"schedule_date" binding:"required"`
}

func editScheduleDateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var req editScheduleDateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := workflow.EditScheduleDate(c.Request.Context(), id, req.ScheduleDate); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func dispatchRequestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		clientKey := c.GetHeader("Idempotency-Key")
		if err := workflow.DispatchRequest(c.Request.Context(), id, clientKey); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func denyRequestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		clientKey := c.GetHeader("Idempotency-Key")
		if err := workflow.DenyRequest(c.Request.Context(), id, clientKey); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func confirmReceivedHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		clientKey := c.GetHeader("Idempotency-Key")
		if err := workflow.ConfirmReceived(c.Request.Context(), id, clientKey); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func issueTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewToken
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		token, err := workflow.IssueToken(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, token)
	}
}

func lookupTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		token, customer, err := models.LookupToken(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "customer": customer})
	}
}

type reallocateTokenRequest struct {
	NewCustomerId int `json:"new_customer_id" binding:"required"`
}

func reallocateTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var req reallocateTokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := workflow.ReallocateToken(c.Request.Context(), id, req.NewCustomerId); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

type paymentAndEmptyRequest struct {
	Received *bool `json:"received" binding:"required"`
}

func paymentAndEmptyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var req paymentAndEmptyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := workflow.SetPaymentAndEmpty(c.Request.Context(), id, *req.Received); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

type handoverRequest struct {
	Confirm bool `json:"confirm"`
}

func handoverTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var req handoverRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		preview, err := workflow.HandoverToken(c.Request.Context(), id, req.Confirm)
		if err != nil {
			respondError(c, err)
			return
		}
		if !req.Confirm {
			c.JSON(http.StatusOK, gin.H{"preview": preview, "committed": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"preview": preview, "committed": true})
	}
}

func getStockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		stock, err := models.GetStockByOutlet(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, stock)
	}
}

func getHeadOfficeStockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		stock, err := models.GetStockByOutlet(c.Request.Context(), models.HeadOfficeOutletId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, stock)
	}
}

type stockIntakeRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}

func creditHeadOfficeStockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req stockIntakeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		stock, err := models.CreditHeadOfficeStock(c.Request.Context(), req.Quantity)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, stock)
	}
}

func listOutletSchedulesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		schedules, err := models.ListSchedulesByOutlet(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, schedules)
	}
}

func customerNotificationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		customer, err := models.GetCustomer(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		notifications, err := models.ListNotificationsForCustomer(c.Request.Context(), id, customer.OutletId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, notifications)
	}
}

func outletNotificationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		notifications, err := models.ListNotificationsForOutlet(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, notifications)
	}
}

type broadcastRequest struct {
	Message string `json:"message" binding:"required"`
}

func broadcastHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req broadcastRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		db := config.GetDB()
		err := db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
			return workflow.BroadcastToOutlets(tx, req.Message)
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func outletBroadcastHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var req broadcastRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if !utils.IsHeadOffice(c.Request.Context()) {
			if sessionOutletId, ok := utils.GetOutletIdFromContext(c.Request.Context()); ok && sessionOutletId != id {
				c.JSON(http.StatusForbidden, gin.H{"error": "cannot broadcast for another outlet"})
				return
			}
		}
		outlet, err := models.GetOutlet(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		db := config.GetDB()
		err = db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
			return workflow.SendOutletBroadcast(tx, outlet, req.Message)
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func sentNotificationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		outlet, err := models.GetOutlet(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		notifications, err := models.ListSentNotifications(c.Request.Context(), outlet.Name)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, notifications)
	}
}

func requestPipelineHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := reports.GetRequestPipeline(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func tokenPipelineHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var outletId *int
		if v := c.Query("outlet_id"); v != "" {
			id, err := strconv.Atoi(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "outlet_id must be an integer"})
				return
			}
			outletId = &id
		}
		result, err := reports.GetTokenPipeline(c.Request.Context(), outletId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func stockSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var outletId *int
		if v := c.Query("outlet_id"); v != "" {
			id, err := strconv.Atoi(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "outlet_id must be an integer"})
				return
			}
			outletId = &id
		}
		result, err := reports.GetStockSummaryReport(c.Request.Context(), outletId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func monthlyDispatchesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := reports.GetMonthlyDispatches(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func stockSummaryExcelHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var outletId *int
		if v := c.Query("outlet_id"); v != "" {
			id, err := strconv.Atoi(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "outlet_id must be an integer"})
				return
			}
			outletId = &id
		}
		f, err := reports.ExportStockSummaryExcel(c.Request.Context(), outletId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", "attachment; filename=stock-summary.xlsx")
		if err := f.Write(c.Writer); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to write file"})
		}
	}
}

type outboxReplayRequest struct {
	RecordId int `json:"record_id"`
}

// Ops tooling: put a DEAD/FAILED email record back on the retry path.
func outboxReplayHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req outboxReplayRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if req.RecordId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "record_id is required"})
			return
		}

		db := config.GetDB()
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "db is nil"})
			return
		}
		now := time.Now().UTC()
		if err := db.WithContext(c.Request.Context()).
			Model(&models.EmailOutboxRecord{}).
			Where("id = ?", req.RecordId).
			Updates(map[string]interface{}{
				"send_status":     models.OutboxPublishStatusFailed,
				"next_attempt_at": &now,
				"locked_at":       nil,
				"locked_by":       nil,
				"last_send_error": nil,
			}).Error; err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"record_id":       req.RecordId,
			"send_status":     models.OutboxPublishStatusFailed,
			"next_attempt_at": now.Format(time.RFC3339Nano),
		})
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Shutdown coordination.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so the platform considers the revision
	// healthy. Until DB/Redis are ready, app endpoints return 503.
	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// In production, require an explicit allowlist via
	// CORS_ALLOWED_ORIGINS (comma-separated); elsewhere allow all.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization", "Idempotency-Key")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	// Optional rate limiting (recommended for production).
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := getRedisClient(os.Getenv("REDIS_ADDRESS"))
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(middlewares.SessionMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	headOffice := middlewares.RequireRole(utils.RoleHeadOffice)
	anyRole := middlewares.RequireRole(utils.RoleHeadOffice, utils.RoleOutlet)

	r.POST("/outlets", headOffice, createOutletHandler())
	r.GET("/outlets", anyRole, listOutletsHandler())
	r.GET("/outlets/:id", anyRole, getOutletHandler())
	r.PUT("/outlets/:id", headOffice, updateOutletHandler())
	r.GET("/outlets/:id/customers", anyRole, listOutletCustomersHandler())
	r.GET("/outlets/:id/stock", anyRole, getStockHandler())
	r.GET("/outlets/:id/schedules", anyRole, listOutletSchedulesHandler())
	r.GET("/outlets/:id/notifications", anyRole, outletNotificationsHandler())
	r.GET("/outlets/:id/notifications/sent", anyRole, sentNotificationsHandler())
	r.POST("/outlets/:id/broadcasts", anyRole, outletBroadcastHandler())

	r.POST("/customers", anyRole, createCustomerHandler())
	r.GET("/customers/:id", anyRole, getCustomerHandler())
	r.GET("/customers/:id/notifications", anyRole, customerNotificationsHandler())
	r.GET("/customers/:id/tokens", anyRole, listCustomerTokensHandler())

	r.POST("/requests", anyRole, createRequestHandler())
	r.GET("/requests", anyRole, listRequestsHandler())
	r.GET("/requests/:id", anyRole, getRequestHandler())
	r.GET("/requests/:id/schedule", anyRole, getRequestScheduleHandler())
	r.PUT("/requests/:id/schedule-date", headOffice, editScheduleDateHandler())
	r.POST("/requests/:id/dispatch", headOffice, dispatchRequestHandler())
	r.POST("/requests/:id/deny", headOffice, denyRequestHandler())
	r.POST("/requests/:id/receive", anyRole, confirmReceivedHandler())

	r.GET("/stock/head-office", headOffice, getHeadOfficeStockHandler())
	r.POST("/stock/head-office/credit", headOffice, creditHeadOfficeStockHandler())

	r.POST("/tokens", anyRole, issueTokenHandler())
	r.GET("/schedules/:id/tokens", anyRole, listScheduleTokensHandler())
	r.GET("/tokens/:id", anyRole, lookupTokenHandler())
	r.POST("/tokens/:id/reallocate", anyRole, reallocateTokenHandler())
	r.PUT("/tokens/:id/payment-and-empty", anyRole, paymentAndEmptyHandler())
	r.POST("/tokens/:id/handover", anyRole, handoverTokenHandler())

	r.POST("/broadcasts", headOffice, broadcastHandler())

	r.GET("/reports/request-pipeline", headOffice, requestPipelineHandler())
	r.GET("/reports/token-pipeline", anyRole, tokenPipelineHandler())
	r.GET("/reports/stock-summary", headOffice, stockSummaryHandler())
	r.GET("/reports/stock-summary/export", headOffice, stockSummaryExcelHandler())
	r.GET("/reports/monthly-dispatches", headOffice, monthlyDispatchesHandler())

	r.POST("/internal/ops/outbox/replay", headOffice, outboxReplayHandler())

	r.NoRoute(customNotFoundHandler)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	config.ConnectMailer()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; allow running
	// migrations as a separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Start email outbox dispatcher (delivers AFTER commit).
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	defer cancelDispatcher()
	go workflow.NewEmailOutboxDispatcher(db, logger).Run(dispatcherCtx)

	// Set the session isolation level to READ COMMITTED
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port)
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers first so they don't start new work while draining.
	cancelDispatcher()

	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Middleware function to check rate limits.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	key := c.ClientIP()

	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
