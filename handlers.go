package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/models"
	"bitbucket.org/mmdatafocus/procurement_backend/utils"
	"bitbucket.org/mmdatafocus/procurement_backend/workflow"
	"github.com/bsm/redislock"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
)

func registerRoutes(r *gin.Engine) {
	r.GET("/shipments", listShipmentsHandler())
	r.GET("/shipments/:id", getShipmentHandler())
	r.GET("/shipments/:id/acceptance", getAcceptanceForShipmentHandler())
	r.POST("/shipments/:id/acceptance", createAcceptanceHandler())

	r.GET("/acceptances/:id", getAcceptanceHandler())
	r.PUT("/acceptances/:id", saveAcceptanceHandler())
	r.PUT("/acceptances/:id/items/:itemId/quantities", updateItemQuantitiesHandler())
	r.GET("/acceptances/:id/rejection", getRejectionForAcceptanceHandler())

	r.GET("/rejections/:id", getRejectionHandler())
	r.PUT("/rejections/:id/dispositions", updateDispositionsHandler())
	r.POST("/rejections/:id/communications", contactVendorHandler())
	r.GET("/rejections/:id/communications", listCommunicationsHandler())

	r.POST("/suppliers", createSupplierHandler())
	r.GET("/suppliers", listSuppliersHandler())
	r.GET("/suppliers/:id", getSupplierHandler())
	r.PUT("/suppliers/:id", updateSupplierHandler())
	r.DELETE("/suppliers/:id", deleteSupplierHandler())
	r.PATCH("/suppliers/:id/active", toggleActiveSupplierHandler())

	// Channel collaborator reports delivery-status transitions here (Pub/Sub push).
	r.POST("/pubsub/channel-status", channelStatusPubSubHandler())
	// Ops tooling: replay outbox messages that were marked DEAD/FAILED.
	r.POST("/internal/ops/outbox/replay", outboxReplayHandler())
}

// respondError maps domain errors to HTTP statuses. Persistence failures
// surface verbatim with 500 and are never retried here.
func respondError(c *gin.Context, err error) {
	var mysqlErr *mysqlDriver.MySQLError
	switch {
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrorStaleVersion):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrorQuantityOutOfRange),
		errors.Is(err, models.ErrorMissingAcceptor),
		errors.Is(err, models.ErrorEmptyMessage),
		errors.Is(err, models.ErrorRecordFinalized):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.As(err, &mysqlErr):
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

func respondBindingError(c *gin.Context, err error) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": utils.ProcessValidationErrors(err)})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
}

func pathId(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a positive integer"})
		return 0, false
	}
	return id, true
}

func requireBusiness(c *gin.Context) (context.Context, bool) {
	ctx := c.Request.Context()
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}
	return ctx, true
}

func getShipmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, ok := requireBusiness(c)
		if !ok {
			return
		}
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		shipment, err := models.GetShipment(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, shipment)
	}
}

func listShipmentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, ok := requireBusiness(c)
		if !ok {
			return
		}
		var supplierId *int
		if v := c.Query("supplier_id"); v != "" {
			id, err := strconv.Atoi(v)
			if err != nil || id <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "supplier_id must be a positive integer"})
				return
			}
			supplierId = &id
		}
		shipments, err := models.GetShipments(ctx, supplierId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, shipments)
	}
}

func getAcceptanceForShipmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, ok := requireBusiness(c)
		if !ok {
			return
		}
		shipmentId, ok := pathId(c, "id")
		if !ok {
			return
		}
		record, err := models.GetAcceptanceByShipment(ctx, shipmentId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

func createAcceptanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, ok := requireBusiness(c)
		if !ok {
			return
		}
		shipmentId, ok := pathId(c, "id")
		if !ok {
			return
		}
		record, err := models.CreateAcceptance(ctx, shipmentId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, record)
	}
}

func getAcceptanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, ok := requireBusiness(c)
		if !ok {
			return
		}
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		record, err := models.GetAcceptanceRecord(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

func saveAcceptanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, ok := requireBusiness(c)
		if !ok {
			return
		}
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var input models.AcceptanceInput
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindingError(c, err)
			return
		}
		record, err := models.SaveAcceptance(ctx, id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

func updateItemQuantitiesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, ok := requireBusiness(c)
		if !ok {
			return
		}
		recordId, ok := pathId(c, "id")
		if !ok {
			return
		}
		itemId, ok := pathId(c, "itemId")
		if !ok {
			return
		}
		var input models.NewItemQuantities
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindingError(c, err)
			return
		}
		record, err := models.UpdateAcceptanceItemQuantities(ctx, recordId, itemId, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

func getRejectionForAcceptanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, ok := requireBusiness(c)
		if !ok {
			return
		}
		acceptanceId, ok := pathId(c, "id")
		if !ok {
			return
		}
		rejectionCase, err := models.GetRejectionCaseByAcceptance(ctx, acceptanceId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, rejectionCase)
	}
}

func getRejectionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, ok := requireBusiness(c)
		if !ok {
			return
		}
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		rejectionCase, err := models.GetRejectionCase(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, rejectionCase)
	}
}

func updateDispositionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, ok := requireBusiness(c)
		if !ok {
			return
		}
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var input models.UpdateDispositionsInput
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindingError(c, err)
			return
		}
		rejectionCase, err := models.UpdateDispositions(ctx, id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, rejectionCase)
	}
}

func contactVendorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, ok := requireBusiness(c)
		if !ok {
			return
		}
		caseId, ok := pathId(c, "id")
		if !ok {
			return
		}
		var input models.NewCommunicationEntry
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindingError(c, err)
			return
		}
		entry, err := models.ContactVendor(ctx, caseId, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, entry)
	}
}

func listCommunicationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, ok := requireBusiness(c)
		if !ok {
			return
		}
		caseId, ok := pathId(c, "id")
		if !ok {
			return
		}
		entries, err := models.GetCommunicationEntries(ctx, caseId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, entries)
	}
}

func createSupplierHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, ok := requireBusiness(c)
		if !ok {
			return
		}
		var input models.NewSupplier
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindingError(c, err)
			return
		}
		supplier, err := models.CreateSupplier(ctx, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, supplier)
	}
}

func listSuppliersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, ok := requireBusiness(c)
		if !ok {
			return
		}
		var name *string
		if v := c.Query("name"); v != "" {
			name = &v
		}
		suppliers, err := models.GetSuppliers(ctx, name)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, suppliers)
	}
}

func getSupplierHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, ok := requireBusiness(c)
		if !ok {
			return
		}
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		supplier, err := models.GetSupplier(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, supplier)
	}
}

func updateSupplierHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, ok := requireBusiness(c)
		if !ok {
			return
		}
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var input models.NewSupplier
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindingError(c, err)
			return
		}
		supplier, err := models.UpdateSupplier(ctx, id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, supplier)
	}
}

func toggleActiveSupplierHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, ok := requireBusiness(c)
		if !ok {
			return
		}
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var input struct {
			IsActive *bool `json:"is_active" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindingError(c, err)
			return
		}
		supplier, err := models.ToggleActiveSupplier(ctx, id, *input.IsActive)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, supplier)
	}
}

func deleteSupplierHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, ok := requireBusiness(c)
		if !ok {
			return
		}
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		supplier, err := models.DeleteSupplier(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, supplier)
	}
}

type pubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data,omitempty"`
		ID   string `json:"id"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// channelStatusPubSubHandler accepts Pub/Sub push deliveries from the
// communication channel collaborator. Malformed payloads are acked (dropped)
// to avoid infinite retries; processing failures return non-2xx so Pub/Sub
// retries or routes to DLQ.
func channelStatusPubSubHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var msg pubSubPushEnvelope
		logger := config.GetLogger()

		// Redis lock is a best-effort optimization; the DB-backed idempotency
		// key is what actually guarantees exactly-once application.
		redisLock := config.GetRedisLock()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			config.LogError(logger, "handlers.go", "channelStatusPubSubHandler", "io.ReadAll", nil, err)
			c.Status(http.StatusNoContent)
			return
		}

		// byte slice unmarshalling handles base64 decoding.
		if err := json.Unmarshal(body, &msg); err != nil {
			config.LogError(logger, "handlers.go", "channelStatusPubSubHandler", "Unmarshal body", body, err)
			c.Status(http.StatusNoContent)
			return
		}

		var m workflow.ChannelStatusMessage
		if err := json.Unmarshal(msg.Message.Data, &m); err != nil {
			config.LogError(logger, "handlers.go", "channelStatusPubSubHandler", "Unmarshal pubsub message", msg.Message.Data, err)
			c.Status(http.StatusNoContent)
			return
		}

		if m.BusinessId == "" || m.CommunicationEntryId <= 0 {
			config.LogError(logger, "handlers.go", "channelStatusPubSubHandler", "Invalid pubsub message (missing required fields)", m, fmt.Errorf("business_id/communication_entry_id required"))
			c.Status(http.StatusNoContent)
			return
		}

		correlationID := m.CorrelationId
		if correlationID == "" {
			correlationID = msg.Message.ID
		}

		var lock *redislock.Lock
		if redisLock != nil {
			lock, err = redisLock.Obtain(c.Request.Context(), fmt.Sprintf("lock:%s", m.BusinessId), 30*time.Second, nil)
			if err != nil {
				logger.WithFields(logrus.Fields{
					"field":       "channelStatusPubSubHandler",
					"business_id": m.BusinessId,
					"message_id":  msg.Message.ID,
				}).Warn("could not obtain redis lock; proceeding without redis lock")
				lock = nil
			}
		}
		defer func() {
			if lock == nil {
				return
			}
			if releaseErr := lock.Release(c.Request.Context()); releaseErr != nil {
				logger.WithFields(logrus.Fields{
					"field":       "channelStatusPubSubHandler",
					"business_id": m.BusinessId,
					"message_id":  msg.Message.ID,
				}).Warn("failed to release redis lock: " + releaseErr.Error())
			}
		}()

		ctx := context.WithValue(c.Request.Context(), utils.ContextKeyBusinessId, m.BusinessId)
		ctx = context.WithValue(ctx, utils.ContextKeyUserId, 0)
		ctx = context.WithValue(ctx, utils.ContextKeyUserName, "System")
		ctx = utils.SetCorrelationIdInContext(ctx, correlationID)
		if err := workflow.ProcessChannelStatus(ctx, logger, m, msg.Message.ID); err != nil {
			logger.WithFields(logrus.Fields{
				"field":                  "channelStatusPubSubHandler",
				"business_id":            m.BusinessId,
				"communication_entry_id": m.CommunicationEntryId,
				"message_id":             msg.Message.ID,
				"correlation_id":         correlationID,
			}).Error("pubsub processing failed: " + err.Error())
			// Non-2xx tells Pub/Sub to retry (and potentially route to DLQ).
			c.Status(http.StatusInternalServerError)
			return
		}

		c.Status(http.StatusNoContent)
	}
}

type outboxReplayRequest struct {
	BusinessId string `json:"business_id"`
	RecordId   int    `json:"record_id"`
}

func outboxReplayHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Require auth token (SessionMiddleware puts username in context).
		if _, ok := utils.GetUsernameFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req outboxReplayRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if req.BusinessId == "" || req.RecordId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "business_id and record_id are required"})
			return
		}

		db := config.GetDB()
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "db is nil"})
			return
		}
		now := time.Now().UTC()
		if err := db.WithContext(c.Request.Context()).
			Model(&models.PubSubMessageRecord{}).
			Where("id = ? AND business_id = ?", req.RecordId, req.BusinessId).
			Updates(map[string]interface{}{
				"publish_status":     models.OutboxPublishStatusFailed,
				"next_attempt_at":    &now,
				"locked_at":          nil,
				"locked_by":          nil,
				"last_publish_error": nil,
			}).Error; err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"business_id":     req.BusinessId,
			"record_id":       req.RecordId,
			"publish_status":  models.OutboxPublishStatusFailed,
			"next_attempt_at": now.Format(time.RFC3339Nano),
		})
	}
}
