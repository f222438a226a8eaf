package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/models"
	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"
)

// ChannelStatusMessage is what the external communication channel reports
// back: one delivery-status transition for one logged entry. Content never
// travels this path; the log is append-only on content.
type ChannelStatusMessage struct {
	BusinessId           string    `json:"business_id"`
	CommunicationEntryId int       `json:"communication_entry_id"`
	DeliveryStatus       string    `json:"delivery_status"`
	EventDateTime        time.Time `json:"event_date_time"`
	CorrelationId        string    `json:"correlation_id"`
}

const channelStatusHandlerName = "ChannelStatus"

// RunChannelStatusWorkflow subscribes to the channel collaborator's status
// topic and applies transitions to the communication log.
func RunChannelStatusWorkflow() error {
	logger := config.GetLogger()
	ctx := context.Background()
	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}
	topic, err := config.CreateTopicIfNotExists(client, os.Getenv("PUBSUB_STATUS_TOPIC"))
	if err != nil {
		return err
	}
	sub, err := config.CreateSubscriptionIfNotExists(client, os.Getenv("PUBSUB_STATUS_SUBSCRIPTION"), topic)
	if err != nil {
		return err
	}
	sub.ReceiveSettings.MaxOutstandingMessages = 10

	callback := func(ctx context.Context, msg *pubsub.Message) {
		m := ChannelStatusMessage{}
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			config.LogError(logger, "channelStatus.go", "RunChannelStatusWorkflow", "Unmarshaling pubsub message", msg.Data, err)
			// malformed payloads would loop forever; drop them
			msg.Ack()
			return
		}

		if err := ProcessChannelStatus(ctx, logger, m, msg.ID); err != nil {
			logger.WithFields(logrus.Fields{
				"field":                  "ChannelStatusWorkflow",
				"business_id":            m.BusinessId,
				"communication_entry_id": m.CommunicationEntryId,
				"message_id":             msg.ID,
			}).Error("pubsub processing failed: " + err.Error())
			msg.Nack()
			return
		}
		msg.Ack()
	}

	go func() {
		if err := sub.Receive(ctx, callback); err != nil {
			config.LogError(logger, "channelStatus.go", "RunChannelStatusWorkflow", "Failed to receive messages", nil, err)
		}
	}()

	return nil
}

func parseDeliveryStatus(s string) (models.CommunicationDeliveryStatus, error) {
	switch models.CommunicationDeliveryStatus(s) {
	case models.CommunicationDeliveryStatusSent,
		models.CommunicationDeliveryStatusDelivered,
		models.CommunicationDeliveryStatusRead,
		models.CommunicationDeliveryStatusFailed:
		return models.CommunicationDeliveryStatus(s), nil
	}
	return "", errors.New("invalid delivery status")
}

// ProcessChannelStatus applies one status transition, exactly once per pubsub
// message id. Redelivered messages are skipped via the idempotency key.
func ProcessChannelStatus(ctx context.Context, logger *logrus.Logger, m ChannelStatusMessage, messageId string) error {
	status, err := parseDeliveryStatus(m.DeliveryStatus)
	if err != nil {
		// permanently malformed, log and drop
		if logger != nil {
			logger.WithFields(logrus.Fields{
				"field":                  "ChannelStatusWorkflow",
				"business_id":            m.BusinessId,
				"communication_entry_id": m.CommunicationEntryId,
				"delivery_status":        m.DeliveryStatus,
			}).Warn("dropping channel status message: " + err.Error())
		}
		return nil
	}

	// The claim and the outcome marks run on the main connection, not inside
	// the work transaction: a FAILED mark must survive the rollback of the
	// work it describes. A crash between the work and the SUCCEEDED mark is
	// safe because re-applying the same transition is a no-op.
	db := config.GetDB()
	skip, err := BeginIdempotency(db.WithContext(ctx), m.BusinessId, channelStatusHandlerName, messageId)
	if err != nil {
		return err
	}
	if skip {
		return nil
	}

	// only delivery_status may change, never the logged content
	result := db.WithContext(ctx).Model(&models.CommunicationEntry{}).
		Where("business_id = ? AND id = ?", m.BusinessId, m.CommunicationEntryId).
		UpdateColumn("delivery_status", status)
	workErr := result.Error
	if workErr == nil && result.RowsAffected == 0 {
		workErr = errors.New("communication entry not found")
	}
	if workErr != nil {
		_ = MarkIdempotencyFailed(db.WithContext(ctx), m.BusinessId, channelStatusHandlerName, messageId, workErr)
		return workErr
	}

	return MarkIdempotencySucceeded(db.WithContext(ctx), m.BusinessId, channelStatusHandlerName, messageId)
}
