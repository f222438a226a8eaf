package main

import (
	"context"
	"os"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/procurement_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OutboxReconciler is the bookkeeping side of the outbox: consumers of our
// messages are external collaborators, so from this service's point of view a
// record is processed once it has been durably published. The reconciler
// marks SENT rows processed after a grace period and alerts on DEAD rows so
// they can be replayed via the ops endpoint.
type OutboxReconciler struct {
	DB        *gorm.DB
	Logger    *logrus.Logger
	WorkerID  string
	BatchSize int
	Interval  time.Duration
	Grace     time.Duration
}

func NewOutboxReconciler(db *gorm.DB, logger *logrus.Logger) *OutboxReconciler {
	return &OutboxReconciler{
		DB:        db,
		Logger:    logger,
		WorkerID:  "reconciler-" + time.Now().Format("20060102-150405.000"),
		BatchSize: 100,
		Interval:  30 * time.Second,
		Grace:     time.Minute,
	}
}

func shouldRunOutboxReconciler() bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv("OUTBOX_RECONCILER")))
	if val == "false" {
		return false
	}
	return true
}

func (p *OutboxReconciler) Run(ctx context.Context) {
	if p == nil || p.DB == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		p.reconcileOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.Interval):
		}
	}
}

func (p *OutboxReconciler) reconcileOnce(ctx context.Context) {
	now := time.Now().UTC()
	settledBefore := now.Add(-p.Grace)

	err := p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var settled []models.PubSubMessageRecord
		q := tx.
			Where("is_processed = 0").
			Where("publish_status = ? AND published_at IS NOT NULL AND published_at <= ?", models.OutboxPublishStatusSent, settledBefore).
			Order("id ASC").
			Limit(p.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&settled).Error; err != nil {
			return err
		}
		for i := range settled {
			if err := tx.Model(&models.PubSubMessageRecord{}).
				Where("id = ?", settled[i].ID).
				Updates(map[string]interface{}{
					"is_processed": true,
					"processed_at": &now,
					"locked_at":    nil,
					"locked_by":    nil,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil && p.Logger != nil {
		p.Logger.WithFields(logrus.Fields{
			"field":     "OutboxReconciler",
			"worker_id": p.WorkerID,
		}).Error("reconcile failed: " + err.Error())
	}

	// Dead rows need a human: surface them every cycle until replayed.
	var deadCount int64
	if err := p.DB.WithContext(ctx).Model(&models.PubSubMessageRecord{}).
		Where("publish_status = ?", models.OutboxPublishStatusDead).
		Count(&deadCount).Error; err == nil && deadCount > 0 && p.Logger != nil {
		p.Logger.WithFields(logrus.Fields{
			"field":      "OutboxReconciler",
			"dead_count": deadCount,
		}).Warn("outbox has DEAD records awaiting replay")
	}
}
