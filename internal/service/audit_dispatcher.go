package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/tc-schedule-api/internal/models"
	"github.com/noah-isme/tc-schedule-api/pkg/jobs"
)

const auditJobType = "audit_log"

// AuditDispatcher persists audit rows off the request path. It satisfies the
// same CreateAuditLog contract as the repository so services can use either.
type AuditDispatcher struct {
	store  auditLogger
	queue  *jobs.Queue[*models.AuditLog]
	logger *zap.Logger
}

// NewAuditDispatcher wraps store with a worker queue.
func NewAuditDispatcher(store auditLogger, cfg jobs.QueueConfig) *AuditDispatcher {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	d := &AuditDispatcher{store: store, logger: cfg.Logger}
	d.queue = jobs.NewQueue("audit", d.handle, cfg)
	return d
}

// Start launches the workers.
func (d *AuditDispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Stop flushes buffered rows and stops the workers.
func (d *AuditDispatcher) Stop() {
	d.queue.Stop()
}

// CreateAuditLog queues the row. When the queue cannot take it the row is
// written inline instead of being dropped.
func (d *AuditDispatcher) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log == nil {
		return nil
	}
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	err := d.queue.TryEnqueue(jobs.Job[*models.AuditLog]{ID: log.ID, Type: auditJobType, Payload: log})
	if err == nil {
		return nil
	}
	d.logger.Debug("audit queue unavailable, writing inline", zap.String("action", log.Action), zap.Error(err))
	return d.store.CreateAuditLog(ctx, log)
}

func (d *AuditDispatcher) handle(ctx context.Context, job jobs.Job[*models.AuditLog]) error {
	return d.store.CreateAuditLog(ctx, job.Payload)
}
