package service

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/sortify-api/internal/models"
)

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type eventEmitter interface {
	Emit(event models.LifecycleEvent)
}

// emitAudit persists an audit row. Failures are logged and never fail the caller.
func emitAudit(ctx context.Context, audit auditLogger, logger *zap.Logger, log *models.AuditLog) {
	if audit == nil || log == nil {
		return
	}
	if log.IPAddress == "" {
		log.IPAddress = "system"
	}
	if log.UserAgent == "" {
		log.UserAgent = "sortify-api"
	}
	if err := audit.CreateAuditLog(ctx, log); err != nil {
		logger.Warn("failed to persist audit log", zap.String("action", log.Action), zap.Error(err))
	}
}

func jsonBytes(v interface{}) []byte {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

func stringPtr(v string) *string {
	return &v
}

func idString(id int64) *string {
	s := strconv.FormatInt(id, 10)
	return &s
}

func optionalString(value string) *string {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	return &v
}
