package services

import (
	"errors"
	"log/slog"

	"github.com/BradenHooton/portalguard/internal/models"
)

// storeFailure logs an unexpected persistence error and returns the taxonomy
// error callers should see. Connection-level failures stay transient.
func storeFailure(logger *slog.Logger, msg string, err error) error {
	logger.Error(msg, slog.Any("error", err))
	if errors.Is(err, models.ErrTransient) {
		return models.ErrTransient
	}
	return models.ErrInternalServer
}
