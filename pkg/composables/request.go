package composables

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/realvista/backend/pkg/constants"
)

// WithLogger returns a new context carrying the request-scoped logger entry.
func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	return context.WithValue(ctx, constants.LoggerKey, logger)
}

// UseLogger returns the logger from the context.
// Panics if no logger was attached; middleware always attaches one.
func UseLogger(ctx context.Context) *logrus.Entry {
	logger := ctx.Value(constants.LoggerKey)
	if logger == nil {
		panic("logger not found")
	}
	return logger.(*logrus.Entry)
}

// TryUseLogger is UseLogger for call sites that tolerate a missing logger.
func TryUseLogger(ctx context.Context) (*logrus.Entry, bool) {
	logger, ok := ctx.Value(constants.LoggerKey).(*logrus.Entry)
	return logger, ok
}
