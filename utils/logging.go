package utils

import (
	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

// ReportError logs an error with structured context and forwards it to
// Sentry when a DSN is configured.
func ReportError(err error, errorType string, context map[string]interface{}) {
	fields := logrus.Fields{"error_type": errorType}
	for k, v := range context {
		fields[k] = v
	}
	logrus.WithFields(fields).WithError(err).Error("operation failed")

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("error_type", errorType)
		for k, v := range context {
			scope.SetExtra(k, v)
		}
		sentry.CaptureException(err)
	})
}

// LogEvent records a breadcrumb-level event with structured context.
func LogEvent(event string, context map[string]interface{}) {
	fields := logrus.Fields{}
	for k, v := range context {
		fields[k] = v
	}
	logrus.WithFields(fields).Info(event)

	sentry.AddBreadcrumb(&sentry.Breadcrumb{
		Message: event,
		Data:    context,
		Level:   sentry.LevelInfo,
	})
}
