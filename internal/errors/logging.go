package errors

import (
	"github.com/sirupsen/logrus"
)

// Logger wraps logrus.Logger with structured error logging
type Logger struct {
	*logrus.Logger
}

func NewLogger(base *logrus.Logger) *Logger {
	if base == nil {
		base = logrus.New()
		base.SetFormatter(&logrus.JSONFormatter{})
	}
	return &Logger{Logger: base}
}

// Fields returns the structured fields describing err.
func Fields(err error) logrus.Fields {
	fields := logrus.Fields{}
	appErr, ok := As(err)
	if !ok {
		return fields
	}
	fields["error_code"] = appErr.Code
	fields["retryable"] = appErr.Retryable
	for k, v := range appErr.Context {
		fields[k] = v
	}
	return fields
}

func (l *Logger) entry(err error, extra []logrus.Fields) *logrus.Entry {
	entry := l.Logger.WithError(err).WithFields(Fields(err))
	for _, f := range extra {
		entry = entry.WithFields(f)
	}
	return entry
}

// LogError logs an error with structured context
func (l *Logger) LogError(err error, message string, fields ...logrus.Fields) {
	l.entry(err, fields).Error(message)
}

func (l *Logger) LogWarn(err error, message string, fields ...logrus.Fields) {
	l.entry(err, fields).Warn(message)
}

// LogFeatureFailure logs failures that degrade a single feature. Element lookups
// and configuration problems are expected and logged at warn.
func (l *Logger) LogFeatureFailure(err error, feature, message string) {
	f := logrus.Fields{"feature": feature}
	switch GetCode(err) {
	case ErrCodeElementNotFound, ErrCodeConfiguration, ErrCodeNoTarget:
		l.LogWarn(err, message, f)
	default:
		l.LogError(err, message, f)
	}
}
