package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"waenhancer/internal/models"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func TestDefaultTracingConfig(t *testing.T) {
	config := DefaultTracingConfig()

	assert.Equal(t, "waenhancer", config.ServiceName)
	assert.Equal(t, 0.1, config.SampleRate)
	assert.False(t, config.Enabled)
	assert.True(t, config.UseStdout)
	assert.NoError(t, Validate(config))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		config   models.TracingConfig
		errorMsg string
	}{
		{name: "disabled skips checks", config: models.TracingConfig{}},
		{name: "stdout", config: models.TracingConfig{Enabled: true, ServiceName: "svc", SampleRate: 0.5, UseStdout: true}},
		{name: "otlp", config: models.TracingConfig{Enabled: true, ServiceName: "svc", SampleRate: 1, OTLPEndpoint: "http://localhost:4318/v1/traces"}},
		{name: "missing service name", config: models.TracingConfig{Enabled: true, UseStdout: true}, errorMsg: "serviceName"},
		{name: "negative sample rate", config: models.TracingConfig{Enabled: true, ServiceName: "svc", SampleRate: -0.1, UseStdout: true}, errorMsg: "sampleRate"},
		{name: "sample rate above one", config: models.TracingConfig{Enabled: true, ServiceName: "svc", SampleRate: 1.5, UseStdout: true}, errorMsg: "sampleRate"},
		{name: "otlp without endpoint", config: models.TracingConfig{Enabled: true, ServiceName: "svc", SampleRate: 1}, errorMsg: "otlpEndpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.config)
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestTracingManager_Disabled(t *testing.T) {
	tm := NewTracingManager(DefaultTracingConfig(), quietLogger())

	require.NoError(t, tm.Initialize(context.Background()))
	assert.Nil(t, tm.tracerProvider)
	assert.NoError(t, tm.Shutdown(context.Background()))
}

func TestTracingManager_StdoutLifecycle(t *testing.T) {
	config := DefaultTracingConfig()
	config.Enabled = true
	config.SampleRate = 1
	tm := NewTracingManager(config, quietLogger())

	require.NoError(t, tm.Initialize(context.Background()))
	require.NotNil(t, tm.tracerProvider)

	ctx, span := StartSpan(context.Background(), "test.span", attribute.String("k", "v"))
	assert.NotEmpty(t, GetOtelTraceID(ctx))
	AddSpanAttributes(ctx, attribute.Int("n", 1))
	RecordError(ctx, errors.New("boom"))
	span.End()

	assert.NoError(t, tm.Shutdown(context.Background()))
}

func TestTracingManager_InvalidConfig(t *testing.T) {
	tm := NewTracingManager(models.TracingConfig{Enabled: true}, quietLogger())
	assert.Error(t, tm.Initialize(context.Background()))
}

func TestSpanHelpers_NoProvider(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetOtelTraceID(ctx))
	AddSpanAttributes(ctx, attribute.String("k", "v"))
	RecordError(ctx, errors.New("ignored"))
}
