package otel

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otellog "go.opentelemetry.io/otel/log"

	"github.com/9138noms/NuclearOption-VehicleControl/internal/possession"
)

func TestNew_Disabled(t *testing.T) {
	p, err := New(Config{})
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.Nil(t, p.LoggerProvider())
	assert.NotNil(t, p.Meter("test"))
	assert.NoError(t, p.Flush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_EnabledWithoutOutputs(t *testing.T) {
	_, err := New(Config{Enabled: true, ServiceName: "vehicle-control"})
	assert.ErrorIs(t, err, ErrNoExporter)
}

func TestNew_FileExporter(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(Config{
		Enabled:      true,
		ServiceName:  "vehicle-control",
		Version:      "0.0.1",
		BatchTimeout: time.Second,
		LogWriter:    &buf,
	})
	require.NoError(t, err)
	require.NotNil(t, p.LoggerProvider())
	assert.True(t, p.Enabled())

	var rec otellog.Record
	rec.SetBody(otellog.StringValue("possession started"))
	p.LoggerProvider().Logger("test").Emit(context.Background(), rec)

	require.NoError(t, p.Flush(context.Background()))
	assert.Contains(t, buf.String(), "possession started")
	assert.Contains(t, buf.String(), "vehicle-control")
	assert.Contains(t, buf.String(), "0.0.1")
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestFlushOnRelease(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(Config{
		Enabled:      true,
		ServiceName:  "vehicle-control",
		BatchTimeout: time.Second,
		LogWriter:    &buf,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	var rec otellog.Record
	rec.SetBody(otellog.StringValue("possessed unit lost"))
	p.LoggerProvider().Logger("test").Emit(context.Background(), rec)

	var reported []error
	observe := p.FlushOnRelease(time.Second, func(err error) { reported = append(reported, err) })

	observe(possession.Event{Type: possession.EventStarted})
	observe(possession.Event{Type: possession.EventEnded})
	assert.Contains(t, buf.String(), "possessed unit lost")
	assert.Empty(t, reported)

	disabled, err := New(Config{})
	require.NoError(t, err)
	disabled.FlushOnRelease(time.Second, nil)(possession.Event{Type: possession.EventEnded})
}
