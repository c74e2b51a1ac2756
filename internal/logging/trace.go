package logging

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/rs/zerolog"
)

// TraceConfig describes the sampled high-frequency logger.
type TraceConfig struct {
	Out   io.Writer
	Level string
	// GraylogAddress, when set, also ships every sampled entry as GELF over UDP.
	GraylogAddress string
	// Context is added to every entry. It may be nil.
	Context ContextProvider
}

// Trace is a sampled zerolog logger and the writers it owns.
type Trace struct {
	Logger zerolog.Logger
	gelf   *gelf.Writer
}

// Close releases the GELF connection, if any.
func (t *Trace) Close() error {
	if t.gelf == nil {
		return nil
	}
	return t.gelf.Close()
}

// ZerologLevel maps a config level name onto zerolog. Unknown names are info.
func ZerologLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewTrace builds the sampled logger. At most 5 entries are kept per 10
// seconds; after that 1 in 100.
func NewTrace(cfg TraceConfig) (*Trace, error) {
	t := &Trace{}

	writers := []io.Writer{zerolog.ConsoleWriter{
		Out:        cfg.Out,
		TimeFormat: time.RFC3339,
		NoColor:    true,
	}}
	if cfg.Out == nil {
		writers = writers[:0]
	}
	if cfg.GraylogAddress != "" {
		w, err := gelf.NewWriter(cfg.GraylogAddress)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to graylog: %w", err)
		}
		t.gelf = w
		writers = append(writers, w)
	}
	if len(writers) == 0 {
		t.Logger = zerolog.Nop()
		return t, nil
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(ZerologLevel(cfg.Level)).
		With().Timestamp().Bool("sampled", true).Logger()

	if cfg.Context != nil {
		logger = logger.Hook(zerolog.HookFunc(func(e *zerolog.Event, _ zerolog.Level, _ string) {
			for _, a := range cfg.Context() {
				e.Str(a.Key, a.Value.String())
			}
		}))
	}

	t.Logger = logger.Sample(&zerolog.BurstSampler{
		Burst:       5,
		Period:      10 * time.Second,
		NextSampler: &zerolog.BasicSampler{N: 100},
	})
	return t, nil
}
