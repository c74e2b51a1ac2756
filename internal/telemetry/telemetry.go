// Package telemetry ships override writes and possession sessions to InfluxDB,
// or to a gzip'd line protocol file when the server is unreachable.
package telemetry

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"
)

// ErrDisabled is returned by Connect when telemetry is turned off.
var ErrDisabled = errors.New("telemetry is disabled")

// Config describes the InfluxDB target.
type Config struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
	Protocol   string `json:"protocol" mapstructure:"protocol"`
	Host       string `json:"host" mapstructure:"host"`
	Port       string `json:"port" mapstructure:"port"`
	Token      string `json:"token" mapstructure:"token"`
	Org        string `json:"org" mapstructure:"org"`
	Bucket     string `json:"bucket" mapstructure:"bucket"`
	BackupPath string `json:"backupPath" mapstructure:"backupPath"`
	// RetentionDays applies to a bucket created on connect.
	RetentionDays int `json:"retentionDays" mapstructure:"retentionDays"`
}

// URL is the server address.
func (c Config) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// Writer sends points to one bucket.
type Writer struct {
	cfg    Config
	logger zerolog.Logger

	mu         sync.Mutex
	client     influxdb2.Client
	api        influxdb2_api.WriteAPI
	backup     *gzip.Writer
	backupFile *os.File
	valid      bool
}

// NewWriter creates an unconnected Writer.
func NewWriter(cfg Config, logger zerolog.Logger) *Writer {
	return &Writer{cfg: cfg, logger: logger}
}

// Connect pings the server. When it does not answer, points go to the
// backup file instead and Connect still succeeds.
func (w *Writer) Connect(ctx context.Context) error {
	if !w.cfg.Enabled {
		return ErrDisabled
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.client = influxdb2.NewClientWithOptions(
		w.cfg.URL(),
		w.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000).
			SetHTTPRequestTimeout(5),
	)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	running, err := w.client.Ping(pingCtx)
	cancel()

	if err != nil || !running {
		w.valid = false
		if w.backup == nil {
			if w.cfg.BackupPath == "" {
				return fmt.Errorf("influxdb unreachable and no backup path configured: %v", err)
			}
			w.logger.Info().Str("backupPath", w.cfg.BackupPath).
				Msg("Failed to initialize InfluxDB client, writing to backup file")

			file, err := os.OpenFile(w.cfg.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return fmt.Errorf("error creating backup file: %v", err)
			}
			w.backupFile = file
			w.backup = gzip.NewWriter(file)
		}
		w.logger.Warn().Msg("InfluxDB client failed to initialize, using backup writer")
		return nil
	}

	if err := w.ensureBucket(ctx); err != nil {
		return err
	}

	w.api = w.client.WriteAPI(w.cfg.Org, w.cfg.Bucket)
	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			w.logger.Error().Err(writeErr).Str("bucket", w.cfg.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}(w.api.Errors())

	w.valid = true
	w.logger.Info().Str("bucket", w.cfg.Bucket).Msg("InfluxDB client initialized")
	return nil
}

func (w *Writer) ensureBucket(ctx context.Context) error {
	org, err := w.client.OrganizationsAPI().FindOrganizationByName(ctx, w.cfg.Org)
	if err != nil {
		w.logger.Info().Str("org", w.cfg.Org).Msg("Organization not found, creating")
		org, err = w.client.OrganizationsAPI().CreateOrganizationWithName(ctx, w.cfg.Org)
		if err != nil {
			w.logger.Error().Err(err).Str("org", w.cfg.Org).Msg("Error creating organization")
			return err
		}
	}

	if _, err := w.client.BucketsAPI().FindBucketByName(ctx, w.cfg.Bucket); err == nil {
		return nil
	}
	w.logger.Info().Str("bucket", w.cfg.Bucket).Msg("Bucket not found, creating")

	days := w.cfg.RetentionDays
	if days <= 0 {
		days = 30
	}
	rule := domain.RetentionRuleTypeExpire
	_, err = w.client.BucketsAPI().CreateBucketWithName(ctx, org, w.cfg.Bucket, domain.RetentionRule{
		Type:         &rule,
		EverySeconds: int64(days) * 24 * 60 * 60,
	})
	if err != nil {
		w.logger.Error().Err(err).Str("bucket", w.cfg.Bucket).Msg("Error creating bucket")
		return err
	}
	return nil
}

// Online reports whether points reach the server.
func (w *Writer) Online() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.valid
}

// WritePoint queues p for the server, or appends it to the backup file.
func (w *Writer) WritePoint(p *influxdb2_write.Point) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.valid {
		w.api.WritePoint(p)
		return nil
	}
	if w.backup == nil {
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}

	line := strings.TrimRight(influxdb2_write.PointToLineProtocol(p, time.Nanosecond), "\n")
	if _, err := w.backup.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %s", err)
	}
	return nil
}

// Close flushes pending points and releases the client and backup file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.api != nil {
		w.api.Flush()
	}
	if w.client != nil {
		w.client.Close()
	}
	w.valid = false

	var errs []error
	if w.backup != nil {
		errs = append(errs, w.backup.Close())
		w.backup = nil
	}
	if w.backupFile != nil {
		errs = append(errs, w.backupFile.Close())
		w.backupFile = nil
	}
	return errors.Join(errs...)
}
