package config

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/9138noms/NuclearOption-VehicleControl/internal/layout"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/offsets"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/override"
)

// FileName is the config file looked up in the module folder.
const FileName = "vehiclecontrol.cfg.json"

// OverrideConfig holds the constants matched against the foreign consumer.
type OverrideConfig struct {
	ThrottleMin   float64 `json:"throttleMin" mapstructure:"throttleMin"`
	ThrottleMax   float64 `json:"throttleMax" mapstructure:"throttleMax"`
	SteeringScale float64 `json:"steeringScale" mapstructure:"steeringScale"`
}

// Validate rejects constants that cannot describe the consumer's clamps.
func (c OverrideConfig) Validate() error {
	for name, v := range map[string]float64{
		"override.throttleMin":   c.ThrottleMin,
		"override.throttleMax":   c.ThrottleMax,
		"override.steeringScale": c.SteeringScale,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s is not a finite number", name)
		}
	}
	var errs []error
	if c.ThrottleMin >= c.ThrottleMax {
		errs = append(errs, fmt.Errorf("override.throttleMin (%v) must be below override.throttleMax (%v)", c.ThrottleMin, c.ThrottleMax))
	}
	if c.ThrottleMax <= 0 {
		errs = append(errs, fmt.Errorf("override.throttleMax (%v) must be positive", c.ThrottleMax))
	}
	if c.SteeringScale <= 0 {
		errs = append(errs, fmt.Errorf("override.steeringScale (%v) must be positive", c.SteeringScale))
	}
	return errors.Join(errs...)
}

// LayoutConfig names the foreign types and members to resolve.
type LayoutConfig struct {
	// ShapesFile replaces the embedded shapes when set.
	ShapesFile    string `json:"shapesFile" mapstructure:"shapesFile"`
	OuterType     string `json:"outerType" mapstructure:"outerType"`
	InnerType     string `json:"innerType" mapstructure:"innerType"`
	InputsField   string `json:"inputsField" mapstructure:"inputsField"`
	MobileField   string `json:"mobileField" mapstructure:"mobileField"`
	ThrottleField string `json:"throttleField" mapstructure:"throttleField"`
	BrakeField    string `json:"brakeField" mapstructure:"brakeField"`
	SteeringField string `json:"steeringField" mapstructure:"steeringField"`
	PointerSize   int    `json:"pointerSize" mapstructure:"pointerSize"`
}

// Names returns the type and member names to resolve offsets for.
func (c LayoutConfig) Names() offsets.Names {
	return offsets.Names{
		Outer:    c.OuterType,
		Inner:    c.InnerType,
		Inputs:   c.InputsField,
		Mobile:   c.MobileField,
		Throttle: c.ThrottleField,
		Brake:    c.BrakeField,
		Steering: c.SteeringField,
	}
}

// Schema loads the shapes file, or the embedded shapes when none is set.
// A relative path is taken from baseDir.
func (c LayoutConfig) Schema(baseDir string) (*layout.Schema, error) {
	if c.ShapesFile == "" {
		return layout.DefaultSchema(), nil
	}
	path := c.ShapesFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	return layout.LoadSchemaFile(path)
}

// ErrPointerWidthMismatch is returned by LayoutConfig.Resolver when the
// configured pointer width contradicts the one the shapes declare.
var ErrPointerWidthMismatch = errors.New("pointer width mismatch")

// Resolver returns the layout resolver for schema. A pointer width declared
// by the schema wins; layout.pointerSize only applies to schemas that declare
// none and must agree with the schema when both are set.
func (c LayoutConfig) Resolver(schema *layout.Schema) (layout.Resolver, error) {
	if c.PointerSize < 0 {
		return layout.Resolver{}, fmt.Errorf("layout.pointerSize must not be negative, got %d", c.PointerSize)
	}
	configured := uintptr(c.PointerSize)
	if schema.PointerSize == 0 {
		return layout.NewResolver(configured), nil
	}
	if configured != 0 && configured != schema.PointerSize {
		return layout.Resolver{}, fmt.Errorf("%w: shapes declare %d bytes, layout.pointerSize is %d",
			ErrPointerWidthMismatch, schema.PointerSize, configured)
	}
	return layout.NewResolver(schema.PointerSize), nil
}

// Tuning converts the override constants to the coordinator's form after
// validating them.
func (c OverrideConfig) Tuning() (override.Tuning, error) {
	if err := c.Validate(); err != nil {
		return override.Tuning{}, fmt.Errorf("%w: %w", override.ErrInvalidTuning, err)
	}
	t := override.Tuning{
		ThrottleMin:   float32(c.ThrottleMin),
		ThrottleMax:   float32(c.ThrottleMax),
		SteeringScale: float32(c.SteeringScale),
	}
	return t, t.Validate()
}

// PossessionConfig holds selection settings.
type PossessionConfig struct {
	// MaxDistance bounds nearest-friendly selection, in metres.
	MaxDistance float64 `json:"maxDistance" mapstructure:"maxDistance"`
}

// StatusConfig controls the status file monitor.
type StatusConfig struct {
	Enabled  bool          `json:"enabled" mapstructure:"enabled"`
	Interval time.Duration `json:"interval" mapstructure:"interval"`
}

// JournalConfig selects the session journal backend.
type JournalConfig struct {
	Type string `json:"type" mapstructure:"type"`
	Path string `json:"path" mapstructure:"path"`
	DSN  string `json:"dsn" mapstructure:"dsn"`
}

// InfluxConfig holds the telemetry target.
type InfluxConfig struct {
	Enabled       bool          `json:"enabled" mapstructure:"enabled"`
	Host          string        `json:"host" mapstructure:"host"`
	Port          string        `json:"port" mapstructure:"port"`
	Protocol      string        `json:"protocol" mapstructure:"protocol"`
	Token         string        `json:"token" mapstructure:"token"`
	Org           string        `json:"org" mapstructure:"org"`
	Bucket        string        `json:"bucket" mapstructure:"bucket"`
	BackupPath    string        `json:"backupPath" mapstructure:"backupPath"`
	RetentionDays int           `json:"retentionDays" mapstructure:"retentionDays"`
	Interval      time.Duration `json:"interval" mapstructure:"interval"`
}

// GraylogConfig holds the GELF target for sampled trace logs.
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// SetDefaults registers the default value of every key.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./vclogs")

	viper.SetDefault("override.throttleMin", -0.7)
	viper.SetDefault("override.throttleMax", 1.0)
	viper.SetDefault("override.steeringScale", 10.0)

	viper.SetDefault("layout.shapesFile", "")
	viper.SetDefault("layout.outerType", "GroundVehicleFields")
	viper.SetDefault("layout.innerType", "VehicleInputs")
	viper.SetDefault("layout.inputsField", "inputs")
	viper.SetDefault("layout.mobileField", "mobile")
	viper.SetDefault("layout.throttleField", "throttle")
	viper.SetDefault("layout.brakeField", "brake")
	viper.SetDefault("layout.steeringField", "steering")
	viper.SetDefault("layout.pointerSize", 0)

	viper.SetDefault("possession.maxDistance", 15000.0)

	viper.SetDefault("status.enabled", true)
	viper.SetDefault("status.interval", "1s")

	viper.SetDefault("journal.type", "sqlite")
	viper.SetDefault("journal.path", "")
	viper.SetDefault("journal.dsn", "host=localhost port=5432 user=postgres password=postgres dbname=vehiclecontrol sslmode=disable")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "vehicle-control")
	viper.SetDefault("influx.bucket", "control_frames")
	viper.SetDefault("influx.backupPath", "")
	viper.SetDefault("influx.retentionDays", 30)
	viper.SetDefault("influx.interval", "250ms")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "vehicle-control")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

func GetOverrideConfig() OverrideConfig {
	return OverrideConfig{
		ThrottleMin:   viper.GetFloat64("override.throttleMin"),
		ThrottleMax:   viper.GetFloat64("override.throttleMax"),
		SteeringScale: viper.GetFloat64("override.steeringScale"),
	}
}

func GetLayoutConfig() LayoutConfig {
	return LayoutConfig{
		ShapesFile:    viper.GetString("layout.shapesFile"),
		OuterType:     viper.GetString("layout.outerType"),
		InnerType:     viper.GetString("layout.innerType"),
		InputsField:   viper.GetString("layout.inputsField"),
		MobileField:   viper.GetString("layout.mobileField"),
		ThrottleField: viper.GetString("layout.throttleField"),
		BrakeField:    viper.GetString("layout.brakeField"),
		SteeringField: viper.GetString("layout.steeringField"),
		PointerSize:   viper.GetInt("layout.pointerSize"),
	}
}

func GetPossessionConfig() PossessionConfig {
	return PossessionConfig{
		MaxDistance: viper.GetFloat64("possession.maxDistance"),
	}
}

func GetStatusConfig() StatusConfig {
	return StatusConfig{
		Enabled:  viper.GetBool("status.enabled"),
		Interval: viper.GetDuration("status.interval"),
	}
}

func GetJournalConfig() JournalConfig {
	return JournalConfig{
		Type: viper.GetString("journal.type"),
		Path: viper.GetString("journal.path"),
		DSN:  viper.GetString("journal.dsn"),
	}
}

func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:       viper.GetBool("influx.enabled"),
		Host:          viper.GetString("influx.host"),
		Port:          viper.GetString("influx.port"),
		Protocol:      viper.GetString("influx.protocol"),
		Token:         viper.GetString("influx.token"),
		Org:           viper.GetString("influx.org"),
		Bucket:        viper.GetString("influx.bucket"),
		BackupPath:    viper.GetString("influx.backupPath"),
		RetentionDays: viper.GetInt("influx.retentionDays"),
		Interval:      viper.GetDuration("influx.interval"),
	}
}

func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}
