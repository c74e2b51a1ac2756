package main

/*
#include <stdlib.h>
#include <stdio.h>
#include <string.h>
*/
import "C" // This is required to build as a c-shared library

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/9138noms/NuclearOption-VehicleControl/internal/config"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/dispatcher"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/handlers"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/hostentity"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/journal"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/logging"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/monitor"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/nativecore"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/offsets"
	intOtel "github.com/9138noms/NuclearOption-VehicleControl/internal/otel"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/override"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/possession"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/telemetry"
	"github.com/9138noms/NuclearOption-VehicleControl/pkg/hostinterface"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentExtensionVersion string = "0.0.1"
	BuildDate               string = "unknown"

	ExtensionName string = "vehiclecontrol"
)

// file paths
var (
	// ModulePath is the absolute path to this library file.
	ModulePath string

	// ModuleFolder is the parent folder of ModulePath. The config file and
	// the relative logs directory live here.
	ModuleFolder string

	LogFilePath string
	LogFile     *os.File
)

// global variables
var (
	SlogManager  *logging.SlogManager
	Logger       *slog.Logger
	OTelProvider *intOtel.Provider
	TraceLogger  *logging.Trace

	// EventLogger is the unsampled zerolog logger for dispatcher and
	// telemetry records.
	EventLogger zerolog.Logger

	SessionStartTime time.Time = time.Now()

	// Services
	offsetCache     *offsets.Cache
	coordinator     *override.Coordinator
	manager         *possession.Manager
	registry        *hostentity.Registry
	hostBridge      *hostentity.Bridge
	sessionJournal  journal.Journal
	influxWriter    *telemetry.Writer
	handlerService  *handlers.Service
	monitorService  *monitor.Service
	eventDispatcher *dispatcher.Dispatcher

	hostErrors = make(chan []string, 64)
)

// init is run automatically when the module is loaded
func init() {
	ModulePath = hostinterface.GetModulePath()
	ModuleFolder = filepath.Dir(ModulePath)

	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(nil, "info", nil)
	Logger = SlogManager.Logger()

	if err := config.Load(ModuleFolder); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config")
	}

	setupLogging()

	hostinterface.SetVersion(CurrentExtensionVersion)
	hostinterface.RegisterErrorChan(hostErrors)
	hostinterface.SetUnload(shutdown)
	go reportHostErrors()

	// a failed setup leaves the exports answering without a host
	if err := setupServices(); err != nil {
		Logger.Error("Failed to set up services, extension disabled", "error", err)
		return
	}
	if err := setupHostInterface(); err != nil {
		Logger.Error("Failed to set up host interface, extension disabled", "error", err)
		return
	}
	Logger.Info("Extension ready", "version", CurrentExtensionVersion, "build", BuildDate)

	go probeOffsets()

	if sc := config.GetStatusConfig(); sc.Enabled {
		monitorService = monitor.NewService(monitor.Dependencies{
			Possession:      manager,
			LogManager:      SlogManager,
			OffsetsResolved: offsetCache.Available,
			StatusFolder:    ModuleFolder,
			Interval:        sc.Interval,
		})
		if err := monitorService.Start(); err != nil {
			Logger.Error("Failed to start status monitor", "error", err)
		}
	}
}

func logsDir() string {
	dir := viper.GetString("logsDir")
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(ModuleFolder, dir)
	}
	return dir
}

func setupLogging() {
	var err error
	LogFilePath = logging.LogFilePath(logsDir(), ExtensionName, SessionStartTime)
	LogFile, err = logging.OpenLogFile(logsDir(), ExtensionName, SessionStartTime)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err, "path", LogFilePath)
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled && LogFile != nil {
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:      otelCfg.Enabled,
			ServiceName:  otelCfg.ServiceName,
			Version:      CurrentExtensionVersion,
			BatchTimeout: otelCfg.BatchTimeout,
			LogWriter:    LogFile,
			Endpoint:     otelCfg.Endpoint,
			Insecure:     otelCfg.Insecure,
		})
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			Logger.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint)
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}
	if LogFile != nil {
		SlogManager.Setup(LogFile, viper.GetString("logLevel"), otelLogProvider)
	} else {
		SlogManager.Setup(nil, viper.GetString("logLevel"), otelLogProvider)
	}
	Logger = SlogManager.Logger()
	Logger.Info("Logging to file", "path", LogFilePath)

	var eventOut io.Writer = os.Stdout
	if LogFile != nil {
		eventOut = LogFile
	}
	EventLogger = zerolog.New(eventOut).
		Level(logging.ZerologLevel(viper.GetString("logLevel"))).
		With().Timestamp().Str("service", ExtensionName).Logger()

	traceCfg := logging.TraceConfig{
		Level:   viper.GetString("logLevel"),
		Context: func() []slog.Attr { return managerAttrs() },
	}
	if LogFile != nil {
		traceCfg.Out = LogFile
	}
	if gc := config.GetGraylogConfig(); gc.Enabled {
		traceCfg.GraylogAddress = gc.Address
	}
	TraceLogger, err = logging.NewTrace(traceCfg)
	if err != nil {
		Logger.Error("Failed to set up trace logger", "error", err)
		TraceLogger = &logging.Trace{Logger: zerolog.Nop()}
	}
}

func managerAttrs() []slog.Attr {
	if manager == nil {
		return nil
	}
	return manager.LogAttrs()
}

func setupServices() (err error) {
	core := nativecore.Build(config.GetLayoutConfig(), config.GetOverrideConfig(), ModuleFolder, Logger)
	offsetCache = core.Offsets

	coordinator, err = override.New(override.Dependencies{
		Offsets: offsetCache,
		Tuning:  core.Tuning,
		Logger:  Logger,
		Trace:   &TraceLogger.Logger,
	})
	if err != nil {
		return err
	}

	registry = hostentity.NewRegistry(core.Layouts)
	if err = coordinator.Register(registry); err != nil {
		return err
	}

	manager, err = possession.NewManager(possession.Dependencies{
		Coordinator: coordinator,
		Logger:      Logger,
	})
	if err != nil {
		return err
	}
	hostBridge, err = hostentity.NewBridge(registry, manager, Logger)
	if err != nil {
		return err
	}
	SlogManager.SetContext(manager.LogAttrs)

	jc := config.GetJournalConfig()
	sessionJournal, err = journal.Open(journal.Config{Type: jc.Type, Path: jc.Path, DSN: jc.DSN}, offsetCache, Logger)
	if err != nil {
		Logger.Error("Failed to open session journal, continuing without it", "error", err)
		sessionJournal = journal.Nop{}
	}
	manager.Observe(journal.Observer(sessionJournal, Logger))
	if OTelProvider != nil {
		manager.Observe(OTelProvider.FlushOnRelease(2*time.Second, func(err error) {
			Logger.Warn("Failed to flush OTel logs", "error", err)
		}))
	}

	setupTelemetry()

	handlerService, err = handlers.NewService(handlers.Dependencies{
		Manager:          manager,
		Units:            registry,
		Offsets:          offsetCache,
		Journal:          sessionJournal,
		LogManager:       SlogManager,
		ExtensionName:    ExtensionName,
		ExtensionVersion: CurrentExtensionVersion,
	})
	return err
}

func setupTelemetry() {
	ic := config.GetInfluxConfig()
	if !ic.Enabled {
		return
	}
	backup := ic.BackupPath
	if backup != "" && !filepath.IsAbs(backup) {
		backup = filepath.Join(logsDir(), backup)
	}
	influxWriter = telemetry.NewWriter(telemetry.Config{
		Enabled:       ic.Enabled,
		Protocol:      ic.Protocol,
		Host:          ic.Host,
		Port:          ic.Port,
		Token:         ic.Token,
		Org:           ic.Org,
		Bucket:        ic.Bucket,
		BackupPath:    backup,
		RetentionDays: ic.RetentionDays,
	}, EventLogger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := influxWriter.Connect(ctx); err != nil {
		Logger.Error("Failed to set up telemetry", "error", err)
		influxWriter = nil
		return
	}
	Logger.Info("Telemetry ready", "online", influxWriter.Online())
	coordinator.OnApply(telemetry.WriteObserver(influxWriter, ic.Interval, EventLogger))
	manager.Observe(telemetry.SessionObserver(influxWriter, EventLogger))
}

func setupHostInterface() (err error) {
	dispatcherLogger := logging.NewDispatcherLogger(EventLogger)
	eventDispatcher, err = dispatcher.New(dispatcherLogger)
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	handlerService.Register(eventDispatcher)
	hostinterface.SetDispatcher(eventDispatcher)
	hostinterface.SetHost(hostBridge)

	Logger.Info("Dispatcher initialized", "commands", eventDispatcher.Commands())
	return nil
}

func reportHostErrors() {
	for e := range hostErrors {
		Logger.Warn("Host call failed", "call", e[0], "error", e[1])
	}
}

// probeOffsets resolves the layout at startup so a mismatch is in the log
// before anyone tries to possess a unit.
func probeOffsets() {
	_, _ = offsetCache.Get()
}

var shutdownOnce sync.Once

// shutdown releases any session and closes the sinks. It runs once, from
// VCUnload or when the standalone binary exits, and copes with services
// that never started.
func shutdown() {
	shutdownOnce.Do(func() {
		if monitorService != nil {
			monitorService.Stop()
		}
		if manager != nil {
			if err := manager.Release(); err != nil {
				Logger.Error("Release on shutdown failed", "error", err)
			}
		}
		if influxWriter != nil {
			if err := influxWriter.Close(); err != nil {
				Logger.Error("Failed to close telemetry", "error", err)
			}
		}
		if sessionJournal != nil {
			if err := sessionJournal.Close(); err != nil {
				Logger.Error("Failed to close journal", "error", err)
			}
		}
		if TraceLogger != nil {
			if err := TraceLogger.Close(); err != nil {
				Logger.Error("Failed to close trace logger", "error", err)
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if OTelProvider != nil {
			if err := OTelProvider.Shutdown(ctx); err != nil {
				Logger.Error("Failed to shut down OTel provider", "error", err)
			}
		}
		if LogFile != nil {
			_ = LogFile.Close()
		}
	})
}

func main() {
	Logger.Info("Running standalone, press enter to exit.")
	if eventDispatcher != nil {
		fmt.Println("Commands:", eventDispatcher.Commands())
	}
	_, _ = fmt.Scanln()
	shutdown()
}
