// Package nativecore turns the layout and override settings into what the
// native override path runs on.
package nativecore

import (
	"fmt"
	"log/slog"

	"github.com/9138noms/NuclearOption-VehicleControl/internal/config"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/hostentity"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/layout"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/offsets"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/override"
)

// Core is the resolved configuration of the override path.
type Core struct {
	Offsets *offsets.Cache
	Tuning  override.Tuning
	Layouts hostentity.Layouts
}

// Build never fails. A shapes file that does not load or a pointer width
// that contradicts it turns native overrides off, host state records that
// cannot be placed fall back to the built-in ones, and bad tuning falls back
// to the defaults. Each of these is logged. logger may be nil.
func Build(lc config.LayoutConfig, oc config.OverrideConfig, baseDir string, logger *slog.Logger) Core {
	if logger == nil {
		logger = slog.Default()
	}
	var core Core

	schema, err := lc.Schema(baseDir)
	if err != nil {
		logger.Error("Failed to load shapes, native override disabled", "error", err)
		core.Offsets = offsets.NewDisabledCache(fmt.Errorf("loading shapes: %w", err), logger)
		schema = layout.DefaultSchema()
	}

	resolver, err := lc.Resolver(schema)
	if err != nil {
		logger.Error("Pointer width does not match the shapes, native override disabled", "error", err)
		if core.Offsets == nil {
			core.Offsets = offsets.NewDisabledCache(err, logger)
		}
		resolver = layout.NewResolver(schema.PointerSize)
	}
	if core.Offsets == nil {
		core.Offsets = offsets.NewSchemaCache(schema, resolver, lc.Names(), logger)
	}

	core.Layouts, err = hostentity.NewLayouts(schema, resolver)
	if err != nil {
		logger.Error("Failed to place host state records, using built-in records", "error", err)
		builtin := layout.DefaultSchema()
		if core.Layouts, err = hostentity.NewLayouts(builtin, layout.NewResolver(builtin.PointerSize)); err != nil {
			logger.Error("Built-in host state records are unusable", "error", err)
		}
	}

	core.Tuning, err = oc.Tuning()
	if err != nil {
		core.Tuning = override.DefaultTuning()
		logger.Error("Invalid override tuning, using defaults", "error", err, "tuning", core.Tuning)
	}
	return core
}
