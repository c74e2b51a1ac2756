package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/9138noms/NuclearOption-VehicleControl/internal/config"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/dispatcher"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/handlers"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/hud"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/journal"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/logging"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/native"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/native/wasmmem"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/offsets"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/override"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/possession"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/simhost"
	"github.com/9138noms/NuclearOption-VehicleControl/pkg/foreign"
)

type runOptions struct {
	frames    int
	dt        float64
	wasm      bool
	target    string
	possessAt int
	releaseAt int
	destroyAt int
	throttle  float64
	steering  float64
	hudEvery  int
}

func newRunCmd() *cobra.Command {
	var o runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scripted possession against the simulated runtime.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSim(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), o)
		},
	}
	f := cmd.Flags()
	f.IntVar(&o.frames, "frames", 500, "frames to simulate")
	f.Float64Var(&o.dt, "dt", 0.02, "frame time in seconds")
	f.BoolVar(&o.wasm, "wasm", false, "allocate job blocks in wasm linear memory")
	f.StringVar(&o.target, "target", "", "unit id to possess (nearest friendly when empty)")
	f.IntVar(&o.possessAt, "possess-at", 50, "frame to take control")
	f.IntVar(&o.releaseAt, "release-at", 400, "frame to hand control back (0 keeps it)")
	f.IntVar(&o.destroyAt, "destroy-at", 0, "frame to destroy the possessed unit (0 never)")
	f.Float64Var(&o.throttle, "throttle", 0.8, "throttle while possessed")
	f.Float64Var(&o.steering, "steering", 0.2, "steering while possessed")
	f.IntVar(&o.hudEvery, "hud-every", 100, "frames between HUD prints (0 disables)")
	return cmd
}

// sim is the simulated world with the possession stack attached.
type sim struct {
	world    *simhost.World
	manager  *possession.Manager
	journal  journal.Journal
	dispatch *dispatcher.Dispatcher
	hud      *hud.HUD
	out      io.Writer
	logger   *slog.Logger
	close    []func() error
}

func (s *sim) Close() error {
	var errs []error
	for i := len(s.close) - 1; i >= 0; i-- {
		errs = append(errs, s.close[i]())
	}
	return errors.Join(errs...)
}

func (s *sim) send(command string, args ...string) {
	result, err := s.dispatch.Dispatch(dispatcher.Event{Command: command, Args: args, Timestamp: time.Now()})
	if err != nil {
		fmt.Fprintf(s.out, "%s -> error: %v\n", command, err)
		return
	}
	fmt.Fprintf(s.out, "%s -> %v\n", command, result)
}

func newSim(ctx context.Context, out, logOut io.Writer, o runOptions) (*sim, error) {
	slogs := logging.NewSlogManager()
	slogs.Setup(logOut, viper.GetString("logLevel"), nil)
	logger := slogs.Logger()

	s := &sim{out: out, logger: logger, hud: hud.New(lipgloss.NewRenderer(out))}

	lc := config.GetLayoutConfig()
	schema, err := lc.Schema(".")
	if err != nil {
		return nil, err
	}
	resolver, err := lc.Resolver(schema)
	if err != nil {
		return nil, err
	}

	var alloc native.Allocator = native.HeapAllocator{}
	if o.wasm {
		arena, err := wasmmem.New(ctx)
		if err != nil {
			return nil, err
		}
		s.close = append(s.close, func() error { return arena.Close(context.Background()) })
		alloc = arena
	}

	s.world, err = simhost.New(simhost.Options{
		Schema:    schema,
		Resolver:  resolver,
		Names:     lc.Names(),
		Allocator: alloc,
		Logger:    logger,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	s.close = append(s.close, s.world.Close)

	s.world.AddGroundVehicle(simhost.UnitSpec{
		Name: "Tank(Clone)", Faction: "blue", Position: simhost.Vec{X: 120}, TopSpeed: 15,
		Driver: simhost.Cruise{Throttle: 0.4},
	})
	s.world.AddShip(simhost.UnitSpec{
		Name: "Corvette(Clone)", Faction: "blue", Position: simhost.Vec{X: 900, Z: 400}, Heading: 90, TopSpeed: 12,
		Driver: simhost.Cruise{Throttle: 0.5},
	})
	s.world.AddGroundVehicle(simhost.UnitSpec{
		Name: "Raider(Clone)", Faction: "red", Position: simhost.Vec{X: 60}, TopSpeed: 18,
		Driver: simhost.Cruise{Throttle: 1, Steering: 0.1},
	})

	cache := offsets.NewSchemaCache(schema, resolver, lc.Names(), logger)
	tuning, err := config.GetOverrideConfig().Tuning()
	if err != nil {
		s.Close()
		return nil, err
	}
	coord, err := override.New(override.Dependencies{
		Offsets: cache,
		Tuning:  tuning,
		Logger:  logger,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	if err := coord.Register(s.world); err != nil {
		s.Close()
		return nil, err
	}

	s.manager, err = possession.NewManager(possession.Dependencies{Coordinator: coord, Logger: logger})
	if err != nil {
		s.Close()
		return nil, err
	}
	s.world.AcceptHook(s.manager)
	slogs.SetContext(s.manager.LogAttrs)

	jc := config.GetJournalConfig()
	s.journal, err = journal.Open(journal.Config{Type: jc.Type, Path: jc.Path, DSN: jc.DSN}, cache, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.close = append(s.close, s.journal.Close)
	s.manager.Observe(journal.Observer(s.journal, logger))

	maxDistance := config.GetPossessionConfig().MaxDistance
	svc, err := handlers.NewService(handlers.Dependencies{
		Manager: s.manager,
		Units:   handlers.UnitsFunc(s.world.Unit),
		Offsets: cache,
		Journal: s.journal,
		Selector: possession.SelectorFunc(func() foreign.Entity {
			return s.world.NearestFriendly(simhost.Vec{}, "blue", maxDistance)
		}),
		LogManager:       slogs,
		ExtensionName:    "vcsim",
		ExtensionVersion: "dev",
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	s.dispatch, err = dispatcher.New(logging.NewDispatcherLogger(zerologFor(logOut)))
	if err != nil {
		s.Close()
		return nil, err
	}
	svc.Register(s.dispatch)
	return s, nil
}

func runSim(ctx context.Context, out, logOut io.Writer, o runOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if o.frames <= 0 || o.dt <= 0 {
		return fmt.Errorf("frames and dt must be positive")
	}
	s, err := newSim(ctx, out, logOut, o)
	if err != nil {
		return err
	}
	defer s.Close()

	var possessed string
	for i := 1; i <= o.frames; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i == o.possessAt {
			if o.target != "" {
				s.send(handlers.CmdToggle, o.target)
			} else {
				s.send(handlers.CmdToggle)
			}
			if sess := s.manager.Session(); sess != nil {
				possessed = sess.Entity().ID()
			}
			s.send(handlers.CmdControls, ff(o.throttle), ff(o.steering), "0")
		}
		if i == o.destroyAt && possessed != "" {
			if err := s.world.Destroy(possessed); err != nil {
				return err
			}
		}
		if i == o.releaseAt {
			s.send(handlers.CmdRelease)
		}

		if err := s.manager.Tick(); err != nil {
			fmt.Fprintf(out, "frame %d: %v\n", i, err)
		}
		if err := s.world.Update(o.dt); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		s.manager.FixedTick()

		if o.hudEvery > 0 && i%o.hudEvery == 0 {
			if panel := s.hud.Render(s.manager.Snapshot()); panel != "" {
				fmt.Fprintf(out, "frame %d\n%s\n", i, panel)
			}
		}
	}

	records, err := s.journal.Sessions(ctx, 10)
	if err != nil {
		return err
	}
	for _, r := range records {
		fmt.Fprintf(out, "session %s %s %s %dms forced=%t reason=%q\n",
			r.SessionID, r.Kind, r.EntityName, r.DurationMs, r.Forced, r.Reason)
	}
	return nil
}

func ff(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
