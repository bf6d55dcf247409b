package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/gantry-io/gantry/pkg/config"
	"github.com/gantry-io/gantry/pkg/guest"
	"github.com/gantry-io/gantry/pkg/guests"
	"github.com/gantry-io/gantry/pkg/machine"
	"github.com/gantry-io/gantry/pkg/policy"
	"github.com/gantry-io/gantry/pkg/stores"
	"github.com/gantry-io/gantry/pkg/telemetry"
)

// app wires the shared subsystems a command needs: configuration,
// logging, metrics, tracing, the state store, and the policy engine.
// Store and policy engine are nil when disabled in the configuration.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	store   *stores.SQLiteStore
	engine  *policy.Engine
	loader  *policy.Loader
}

// newApp loads the configuration and brings up the shared subsystems.
// Callers must Close the returned app.
func newApp(ctx context.Context, version string) (*app, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logCfg := telemetry.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: "stderr",
	}
	if verbose {
		logCfg.Level = "debug"
	}
	logger, err := telemetry.NewLogger(logCfg)
	if err != nil {
		return nil, err
	}

	metrics, err := telemetry.NewMetrics(telemetry.MetricsConfig{
		Enabled:       cfg.Metrics.Enabled,
		ListenAddress: cfg.Metrics.Listen,
		Path:          "/metrics",
	})
	if err != nil {
		return nil, err
	}
	if cfg.Metrics.Enabled {
		metrics.Serve(logger)
	}

	tracer, err := telemetry.NewTracer(telemetry.TracingConfig{
		Enabled:    cfg.Tracing.Enabled,
		Exporter:   cfg.Tracing.Exporter,
		Endpoint:   cfg.Tracing.Endpoint,
		SampleRate: cfg.Tracing.SampleRate,
		Insecure:   true,
	}, "gantry", version)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		tracer:  tracer,
	}

	if cfg.Store.Path != "" {
		store, err := stores.NewSQLiteStore(stores.Config{Path: cfg.Store.Path})
		if err != nil {
			return nil, err
		}
		if err := store.Init(ctx); err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, err
		}
		a.store = store
	}

	if cfg.Policy.Enabled {
		engine, err := policy.NewEngine(logger)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		if cfg.Policy.Dir != "" {
			if err := engine.LoadPolicies(ctx, []string{cfg.Policy.Dir}); err != nil {
				a.Close(ctx)
				return nil, err
			}
			if cfg.Policy.Watch {
				loader := policy.NewLoader(logger)
				if err := loader.Watch(ctx, []string{cfg.Policy.Dir}, engine.SetPolicies); err != nil {
					a.Close(ctx)
					return nil, err
				}
				a.loader = loader
			}
		}
		a.engine = engine
	}

	return a, nil
}

// Close releases the app's subsystems.
func (a *app) Close(ctx context.Context) {
	if a.loader != nil {
		if err := a.loader.StopWatching(); err != nil {
			a.logger.Warn().Err(err).Msg("stopping policy watcher")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("closing store")
		}
	}
	if err := a.tracer.Shutdown(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("shutting down tracer")
	}
}

// loadInventory parses the inventory sources from the --inventory flag.
func (a *app) loadInventory() (*config.Inventory, error) {
	if len(inventoryPath) == 0 {
		return nil, fmt.Errorf("no inventory sources given")
	}
	return config.NewInventoryParser().Parse(inventoryPath)
}

// registries builds the guest and capability registries: the built-in
// forest plus any script guests defined in the inventory.
func (a *app) registries(inv *config.Inventory) (*guest.Registry, *guest.CapabilityRegistry, error) {
	reg, caps, err := guests.Builtin()
	if err != nil {
		return nil, nil, err
	}
	if inv != nil && len(inv.ScriptGuests) > 0 {
		if err := guests.RegisterScriptGuests(reg, inv.ScriptGuests); err != nil {
			return nil, nil, err
		}
	}
	return reg, caps, nil
}

// connect looks up name in the inventory and opens its SSH transport.
func (a *app) connect(ctx context.Context, inv *config.Inventory, name string) (*machine.Machine, error) {
	mcfg, ok := inv.Machine(name)
	if !ok {
		return nil, fmt.Errorf("machine %q not in inventory", name)
	}

	m, err := machine.New(mcfg, a.logger)
	if err != nil {
		return nil, err
	}
	if err := m.Connect(ctx); err != nil {
		return nil, err
	}
	a.metrics.ConnectionOpened()
	return m, nil
}

// release closes a connected machine.
func (a *app) release(m *machine.Machine) {
	if err := m.Close(); err != nil {
		a.logger.Warn().Err(err).Str("machine", m.Config.Name).Msg("closing machine")
	}
	a.metrics.ConnectionClosed()
}

// persistMachine upserts the machine into the store and returns the
// stored record. The stable ID of an existing record is kept so
// detection history survives across runs. No-op without a store.
func (a *app) persistMachine(ctx context.Context, m *machine.Machine) (*stores.Machine, error) {
	if a.store == nil {
		return nil, nil
	}

	rec := &stores.Machine{
		ID:       m.ID,
		Name:     m.Config.Name,
		Address:  m.Config.Address,
		GuestPin: m.Config.Guest,
	}
	if existing, err := a.store.GetMachine(ctx, m.Config.Name); err == nil {
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
	}
	if len(m.Config.Labels) > 0 {
		labels, err := json.Marshal(m.Config.Labels)
		if err != nil {
			return nil, fmt.Errorf("encoding labels: %w", err)
		}
		rec.Labels = string(labels)
	}

	if err := a.store.UpsertMachine(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
