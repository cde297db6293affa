package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raterudder/meterbill/pkg/accounting"
	"github.com/raterudder/meterbill/pkg/dispatch"
	"github.com/raterudder/meterbill/pkg/log"
	"github.com/raterudder/meterbill/pkg/meter"
	"github.com/raterudder/meterbill/pkg/storage"
	"github.com/raterudder/meterbill/pkg/tariff"
	"github.com/raterudder/meterbill/pkg/types"
	"github.com/raterudder/meterbill/pkg/utility"
)

// TariffProviders looks up a tariff provider by name.
type TariffProviders interface {
	Provider(name string) (utility.TariffProvider, error)
}

// MeterSources returns the meter of a device.
type MeterSources interface {
	Device(device types.DeviceSettings) (meter.Source, error)
}

// Runner runs one accounting cycle per device.
type Runner struct {
	DB       storage.Database
	Tariffs  TariffProviders
	Meters   MeterSources
	Dispatch dispatch.Source
	Engine   *accounting.Engine
	Days     DayDetector
}

// RunAll runs a cycle for every stored device. A failing device is logged and
// does not stop the others.
func (r *Runner) RunAll(ctx context.Context, at time.Time) {
	devices, err := r.DB.Devices(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to list devices", slog.Any("error", err))
		return
	}

	for _, device := range devices {
		dctx := log.WithDevice(ctx, device.ID)
		device, err := r.migrate(dctx, device)
		if err != nil {
			log.Ctx(dctx).ErrorContext(dctx, "invalid device settings", slog.Any("error", err))
			continue
		}
		if err := r.Cycle(dctx, device, at); err != nil {
			if errors.Is(err, types.ErrDataUnavailable) {
				log.Ctx(dctx).WarnContext(dctx, "skipping cycle, data unavailable", slog.Any("error", err))
			} else {
				log.Ctx(dctx).ErrorContext(dctx, "cycle failed", slog.Any("error", err))
			}
		}
	}
}

func (r *Runner) migrate(ctx context.Context, device types.DeviceSettings) (types.DeviceSettings, error) {
	if device.Version < types.CurrentDeviceSettingsVersion {
		log.Ctx(ctx).InfoContext(ctx, "migrating device settings", slog.Int("oldVersion", device.Version), slog.Int("newVersion", types.CurrentDeviceSettingsVersion))
		migrated, changed, err := types.MigrateDeviceSettings(device)
		if err != nil {
			return device, err
		}
		if changed {
			if err := r.DB.PutDevice(ctx, migrated); err != nil {
				// keep going with the migrated settings, it is retried next cycle
				log.Ctx(ctx).WarnContext(ctx, "failed to save migrated device settings", slog.Any("error", err))
			}
		}
		device = migrated
	}
	if err := device.Validate(); err != nil {
		return device, err
	}
	return device, nil
}

// Cycle gathers everything the device needs, applies the engine and writes
// the new state. Nothing is written when any required input is missing.
func (r *Runner) Cycle(ctx context.Context, device types.DeviceSettings, at time.Time) error {
	loc, err := device.LoadLocation()
	if err != nil {
		return err
	}
	at = at.In(loc)

	provider, err := r.Tariffs.Provider(device.TariffProvider)
	if err != nil {
		return err
	}
	src, err := r.Meters.Device(device)
	if err != nil {
		return err
	}

	reading, err := src.Reading(ctx, at)
	if err != nil {
		return fmt.Errorf("failed to read meter: %w", err)
	}

	resolver := tariff.NewResolver(loc)
	ev := accounting.Event{
		At:         at,
		Location:   loc,
		BillingDay: device.BillingDay,
		NewDay:     r.Days.IsNewDay(at),
		Reading:    reading,
	}
	for _, dir := range []types.Direction{types.DirectionImport, types.DirectionExport} {
		def, err := provider.Tariff(ctx, dir, at)
		if err != nil {
			return fmt.Errorf("failed to get %s tariff: %w", dir, err)
		}
		p, err := price(ctx, resolver, def, at)
		if err != nil {
			return fmt.Errorf("failed to resolve %s tariff: %w", dir, err)
		}
		if dir == types.DirectionImport {
			ev.Import = p
		} else {
			ev.Export = p
		}
	}

	if device.DispatchSource != "" && r.Dispatch != nil {
		windows, err := r.Dispatch.DispatchWindows(ctx, device.ID)
		switch {
		case errors.Is(err, types.ErrDataUnavailable):
			log.Ctx(ctx).DebugContext(ctx, "no dispatch plan", slog.Any("error", err))
		case err != nil:
			return fmt.Errorf("failed to get dispatch windows: %w", err)
		default:
			ev.Dispatches = windows
			ev.HasDispatches = true
		}
	}

	store := storage.ForDevice(r.DB, device.ID)
	prev, err := accounting.Load(ctx, store)
	if err != nil {
		return err
	}
	next, err := r.Engine.Apply(prev, ev)
	if err != nil {
		return err
	}
	changed, err := accounting.Save(ctx, store, next)
	if err != nil {
		return err
	}

	log.Ctx(ctx).DebugContext(ctx, "cycle complete",
		slog.Time("at", at),
		slog.Int("changed", len(changed)),
		slog.Bool("newDay", ev.NewDay),
	)
	return nil
}

// price resolves the current and next slot. A tariff with no price now is
// not an error, the direction is accounted without money for the cycle.
func price(ctx context.Context, r *tariff.Resolver, def types.TariffDefinition, at time.Time) (accounting.Pricing, error) {
	p := accounting.Pricing{Tariff: def}
	cur, err := r.Resolve(def, at)
	if errors.Is(err, tariff.ErrNoPrice) {
		log.Ctx(ctx).WarnContext(ctx, "no price available", slog.String("kind", string(def.Kind())), slog.Time("at", at))
		return p, nil
	}
	if err != nil {
		return p, err
	}
	next, err := r.ResolveNext(def, cur)
	if err != nil {
		return p, err
	}
	p.Current, p.Next = &cur, &next
	return p, nil
}
