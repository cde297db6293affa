package poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/meterbill/pkg/accounting"
	"github.com/raterudder/meterbill/pkg/dispatch"
	"github.com/raterudder/meterbill/pkg/log"
	"github.com/raterudder/meterbill/pkg/storage"
	"github.com/raterudder/meterbill/pkg/types"
)

// Poller drives the Runner from a Scheduler.
type Poller struct {
	Scheduler *Scheduler
	Runner    *Runner

	// seed is written to storage before the first cycle
	seed []types.DeviceSettings
}

// Configured registers the poller flags and returns a Poller wired to the
// given collaborators once flags are parsed.
func Configured(db storage.Database, tariffs TariffProviders, meters MeterSources, disp dispatch.Source) *Poller {
	var devices []types.DeviceSettings
	interval := lflag.Duration("poll-interval", time.Minute, "How often every device is accounted")
	offset := lflag.Duration("poll-seconds-offset", 5*time.Second, "Offset within the minute of the first poll")
	lflag.JSON(&devices, "devices", devices, "JSON list of device settings to store on startup")

	p := &Poller{}
	lflag.Do(func() {
		if *interval <= 0 {
			panic(fmt.Errorf("poll-interval must be positive: %s", *interval))
		}
		p.Scheduler = &Scheduler{Interval: *interval, SecondsOffset: *offset}
		p.Runner = &Runner{
			DB:       db,
			Tariffs:  tariffs,
			Meters:   meters,
			Dispatch: disp,
			Engine:   accounting.DefaultEngine(),
			Days:     DayDetector{Period: *interval},
		}
		p.seed = devices
	})
	return p
}

// Seed stores the given devices, replacing any with the same id.
func Seed(ctx context.Context, db storage.Database, devices []types.DeviceSettings) error {
	for _, d := range devices {
		d, _, err := types.MigrateDeviceSettings(d)
		if err != nil {
			return fmt.Errorf("failed to migrate device %s: %w", d.ID, err)
		}
		if err := d.Validate(); err != nil {
			return err
		}
		if err := db.PutDevice(ctx, d); err != nil {
			return fmt.Errorf("failed to store device %s: %w", d.ID, err)
		}
		log.Ctx(ctx).InfoContext(ctx, "stored device", slog.String("deviceID", d.ID))
	}
	return nil
}

// Run seeds the configured devices and polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	if err := Seed(ctx, p.Runner.DB, p.seed); err != nil {
		return err
	}
	log.Ctx(ctx).InfoContext(ctx, "starting poller",
		slog.Duration("interval", p.Scheduler.Interval),
		slog.Duration("offset", p.Scheduler.SecondsOffset),
	)
	p.Scheduler.Run(ctx, p.Runner.RunAll)
	return nil
}

// Stop stops polling after the running cycle.
func (p *Poller) Stop() {
	p.Scheduler.Stop()
}
