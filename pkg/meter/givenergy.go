package meter

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	httptransport "github.com/go-openapi/runtime/client"
	strfmt "github.com/go-openapi/strfmt"
	"github.com/levenlabs/go-lflag"
	giv "github.com/mgazza/go-givenergy/client"
	"github.com/mgazza/go-givenergy/client/inverter_data"
	"github.com/raterudder/meterbill/pkg/common"
	"github.com/raterudder/meterbill/pkg/log"
	"github.com/raterudder/meterbill/pkg/types"
)

// GivEnergy reads the grid import and export totals an inverter reports to
// the GivEnergy cloud.
type GivEnergy struct {
	client   *giv.GivEnergyAPIDocumentationV1350
	serial   string
	location *time.Location
}

// NewGivEnergy returns a GivEnergy source for the inverter serial.
func NewGivEnergy(rt http.RoundTripper, token, serial string, loc *time.Location) *GivEnergy {
	cfg := giv.DefaultTransportConfig()
	transport := httptransport.New(cfg.Host, cfg.BasePath, cfg.Schemes)
	transport.Transport = common.Transport(rt)
	transport.DefaultAuthentication = httptransport.BearerToken(token)

	if loc == nil {
		loc = time.UTC
	}
	return &GivEnergy{
		client:   giv.New(transport, strfmt.Default),
		serial:   serial,
		location: loc,
	}
}

func configuredGivEnergy() Factory {
	token := lflag.String("givenergy-api-token", "", "Bearer token for the GivEnergy API")
	inverters := map[string]string{}
	lflag.JSON(&inverters, "givenergy-inverters", inverters, "JSON map of device id to GivEnergy inverter serial number")

	return func(device types.DeviceSettings) (Source, error) {
		serial, ok := inverters[device.ID]
		if !ok {
			return nil, fmt.Errorf("no givenergy inverter configured for device %s", device.ID)
		}
		if *token == "" {
			return nil, fmt.Errorf("givenergy-api-token is required")
		}
		loc, err := device.LoadLocation()
		if err != nil {
			return nil, err
		}
		return NewGivEnergy(http.DefaultTransport, *token, serial, loc), nil
	}
}

type dataPoint struct {
	at       time.Time
	importWH float64
	exportWH float64
}

// Reading returns the last data point of at's local day that is not after
// at. Demand is derived from the energy between the last two points.
func (g *GivEnergy) Reading(ctx context.Context, at time.Time) (types.MeterReading, error) {
	points, err := g.dataPoints(ctx, at.In(g.location))
	if err != nil {
		return types.MeterReading{}, fmt.Errorf("%w: %w", types.ErrDataUnavailable, err)
	}

	var last, prev *dataPoint
	for i := range points {
		p := &points[i]
		if p.at.After(at) {
			continue
		}
		if last == nil || p.at.After(last.at) {
			prev, last = last, p
		} else if prev == nil || p.at.After(prev.at) {
			prev = p
		}
	}
	if last == nil {
		return types.MeterReading{}, fmt.Errorf("%w: no givenergy data points before %s", types.ErrDataUnavailable, at.Format(time.RFC3339))
	}

	reading := types.MeterReading{
		ImportEnergyWH: last.importWH,
		ExportEnergyWH: last.exportWH,
		ReadAt:         last.at,
	}
	if prev != nil {
		if hours := last.at.Sub(prev.at).Hours(); hours > 0 {
			net := (last.importWH - prev.importWH) - (last.exportWH - prev.exportWH)
			reading.DemandW = net / hours
		}
	}
	return reading, nil
}

func (g *GivEnergy) dataPoints(ctx context.Context, day time.Time) ([]dataPoint, error) {
	pageSize := int64(500)
	page := int64(1)
	params := inverter_data.NewGetDataPoints2ParamsWithContext(ctx).
		WithDate(day.Format("2006-01-02")).
		WithInverterSerialNumber(g.serial).
		WithPageSize(&pageSize)

	var points []dataPoint
	for {
		params.WithPage(&page)
		response, err := g.client.InverterData.GetDataPoints2(params, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch inverter data: %w", err)
		}
		log.Ctx(ctx).DebugContext(ctx, "got givenergy data points", slog.Int("count", len(response.Payload.Data)), slog.Int64("page", page))

		for _, d := range response.Payload.Data {
			// totals are in kWh
			points = append(points, dataPoint{
				at:       time.Time(d.Time),
				importWH: d.Total.Grid.Import * 1000,
				exportWH: d.Total.Grid.Export * 1000,
			})
		}

		if response.Payload.Meta.CurrentPage == response.Payload.Meta.LastPage {
			break
		}
		page++
	}
	return points, nil
}
