package utility

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	httptransport "github.com/go-openapi/runtime/client"
	"github.com/go-openapi/strfmt"
	"github.com/levenlabs/go-lflag"
	octopus "github.com/mgazza/go-octopus-energy/client"
	"github.com/mgazza/go-octopus-energy/client/products"
	"github.com/raterudder/meterbill/pkg/common"
	"github.com/raterudder/meterbill/pkg/log"
	"github.com/raterudder/meterbill/pkg/tariff"
	"github.com/raterudder/meterbill/pkg/types"
)

// OctopusTariff names an Octopus Energy product and tariff. Octopus publishes
// unit rates but not the customer's standing charge, so that is configured.
type OctopusTariff struct {
	ProductCode string `json:"productCode"`
	TariffCode  string `json:"tariffCode"`
	// StandingCharge is in pence per day including VAT.
	StandingCharge float64 `json:"standingCharge"`
}

// Octopus fetches half-hourly unit rates from the Octopus Energy API. Rates
// are cached per tariff and local day since they are published once a day.
type Octopus struct {
	client   *octopus.OctopusEnergyRESTAPI
	tariffs  map[types.Direction]OctopusTariff
	vatRate  float64
	location *time.Location

	mu          sync.Mutex
	cachedRates map[string][]types.Rate
}

// NewOctopus returns an Octopus provider using rt for requests.
func NewOctopus(rt http.RoundTripper, apiKey string, tariffs map[types.Direction]OctopusTariff, vatRate float64, loc *time.Location) *Octopus {
	o := &Octopus{cachedRates: make(map[string][]types.Rate)}
	o.init(rt, apiKey, tariffs, vatRate, loc)
	return o
}

func (o *Octopus) init(rt http.RoundTripper, apiKey string, tariffs map[types.Direction]OctopusTariff, vatRate float64, loc *time.Location) {
	cfg := octopus.DefaultTransportConfig()
	transport := httptransport.New(cfg.Host, cfg.BasePath, cfg.Schemes)
	transport.Transport = common.Transport(rt)
	if apiKey != "" {
		transport.DefaultAuthentication = httptransport.BasicAuth(apiKey, "")
	}
	if loc == nil {
		loc = time.UTC
	}
	o.client = octopus.New(transport, strfmt.Default)
	o.tariffs = tariffs
	o.vatRate = vatRate
	o.location = loc
}

func configuredOctopus() *Octopus {
	o := &Octopus{cachedRates: make(map[string][]types.Rate)}
	apiKey := lflag.String("octopus-api-key", "", "API key for the Octopus Energy API (optional for public tariffs)")
	tariffs := map[types.Direction]OctopusTariff{}
	lflag.JSON(&tariffs, "octopus-tariffs", tariffs, "JSON map of direction (import/export) to Octopus product, tariff and standing charge")
	vatRate := 0.05
	lflag.JSON(&vatRate, "octopus-vat-rate", vatRate, "VAT rate included in Octopus prices")
	location := lflag.String("octopus-location", types.DefaultLocation, "Time zone Octopus days are fetched in")

	lflag.Do(func() {
		if len(tariffs) == 0 {
			return
		}
		loc, err := time.LoadLocation(*location)
		if err != nil {
			panic(fmt.Sprintf("invalid octopus-location: %v", err))
		}
		o.init(http.DefaultTransport, *apiKey, tariffs, vatRate, loc)
	})
	return o
}

func (o *Octopus) Tariff(ctx context.Context, dir types.Direction, at time.Time) (types.TariffDefinition, error) {
	t, ok := o.tariffs[dir]
	if !ok || o.client == nil {
		return nil, unavailable(dir, "octopus")
	}

	today := tariff.StartOfDay(at, o.location)
	rates, err := o.ratesForDay(ctx, t, today)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrDataUnavailable, err)
	}
	// tomorrow is published in the afternoon, until then the next slot after
	// midnight has no price
	tomorrow, err := o.ratesForDay(ctx, t, today.AddDate(0, 0, 1))
	if err != nil {
		log.Ctx(ctx).DebugContext(ctx, "tomorrow octopus rates not yet available", slog.Any("error", err))
	}

	return &types.HalfHourlyTariff{
		StandingCharge:       t.StandingCharge,
		PreVATStandingCharge: t.StandingCharge / (1 + o.vatRate),
		Rates:                slices.Concat(rates, tomorrow),
	}, nil
}

func (o *Octopus) ratesForDay(ctx context.Context, t OctopusTariff, day time.Time) ([]types.Rate, error) {
	key := t.TariffCode + "/" + day.Format("2006-01-02")

	o.mu.Lock()
	if rates, ok := o.cachedRates[key]; ok && len(rates) > 0 {
		o.mu.Unlock()
		return rates, nil
	}
	o.mu.Unlock()

	end := day.AddDate(0, 0, 1)
	rates, err := o.fetchUnitRates(ctx, t, day, end)
	if err != nil {
		return nil, err
	}
	if len(rates) == 0 {
		return nil, errors.New("no octopus rates published")
	}

	o.mu.Lock()
	o.cachedRates[key] = rates
	o.mu.Unlock()

	return rates, nil
}

// fetchUnitRates pages through the standard unit rates of [start, end). Rates
// are published in pence and converted to currency units.
func (o *Octopus) fetchUnitRates(ctx context.Context, t OctopusTariff, start, end time.Time) ([]types.Rate, error) {
	log.Ctx(ctx).DebugContext(ctx, "fetching octopus unit rates", slog.String("tariff", t.TariffCode), slog.Time("start", start))

	pageSize := int64(100)
	page := int64(1)
	params := products.NewListElectricityTariffStandardUnitRatesParamsWithContext(ctx).
		WithProductCode(t.ProductCode).
		WithTariffCode(t.TariffCode).
		WithPeriodFrom((*strfmt.DateTime)(&start)).
		WithPeriodTo((*strfmt.DateTime)(&end)).
		WithPageSize(&pageSize)

	var rates []types.Rate
	for {
		params.WithPage(&page)
		response, err := o.client.Products.ListElectricityTariffStandardUnitRates(params, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch octopus unit rates: %w", err)
		}

		for _, r := range response.Payload.Results {
			// open ended rates are bounded by the requested window
			from, to := start, end
			if r.ValidFrom != nil && time.Time(*r.ValidFrom).After(start) {
				from = time.Time(*r.ValidFrom)
			}
			if r.ValidTo != nil && time.Time(*r.ValidTo).Before(end) {
				to = time.Time(*r.ValidTo)
			}
			value := r.ValueIncVat / 100
			rates = append(rates, types.Rate{
				Value:       value,
				PreVATValue: value / (1 + o.vatRate),
				ValidFrom:   from,
				ValidTo:     to,
			})
		}

		if response.Payload.Next == nil {
			break
		}
		page++
	}
	return rates, nil
}
