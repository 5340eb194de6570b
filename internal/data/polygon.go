package data

import (
	"context"
	"fmt"
	"strings"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"

	"github.com/contactkeval/option-income-scanner/internal/logger"
)

// polygonDataProvider implements Provider using the Polygon.io Go SDK.
type polygonDataProvider struct {
	client *polygon.Client
}

// NewPolygonDataProvider returns a provider backed by polygon-io/client-go.
func NewPolygonDataProvider(apiKey string) Provider {
	logger.Infof("event=provider_init provider=polygon")
	return &polygonDataProvider{client: polygon.New(apiKey)}
}

func (polygonDataProv *polygonDataProvider) GetQuote(ctx context.Context, ticker string) (Quote, error) {
	res, err := polygonDataProv.client.GetLastTrade(ctx, &models.GetLastTradeParams{Ticker: ticker})
	if err != nil {
		return Quote{}, fmt.Errorf("last trade %s: %w", ticker, err)
	}
	if res == nil || res.Results.Price <= 0 {
		return Quote{}, fmt.Errorf("%s: %w", ticker, ErrNoPrice)
	}
	return Quote{Ticker: ticker, Price: res.Results.Price, AsOf: time.Now().UTC()}, nil
}

// GetExpirations pages through the contracts reference endpoint, filtered
// server-side to expirations on or after asOf.
func (polygonDataProv *polygonDataProvider) GetExpirations(ctx context.Context, ticker string, asOf time.Time) ([]time.Time, error) {
	params := models.ListOptionsContractsParams{}.
		WithUnderlyingTicker(models.EQ, ticker).
		WithExpirationDate(models.GTE, models.Date(DateOnly(asOf))).
		WithLimit(1000)
	iter := polygonDataProv.client.ListOptionsContracts(ctx, params)

	var dates []time.Time
	for iter.Next() {
		dates = append(dates, time.Time(iter.Item().ExpirationDate))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("options contracts %s: %w", ticker, err)
	}
	return uniqueSortedDates(dates, asOf), nil
}

// GetChain fetches the chain snapshot of a single expiration.
func (polygonDataProv *polygonDataProvider) GetChain(ctx context.Context, ticker string, expiry time.Time) (*Chain, error) {
	params := models.ListOptionsChainParams{UnderlyingAsset: ticker}.
		WithExpirationDate(models.EQ, models.Date(DateOnly(expiry))).
		WithLimit(250)
	iter := polygonDataProv.client.ListOptionsChainSnapshot(ctx, params)

	want := DateOnly(expiry)
	chain := &Chain{Underlying: ticker, Expiration: want}
	for iter.Next() {
		s := iter.Item()
		if !DateOnly(time.Time(s.Details.ExpirationDate)).Equal(want) {
			continue
		}
		typ, err := ParseOptionType(strings.ToLower(s.Details.ContractType))
		if err != nil || s.Details.StrikePrice <= 0 {
			continue
		}
		chain.add(OptionContract{
			Underlying:        ticker,
			Expiration:        want,
			Type:              typ,
			Strike:            s.Details.StrikePrice,
			Bid:               s.LastQuote.Bid,
			Ask:               s.LastQuote.Ask,
			LastPrice:         s.Day.Close,
			ImpliedVolatility: s.ImpliedVolatility,
			OpenInterest:      int64(s.OpenInterest),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("options snapshot %s: %w", ticker, err)
	}
	chain.sortByStrike()
	return chain, nil
}

func (polygonDataProv *polygonDataProvider) GetBars(ctx context.Context, ticker string, fromDate, toDate time.Time) ([]Bar, error) {
	params := models.ListAggsParams{
		Ticker:     ticker,
		Multiplier: 1,
		Timespan:   models.Day,
		From:       models.Millis(fromDate),
		To:         models.Millis(toDate),
	}.WithOrder(models.Asc).WithAdjusted(true)

	iter := polygonDataProv.client.ListAggs(ctx, params)

	var out []Bar
	for iter.Next() {
		a := iter.Item()
		out = append(out, Bar{
			Date:   DateOnly(time.Time(a.Timestamp)),
			Open:   a.Open,
			High:   a.High,
			Low:    a.Low,
			Close:  a.Close,
			Volume: a.Volume,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("aggs %s: %w", ticker, err)
	}
	return out, nil
}
