package data

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/contactkeval/option-income-scanner/internal/logger"
)

// localFileDataProvider implements Provider from CSV fixtures laid out as:
//
//	<dir>/quotes.csv           ticker,price
//	<dir>/chains/<TICKER>.csv  ticker,expiration,type,strike,bid,ask,last,iv,open_interest
//	<dir>/bars/<TICKER>.csv    date,open,high,low,close,volume
//
// Lookups that find no file are delegated to secondary when one is set.
type localFileDataProvider struct {
	dir       string
	secondary Provider

	quotesOnce sync.Once
	quotes     map[string]float64
	quotesErr  error
}

type csvQuoteRow struct {
	Ticker string  `csv:"ticker"`
	Price  float64 `csv:"price"`
}

type csvChainRow struct {
	Ticker       string  `csv:"ticker"`
	Expiration   string  `csv:"expiration"`
	Type         string  `csv:"type"`
	Strike       float64 `csv:"strike"`
	Bid          float64 `csv:"bid"`
	Ask          float64 `csv:"ask"`
	Last         float64 `csv:"last"`
	IV           float64 `csv:"iv"`
	OpenInterest int64   `csv:"open_interest"`
}

type csvBarRow struct {
	Date   string  `csv:"date"`
	Open   float64 `csv:"open"`
	High   float64 `csv:"high"`
	Low    float64 `csv:"low"`
	Close  float64 `csv:"close"`
	Volume float64 `csv:"volume"`
}

// NewLocalFileDataProvider convenience constructor.
func NewLocalFileDataProvider(dir string, secondary Provider) *localFileDataProvider {
	logger.Infof("event=provider_init provider=csv dir=%s", dir)
	return &localFileDataProvider{dir: dir, secondary: secondary}
}

// Secondary returns the configured fallback provider, if any.
func (localFileDataProv *localFileDataProvider) Secondary() Provider {
	return localFileDataProv.secondary
}

// loadQuotes reads quotes.csv once.
func (localFileDataProv *localFileDataProvider) loadQuotes() (map[string]float64, error) {
	localFileDataProv.quotesOnce.Do(func() {
		var rows []*csvQuoteRow
		err := readCSV(filepath.Join(localFileDataProv.dir, "quotes.csv"), &rows)
		if err != nil {
			localFileDataProv.quotesErr = err
			return
		}
		localFileDataProv.quotes = make(map[string]float64, len(rows))
		for _, r := range rows {
			localFileDataProv.quotes[strings.ToUpper(strings.TrimSpace(r.Ticker))] = r.Price
		}
	})
	return localFileDataProv.quotes, localFileDataProv.quotesErr
}

func (localFileDataProv *localFileDataProvider) GetQuote(ctx context.Context, ticker string) (Quote, error) {
	quotes, err := localFileDataProv.loadQuotes()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Quote{}, err
	}
	price, ok := quotes[strings.ToUpper(ticker)]
	if !ok {
		if localFileDataProv.secondary != nil {
			return localFileDataProv.secondary.GetQuote(ctx, ticker)
		}
		return Quote{}, fmt.Errorf("%s: %w", ticker, ErrNoPrice)
	}
	if price <= 0 {
		return Quote{}, fmt.Errorf("%s: %w", ticker, ErrNoPrice)
	}
	return Quote{Ticker: strings.ToUpper(ticker), Price: price, AsOf: time.Now().UTC()}, nil
}

// chainRows loads every contract of ticker. A missing file yields fs.ErrNotExist.
func (localFileDataProv *localFileDataProvider) chainRows(ticker string) ([]OptionContract, error) {
	var rows []*csvChainRow
	path := filepath.Join(localFileDataProv.dir, "chains", strings.ToUpper(ticker)+".csv")
	if err := readCSV(path, &rows); err != nil {
		return nil, err
	}

	out := make([]OptionContract, 0, len(rows))
	for i, r := range rows {
		exp, err := time.Parse(DateLayout, strings.TrimSpace(r.Expiration))
		if err != nil {
			logger.Debugf("event=csv_row_skipped file=%s row=%d err=%v", path, i+1, err)
			continue
		}
		typ, err := ParseOptionType(r.Type)
		if err != nil {
			logger.Debugf("event=csv_row_skipped file=%s row=%d err=%v", path, i+1, err)
			continue
		}
		out = append(out, OptionContract{
			Underlying:        strings.ToUpper(ticker),
			Expiration:        exp,
			Type:              typ,
			Strike:            r.Strike,
			Bid:               r.Bid,
			Ask:               r.Ask,
			LastPrice:         r.Last,
			ImpliedVolatility: r.IV,
			OpenInterest:      r.OpenInterest,
		})
	}
	return out, nil
}

func (localFileDataProv *localFileDataProvider) GetExpirations(ctx context.Context, ticker string, asOf time.Time) ([]time.Time, error) {
	rows, err := localFileDataProv.chainRows(ticker)
	if errors.Is(err, fs.ErrNotExist) && localFileDataProv.secondary != nil {
		return localFileDataProv.secondary.GetExpirations(ctx, ticker, asOf)
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", ticker, ErrNoOptions)
	}
	if err != nil {
		return nil, err
	}
	dates := make([]time.Time, 0, len(rows))
	for _, r := range rows {
		dates = append(dates, r.Expiration)
	}
	return uniqueSortedDates(dates, asOf), nil
}

func (localFileDataProv *localFileDataProvider) GetChain(ctx context.Context, ticker string, expiry time.Time) (*Chain, error) {
	rows, err := localFileDataProv.chainRows(ticker)
	if errors.Is(err, fs.ErrNotExist) && localFileDataProv.secondary != nil {
		return localFileDataProv.secondary.GetChain(ctx, ticker, expiry)
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", ticker, ErrNoOptions)
	}
	if err != nil {
		return nil, err
	}

	want := DateOnly(expiry)
	chain := &Chain{Underlying: strings.ToUpper(ticker), Expiration: want}
	for _, r := range rows {
		if DateOnly(r.Expiration).Equal(want) {
			chain.add(r)
		}
	}
	chain.sortByStrike()
	return chain, nil
}

func (localFileDataProv *localFileDataProvider) GetBars(ctx context.Context, ticker string, fromDate, toDate time.Time) ([]Bar, error) {
	var rows []*csvBarRow
	err := readCSV(filepath.Join(localFileDataProv.dir, "bars", strings.ToUpper(ticker)+".csv"), &rows)
	if errors.Is(err, fs.ErrNotExist) && localFileDataProv.secondary != nil {
		return localFileDataProv.secondary.GetBars(ctx, ticker, fromDate, toDate)
	}
	if err != nil {
		return nil, err
	}

	from, to := DateOnly(fromDate), DateOnly(toDate)
	out := make([]Bar, 0, len(rows))
	for _, r := range rows {
		d, err := time.Parse(DateLayout, strings.TrimSpace(r.Date))
		if err != nil || d.Before(from) || d.After(to) {
			continue
		}
		out = append(out, Bar{Date: d, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Volume: r.Volume})
	}
	return out, nil
}

// readCSV unmarshals a headed CSV file into out (a pointer to a slice).
func readCSV(path string, out any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := gocsv.UnmarshalFile(f, out); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}
