// Package tradelog is the in-memory trade journal: trades logged from scan
// results, total income collected and its cumulative growth.
//
// The store is owned by the caller and lives as long as the process; nothing
// is persisted.
package tradelog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/contactkeval/option-income-scanner/internal/data"
	"github.com/contactkeval/option-income-scanner/internal/scan/engine"
)

var ErrInvalidEntry = errors.New("invalid trade entry")

type Entry struct {
	ID       string          `json:"id"`
	Date     time.Time       `json:"date"`
	Ticker   string          `json:"ticker"`
	Strategy string          `json:"strategy"`
	Strike   decimal.Decimal `json:"strike"`
	Expiry   time.Time       `json:"expiry"`
	Income   decimal.Decimal `json:"income"`
	Signal   string          `json:"signal,omitempty"`
}

// Point is one step of the cumulative income series.
type Point struct {
	Date       time.Time       `json:"date"`
	Cumulative decimal.Decimal `json:"cumulative"`
}

// Store is an append-only, concurrency-safe trade journal.
type Store struct {
	mu      sync.RWMutex
	entries []Entry
	now     func() time.Time
}

// NewStore returns an empty store. A nil clock uses time.Now.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{now: now}
}

// Append validates e, stamps its ID and, when unset, its date.
func (s *Store) Append(e Entry) (Entry, error) {
	e.Ticker = strings.ToUpper(strings.TrimSpace(e.Ticker))
	if e.Ticker == "" {
		return Entry{}, fmt.Errorf("%w: ticker is required", ErrInvalidEntry)
	}
	if e.Income.IsNegative() {
		return Entry{}, fmt.Errorf("%w: income %s is negative", ErrInvalidEntry, e.Income)
	}
	if !e.Strike.IsPositive() {
		return Entry{}, fmt.Errorf("%w: strike %s must be positive", ErrInvalidEntry, e.Strike)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = uuid.NewString()
	if e.Date.IsZero() {
		e.Date = data.DateOnly(s.now())
	}
	s.entries = append(s.entries, e)
	return e, nil
}

// LogResult records a trade taken from a scan result. Income is the total
// juice of the position, rounded to cents.
func (s *Store) LogResult(r engine.ScanResult, signal string) (Entry, error) {
	return s.Append(Entry{
		Ticker:   r.Ticker,
		Strategy: r.Strategy,
		Strike:   decimal.NewFromFloat(r.Strike),
		Expiry:   r.Expiration,
		Income:   decimal.NewFromFloat(r.TotalJuice).Round(2),
		Signal:   signal,
	})
}

// Entries returns the log ordered by date, then insertion.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func (s *Store) TotalIncome() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := decimal.Zero
	for _, e := range s.entries {
		total = total.Add(e.Income)
	}
	return total
}

// Cumulative returns the running income total, one point per entry in date
// order.
func (s *Store) Cumulative() []Point {
	entries := s.Entries()
	out := make([]Point, 0, len(entries))
	running := decimal.Zero
	for _, e := range entries {
		running = running.Add(e.Income)
		out = append(out, Point{Date: e.Date, Cumulative: running})
	}
	return out
}
