package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"utilibill/internal/core"
)

// InvoiceReader reads the per-document records consolidation sums over.
type InvoiceReader interface {
	ListInvoicesByUser(ctx context.Context, userID int64) ([]core.Invoice, error)
}

// AggregateStore is the monthly-rollup side of the store.
type AggregateStore interface {
	UpsertAggregateSums(ctx context.Context, agg core.MonthlyAggregate) error
	GetAggregate(ctx context.Context, userID int64, year, month int, unit string) (*core.MonthlyAggregate, error)
	ListAggregatesByUser(ctx context.Context, userID int64) ([]core.MonthlyAggregate, error)
}

type ConsolidationService struct {
	invoices   InvoiceReader
	aggregates AggregateStore
}

func NewConsolidationService(invoices InvoiceReader, aggregates AggregateStore) *ConsolidationService {
	return &ConsolidationService{invoices: invoices, aggregates: aggregates}
}

type periodKey struct {
	year  int
	month int
	unit  string
}

type periodSums struct {
	usage  decimal.Decimal
	before int64
	markup int64
	with   int64
}

// Consolidate recomputes every monthly aggregate for the user from the full
// invoice history and upserts the sums. Payment status and creation time of
// existing rows are left alone; the operation is idempotent.
//
// Invoices whose billing period never matched during extraction have no month
// to group under and are skipped.
func (s *ConsolidationService) Consolidate(ctx context.Context, userID int64) ([]core.MonthlyAggregate, error) {
	invoices, err := s.invoices.ListInvoicesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStorageFailure, err)
	}

	sums := make(map[periodKey]*periodSums)
	skipped := 0
	for _, inv := range invoices {
		year, month, ok := core.BillingMonth(inv.PeriodStart)
		if !ok {
			skipped++
			continue
		}
		key := periodKey{year: year, month: month, unit: inv.UnitType}
		ps := sums[key]
		if ps == nil {
			ps = &periodSums{}
			sums[key] = ps
		}
		if inv.Usage != nil {
			ps.usage = ps.usage.Add(*inv.Usage)
		}
		ps.before += centsOrZero(inv.Subtotal)
		ps.markup += centsOrZero(inv.Markup)
		ps.with += centsOrZero(inv.TotalCost)
	}

	keys := make([]periodKey, 0, len(sums))
	for key := range sums {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.year != b.year {
			return a.year > b.year
		}
		if a.month != b.month {
			return a.month > b.month
		}
		return a.unit < b.unit
	})

	updated := make([]core.MonthlyAggregate, 0, len(keys))
	for _, key := range keys {
		ps := sums[key]
		agg := core.MonthlyAggregate{
			UserID:      userID,
			Month:       key.month,
			Year:        key.year,
			TotalUsage:  ps.usage,
			UsageUnit:   key.unit,
			CostBefore:  core.Money{Cents: ps.before},
			TotalMarkup: core.Money{Cents: ps.markup},
			CostWith:    core.Money{Cents: ps.with},
		}
		if err := s.aggregates.UpsertAggregateSums(ctx, agg); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrStorageFailure, err)
		}
		// Read the row back so the caller sees the authoritative payment
		// status and timestamps, not just the recomputed sums.
		stored, err := s.aggregates.GetAggregate(ctx, userID, key.year, key.month, key.unit)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrStorageFailure, err)
		}
		if stored != nil {
			updated = append(updated, *stored)
		}
	}

	slog.InfoContext(ctx, "Invoices consolidated",
		"user_id", userID,
		"invoices", len(invoices),
		"skipped", skipped,
		"aggregates", len(updated))

	return updated, nil
}

// MonthlyLedger returns the user's aggregates, most recent month first.
func (s *ConsolidationService) MonthlyLedger(ctx context.Context, userID int64) ([]core.MonthlyAggregate, error) {
	aggs, err := s.aggregates.ListAggregatesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStorageFailure, err)
	}
	return aggs, nil
}

func centsOrZero(m *core.Money) int64 {
	if m == nil {
		return 0
	}
	return m.Cents
}
