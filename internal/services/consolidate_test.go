package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"utilibill/internal/core"
)

type fakeInvoiceReader struct {
	invoices []core.Invoice
	err      error
}

func (f *fakeInvoiceReader) ListInvoicesByUser(_ context.Context, _ int64) ([]core.Invoice, error) {
	return f.invoices, f.err
}

// fakeAggregateStore mirrors the sums-only upsert of the real store: the
// payment status of an existing row survives a re-upsert.
type fakeAggregateStore struct {
	rows    map[periodKey]*core.MonthlyAggregate
	nextID  int64
	upserts int
	err     error
}

func newFakeAggregateStore() *fakeAggregateStore {
	return &fakeAggregateStore{rows: make(map[periodKey]*core.MonthlyAggregate)}
}

func (f *fakeAggregateStore) UpsertAggregateSums(_ context.Context, agg core.MonthlyAggregate) error {
	if f.err != nil {
		return f.err
	}
	f.upserts++
	key := periodKey{year: agg.Year, month: agg.Month, unit: agg.UsageUnit}
	if existing, ok := f.rows[key]; ok {
		existing.TotalUsage = agg.TotalUsage
		existing.CostBefore = agg.CostBefore
		existing.TotalMarkup = agg.TotalMarkup
		existing.CostWith = agg.CostWith
		return nil
	}
	f.nextID++
	agg.ID = f.nextID
	agg.PaidStatus = core.Unpaid
	f.rows[key] = &agg
	return nil
}

func (f *fakeAggregateStore) GetAggregate(_ context.Context, _ int64, year, month int, unit string) (*core.MonthlyAggregate, error) {
	row, ok := f.rows[periodKey{year: year, month: month, unit: unit}]
	if !ok {
		return nil, nil
	}
	copied := *row
	return &copied, nil
}

func (f *fakeAggregateStore) ListAggregatesByUser(_ context.Context, _ int64) ([]core.MonthlyAggregate, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]core.MonthlyAggregate, 0, len(f.rows))
	for _, row := range f.rows {
		out = append(out, *row)
	}
	return out, nil
}

func invoice(period, unit string, usage string, subtotal, markup, total int64) core.Invoice {
	inv := core.Invoice{
		UserID:      1,
		UtilityType: core.Electric,
		PeriodStart: period,
		UnitType:    unit,
	}
	if usage != "" {
		u := decimal.RequireFromString(usage)
		inv.Usage = &u
	}
	if subtotal != 0 || markup != 0 || total != 0 {
		inv.Subtotal = &core.Money{Cents: subtotal}
		inv.Markup = &core.Money{Cents: markup}
		inv.TotalCost = &core.Money{Cents: total}
	}
	return inv
}

func TestConsolidate(t *testing.T) {
	ctx := context.Background()

	t.Run("groups by month and unit", func(t *testing.T) {
		reader := &fakeInvoiceReader{invoices: []core.Invoice{
			invoice("01/04/2024", core.UnitEnergy, "350.5", 12000, 1200, 13200),
			invoice("15/04/2024", core.UnitEnergy, "100", 3050, 305, 3355),
			invoice("02/04/2024", core.UnitVolume, "12", 4210, 421, 4631),
			invoice("01/03/2024", core.UnitEnergy, "200", 6000, 600, 6600),
		}}
		store := newFakeAggregateStore()
		svc := NewConsolidationService(reader, store)

		aggs, err := svc.Consolidate(ctx, 1)
		if err != nil {
			t.Fatalf("consolidate: %v", err)
		}
		if len(aggs) != 3 {
			t.Fatalf("got %d aggregates, want 3", len(aggs))
		}

		// Most recent month first, units sorted within a month.
		april := aggs[0]
		if april.Year != 2024 || april.Month != 4 || april.UsageUnit != core.UnitEnergy {
			t.Fatalf("first aggregate = %d-%02d %s", april.Year, april.Month, april.UsageUnit)
		}
		if april.TotalUsage.String() != "450.5" {
			t.Errorf("april usage = %s, want 450.5", april.TotalUsage)
		}
		if april.CostBefore.Cents != 15050 || april.TotalMarkup.Cents != 1505 || april.CostWith.Cents != 16555 {
			t.Errorf("april costs = %+v", april)
		}

		water := aggs[1]
		if water.UsageUnit != core.UnitVolume || water.Month != 4 {
			t.Errorf("second aggregate = %d-%02d %s", water.Year, water.Month, water.UsageUnit)
		}
		march := aggs[2]
		if march.Month != 3 || march.CostWith.Cents != 6600 {
			t.Errorf("third aggregate = %+v", march)
		}
	})

	t.Run("idempotent re-run preserves payment status", func(t *testing.T) {
		reader := &fakeInvoiceReader{invoices: []core.Invoice{
			invoice("01/04/2024", core.UnitEnergy, "350.5", 12000, 1200, 13200),
		}}
		store := newFakeAggregateStore()
		svc := NewConsolidationService(reader, store)

		first, err := svc.Consolidate(ctx, 1)
		if err != nil {
			t.Fatal(err)
		}
		store.rows[periodKey{year: 2024, month: 4, unit: core.UnitEnergy}].PaidStatus = core.Paid

		second, err := svc.Consolidate(ctx, 1)
		if err != nil {
			t.Fatal(err)
		}
		if second[0].ID != first[0].ID {
			t.Errorf("re-run produced a new row: %d -> %d", first[0].ID, second[0].ID)
		}
		if second[0].PaidStatus != core.Paid {
			t.Errorf("payment status lost on re-run: %q", second[0].PaidStatus)
		}
		if second[0].CostWith.Cents != 13200 {
			t.Errorf("sums drifted: %+v", second[0])
		}
	})

	t.Run("skips invoices without a parsable period", func(t *testing.T) {
		reader := &fakeInvoiceReader{invoices: []core.Invoice{
			invoice("", core.UnitEnergy, "100", 3000, 300, 3300),
			invoice("April 2024", core.UnitEnergy, "100", 3000, 300, 3300),
			invoice("01/04/2024", core.UnitEnergy, "50", 1500, 150, 1650),
		}}
		store := newFakeAggregateStore()
		svc := NewConsolidationService(reader, store)

		aggs, err := svc.Consolidate(ctx, 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(aggs) != 1 {
			t.Fatalf("got %d aggregates, want 1", len(aggs))
		}
		if aggs[0].CostWith.Cents != 1650 {
			t.Errorf("unparsable periods leaked into sums: %+v", aggs[0])
		}
	})

	t.Run("costless invoices count as zero", func(t *testing.T) {
		reader := &fakeInvoiceReader{invoices: []core.Invoice{
			invoice("01/04/2024", core.UnitEnergy, "100", 0, 0, 0),
			invoice("02/04/2024", core.UnitEnergy, "", 1500, 150, 1650),
		}}
		store := newFakeAggregateStore()
		svc := NewConsolidationService(reader, store)

		aggs, err := svc.Consolidate(ctx, 1)
		if err != nil {
			t.Fatal(err)
		}
		if aggs[0].TotalUsage.String() != "100" {
			t.Errorf("usage = %s, want 100", aggs[0].TotalUsage)
		}
		if aggs[0].CostWith.Cents != 1650 {
			t.Errorf("cost = %d, want 1650", aggs[0].CostWith.Cents)
		}
	})

	t.Run("invalid calendar date still groups by month digits", func(t *testing.T) {
		reader := &fakeInvoiceReader{invoices: []core.Invoice{
			invoice("31/02/2024", core.UnitEnergy, "10", 1000, 100, 1100),
			invoice("01/02/2024", core.UnitEnergy, "10", 1000, 100, 1100),
		}}
		store := newFakeAggregateStore()
		svc := NewConsolidationService(reader, store)

		aggs, err := svc.Consolidate(ctx, 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(aggs) != 1 || aggs[0].Month != 2 {
			t.Fatalf("expected one February aggregate, got %+v", aggs)
		}
		if aggs[0].CostWith.Cents != 2200 {
			t.Errorf("cost = %d, want 2200", aggs[0].CostWith.Cents)
		}
	})

	t.Run("empty history", func(t *testing.T) {
		svc := NewConsolidationService(&fakeInvoiceReader{}, newFakeAggregateStore())
		aggs, err := svc.Consolidate(ctx, 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(aggs) != 0 {
			t.Errorf("got %d aggregates for empty history", len(aggs))
		}
	})

	t.Run("storage failure surfaces", func(t *testing.T) {
		svc := NewConsolidationService(&fakeInvoiceReader{err: errors.New("locked")}, newFakeAggregateStore())
		_, err := svc.Consolidate(ctx, 1)
		if !errors.Is(err, core.ErrStorageFailure) {
			t.Errorf("expected ErrStorageFailure, got %v", err)
		}
	})
}

func TestMonthlyLedger(t *testing.T) {
	ctx := context.Background()

	store := newFakeAggregateStore()
	store.rows[periodKey{year: 2024, month: 4, unit: core.UnitEnergy}] = &core.MonthlyAggregate{
		ID: 1, UserID: 1, Year: 2024, Month: 4, UsageUnit: core.UnitEnergy, PaidStatus: core.Unpaid,
	}
	svc := NewConsolidationService(&fakeInvoiceReader{}, store)

	aggs, err := svc.MonthlyLedger(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(aggs) != 1 || aggs[0].ID != 1 {
		t.Errorf("ledger = %+v", aggs)
	}

	store.err = errors.New("locked")
	if _, err := svc.MonthlyLedger(ctx, 1); !errors.Is(err, core.ErrStorageFailure) {
		t.Errorf("expected ErrStorageFailure, got %v", err)
	}
}
