// Package services orchestrates the ingestion and consolidation pipelines
// over the storage and text-extraction collaborators.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/shopspring/decimal"

	"utilibill/internal/core"
	"utilibill/internal/extract"
)

// InvoiceWriter is the slice of the store ingestion needs: one atomic insert.
type InvoiceWriter interface {
	InsertInvoice(ctx context.Context, inv core.Invoice) (int64, error)
}

// IngestReport carries the derived facts back to the caller. Nil fields mean
// the corresponding pattern did not match; the caller can prompt for manual
// correction.
type IngestReport struct {
	InvoiceID   int64
	PeriodStart string
	PeriodEnd   string
	Usage       *decimal.Decimal
	UnitType    string
	RatePerUnit *decimal.Decimal
	Subtotal    *core.Money
	Markup      *core.Money
	TotalCost   *core.Money
}

type IngestService struct {
	extractor extract.TextExtractor
	store     InvoiceWriter
}

func NewIngestService(extractor extract.TextExtractor, store InvoiceWriter) *IngestService {
	return &IngestService{extractor: extractor, store: store}
}

// Ingest runs the pipeline for one uploaded document: extract text, extract
// facts, apply the unit and cost policies, persist one invoice record. The
// uploaded artifact at docPath is removed on every exit path.
//
// Failures wrap core.ErrUnreadableDocument or core.ErrStorageFailure; in both
// cases no invoice record exists afterwards.
func (s *IngestService) Ingest(ctx context.Context, userID int64, utilityType core.UtilityType, docPath string) (IngestReport, error) {
	defer func() {
		if err := os.Remove(docPath); err != nil && !os.IsNotExist(err) {
			slog.WarnContext(ctx, "Failed to remove uploaded artifact",
				"path", docPath, "error", err)
		}
	}()

	res, err := s.extractor.Extract(ctx, docPath)
	if err != nil {
		return IngestReport{}, fmt.Errorf("%w: %v", core.ErrUnreadableDocument, err)
	}

	facts := core.ExtractFacts(res.Text)

	// Unit policy: a unit read from the text wins; otherwise fall back to the
	// utility-type default (volume for water, energy for the rest).
	unit := facts.UnitType
	if unit == "" {
		unit = utilityType.DefaultUnit()
	}

	// Cost policy input: a subtotal read from the text wins; usage x rate is
	// computed only when no direct amount matched.
	subtotal := facts.Subtotal
	if subtotal == nil && facts.Usage != nil && facts.RatePerUnit != nil {
		computed := core.SubtotalFromRate(*facts.Usage, *facts.RatePerUnit)
		subtotal = &computed
	}
	markup, total := core.ApplyMarkup(subtotal)

	inv := core.Invoice{
		UserID:      userID,
		UtilityType: utilityType,
		PeriodStart: facts.PeriodStart,
		PeriodEnd:   facts.PeriodEnd,
		Usage:       facts.Usage,
		UnitType:    unit,
		RatePerUnit: facts.RatePerUnit,
		Subtotal:    subtotal,
		Markup:      markup,
		TotalCost:   total,
	}

	id, err := s.store.InsertInvoice(ctx, inv)
	if err != nil {
		return IngestReport{}, fmt.Errorf("%w: %v", core.ErrStorageFailure, err)
	}

	slog.InfoContext(ctx, "Document ingested",
		"invoice_id", id,
		"user_id", userID,
		"utility_type", utilityType,
		"pages", res.Pages,
		"method", res.Method,
		"period_matched", facts.PeriodStart != "",
		"cost_matched", subtotal != nil)

	return IngestReport{
		InvoiceID:   id,
		PeriodStart: facts.PeriodStart,
		PeriodEnd:   facts.PeriodEnd,
		Usage:       facts.Usage,
		UnitType:    unit,
		RatePerUnit: facts.RatePerUnit,
		Subtotal:    subtotal,
		Markup:      markup,
		TotalCost:   total,
	}, nil
}
