package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"utilibill/internal/core"
	"utilibill/internal/services"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// pathUserID reads the {userId} path segment.
func pathUserID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("userId"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Wire shapes. Money travels as a decimal string ("132.00"), usage as the
// decimal's exact representation.

type userResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Address  string `json:"address,omitempty"`
	Postcode string `json:"postcode,omitempty"`
}

func toUserResponse(u *core.User) userResponse {
	return userResponse{
		ID:       u.ID,
		Name:     u.Name,
		Email:    u.Email,
		Address:  u.Address,
		Postcode: u.Postcode,
	}
}

type invoiceResponse struct {
	InvoiceID   int64   `json:"invoice_id"`
	PeriodStart string  `json:"period_start,omitempty"`
	PeriodEnd   string  `json:"period_end,omitempty"`
	Usage       *string `json:"usage,omitempty"`
	UnitType    string  `json:"unit_type"`
	RatePerUnit *string `json:"rate_per_unit,omitempty"`
	Subtotal    *string `json:"subtotal,omitempty"`
	Markup      *string `json:"markup,omitempty"`
	TotalCost   *string `json:"total_cost,omitempty"`
}

func toInvoiceResponse(report services.IngestReport) invoiceResponse {
	return invoiceResponse{
		InvoiceID:   report.InvoiceID,
		PeriodStart: report.PeriodStart,
		PeriodEnd:   report.PeriodEnd,
		Usage:       decimalString(report.Usage),
		UnitType:    report.UnitType,
		RatePerUnit: decimalString(report.RatePerUnit),
		Subtotal:    moneyString(report.Subtotal),
		Markup:      moneyString(report.Markup),
		TotalCost:   moneyString(report.TotalCost),
	}
}

type aggregateResponse struct {
	ID          int64  `json:"id"`
	Year        int    `json:"year"`
	Month       int    `json:"month"`
	TotalUsage  string `json:"total_usage"`
	UsageUnit   string `json:"usage_unit"`
	CostBefore  string `json:"total_cost_before_markup"`
	TotalMarkup string `json:"total_markup"`
	CostWith    string `json:"total_cost_with_markup"`
	PaidStatus  string `json:"paid_status"`
}

func toAggregateResponses(aggs []core.MonthlyAggregate) []aggregateResponse {
	out := make([]aggregateResponse, 0, len(aggs))
	for _, a := range aggs {
		out = append(out, aggregateResponse{
			ID:          a.ID,
			Year:        a.Year,
			Month:       a.Month,
			TotalUsage:  a.TotalUsage.String(),
			UsageUnit:   a.UsageUnit,
			CostBefore:  a.CostBefore.String(),
			TotalMarkup: a.TotalMarkup.String(),
			CostWith:    a.CostWith.String(),
			PaidStatus:  string(a.PaidStatus),
		})
	}
	return out
}

func decimalString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func moneyString(m *core.Money) *string {
	if m == nil {
		return nil
	}
	s := m.String()
	return &s
}
