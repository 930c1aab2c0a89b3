package core

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Electric UtilityType = "electric"
	Gas      UtilityType = "gas"
	Water    UtilityType = "water"
)

const (
	Unpaid PaymentStatus = "unpaid"
	Paid   PaymentStatus = "paid"
)

// Canonical unit symbols. The extractor normalizes whatever casing the
// document uses to one of these.
const (
	UnitEnergy = "kWh"
	UnitVolume = "m3"
)

type (
	UtilityType   string
	PaymentStatus string

	// Invoice is one ingested utility document's extracted facts.
	// Billing period dates are kept as the raw DD/MM/YYYY strings found in
	// the document text; they are not validated as calendar dates.
	Invoice struct {
		ID            int64
		UserID        int64
		UtilityType   UtilityType
		ProviderName  string
		AccountNumber string
		PeriodStart   string
		PeriodEnd     string
		Usage         *decimal.Decimal
		UnitType      string
		RatePerUnit   *decimal.Decimal
		Subtotal      *Money
		Markup        *Money
		TotalCost     *Money
		CreatedAt     time.Time
	}

	// MonthlyAggregate is the summed billing facts for one
	// (user, year, month, unit type) tuple.
	MonthlyAggregate struct {
		ID          int64
		UserID      int64
		Month       int
		Year        int
		TotalUsage  decimal.Decimal
		UsageUnit   string
		CostBefore  Money
		TotalMarkup Money
		CostWith    Money
		PaidStatus  PaymentStatus
		CreatedAt   time.Time
	}

	User struct {
		ID           int64
		Name         string
		Email        string
		PasswordHash string
		Address      string
		Postcode     string
		CreatedAt    time.Time
	}
)

var (
	ErrUnreadableDocument = errors.New("unreadable document")
	ErrStorageFailure     = errors.New("storage failure")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidUtilityType = errors.New("invalid utility type")
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrAggregateNotFound  = errors.New("monthly aggregate not found")
)

// ParseUtilityType validates a caller-supplied utility type hint.
// An empty hint defaults to electric.
func ParseUtilityType(s string) (UtilityType, error) {
	switch UtilityType(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return Electric, nil
	case Electric:
		return Electric, nil
	case Gas:
		return Gas, nil
	case Water:
		return Water, nil
	}
	return "", ErrInvalidUtilityType
}

// DefaultUnit returns the unit assumed for a utility type when the document
// text did not yield one: volume for water, energy for everything else.
func (t UtilityType) DefaultUnit() string {
	if t == Water {
		return UnitVolume
	}
	return UnitEnergy
}

var billingDatePattern = regexp.MustCompile(`^(\d{2})/(\d{2})/(\d{4})$`)

// BillingMonth derives the (year, month) grouping key from a DD/MM/YYYY
// billing-period-start string. The day is deliberately not validated: a bill
// stamped 31/02/2024 still groups under February 2024. A month outside 1-12,
// an empty string, or any other shape reports ok=false and the invoice is
// left out of consolidation.
func BillingMonth(periodStart string) (year, month int, ok bool) {
	m := billingDatePattern.FindStringSubmatch(strings.TrimSpace(periodStart))
	if m == nil {
		return 0, 0, false
	}
	month, _ = strconv.Atoi(m[2])
	year, _ = strconv.Atoi(m[3])
	if month < 1 || month > 12 {
		return 0, 0, false
	}
	return year, month, true
}
