/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types
  decouple the internal domain model from the external API contract,
  allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY FIELDS:
  All monetary amounts cross the wire as decimal strings ("120.50"),
  never JSON numbers. Parsing happens in the conversion helpers here;
  handlers never touch float64 for money.

DATES:
  All dates are ISO "YYYY-MM-DD" strings. Timestamps are RFC3339.

SEE ALSO:
  - handlers.go: Uses these types
  - mealplan/types.go: The domain model these map to
*/
package api

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/messkit/package-engine/calendar"
	"github.com/messkit/package-engine/mealplan"
)

// =============================================================================
// SHARED SHAPES
// =============================================================================

// MealsDTO carries the three meal enablement flags.
type MealsDTO struct {
	Breakfast bool `json:"breakfast"`
	Lunch     bool `json:"lunch"`
	Dinner    bool `json:"dinner"`
}

// CountsDTO carries per-meal counts plus their sum.
type CountsDTO struct {
	Breakfast int `json:"breakfast"`
	Lunch     int `json:"lunch"`
	Dinner    int `json:"dinner"`
	Total     int `json:"total"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// MEMBERS
// =============================================================================

// MemberDTO represents a member in API responses.
type MemberDTO struct {
	ID             string   `json:"id"`
	Type           string   `json:"type"`
	Name           string   `json:"name"`
	NaturalID      string   `json:"natural_id"`
	MealPreference MealsDTO `json:"meal_preference"`
	CreatedAt      string   `json:"created_at,omitempty"`
}

// CreateMemberRequest is the request to register a member. ID is
// optional; one is generated when absent.
type CreateMemberRequest struct {
	ID             string    `json:"id,omitempty"`
	Type           string    `json:"type"`
	Name           string    `json:"name"`
	NaturalID      string    `json:"natural_id"`
	MealPreference *MealsDTO `json:"meal_preference,omitempty"`
}

// =============================================================================
// PACKAGES
// =============================================================================

// PackageDTO represents a package in API responses. Status is the
// effective status (date-bound expiry already applied); stored_status
// is the raw persisted field.
type PackageDTO struct {
	ID         string `json:"id"`
	MemberID   string `json:"member_id"`
	MemberType string `json:"member_type"`
	Type       string `json:"type"`

	Meals MealsDTO `json:"meals"`

	StartDate     string              `json:"start_date,omitempty"`
	EndDate       string              `json:"end_date,omitempty"`
	DisabledDays  []string            `json:"disabled_days,omitempty"`
	DisabledMeals map[string]MealsDTO `json:"disabled_meals,omitempty"`

	Totals      CountsDTO `json:"totals"`
	Consumed    CountsDTO `json:"consumed"`
	Remaining   CountsDTO `json:"remaining"`
	CarriedOver CountsDTO `json:"carried_over"`

	CarriedOverFrom string `json:"carried_over_from,omitempty"`

	Price    string `json:"price"`
	Discount string `json:"discount"`
	MealRate string `json:"meal_rate,omitempty"`
	Balance  string `json:"balance,omitempty"`

	Status             string `json:"status"`
	StoredStatus       string `json:"stored_status"`
	DeactivationReason string `json:"deactivation_reason,omitempty"`

	CreatedAt string `json:"created_at,omitempty"`
}

// CreatePackageRequest is the request to create a package. Fields not
// meaningful to the chosen type are ignored.
type CreatePackageRequest struct {
	Type       string   `json:"type"`
	MemberID   string   `json:"member_id"`
	MemberType string   `json:"member_type"`
	Meals      MealsDTO `json:"meals"`

	// full_time / partial_full_time
	StartDate     string              `json:"start_date,omitempty"`
	EndDate       string              `json:"end_date,omitempty"`
	DisabledDays  []string            `json:"disabled_days,omitempty"`
	DisabledMeals map[string]MealsDTO `json:"disabled_meals,omitempty"`

	// partial
	Totals *CountsDTO `json:"totals,omitempty"`

	// daily_basis
	InitialDeposit string `json:"initial_deposit,omitempty"`
	MealRate       string `json:"meal_rate,omitempty"`

	Price    string `json:"price,omitempty"`
	Discount string `json:"discount,omitempty"`
}

// UpdatePackageRequest edits a package in place. Meal enablement and
// package type are immutable; renewal is the only way to change them.
type UpdatePackageRequest struct {
	StartDate     string              `json:"start_date,omitempty"`
	EndDate       string              `json:"end_date,omitempty"`
	DisabledDays  []string            `json:"disabled_days,omitempty"`
	DisabledMeals map[string]MealsDTO `json:"disabled_meals,omitempty"`

	Totals *CountsDTO `json:"totals,omitempty"`

	Price    string `json:"price,omitempty"`
	Discount string `json:"discount,omitempty"`
	MealRate string `json:"meal_rate,omitempty"`
}

// RenewPackageRequest describes the successor package.
type RenewPackageRequest struct {
	StartDate     string              `json:"start_date,omitempty"`
	EndDate       string              `json:"end_date,omitempty"`
	DisabledDays  []string            `json:"disabled_days,omitempty"`
	DisabledMeals map[string]MealsDTO `json:"disabled_meals,omitempty"`

	Totals    *CountsDTO `json:"totals,omitempty"`
	CarryOver bool       `json:"carry_over,omitempty"`

	InitialDeposit string `json:"initial_deposit,omitempty"`

	// Optional overrides; absent fields inherit from the original.
	Meals    *MealsDTO `json:"meals,omitempty"`
	Price    *string   `json:"price,omitempty"`
	Discount *string   `json:"discount,omitempty"`
	MealRate *string   `json:"meal_rate,omitempty"`
}

// DeactivatePackageRequest suspends a package.
type DeactivatePackageRequest struct {
	Reason string `json:"reason,omitempty"`
}

// =============================================================================
// LEDGER AND CONSUMPTION
// =============================================================================

// DepositRequest adds funds to a daily-basis package.
type DepositRequest struct {
	Amount      string `json:"amount"`
	Description string `json:"description,omitempty"`
}

// ConsumptionRequest records one meal check-in.
type ConsumptionRequest struct {
	Meal string `json:"meal"`
}

// TransactionDTO represents one balance ledger entry.
type TransactionDTO struct {
	ID          string `json:"id"`
	PackageID   string `json:"package_id"`
	Type        string `json:"type"`
	Amount      string `json:"amount"`
	Description string `json:"description,omitempty"`
	At          string `json:"at"`
}

// ReconcileDTO compares the stored balance against the replayed
// transaction log.
type ReconcileDTO struct {
	PackageID     string `json:"package_id"`
	StoredBalance string `json:"stored_balance"`
	LedgerSum     string `json:"ledger_sum"`
	Consistent    bool   `json:"consistent"`
}

// HistoryEntryDTO represents one lifecycle transition record.
type HistoryEntryDTO struct {
	ID          string    `json:"id"`
	PackageID   string    `json:"package_id"`
	Action      string    `json:"action"`
	PackageType string    `json:"package_type"`
	Totals      CountsDTO `json:"totals"`
	Consumed    CountsDTO `json:"consumed"`
	Balance     string    `json:"balance"`
	Note        string    `json:"note,omitempty"`
	At          string    `json:"at"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toMealsDTO(m mealplan.MealSelection) MealsDTO {
	return MealsDTO{Breakfast: m.Breakfast, Lunch: m.Lunch, Dinner: m.Dinner}
}

func fromMealsDTO(m MealsDTO) mealplan.MealSelection {
	return mealplan.MealSelection{Breakfast: m.Breakfast, Lunch: m.Lunch, Dinner: m.Dinner}
}

func toCountsDTO(c mealplan.MealCounts) CountsDTO {
	return CountsDTO{Breakfast: c.Breakfast, Lunch: c.Lunch, Dinner: c.Dinner, Total: c.Total()}
}

func fromCountsDTO(c CountsDTO) mealplan.MealCounts {
	return mealplan.MealCounts{Breakfast: c.Breakfast, Lunch: c.Lunch, Dinner: c.Dinner}
}

func toMemberDTO(m *mealplan.Member) MemberDTO {
	return MemberDTO{
		ID:             m.ID,
		Type:           string(m.Type),
		Name:           m.Name,
		NaturalID:      m.NaturalID,
		MealPreference: toMealsDTO(m.MealPreference),
		CreatedAt:      m.CreatedAt.Format(time.RFC3339),
	}
}

func toPackageDTO(p *mealplan.Package, today calendar.Date) PackageDTO {
	dto := PackageDTO{
		ID:                 p.ID,
		MemberID:           p.Member.ID,
		MemberType:         string(p.Member.Type),
		Type:               string(p.Type),
		Meals:              toMealsDTO(p.Meals),
		Totals:             toCountsDTO(p.Totals),
		Consumed:           toCountsDTO(p.Consumed),
		Remaining:          toCountsDTO(mealplan.Remaining(p)),
		CarriedOver:        toCountsDTO(p.CarriedOver),
		CarriedOverFrom:    p.CarriedOverFrom,
		Price:              p.Price.String(),
		Discount:           p.Discount.String(),
		Status:             string(mealplan.EffectiveStatus(p, today)),
		StoredStatus:       string(p.Status),
		DeactivationReason: p.DeactivationReason,
		CreatedAt:          p.CreatedAt.Format(time.RFC3339),
	}
	if p.Type.DateBound() {
		dto.StartDate = p.StartDate.String()
		dto.EndDate = p.EndDate.String()
		dto.DisabledDays = sortedDays(p.DisabledDays)
		if len(p.DisabledMeals) > 0 {
			dto.DisabledMeals = make(map[string]MealsDTO, len(p.DisabledMeals))
			for day, flags := range p.DisabledMeals {
				dto.DisabledMeals[day] = MealsDTO{Breakfast: flags.Breakfast, Lunch: flags.Lunch, Dinner: flags.Dinner}
			}
		}
	}
	if p.Type == mealplan.DailyBasis {
		dto.MealRate = p.MealRate.String()
		dto.Balance = p.Balance.String()
	}
	return dto
}

func toTransactionDTO(tx mealplan.BalanceTransaction) TransactionDTO {
	return TransactionDTO{
		ID:          tx.ID,
		PackageID:   tx.PackageID,
		Type:        string(tx.Type),
		Amount:      tx.Amount.String(),
		Description: tx.Description,
		At:          tx.At.Format(time.RFC3339),
	}
}

func toHistoryEntryDTO(e mealplan.HistoryEntry) HistoryEntryDTO {
	return HistoryEntryDTO{
		ID:          e.ID,
		PackageID:   e.PackageID,
		Action:      string(e.Action),
		PackageType: string(e.PackageType),
		Totals:      toCountsDTO(e.Totals),
		Consumed:    toCountsDTO(e.Consumed),
		Balance:     e.Balance.String(),
		Note:        e.Note,
		At:          e.At.Format(time.RFC3339),
	}
}

func sortedDays(dd calendar.DisabledDays) []string {
	if len(dd) == 0 {
		return nil
	}
	days := make([]string, 0, len(dd))
	for day := range dd {
		days = append(days, day)
	}
	sort.Strings(days)
	return days
}

// parseDays converts ISO date strings into a disabled-days set.
func parseDays(days []string) (calendar.DisabledDays, error) {
	if len(days) == 0 {
		return nil, nil
	}
	out := make(calendar.DisabledDays, len(days))
	for _, s := range days {
		d, err := calendar.ParseDate(s)
		if err != nil {
			return nil, err
		}
		out.Add(d)
	}
	return out, nil
}

// parseDisabledMeals converts the wire map into a disabled-meals set.
func parseDisabledMeals(meals map[string]MealsDTO) (calendar.DisabledMeals, error) {
	if len(meals) == 0 {
		return nil, nil
	}
	out := make(calendar.DisabledMeals, len(meals))
	for day, flags := range meals {
		d, err := calendar.ParseDate(day)
		if err != nil {
			return nil, err
		}
		out[d.String()] = calendar.MealSelection{Breakfast: flags.Breakfast, Lunch: flags.Lunch, Dinner: flags.Dinner}
	}
	return out, nil
}

// parseMoney parses a decimal string; empty means zero.
func parseMoney(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
