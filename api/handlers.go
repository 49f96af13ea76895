/*
handlers.go - HTTP API handlers for the meal-package system

PURPOSE:
  Exposes the meal-package engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Members:
    GET    /api/members                      List members
    POST   /api/members                      Register member
    GET    /api/members/{type}/{id}          Get member

  Packages:
    GET    /api/packages                     List (filter by member)
    POST   /api/packages                     Create package
    GET    /api/packages/{id}                Get package
    PUT    /api/packages/{id}                Edit package
    DELETE /api/packages/{id}                Hard delete
    POST   /api/packages/{id}/renew          Renew into successor
    POST   /api/packages/{id}/deactivate     Suspend
    POST   /api/packages/{id}/reactivate     Resume
    GET    /api/packages/{id}/history        Lifecycle transition log

  Balance (daily basis):
    POST   /api/packages/{id}/deposits       Add funds
    GET    /api/packages/{id}/transactions   Ledger entries
    GET    /api/packages/{id}/reconciliation Ledger vs stored balance

  Consumption:
    POST   /api/packages/{id}/consumptions   Record a meal check-in

REQUEST FLOW:
  1. Parse HTTP request
  2. Convert DTO to domain request
  3. Call domain logic (manager, ledger, tracker)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Package or member not found
  - 409: Invariant violations, illegal transitions, exhausted
         entitlement, insufficient balance
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. The API is meant to
  sit behind the campus admin gateway.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/messkit/package-engine/calendar"
	"github.com/messkit/package-engine/mealplan"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    mealplan.TxStore
	Packages *mealplan.Manager
	Tracker  *mealplan.Tracker
	Ledger   *mealplan.BalanceLedger

	// Now supplies the current date; overridable in tests.
	Now func() calendar.Date
}

// NewHandler creates a new handler backed by the given store.
func NewHandler(store mealplan.TxStore) *Handler {
	return &Handler{
		Store:    store,
		Packages: mealplan.NewManager(store),
		Tracker:  mealplan.NewTracker(store),
		Ledger:   mealplan.NewBalanceLedger(store),
		Now:      calendar.Today,
	}
}

// =============================================================================
// MEMBER HANDLERS
// =============================================================================

// ListMembers returns all registered members.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.Store.ListMembers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list members", err)
		return
	}
	dtos := make([]MemberDTO, len(members))
	for i, m := range members {
		dtos[i] = toMemberDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateMember registers a new member.
func (h *Handler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req CreateMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !mealplan.ValidMemberType(req.Type) {
		writeError(w, http.StatusBadRequest, "Invalid member type (use student, faculty or staff)", nil)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required", nil)
		return
	}

	member := &mealplan.Member{
		ID:             req.ID,
		Type:           mealplan.MemberType(req.Type),
		Name:           req.Name,
		NaturalID:      req.NaturalID,
		MealPreference: mealplan.MealSelection{Breakfast: true, Lunch: true, Dinner: true},
		CreatedAt:      time.Now().UTC(),
	}
	if member.ID == "" {
		member.ID = fmt.Sprintf("mem-%d", time.Now().UnixNano())
	}
	if req.MealPreference != nil {
		member.MealPreference = fromMealsDTO(*req.MealPreference)
	}

	ctx := r.Context()
	if existing, err := h.Store.GetMember(ctx, member.Ref()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to check member", err)
		return
	} else if existing != nil {
		writeError(w, http.StatusConflict, "Member already exists", nil)
		return
	}
	if err := h.Store.InsertMember(ctx, member); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create member", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMemberDTO(member))
}

// GetMember returns a single member.
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	ref := mealplan.MemberRef{
		ID:   chi.URLParam(r, "id"),
		Type: mealplan.MemberType(chi.URLParam(r, "type")),
	}
	member, err := h.Store.GetMember(r.Context(), ref)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get member", err)
		return
	}
	if member == nil {
		writeError(w, http.StatusNotFound, "Member not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(member))
}

// =============================================================================
// PACKAGE HANDLERS
// =============================================================================

// ListPackages returns all packages, optionally filtered to one member
// via ?member_id= and ?member_type=.
func (h *Handler) ListPackages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	memberID := r.URL.Query().Get("member_id")
	memberType := r.URL.Query().Get("member_type")

	var (
		packages []*mealplan.Package
		err      error
	)
	if memberID != "" {
		ref := mealplan.MemberRef{ID: memberID, Type: mealplan.MemberType(memberType)}
		packages, err = h.Store.PackagesByMember(ctx, ref)
	} else {
		packages, err = h.Store.ListPackages(ctx)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list packages", err)
		return
	}

	today := h.Now()
	dtos := make([]PackageDTO, len(packages))
	for i, p := range packages {
		dtos[i] = toPackageDTO(p, today)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePackage creates a new package of the requested type.
func (h *Handler) CreatePackage(w http.ResponseWriter, r *http.Request) {
	var req CreatePackageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	spec, err := toSpec(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	pkg, err := h.Packages.Create(r.Context(), spec)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPackageDTO(pkg, h.Now()))
}

// GetPackage returns a single package.
func (h *Handler) GetPackage(w http.ResponseWriter, r *http.Request) {
	pkg, err := h.Packages.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPackageDTO(pkg, h.Now()))
}

// UpdatePackage edits a package in place.
func (h *Handler) UpdatePackage(w http.ResponseWriter, r *http.Request) {
	var req UpdatePackageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	update, err := toUpdateRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	pkg, err := h.Packages.Update(r.Context(), chi.URLParam(r, "id"), update)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPackageDTO(pkg, h.Now()))
}

// DeletePackage hard-deletes a package with its history and ledger.
func (h *Handler) DeletePackage(w http.ResponseWriter, r *http.Request) {
	if err := h.Packages.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RenewPackage stamps the package renewed and creates its successor.
func (h *Handler) RenewPackage(w http.ResponseWriter, r *http.Request) {
	var req RenewPackageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	renewal, err := toRenewalRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	next, err := h.Packages.Renew(r.Context(), chi.URLParam(r, "id"), renewal)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPackageDTO(next, h.Now()))
}

// DeactivatePackage suspends an active package.
func (h *Handler) DeactivatePackage(w http.ResponseWriter, r *http.Request) {
	var req DeactivatePackageRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}
	pkg, err := h.Packages.Deactivate(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPackageDTO(pkg, h.Now()))
}

// ReactivatePackage resumes a deactivated package.
func (h *Handler) ReactivatePackage(w http.ResponseWriter, r *http.Request) {
	pkg, err := h.Packages.Reactivate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPackageDTO(pkg, h.Now()))
}

// GetHistory returns the package's lifecycle transition log.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Packages.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]HistoryEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toHistoryEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

// CreateDeposit adds funds to a daily-basis package.
func (h *Handler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount (use a decimal string)", err)
		return
	}
	pkg, err := h.Ledger.Deposit(r.Context(), chi.URLParam(r, "id"), amount, req.Description)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPackageDTO(pkg, h.Now()))
}

// GetTransactions returns the package's balance ledger.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Ledger.Transactions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetReconciliation replays the ledger and compares it against the
// stored balance.
func (h *Handler) GetReconciliation(w http.ResponseWriter, r *http.Request) {
	result, err := h.Ledger.Reconcile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ReconcileDTO{
		PackageID:     result.PackageID,
		StoredBalance: result.StoredBalance.String(),
		LedgerSum:     result.LedgerSum.String(),
		Consistent:    result.Consistent,
	})
}

// =============================================================================
// CONSUMPTION HANDLERS
// =============================================================================

// RecordConsumption registers one meal check-in.
func (h *Handler) RecordConsumption(w http.ResponseWriter, r *http.Request) {
	var req ConsumptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	pkg, err := h.Tracker.RecordMeal(r.Context(), chi.URLParam(r, "id"), mealplan.MealType(req.Meal))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPackageDTO(pkg, h.Now()))
}

// =============================================================================
// DTO -> DOMAIN CONVERSION
// =============================================================================

// toSpec converts a create request into the tagged spec for its type.
func toSpec(req CreatePackageRequest) (mealplan.PackageSpec, error) {
	if !mealplan.ValidPackageType(req.Type) {
		return nil, fmt.Errorf("unknown package type %q", req.Type)
	}
	common := mealplan.SpecCommon{
		Member: mealplan.MemberRef{ID: req.MemberID, Type: mealplan.MemberType(req.MemberType)},
		Meals:  fromMealsDTO(req.Meals),
	}
	var err error
	if common.Price, err = parseMoney(req.Price); err != nil {
		return nil, fmt.Errorf("invalid price: %w", err)
	}
	if common.Discount, err = parseMoney(req.Discount); err != nil {
		return nil, fmt.Errorf("invalid discount: %w", err)
	}

	switch mealplan.PackageType(req.Type) {
	case mealplan.FullTime, mealplan.PartialFullTime:
		start, end, err := parseDateFields(req.StartDate, req.EndDate)
		if err != nil {
			return nil, err
		}
		days, err := parseDays(req.DisabledDays)
		if err != nil {
			return nil, fmt.Errorf("invalid disabled_days: %w", err)
		}
		meals, err := parseDisabledMeals(req.DisabledMeals)
		if err != nil {
			return nil, fmt.Errorf("invalid disabled_meals: %w", err)
		}
		if mealplan.PackageType(req.Type) == mealplan.FullTime {
			return mealplan.FullTimeSpec{SpecCommon: common, StartDate: start, EndDate: end,
				DisabledDays: days, DisabledMeals: meals}, nil
		}
		return mealplan.PartialFullTimeSpec{SpecCommon: common, StartDate: start, EndDate: end,
			DisabledDays: days, DisabledMeals: meals}, nil

	case mealplan.Partial:
		spec := mealplan.PartialSpec{SpecCommon: common}
		if req.Totals != nil {
			spec.Totals = fromCountsDTO(*req.Totals)
		}
		return spec, nil

	default: // daily_basis
		spec := mealplan.DailyBasisSpec{SpecCommon: common}
		if spec.InitialDeposit, err = parseMoney(req.InitialDeposit); err != nil {
			return nil, fmt.Errorf("invalid initial_deposit: %w", err)
		}
		if spec.MealRate, err = parseMoney(req.MealRate); err != nil {
			return nil, fmt.Errorf("invalid meal_rate: %w", err)
		}
		return spec, nil
	}
}

func toUpdateRequest(req UpdatePackageRequest) (mealplan.UpdateRequest, error) {
	var (
		update mealplan.UpdateRequest
		err    error
	)
	if update.StartDate, update.EndDate, err = parseDateFields(req.StartDate, req.EndDate); err != nil {
		return update, err
	}
	if update.DisabledDays, err = parseDays(req.DisabledDays); err != nil {
		return update, fmt.Errorf("invalid disabled_days: %w", err)
	}
	if update.DisabledMeals, err = parseDisabledMeals(req.DisabledMeals); err != nil {
		return update, fmt.Errorf("invalid disabled_meals: %w", err)
	}
	if req.Totals != nil {
		update.Totals = fromCountsDTO(*req.Totals)
	}
	if update.Price, err = parseMoney(req.Price); err != nil {
		return update, fmt.Errorf("invalid price: %w", err)
	}
	if update.Discount, err = parseMoney(req.Discount); err != nil {
		return update, fmt.Errorf("invalid discount: %w", err)
	}
	if update.MealRate, err = parseMoney(req.MealRate); err != nil {
		return update, fmt.Errorf("invalid meal_rate: %w", err)
	}
	return update, nil
}

func toRenewalRequest(req RenewPackageRequest) (mealplan.RenewalRequest, error) {
	var (
		renewal mealplan.RenewalRequest
		err     error
	)
	if renewal.StartDate, renewal.EndDate, err = parseDateFields(req.StartDate, req.EndDate); err != nil {
		return renewal, err
	}
	if renewal.DisabledDays, err = parseDays(req.DisabledDays); err != nil {
		return renewal, fmt.Errorf("invalid disabled_days: %w", err)
	}
	if renewal.DisabledMeals, err = parseDisabledMeals(req.DisabledMeals); err != nil {
		return renewal, fmt.Errorf("invalid disabled_meals: %w", err)
	}
	if req.Totals != nil {
		renewal.Totals = fromCountsDTO(*req.Totals)
	}
	renewal.CarryOver = req.CarryOver
	if renewal.InitialDeposit, err = parseMoney(req.InitialDeposit); err != nil {
		return renewal, fmt.Errorf("invalid initial_deposit: %w", err)
	}
	if req.Meals != nil {
		meals := fromMealsDTO(*req.Meals)
		renewal.Meals = &meals
	}
	if renewal.Price, err = parseMoneyPtr(req.Price); err != nil {
		return renewal, fmt.Errorf("invalid price: %w", err)
	}
	if renewal.Discount, err = parseMoneyPtr(req.Discount); err != nil {
		return renewal, fmt.Errorf("invalid discount: %w", err)
	}
	if renewal.MealRate, err = parseMoneyPtr(req.MealRate); err != nil {
		return renewal, fmt.Errorf("invalid meal_rate: %w", err)
	}
	return renewal, nil
}

// parseDateFields parses optional start/end dates; empty strings stay
// zero and the domain validator decides whether they were required.
func parseDateFields(start, end string) (calendar.Date, calendar.Date, error) {
	var s, e calendar.Date
	var err error
	if start != "" {
		if s, err = calendar.ParseDate(start); err != nil {
			return s, e, fmt.Errorf("invalid start_date (use YYYY-MM-DD): %w", err)
		}
	}
	if end != "" {
		if e, err = calendar.ParseDate(end); err != nil {
			return s, e, fmt.Errorf("invalid end_date (use YYYY-MM-DD): %w", err)
		}
	}
	return s, e, nil
}

func parseMoneyPtr(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain rejections onto HTTP statuses. Every
// 4xx carries the domain's remedy text unchanged.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case mealplan.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, mealplan.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	case mealplan.IsClientError(err):
		// Invariant violations, illegal transitions, exhausted
		// entitlement, insufficient balance: conflicts with state.
		writeError(w, http.StatusConflict, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
