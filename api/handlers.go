/*
handlers.go - HTTP API handlers for the meal-cancellation engine

PURPOSE:
  Exposes the cancellation ledger and settlement aggregator via REST.
  Handles HTTP request/response, JSON serialization, and delegates to
  domain logic.

ENDPOINTS:
  Cancellations:
    GET    /api/cancellations          List (scoped to caller)
    POST   /api/cancellations          Cancel a meal
    DELETE /api/cancellations/{id}     Un-cancel before the cutoff

  Settlements (staff only):
    GET    /api/settlements            Per-child aggregation + summary
    POST   /api/settlements/refunds    Bulk mark-refunded
    POST   /api/settlements/payments   Generate reversing payments

  Misc:
    GET    /api/children/{id}/payments Payment history for a child
    GET    /api/health                 Liveness
    GET    /api/scenarios              Demo scenarios
    POST   /api/scenarios/load         Seed a demo scenario
    POST   /api/admin/reset            Wipe the database (dev only)

ERROR HANDLING:
  Domain errors map to the taxonomy via errors.Is:
  - 400 VALIDATION        malformed input, unknown meal type
  - 403 FORBIDDEN         role/ownership mismatch
  - 404 NOT_FOUND         unknown child or cancellation
  - 409 CONFLICT          duplicate cancellation
  - 422 DEADLINE_PASSED   cutoff rule violated
  - 500 INTERNAL          storage failures (opaque, never retried here)

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Caller identity extraction
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/canteen-engine/canteen"
	"github.com/warp/canteen-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   *sqlite.Store
	Ledger  *canteen.Ledger
	Settler *canteen.Settler
	Log     *zap.Logger

	validate *validator.Validate

	// Track currently loaded demo scenario
	currentScenario string
}

// NewHandler creates a new handler wired to the given store.
func NewHandler(store *sqlite.Store, cutoff canteen.CutoffPolicy, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	resolver := canteen.NewPriceResolver(store, store)
	return &Handler{
		Store:    store,
		Ledger:   canteen.NewLedger(store, store, resolver, cutoff),
		Settler:  canteen.NewSettler(store, store, store, store, log),
		Log:      log,
		validate: validator.New(),
	}
}

// =============================================================================
// CANCELLATION HANDLERS
// =============================================================================

// ListCancellations returns cancellations visible to the caller.
func (h *Handler) ListCancellations(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}

	views, err := h.Ledger.List(r.Context(), callerFrom(r), filter)
	if err != nil {
		h.writeDomainError(w, "Failed to list cancellations", err)
		return
	}

	dtos := make([]CancellationDTO, 0, len(views))
	for _, v := range views {
		dtos = append(dtos, toCancellationDTO(v))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CancelMeal records a meal cancellation.
func (h *Handler) CancelMeal(w http.ResponseWriter, r *http.Request) {
	var req CancelMealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	date, err := canteen.ParseDay(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	view, err := h.Ledger.Cancel(r.Context(), callerFrom(r), canteen.CancelRequest{
		ChildID:  canteen.ChildID(req.ChildID),
		Date:     date,
		MealType: canteen.MealType(req.MealType),
		Reason:   req.Reason,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to cancel meal", err)
		return
	}

	writeJSON(w, http.StatusCreated, toCancellationDTO(*view))
}

// UncancelMeal deletes a cancellation before the cutoff.
func (h *Handler) UncancelMeal(w http.ResponseWriter, r *http.Request) {
	id := canteen.CancellationID(chi.URLParam(r, "id"))

	if err := h.Ledger.Uncancel(r.Context(), callerFrom(r), id); err != nil {
		h.writeDomainError(w, "Failed to un-cancel meal", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": string(id)})
}

// =============================================================================
// SETTLEMENT HANDLERS
// =============================================================================

// ListSettlements returns the per-child settlement view. Staff only.
func (h *Handler) ListSettlements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := canteen.SettlementFilter{
		GroupID:        canteen.GroupID(q.Get("group_id")),
		ChildID:        canteen.ChildID(q.Get("child_id")),
		OnlyUnrefunded: q.Get("only_unrefunded") == "true",
	}
	var err error
	if filter.From, filter.To, err = parseRange(r); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range", err)
		return
	}

	report, err := h.Settler.List(r.Context(), callerFrom(r), filter)
	if err != nil {
		h.writeDomainError(w, "Failed to list settlements", err)
		return
	}

	resp := SettlementResponse{
		Settlements: make([]ChildSettlementDTO, 0, len(report.Settlements)),
		Summary: SettlementSummaryDTO{
			ChildCount:        report.Summary.ChildCount,
			CancellationCount: report.Summary.CancellationCount,
			TotalUnrefunded:   report.Summary.TotalUnrefunded.String(),
			TotalRefunded:     report.Summary.TotalRefunded.String(),
		},
	}
	for _, s := range report.Settlements {
		resp.Settlements = append(resp.Settlements, toSettlementDTO(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

// MarkRefunded flips refunded=true on a set of cancellation ids.
func (h *Handler) MarkRefunded(w http.ResponseWriter, r *http.Request) {
	ids, ok := h.decodeBulkIDs(w, r)
	if !ok {
		return
	}

	count, err := h.Settler.MarkRefunded(r.Context(), callerFrom(r), ids)
	if err != nil {
		h.writeDomainError(w, "Failed to mark refunded", err)
		return
	}
	writeJSON(w, http.StatusOK, MarkRefundedResponse{Count: count})
}

// GeneratePayments creates reversing payment entries for unrefunded ids.
func (h *Handler) GeneratePayments(w http.ResponseWriter, r *http.Request) {
	ids, ok := h.decodeBulkIDs(w, r)
	if !ok {
		return
	}

	payments, err := h.Settler.GeneratePayments(r.Context(), callerFrom(r), ids)
	if err != nil {
		h.writeDomainError(w, "Failed to generate payments", err)
		return
	}

	resp := GeneratePaymentsResponse{Payments: make([]PaymentDTO, 0, len(payments))}
	for _, p := range payments {
		resp.Payments = append(resp.Payments, toPaymentDTO(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// PAYMENT HISTORY
// =============================================================================

// ListChildPayments returns the payment ledger entries for one child.
// Guardians see only their own children; staff see anyone.
func (h *Handler) ListChildPayments(w http.ResponseWriter, r *http.Request) {
	childID := canteen.ChildID(chi.URLParam(r, "id"))
	caller := callerFrom(r)

	child, err := h.Store.GetChild(r.Context(), childID)
	if err != nil {
		h.writeDomainError(w, "Failed to load child", err)
		return
	}
	if err := canteen.NewScope(h.Store).RequireChildAccess(r.Context(), caller, child); err != nil {
		h.writeDomainError(w, "Failed to load payments", err)
		return
	}

	payments, err := h.Store.PaymentsByChild(r.Context(), childID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load payments", err)
		return
	}
	dtos := make([]PaymentDTO, 0, len(payments))
	for _, p := range payments {
		dtos = append(dtos, toPaymentDTO(p))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// MISC HANDLERS
// =============================================================================

// Health is the liveness endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ResetDatabase wipes all data. Dev/demo flows only.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	h.Log.Info("database reset", zap.String("caller", callerFrom(r).ID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) decodeBulkIDs(w http.ResponseWriter, r *http.Request) ([]canteen.CancellationID, bool) {
	var req BulkIDsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return nil, false
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return nil, false
	}
	ids := make([]canteen.CancellationID, len(req.CancellationIDs))
	for i, id := range req.CancellationIDs {
		ids[i] = canteen.CancellationID(id)
	}
	return ids, true
}

func parseFilter(r *http.Request) (canteen.Filter, error) {
	q := r.URL.Query()
	var f canteen.Filter
	if childID := q.Get("child_id"); childID != "" {
		f.ChildIDs = []canteen.ChildID{canteen.ChildID(childID)}
	}
	var err error
	if f.From, f.To, err = parseRange(r); err != nil {
		return canteen.Filter{}, err
	}
	switch q.Get("refunded") {
	case "true":
		t := true
		f.Refunded = &t
	case "false":
		fa := false
		f.Refunded = &fa
	}
	return f, nil
}

func parseRange(r *http.Request) (from, to canteen.Day, err error) {
	q := r.URL.Query()
	if s := q.Get("from"); s != "" {
		if from, err = canteen.ParseDay(s); err != nil {
			return
		}
	}
	if s := q.Get("to"); s != "" {
		if to, err = canteen.ParseDay(s); err != nil {
			return
		}
	}
	return
}

// writeDomainError maps a canteen error to the HTTP taxonomy.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, canteen.ErrUnknownMealType) || errors.Is(err, canteen.ErrMissingField):
		status, code = http.StatusBadRequest, "VALIDATION"
	case errors.Is(err, canteen.ErrForbidden):
		status, code = http.StatusForbidden, "FORBIDDEN"
	case canteen.IsNotFound(err):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, canteen.ErrDuplicateCancellation):
		status, code = http.StatusConflict, "CONFLICT"
	case errors.Is(err, canteen.ErrDeadlinePassed):
		status, code = http.StatusUnprocessableEntity, "DEADLINE_PASSED"
	default:
		h.Log.Error(message, zap.Error(err))
	}
	resp := ErrorResponse{Error: message, Code: code, Details: err.Error()}
	writeJSON(w, status, resp)
}

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
