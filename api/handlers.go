/*
handlers.go - HTTP API handlers for the payroll ledger

PURPOSE:
  Exposes the payroll directory via REST API. Handles HTTP request and
  response, JSON serialization, and delegates to the payroll package.

ENDPOINTS (under /api/employers/{employer}):
  Employer:
    GET    /                                   Employer and current schedule
    GET    /working-hours                      Current schedule version
    PUT    /working-hours                      New schedule version (owner)
    GET    /working-hours/history              Every version (owner)
    POST   /leave-grants                       Annual paid leave grant (owner)

  Employees (owner):
    GET    /employees                          List
    POST   /employees                          Hire or rehire
    DELETE /employees/{employee}               Fire
    POST   /employees/{employee}/fines         Fine
    POST   /employees/{employee}/bonuses       Bonus
    POST   /employees/{employee}/leave-adjustments

  Attendance (the employee):
    POST   /employees/{employee}/attendance/check-in
    POST   /employees/{employee}/attendance/check-out
    POST   /employees/{employee}/attendance/mark      check-in or check-out
    GET    /employees/{employee}/attendance?from=&to=
    GET    /employees/{employee}/attendance/{date}

  Leave:
    POST   /employees/{employee}/leaves                       Request (the employee)
    GET    /employees/{employee}/leaves
    GET    /employees/{employee}/leaves/{request}
    POST   /employees/{employee}/leaves/{request}/process     Decide (owner)
    GET    /employees/{employee}/leaves.ics
    GET    /employees/{employee}/leave-balance?as_of=   Balance at a past day

  Payroll:
    GET    /employees/{employee}/salary?as_of=   Breakdown of the amount owed
    GET    /employees/{employee}/transactions?from=&to=
    POST   /employees/{employee}/settle?as_of=   Pay one employee (owner)
    POST   /payroll/run                           Pay everyone (owner)
    GET    /payroll/runs                          Payout attempts (owner)

  Reports (owner):
    GET    /reports/attendance.xlsx?from=&to=
    GET    /leaves.ics

WRITES:
  Every write accepts an Idempotency-Key header. A retried write whose key
  was already accepted answers 200 {"replayed": true} and changes nothing.

ERROR HANDLING:
  Errors are returned as JSON {error, code, details}:
  - 400: Validation errors, invalid input
  - 401/403: Missing identity, wrong role
  - 404: Unknown employer, employee, or leave request
  - 409: Conflict with current state
  - 422: Insufficient paid leave balance
  - 502: Settlement collaborator failed, with Retry-After
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/payroll-ledger/generic"
	"github.com/warp/payroll-ledger/payroll"
	"github.com/warp/payroll-ledger/report"
)

// IdempotencyHeader carries the caller's retry key on writes.
const IdempotencyHeader = "Idempotency-Key"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Directory *payroll.Directory
	Runs      generic.RunLog // optional payout audit
	Logger    *zap.Logger
}

// NewHandler creates a new handler over the directory.
func NewHandler(dir *payroll.Directory, runs generic.RunLog, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Directory: dir, Runs: runs, Logger: logger}
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"employers": len(h.Directory.Books()),
	})
}

// =============================================================================
// EMPLOYER HANDLERS
// =============================================================================

// RegisterEmployer creates the caller's employer account.
// POST /api/employers
func (h *Handler) RegisterEmployer(w http.ResponseWriter, r *http.Request) {
	var req RegisterEmployerRequest
	if !decode(w, r, &req) {
		return
	}
	schedule, err := fromScheduleDTO(req.Schedule)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid schedule", err)
		return
	}
	standard := decimal.Zero
	if req.StandardWorkingDays != "" {
		if standard, err = generic.ParseDecimal(req.StandardWorkingDays); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid standard_working_days", err)
			return
		}
	}

	employer, err := h.Directory.Register(r.Context(), meta(r), payroll.EmployerInput{
		ID:                  payroll.EmployerID(req.ID),
		Owner:               caller(r),
		Name:                req.Name,
		Currency:            req.Currency,
		PaidLeavesPerYear:   req.PaidLeavesPerYear,
		StandardWorkingDays: standard,
		Schedule:            schedule,
	})
	if err != nil {
		writeMutationError(w, r, err)
		return
	}
	book, err := h.Directory.Book(employer.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployerDTO(book))
}

// GetOwnEmployer returns the employer owned by the caller.
// GET /api/employers/mine
func (h *Handler) GetOwnEmployer(w http.ResponseWriter, r *http.Request) {
	book, err := h.Directory.ByOwner(caller(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployerDTO(book))
}

// GetEmployer returns the employer to its owner and its employees.
func (h *Handler) GetEmployer(w http.ResponseWriter, r *http.Request) {
	if !isMember(r) {
		writeError(w, http.StatusForbidden, "Forbidden", nil)
		return
	}
	writeJSON(w, http.StatusOK, toEmployerDTO(bookFrom(r)))
}

func (h *Handler) GetWorkingHours(w http.ResponseWriter, r *http.Request) {
	if !isMember(r) {
		writeError(w, http.StatusForbidden, "Forbidden", nil)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleVersionDTO(bookFrom(r).WorkingHours()))
}

// UpdateWorkingHours replaces the schedule from today on.
func (h *Handler) UpdateWorkingHours(w http.ResponseWriter, r *http.Request) {
	var req ScheduleDTO
	if !decode(w, r, &req) {
		return
	}
	schedule, err := fromScheduleDTO(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid schedule", err)
		return
	}
	v, err := bookFrom(r).UpdateWorkingHours(r.Context(), meta(r), schedule)
	if err != nil {
		writeMutationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleVersionDTO(v))
}

func (h *Handler) ScheduleHistory(w http.ResponseWriter, r *http.Request) {
	history := bookFrom(r).ScheduleHistory()
	dtos := make([]ScheduleVersionDTO, len(history))
	for i, v := range history {
		dtos[i] = toScheduleVersionDTO(v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": dtos})
}

// GrantAnnualLeave tops up paid leave for a year; the default is the
// employer's current year.
func (h *Handler) GrantAnnualLeave(w http.ResponseWriter, r *http.Request) {
	var req LeaveGrantRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	book := bookFrom(r)
	if req.Year == 0 {
		req.Year = book.Today().Year()
	}
	n, err := book.Registry().GrantAnnualLeave(r.Context(), meta(r), req.Year)
	if err != nil {
		writeMutationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"year": req.Year, "granted": n})
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns every employee, active or not, in hiring order.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees := bookFrom(r).Registry().List()
	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := bookFrom(r).Registry().Get(employeeParam(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(emp))
}

// HireEmployee adds an employee or rehires a fired one.
func (h *Handler) HireEmployee(w http.ResponseWriter, r *http.Request) {
	var req HireRequest
	if !decode(w, r, &req) {
		return
	}
	salary, err := generic.ParseDecimal(req.MonthlySalary)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid monthly_salary", err)
		return
	}
	in := payroll.HireInput{
		ID:            payroll.EmployeeID(req.ID),
		Name:          req.Name,
		MonthlySalary: salary,
	}
	if req.JoiningDate != nil {
		in.JoiningDate = *req.JoiningDate
	}
	emp, err := bookFrom(r).Registry().Hire(r.Context(), meta(r), in)
	if err != nil {
		writeMutationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(emp))
}

func (h *Handler) FireEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := bookFrom(r).Registry().Fire(r.Context(), meta(r), employeeParam(r))
	if err != nil {
		writeMutationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(emp))
}

func (h *Handler) ApplyFine(w http.ResponseWriter, r *http.Request) {
	h.money(w, r, bookFrom(r).Registry().ApplyFine)
}

func (h *Handler) ApplyBonus(w http.ResponseWriter, r *http.Request) {
	h.money(w, r, bookFrom(r).Registry().ApplyBonus)
}

type moneyOp func(ctx context.Context, meta payroll.Meta, id payroll.EmployeeID, amount decimal.Decimal, reason string) (payroll.Employee, error)

func (h *Handler) money(w http.ResponseWriter, r *http.Request, op moneyOp) {
	var req MoneyRequest
	if !decode(w, r, &req) {
		return
	}
	amount, err := generic.ParseDecimal(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	emp, err := op(r.Context(), meta(r), employeeParam(r), amount, req.Reason)
	if err != nil {
		writeMutationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(emp))
}

// AdjustPaidLeave applies a signed manual correction to the balance.
func (h *Handler) AdjustPaidLeave(w http.ResponseWriter, r *http.Request) {
	var req LeaveAdjustmentRequest
	if !decode(w, r, &req) {
		return
	}
	emp, err := bookFrom(r).Registry().AdjustPaidLeave(r.Context(), meta(r), employeeParam(r), req.Days, req.Reason)
	if err != nil {
		writeMutationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(emp))
}

// =============================================================================
// ATTENDANCE HANDLERS
// =============================================================================

// CheckIn records the caller's arrival at server time.
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	rec, err := bookFrom(r).CheckIn(r.Context(), meta(r), employeeParam(r), time.Time{})
	h.attendanceResult(w, r, rec, err)
}

func (h *Handler) CheckOut(w http.ResponseWriter, r *http.Request) {
	rec, err := bookFrom(r).CheckOut(r.Context(), meta(r), employeeParam(r), time.Time{})
	h.attendanceResult(w, r, rec, err)
}

// MarkAttendance checks in when today has no record and checks out
// otherwise.
func (h *Handler) MarkAttendance(w http.ResponseWriter, r *http.Request) {
	rec, err := bookFrom(r).Mark(r.Context(), meta(r), employeeParam(r), time.Time{})
	h.attendanceResult(w, r, rec, err)
}

func (h *Handler) attendanceResult(w http.ResponseWriter, r *http.Request, rec payroll.AttendanceRecord, err error) {
	if err != nil {
		writeMutationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAttendanceDTO(rec))
}

func (h *Handler) GetAttendance(w http.ResponseWriter, r *http.Request) {
	day, err := generic.ParseTimePoint(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return
	}
	rec, err := bookFrom(r).Attendance(employeeParam(r), day)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAttendanceDTO(rec))
}

// AttendanceRange returns one record per day; absent days are included.
// Defaults to the current month up to today.
func (h *Handler) AttendanceRange(w http.ResponseWriter, r *http.Request) {
	book := bookFrom(r)
	today := book.Today()
	from, to, ok := rangeParams(w, r, generic.NewTimePoint(today.Year(), today.Month(), 1), today)
	if !ok {
		return
	}
	seq, err := book.AttendanceRange(employeeParam(r), from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := []AttendanceDTO{}
	for rec := range seq {
		dtos = append(dtos, toAttendanceDTO(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"from": from, "to": to, "records": dtos})
}

// =============================================================================
// LEAVE HANDLERS
// =============================================================================

func (h *Handler) RequestLeave(w http.ResponseWriter, r *http.Request) {
	var req LeaveRequestDTO
	if !decode(w, r, &req) {
		return
	}
	leave, err := bookFrom(r).RequestLeave(r.Context(), meta(r), employeeParam(r), payroll.LeaveInput{
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Reason:    req.Reason,
		Paid:      req.Paid,
	})
	if err != nil {
		writeMutationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveDTO(leave))
}

func (h *Handler) ListLeaves(w http.ResponseWriter, r *http.Request) {
	reqs, err := bookFrom(r).LeaveRequests(employeeParam(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]LeaveDTO, len(reqs))
	for i, req := range reqs {
		dtos[i] = toLeaveDTO(req)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetLeave(w http.ResponseWriter, r *http.Request) {
	id, ok := requestParam(w, r)
	if !ok {
		return
	}
	req, err := bookFrom(r).LeaveRequest(employeeParam(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTO(req))
}

// ProcessLeave approves or rejects a pending request exactly once.
func (h *Handler) ProcessLeave(w http.ResponseWriter, r *http.Request) {
	id, ok := requestParam(w, r)
	if !ok {
		return
	}
	var req ProcessLeaveRequest
	if !decode(w, r, &req) {
		return
	}
	leave, err := bookFrom(r).ProcessLeave(r.Context(), meta(r), employeeParam(r), id, req.Approve, req.Remarks)
	if err != nil {
		writeMutationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTO(leave))
}

// LeaveCalendar serves approved leave as iCalendar, for one employee when
// the path names one and for everyone otherwise.
func (h *Handler) LeaveCalendar(w http.ResponseWriter, r *http.Request) {
	book := bookFrom(r)
	employee := employeeParam(r)
	if employee != "" {
		if _, err := book.Registry().Get(employee); err != nil {
			writeDomainError(w, err)
			return
		}
	}
	cal, err := report.LeaveCalendar(book, employee)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(cal))
}

// LeaveBalance reads the paid leave balance at the end of a day from the
// journal. Defaults to today.
func (h *Handler) LeaveBalance(w http.ResponseWriter, r *http.Request) {
	book := bookFrom(r)
	asOf, ok := dayParam(w, r, "as_of", book.Today())
	if !ok {
		return
	}
	n, err := book.Registry().PaidLeaveBalanceAt(r.Context(), employeeParam(r), asOf)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LeaveBalanceDTO{Employee: string(employeeParam(r)), AsOf: asOf, Available: n})
}

// =============================================================================
// PAYROLL HANDLERS
// =============================================================================

// GetSalary returns the amount owed as of a day and how it was reached.
func (h *Handler) GetSalary(w http.ResponseWriter, r *http.Request) {
	book := bookFrom(r)
	asOf, ok := dayParam(w, r, "as_of", book.Today())
	if !ok {
		return
	}
	bd, err := book.Payroll().Breakdown(employeeParam(r), asOf)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSalaryDTO(bd, asOf))
}

// SettleEmployee pays one employee, fired ones included.
func (h *Handler) SettleEmployee(w http.ResponseWriter, r *http.Request) {
	book := bookFrom(r)
	asOf, ok := dayParam(w, r, "as_of", book.Today())
	if !ok {
		return
	}
	res, err := book.Payroll().Settle(r.Context(), meta(r), employeeParam(r), asOf)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPayoutDTO(res))
}

// RunPayroll pays every active employee. Individual failures are in the
// results; the run itself fails only when it is rejected or interrupted.
func (h *Handler) RunPayroll(w http.ResponseWriter, r *http.Request) {
	var req PayrollRunRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	book := bookFrom(r)
	asOf := book.Today()
	if req.AsOf != nil {
		asOf = *req.AsOf
	}
	rep, err := book.Payroll().PayAll(r.Context(), meta(r), asOf)
	if err != nil {
		if r.Context().Err() != nil {
			writeError(w, http.StatusServiceUnavailable, "Payroll run interrupted", err)
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPayrollRunDTO(rep))
}

// ListPayrollRuns returns payout attempts, newest first.
// GET /payroll/runs?employee=&status=&limit=
func (h *Handler) ListPayrollRuns(w http.ResponseWriter, r *http.Request) {
	dtos := []RunDTO{}
	if h.Runs == nil {
		writeJSON(w, http.StatusOK, map[string]any{"runs": dtos})
		return
	}
	q := r.URL.Query()
	filter := generic.RunFilter{
		TenantID: bookFrom(r).Employer().ID,
		EntityID: generic.EntityID(q.Get("employee")),
		Status:   generic.RunStatus(q.Get("status")),
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		filter.Limit = n
	}
	runs, err := h.Runs.Runs(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get payroll runs", err)
		return
	}
	for _, run := range runs {
		dtos = append(dtos, toRunDTO(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": dtos})
}

// GetTransactions returns the employee's journal entries in order, all of
// them or those effective in [from, to] when either bound is given.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	book := bookFrom(r)
	employee := employeeParam(r)
	emp, err := book.Registry().Get(employee)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	journal := h.Directory.Journal()
	var txs []generic.Transaction
	q := r.URL.Query()
	if q.Has("from") || q.Has("to") {
		from, ok := dayParam(w, r, "from", emp.JoiningDate)
		if !ok {
			return
		}
		to, ok := dayParam(w, r, "to", book.Today())
		if !ok {
			return
		}
		txs, err = journal.TransactionsInRange(r.Context(), book.Employer().ID, employee, from, to)
	} else {
		txs, err = journal.Transactions(r.Context(), book.Employer().ID, employee)
	}
	if errors.Is(err, generic.ErrInvalidRange) {
		writeDomainError(w, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get transactions", err)
		return
	}
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// REPORTS
// =============================================================================

// AttendanceReport serves the attendance, salary and leave workbook.
// Defaults to the current month up to today.
func (h *Handler) AttendanceReport(w http.ResponseWriter, r *http.Request) {
	book := bookFrom(r)
	today := book.Today()
	from, to, ok := rangeParams(w, r, generic.NewTimePoint(today.Year(), today.Month(), 1), today)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := report.AttendanceWorkbook(&buf, book, from, to); err != nil {
		writeDomainError(w, err)
		return
	}
	name := fmt.Sprintf("attendance-%s-%s-%s.xlsx", book.Employer().ID, from, to)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

// =============================================================================
// HELPERS
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

// writeMutationError answers a retried write as replayed and maps every
// other error by category.
func writeMutationError(w http.ResponseWriter, r *http.Request, err error) {
	key := r.Header.Get(IdempotencyHeader)
	if key != "" && errors.Is(err, generic.ErrDuplicateIdempotencyKey) {
		writeJSON(w, http.StatusOK, ReplayedResponse{Replayed: true, IdempotencyKey: key})
		return
	}
	writeDomainError(w, err)
}

// retryAfter is the Retry-After hint, in seconds, for failures a later
// attempt may not hit.
const retryAfter = "30"

func writeDomainError(w http.ResponseWriter, err error) {
	if generic.IsRetryable(err) {
		w.Header().Set("Retry-After", retryAfter)
	}
	resp := ErrorResponse{Error: err.Error(), Code: errorCode(err)}
	writeJSON(w, statusFor(err), resp)
}

func statusFor(err error) int {
	switch {
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case generic.IsClientError(err):
		switch {
		case generic.IsValidation(err):
			return http.StatusBadRequest
		case errors.Is(err, generic.ErrInsufficientLeaveBalance):
			return http.StatusUnprocessableEntity
		default:
			return http.StatusConflict
		}
	case errors.Is(err, generic.ErrSettlementFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

var errorCodes = []struct {
	err  error
	code string
}{
	{generic.ErrInvalidRange, "invalid_range"},
	{generic.ErrInvalidAmount, "invalid_amount"},
	{generic.ErrInvalidSchedule, "invalid_schedule"},
	{generic.ErrInvalidTime, "invalid_time"},
	{generic.ErrInvalidInput, "invalid_input"},
	{generic.ErrAlreadyCheckedIn, "already_checked_in"},
	{generic.ErrAlreadyCheckedOut, "already_checked_out"},
	{generic.ErrNotCheckedIn, "not_checked_in"},
	{generic.ErrAlreadyProcessed, "already_processed"},
	{generic.ErrDuplicateIdentity, "duplicate_identity"},
	{generic.ErrNotAWorkDay, "not_a_work_day"},
	{generic.ErrEmployeeInactive, "employee_inactive"},
	{generic.ErrAlreadyInactive, "already_inactive"},
	{generic.ErrUnsettledBalance, "unsettled_balance"},
	{generic.ErrPayoutInProgress, "payout_in_progress"},
	{generic.ErrDuplicateIdempotencyKey, "duplicate_idempotency_key"},
	{generic.ErrEmployerNotFound, "employer_not_found"},
	{generic.ErrEmployeeNotFound, "employee_not_found"},
	{generic.ErrLeaveNotFound, "leave_not_found"},
	{generic.ErrInsufficientLeaveBalance, "insufficient_leave_balance"},
	{generic.ErrSettlementFailed, "settlement_failed"},
}

func errorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func meta(r *http.Request) payroll.Meta {
	return payroll.Meta{Actor: caller(r), IdempotencyKey: r.Header.Get(IdempotencyHeader)}
}

func employeeParam(r *http.Request) payroll.EmployeeID {
	return payroll.EmployeeID(chi.URLParam(r, "employee"))
}

func requestParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "request"))
	if err != nil || id < 0 {
		writeError(w, http.StatusBadRequest, "Invalid leave request id", err)
		return 0, false
	}
	return id, true
}

func dayParam(w http.ResponseWriter, r *http.Request, name string, def generic.TimePoint) (generic.TimePoint, bool) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, true
	}
	day, err := generic.ParseTimePoint(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s (use YYYY-MM-DD)", name), err)
		return generic.TimePoint{}, false
	}
	return day, true
}

// rangeParams reads from and to, spanning at most payroll.MaxRangeDays.
func rangeParams(w http.ResponseWriter, r *http.Request, defFrom, defTo generic.TimePoint) (generic.TimePoint, generic.TimePoint, bool) {
	from, ok := dayParam(w, r, "from", defFrom)
	if !ok {
		return from, from, false
	}
	to, ok := dayParam(w, r, "to", defTo)
	if !ok {
		return from, to, false
	}
	p := generic.Period{Start: from, End: to}
	if err := p.Validate(); err != nil {
		writeDomainError(w, fmt.Errorf("range %s: %w", p, err))
		return from, to, false
	}
	if p.Len() > payroll.MaxRangeDays {
		writeDomainError(w, fmt.Errorf("range %s spans %d days, at most %d: %w",
			p, p.Len(), payroll.MaxRangeDays, generic.ErrInvalidRange))
		return from, to, false
	}
	return from, to, true
}

// isMember admits the owner and anyone on the employer's registry.
func isMember(r *http.Request) bool {
	if isOwner(r) {
		return true
	}
	_, err := bookFrom(r).Registry().Get(payroll.EmployeeID(caller(r)))
	return err == nil
}

// fromScheduleDTO parses "HH:MM" times and weekday names.
func fromScheduleDTO(dto ScheduleDTO) (payroll.Schedule, error) {
	start, err := clockToSeconds(dto.StartTime)
	if err != nil {
		return payroll.Schedule{}, err
	}
	end, err := clockToSeconds(dto.EndTime)
	if err != nil {
		return payroll.Schedule{}, err
	}
	days := make([]time.Weekday, 0, len(dto.WorkDays))
	for _, name := range dto.WorkDays {
		d, err := parseWeekday(name)
		if err != nil {
			return payroll.Schedule{}, err
		}
		days = append(days, d)
	}
	return payroll.Schedule{
		StartTime:      start,
		EndTime:        end,
		BufferTime:     dto.BufferMinutes * 60,
		WorkDays:       days,
		TimezoneOffset: dto.TimezoneOffset,
	}, nil
}

func clockToSeconds(s string) (int64, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%w: time %q (use HH:MM)", generic.ErrInvalidSchedule, s)
	}
	return int64(t.Hour()*3600 + t.Minute()*60), nil
}

func secondsToClock(s int64) string {
	return fmt.Sprintf("%02d:%02d", s/3600, s%3600/60)
}

func parseWeekday(name string) (time.Weekday, error) {
	for i, n := range weekdayNames {
		if strings.EqualFold(n, name) || strings.EqualFold(n[:3], name) {
			return time.Weekday(i), nil
		}
	}
	return 0, fmt.Errorf("%w: weekday %q", generic.ErrInvalidSchedule, name)
}
