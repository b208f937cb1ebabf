/*
handlers_test.go - HTTP tests for the payroll API

Tests for:
- The owner and employee flows end to end through the router
- Role checks and authentication
- Error category to status code mapping
- Idempotent retries answering replayed
- Report downloads
*/
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-ledger/generic"
	"github.com/warp/payroll-ledger/generic/store"
	"github.com/warp/payroll-ledger/payroll"
	"github.com/warp/payroll-ledger/settlement"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// march returns an instant on a March 2025 day, UTC. The 3rd is a Monday.
func march(day, hour, minute int) time.Time {
	return time.Date(2025, time.March, day, hour, minute, 0, 0, time.UTC)
}

type testAPI struct {
	t      *testing.T
	router http.Handler
	auth   *Authenticator
	clock  *testClock
	bank   *settlement.Recorder
	dir    *payroll.Directory
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	a := &testAPI{
		t:     t,
		auth:  NewAuthenticator("test-secret", false),
		clock: &testClock{now: march(3, 8, 0)},
		bank:  settlement.NewRecorder(nil),
	}
	mem := store.NewMemory()
	a.dir = payroll.NewDirectory(generic.NewLedger(mem), payroll.Options{
		Clock:             a.clock.Now,
		Settlement:        a.bank,
		Runs:              mem,
		SettlementTimeout: time.Second,
	})
	a.router = NewRouter(NewHandler(a.dir, mem, nil), RouterConfig{Auth: a.auth})
	return a
}

func (a *testAPI) token(subject string) string {
	a.t.Helper()
	tok, err := a.auth.Issue(subject, time.Hour)
	require.NoError(a.t, err)
	return tok
}

// do sends a request as subject ("" = anonymous) and returns the recorder.
func (a *testAPI) do(method, path, subject string, body any, headers ...string) *httptest.ResponseRecorder {
	a.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if subject != "" {
		req.Header.Set("Authorization", "Bearer "+a.token(subject))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

var nineToFiveDTO = ScheduleDTO{
	StartTime:     "09:00",
	EndTime:       "17:00",
	BufferMinutes: 10,
	WorkDays:      []string{"monday", "tuesday", "wednesday", "thursday", "friday"},
}

const (
	acme     = "/api/employers/acme"
	adaPath  = acme + "/employees/ada"
	ownerSub = "owner-1"
)

// setup registers acme owned by owner-1 and hires ada joining March 3.
func (a *testAPI) setup() {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/employers", ownerSub, RegisterEmployerRequest{
		ID:                  "acme",
		Name:                "Acme",
		Currency:            "USD",
		PaidLeavesPerYear:   12,
		StandardWorkingDays: "20",
		Schedule:            nineToFiveDTO,
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())

	joining := generic.NewTimePoint(2025, time.March, 3)
	rec = a.do(http.MethodPost, acme+"/employees", ownerSub, HireRequest{
		ID: "ada", Name: "Ada Lovelace", MonthlySalary: "3000", JoiningDate: &joining,
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
}

// =============================================================================
// FLOWS
// =============================================================================

func TestAPI_OwnerAndEmployeeFlow(t *testing.T) {
	// GIVEN: An employer with one employee
	a := newTestAPI(t)
	a.setup()

	emp := decodeBody[EmployeeDTO](t, a.do(http.MethodGet, adaPath, "ada", nil))
	assert.Equal(t, 12, emp.AvailablePaidLeaves)
	assert.Equal(t, "2025-03-02", emp.LastPayoutCheckpoint.String())

	// WHEN: Ada checks in inside the buffer and leaves inside it
	a.clock.Set(march(3, 9, 5))
	rec := a.do(http.MethodPost, adaPath+"/attendance/check-in", "ada", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decodeBody[AttendanceDTO](t, rec).IsOpen)

	a.clock.Set(march(3, 16, 45))
	rec = a.do(http.MethodPost, adaPath+"/attendance/mark", "ada", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: The day is a full day
	day := decodeBody[AttendanceDTO](t, rec)
	assert.Equal(t, "full_day", day.Status)
	assert.False(t, day.IsLate)
	assert.False(t, day.IsEarlyCheckout)

	// AND: The range view synthesizes the absent days
	rng := decodeBody[struct {
		Records []AttendanceDTO `json:"records"`
	}](t, a.do(http.MethodGet, adaPath+"/attendance?from=2025-03-03&to=2025-03-05", ownerSub, nil))
	require.Len(t, rng.Records, 3)
	assert.Equal(t, []string{"full_day", "absent", "absent"},
		[]string{rng.Records[0].Status, rng.Records[1].Status, rng.Records[2].Status})

	// AND: One full day is owed at 3000 / 20
	salary := decodeBody[SalaryDTO](t, a.do(http.MethodGet, adaPath+"/salary?as_of=2025-03-03", "ada", nil))
	assert.Equal(t, "150", salary.DailyRate)
	assert.Equal(t, "150", salary.Total)
	assert.Equal(t, 1, salary.FullDays)

	// WHEN: The owner runs payroll
	rec = a.do(http.MethodPost, acme+"/payroll/run", ownerSub, PayrollRunRequest{AsOf: &salary.AsOf})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: Ada is paid and the checkpoint moves
	run := decodeBody[PayrollRunDTO](t, rec)
	assert.Equal(t, 1, run.Settled)
	require.Len(t, run.Results, 1)
	assert.Equal(t, "150", run.Results[0].Amount)
	assert.Equal(t, "2025-03-03", run.Results[0].Checkpoint.String())
	require.Len(t, a.bank.Transfers(), 1)

	runs := decodeBody[struct {
		Runs []RunDTO `json:"runs"`
	}](t, a.do(http.MethodGet, acme+"/payroll/runs", ownerSub, nil))
	require.Len(t, runs.Runs, 1)
	assert.Equal(t, "settled", runs.Runs[0].Status)

	// AND: The journal shows every write with its actor
	txs := decodeBody[[]TransactionDTO](t, a.do(http.MethodGet, adaPath+"/transactions", "ada", nil))
	var types []string
	for _, tx := range txs {
		types = append(types, tx.Type)
	}
	assert.Equal(t, []string{"employee_hired", "check_in", "check_out", "payout_pending", "payout_settled"}, types)
	assert.Equal(t, "ada", txs[1].CreatedBy)
}

func TestAPI_LeaveFlow(t *testing.T) {
	a := newTestAPI(t)
	a.setup()

	// GIVEN: A three day paid request
	rec := a.do(http.MethodPost, adaPath+"/leaves", "ada", LeaveRequestDTO{
		StartDate: generic.NewTimePoint(2025, time.March, 10),
		EndDate:   generic.NewTimePoint(2025, time.March, 12),
		Reason:    "conference",
		Paid:      true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	leave := decodeBody[LeaveDTO](t, rec)
	assert.Equal(t, "pending", leave.State)
	assert.Equal(t, 3, leave.Days)

	// WHEN: The owner approves it
	rec = a.do(http.MethodPost, adaPath+"/leaves/0/process", ownerSub, ProcessLeaveRequest{Approve: true, Remarks: "ok"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "approved", decodeBody[LeaveDTO](t, rec).State)

	// THEN: The balance drops by three
	emp := decodeBody[EmployeeDTO](t, a.do(http.MethodGet, adaPath, ownerSub, nil))
	assert.Equal(t, 9, emp.AvailablePaidLeaves)

	// AND: A second decision is a conflict and changes nothing
	rec = a.do(http.MethodPost, adaPath+"/leaves/0/process", ownerSub, ProcessLeaveRequest{Approve: false})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_processed", decodeBody[ErrorResponse](t, rec).Code)
	emp = decodeBody[EmployeeDTO](t, a.do(http.MethodGet, adaPath, ownerSub, nil))
	assert.Equal(t, 9, emp.AvailablePaidLeaves)

	// AND: The calendar feed carries the approved days
	rec = a.do(http.MethodGet, adaPath+"/leaves.ics", "ada", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/calendar")
	assert.Contains(t, rec.Body.String(), "DTSTART;VALUE=DATE:20250310")
}

// =============================================================================
// AUTHORIZATION
// =============================================================================

func TestAPI_Authorization(t *testing.T) {
	a := newTestAPI(t)
	a.setup()

	tests := []struct {
		name    string
		method  string
		path    string
		subject string
		body    any
		want    int
	}{
		{"anonymous", http.MethodGet, adaPath, "", nil, http.StatusUnauthorized},
		{"employee cannot hire", http.MethodPost, acme + "/employees", "ada", HireRequest{ID: "x", Name: "X", MonthlySalary: "1"}, http.StatusForbidden},
		{"employee cannot fine", http.MethodPost, adaPath + "/fines", "ada", MoneyRequest{Amount: "5"}, http.StatusForbidden},
		{"owner cannot check in for ada", http.MethodPost, adaPath + "/attendance/check-in", ownerSub, nil, http.StatusForbidden},
		{"stranger cannot read ada", http.MethodGet, adaPath + "/salary", "mallory", nil, http.StatusForbidden},
		{"stranger cannot read employer", http.MethodGet, acme, "mallory", nil, http.StatusForbidden},
		{"employee reads employer", http.MethodGet, acme, "ada", nil, http.StatusOK},
		{"unknown employer", http.MethodGet, "/api/employers/nope/working-hours", ownerSub, nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(tt.method, tt.path, tt.subject, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	t.Run("forged token", func(t *testing.T) {
		forged, err := NewAuthenticator("other-secret", false).Issue(ownerSub, time.Hour)
		require.NoError(t, err)
		rec := a.do(http.MethodGet, acme+"/employees", "", nil, "Authorization", "Bearer "+forged)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		expired, err := a.auth.Issue(ownerSub, -time.Minute)
		require.NoError(t, err)
		rec := a.do(http.MethodGet, acme+"/employees", "", nil, "Authorization", "Bearer "+expired)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestAPI_DisabledAuthUsesCallerHeader(t *testing.T) {
	a := newTestAPI(t)
	a.setup()
	mem := store.NewMemory()
	router := NewRouter(NewHandler(a.dir, mem, nil), RouterConfig{Auth: NewAuthenticator("", true)})

	req := httptest.NewRequest(http.MethodGet, acme+"/employees", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, acme+"/employees", nil)
	req.Header.Set(CallerHeader, ownerSub)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]EmployeeDTO](t, rec), 1)
}

// =============================================================================
// ERRORS AND RETRIES
// =============================================================================

func TestAPI_ErrorMapping(t *testing.T) {
	a := newTestAPI(t)
	a.setup()
	a.clock.Set(march(3, 9, 0))

	// GIVEN: Ada has checked in
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, adaPath+"/attendance/check-in", "ada", nil).Code)

	// WHEN/THEN: Each failure lands on its category's status
	rec := a.do(http.MethodPost, adaPath+"/attendance/check-in", "ada", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_checked_in", decodeBody[ErrorResponse](t, rec).Code)

	rec = a.do(http.MethodGet, acme+"/employees/ghost", ownerSub, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "employee_not_found", decodeBody[ErrorResponse](t, rec).Code)

	bad := nineToFiveDTO
	bad.EndTime = "08:00"
	rec = a.do(http.MethodPut, acme+"/working-hours", ownerSub, bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_schedule", decodeBody[ErrorResponse](t, rec).Code)

	rec = a.do(http.MethodGet, adaPath+"/attendance?from=2025-03-05&to=2025-03-01", "ada", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_range", decodeBody[ErrorResponse](t, rec).Code)

	rec = a.do(http.MethodPost, adaPath+"/bonuses", ownerSub, MoneyRequest{Amount: "-5"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Twenty two paid days against a balance of twelve
	rec = a.do(http.MethodPost, adaPath+"/leaves", "ada", LeaveRequestDTO{
		StartDate: generic.NewTimePoint(2025, time.March, 10),
		EndDate:   generic.NewTimePoint(2025, time.March, 31),
		Paid:      true,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = a.do(http.MethodPost, adaPath+"/leaves/0/process", ownerSub, ProcessLeaveRequest{Approve: true})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "insufficient_leave_balance", decodeBody[ErrorResponse](t, rec).Code)

	rec = a.do(http.MethodGet, adaPath+"/leaves/7", "ada", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// A settlement failure is a bad gateway and moves nothing
	a.clock.Set(march(3, 17, 0))
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, adaPath+"/attendance/check-out", "ada", nil).Code)
	a.bank.FailFor("ada", errors.New("bank unavailable"))
	rec = a.do(http.MethodPost, adaPath+"/settle?as_of=2025-03-03", ownerSub, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, retryAfter, rec.Header().Get("Retry-After"))
	assert.Equal(t, "settlement_failed", decodeBody[ErrorResponse](t, rec).Code)
	emp := decodeBody[EmployeeDTO](t, a.do(http.MethodGet, adaPath, ownerSub, nil))
	assert.Equal(t, "2025-03-02", emp.LastPayoutCheckpoint.String())

	a.bank.Clear("ada")
	rec = a.do(http.MethodPost, adaPath+"/settle?as_of=2025-03-03", ownerSub, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "settled", decodeBody[PayoutDTO](t, rec).Status)
}

func TestAPI_RetryWithIdempotencyKeyIsReplayed(t *testing.T) {
	a := newTestAPI(t)
	a.setup()
	a.clock.Set(march(3, 9, 0))

	// GIVEN: A check-in sent with a retry key
	rec := a.do(http.MethodPost, adaPath+"/attendance/check-in", "ada", nil, IdempotencyHeader, "tap-1")
	require.Equal(t, http.StatusOK, rec.Code)

	// WHEN: The client retries after a lost response
	a.clock.Set(march(3, 9, 30))
	rec = a.do(http.MethodPost, adaPath+"/attendance/check-in", "ada", nil, IdempotencyHeader, "tap-1")

	// THEN: The retry is acknowledged as replayed
	require.Equal(t, http.StatusOK, rec.Code)
	replay := decodeBody[ReplayedResponse](t, rec)
	assert.True(t, replay.Replayed)
	assert.Equal(t, "tap-1", replay.IdempotencyKey)

	// AND: The original instant stands
	day := decodeBody[AttendanceDTO](t, a.do(http.MethodGet, adaPath+"/attendance/2025-03-03", "ada", nil))
	assert.Equal(t, march(3, 9, 0).Format(time.RFC3339), day.LogInTime)
	assert.False(t, day.IsLate)
}

func TestAPI_RangeAndHorizonLimits(t *testing.T) {
	a := newTestAPI(t)
	a.setup()

	tests := []struct {
		name string
		do   func() *httptest.ResponseRecorder
	}{
		{"attendance over a year", func() *httptest.ResponseRecorder {
			return a.do(http.MethodGet, adaPath+"/attendance?from=0001-01-01&to=9999-12-31", "ada", nil)
		}},
		{"workbook over a year", func() *httptest.ResponseRecorder {
			return a.do(http.MethodGet, acme+"/reports/attendance.xlsx?from=2025-01-01&to=2026-03-01", ownerSub, nil)
		}},
		{"salary far ahead", func() *httptest.ResponseRecorder {
			return a.do(http.MethodGet, adaPath+"/salary?as_of=9999-12-31", "ada", nil)
		}},
		{"settle far ahead", func() *httptest.ResponseRecorder {
			return a.do(http.MethodPost, adaPath+"/settle?as_of=2030-01-01", ownerSub, nil)
		}},
		{"payroll run far ahead", func() *httptest.ResponseRecorder {
			far := generic.NewTimePoint(2030, time.January, 1)
			return a.do(http.MethodPost, acme+"/payroll/run", ownerSub, PayrollRunRequest{AsOf: &far})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.do()
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, "invalid_range", decodeBody[ErrorResponse](t, rec).Code)
		})
	}
	assert.Empty(t, a.bank.Transfers())

	rec := a.do(http.MethodGet, adaPath+"/attendance?from=2025-01-01&to=2025-12-31", "ada", nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestAPI_LeaveBalanceAndTransactionRange(t *testing.T) {
	a := newTestAPI(t)
	a.setup()

	// GIVEN: Three paid days approved on March 4
	rec := a.do(http.MethodPost, adaPath+"/leaves", "ada", LeaveRequestDTO{
		StartDate: generic.NewTimePoint(2025, time.March, 10),
		EndDate:   generic.NewTimePoint(2025, time.March, 12),
		Paid:      true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	a.clock.Set(march(4, 10, 0))
	rec = a.do(http.MethodPost, adaPath+"/leaves/0/process", ownerSub, ProcessLeaveRequest{Approve: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// WHEN/THEN: The balance is read as of each day
	bal := decodeBody[LeaveBalanceDTO](t, a.do(http.MethodGet, adaPath+"/leave-balance?as_of=2025-03-03", "ada", nil))
	assert.Equal(t, 12, bal.Available)
	bal = decodeBody[LeaveBalanceDTO](t, a.do(http.MethodGet, adaPath+"/leave-balance", ownerSub, nil))
	assert.Equal(t, 9, bal.Available)
	assert.Equal(t, "2025-03-04", bal.AsOf.String())

	rec = a.do(http.MethodGet, adaPath+"/leave-balance", "mallory", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// AND: Transactions narrow to the entries effective in the range
	txs := decodeBody[[]TransactionDTO](t, a.do(http.MethodGet, adaPath+"/transactions?from=2025-03-04&to=2025-03-04", "ada", nil))
	var types []string
	for _, tx := range txs {
		types = append(types, tx.Type)
	}
	assert.Equal(t, []string{"leave_processed", "leave_debited"}, types)

	all := decodeBody[[]TransactionDTO](t, a.do(http.MethodGet, adaPath+"/transactions", "ada", nil))
	assert.Len(t, all, 4)

	rec = a.do(http.MethodGet, adaPath+"/transactions?from=2025-03-05&to=2025-03-01", "ada", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// EMPLOYER ADMINISTRATION AND REPORTS
// =============================================================================

func TestAPI_WorkingHoursAndGrants(t *testing.T) {
	a := newTestAPI(t)
	a.setup()

	next := nineToFiveDTO
	next.StartTime = "08:30"
	next.WorkDays = []string{"mon", "tue", "wed", "thu"}
	rec := a.do(http.MethodPut, acme+"/working-hours", ownerSub, next)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v := decodeBody[ScheduleVersionDTO](t, rec)
	assert.Equal(t, 2, v.Version)
	assert.Equal(t, "08:30", v.Schedule.StartTime)
	assert.Equal(t, []string{"monday", "tuesday", "wednesday", "thursday"}, v.Schedule.WorkDays)

	hist := decodeBody[struct {
		Versions []ScheduleVersionDTO `json:"versions"`
	}](t, a.do(http.MethodGet, acme+"/working-hours/history", ownerSub, nil))
	assert.Len(t, hist.Versions, 2)

	// Ada joined in 2025, so the 2026 grant is hers and 2025 is not.
	grant := decodeBody[map[string]int](t, a.do(http.MethodPost, acme+"/leave-grants", ownerSub, LeaveGrantRequest{Year: 2026}))
	assert.Equal(t, 1, grant["granted"])
	grant = decodeBody[map[string]int](t, a.do(http.MethodPost, acme+"/leave-grants", ownerSub, LeaveGrantRequest{Year: 2026}))
	assert.Equal(t, 0, grant["granted"])
}

func TestAPI_AttendanceWorkbook(t *testing.T) {
	a := newTestAPI(t)
	a.setup()

	rec := a.do(http.MethodGet, acme+"/reports/attendance.xlsx?from=2025-03-03&to=2025-03-07", ownerSub, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "PK"), "xlsx is a zip archive")

	rec = a.do(http.MethodGet, acme+"/reports/attendance.xlsx?from=2025-03-07&to=2025-03-03", ownerSub, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_RegisterEmployer(t *testing.T) {
	a := newTestAPI(t)
	a.setup()

	// One employer per owner
	rec := a.do(http.MethodPost, "/api/employers", ownerSub, RegisterEmployerRequest{
		Name: "Second", Currency: "USD", Schedule: nineToFiveDTO,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	mine := decodeBody[EmployerDTO](t, a.do(http.MethodGet, "/api/employers/mine", ownerSub, nil))
	assert.Equal(t, "acme", mine.ID)
	assert.Equal(t, "20", mine.StandardWorkingDays)
	assert.Equal(t, "2025-03-03", mine.Today.String())

	rec = a.do(http.MethodPost, "/api/employers", "owner-2", RegisterEmployerRequest{
		Name: "Globex", Currency: "EUR", Schedule: ScheduleDTO{StartTime: "9am", EndTime: "17:00", WorkDays: []string{"monday"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodGet, "/api/employers/mine", "owner-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
