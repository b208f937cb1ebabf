/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the payroll domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

FORMATS:
  Dates:   "YYYY-MM-DD" (generic.TimePoint text form)
  Instants: RFC 3339
  Money:   decimal strings, never floats, plus the employer currency

VALIDATION:
  Validation is done by the payroll package. DTOs are pure data carriers;
  handlers only parse formats.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/payroll-ledger/generic"
	"github.com/warp/payroll-ledger/payroll"
)

// =============================================================================
// EMPLOYER
// =============================================================================

// ScheduleDTO is a working-hours definition. Times are local "HH:MM" and
// work days are lower-case weekday names.
type ScheduleDTO struct {
	StartTime      string   `json:"start_time"`
	EndTime        string   `json:"end_time"`
	BufferMinutes  int64    `json:"buffer_minutes"`
	WorkDays       []string `json:"work_days"`
	TimezoneOffset int64    `json:"timezone_offset_seconds"`
}

type ScheduleVersionDTO struct {
	Version       int               `json:"version"`
	EffectiveFrom generic.TimePoint `json:"effective_from"`
	Schedule      ScheduleDTO       `json:"schedule"`
}

// RegisterEmployerRequest creates the caller's employer account.
type RegisterEmployerRequest struct {
	ID                  string      `json:"id,omitempty"`
	Name                string      `json:"name"`
	Currency            string      `json:"currency"`
	PaidLeavesPerYear   int         `json:"paid_leaves_per_year"`
	StandardWorkingDays string      `json:"standard_working_days,omitempty"`
	Schedule            ScheduleDTO `json:"schedule"`
}

type EmployerDTO struct {
	ID                  string             `json:"id"`
	Owner               string             `json:"owner"`
	Name                string             `json:"name"`
	Currency            string             `json:"currency"`
	PaidLeavesPerYear   int                `json:"paid_leaves_per_year"`
	StandardWorkingDays string             `json:"standard_working_days,omitempty"`
	RegisteredAt        string             `json:"registered_at"`
	WorkingHours        ScheduleVersionDTO `json:"working_hours"`
	Today               generic.TimePoint  `json:"today"`
}

// =============================================================================
// EMPLOYEE
// =============================================================================

// HireRequest adds or rehires an employee.
type HireRequest struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	MonthlySalary string             `json:"monthly_salary"`
	JoiningDate   *generic.TimePoint `json:"joining_date,omitempty"`
}

type EmployeeDTO struct {
	ID                   string             `json:"id"`
	Name                 string             `json:"name"`
	MonthlySalary        string             `json:"monthly_salary"`
	Currency             string             `json:"currency"`
	JoiningDate          generic.TimePoint  `json:"joining_date"`
	LastPayoutCheckpoint generic.TimePoint  `json:"last_payout_checkpoint"`
	AvailablePaidLeaves  int                `json:"available_paid_leaves"`
	IsActive             bool               `json:"is_active"`
	TotalFines           string             `json:"total_fines"`
	TotalBonuses         string             `json:"total_bonuses"`
	TerminationDate      *generic.TimePoint `json:"termination_date,omitempty"`
}

// MoneyRequest is a fine or a bonus.
type MoneyRequest struct {
	Amount string `json:"amount"`
	Reason string `json:"reason,omitempty"`
}

type LeaveAdjustmentRequest struct {
	Days   int    `json:"days"`
	Reason string `json:"reason"`
}

type LeaveGrantRequest struct {
	Year int `json:"year"`
}

// =============================================================================
// ATTENDANCE
// =============================================================================

type AttendanceDTO struct {
	Date            generic.TimePoint `json:"date"`
	LogInTime       string            `json:"log_in_time,omitempty"`
	LogOutTime      string            `json:"log_out_time,omitempty"`
	Status          string            `json:"status"`
	IsLate          bool              `json:"is_late"`
	IsEarlyCheckout bool              `json:"is_early_checkout"`
	IsOpen          bool              `json:"is_open"`
	ScheduleVersion int               `json:"schedule_version,omitempty"`
}

// =============================================================================
// LEAVE
// =============================================================================

type LeaveRequestDTO struct {
	StartDate generic.TimePoint `json:"start_date"`
	EndDate   generic.TimePoint `json:"end_date"`
	Reason    string            `json:"reason"`
	Paid      bool              `json:"paid"`
}

type ProcessLeaveRequest struct {
	Approve bool   `json:"approve"`
	Remarks string `json:"remarks"`
}

type LeaveDTO struct {
	ID          int               `json:"id"`
	StartDate   generic.TimePoint `json:"start_date"`
	EndDate     generic.TimePoint `json:"end_date"`
	Days        int               `json:"days"`
	Reason      string            `json:"reason"`
	IsPaidLeave bool              `json:"is_paid_leave"`
	State       string            `json:"state"`
	Remarks     string            `json:"remarks,omitempty"`
	RequestedAt string            `json:"requested_at"`
	ProcessedAt string            `json:"processed_at,omitempty"`
	ProcessedBy string            `json:"processed_by,omitempty"`
}

// LeaveBalanceDTO is the paid leave balance as it stood at the end of a day.
type LeaveBalanceDTO struct {
	Employee  string            `json:"employee"`
	AsOf      generic.TimePoint `json:"as_of"`
	Available int               `json:"available"`
}

// =============================================================================
// PAYROLL
// =============================================================================

type SalaryDTO struct {
	Employee      string             `json:"employee"`
	AsOf          generic.TimePoint  `json:"as_of"`
	WindowStart   *generic.TimePoint `json:"window_start,omitempty"`
	WindowEnd     *generic.TimePoint `json:"window_end,omitempty"`
	DailyRate     string             `json:"daily_rate"`
	FullDays      int                `json:"full_days"`
	HalfDays      int                `json:"half_days"`
	PaidLeaveDays int                `json:"paid_leave_days"`
	AbsentDays    int                `json:"absent_days"`
	OpenDays      int                `json:"open_days"`
	Base          string             `json:"base"`
	Bonuses       string             `json:"bonuses"`
	Fines         string             `json:"fines"`
	Total         string             `json:"total"`
	Currency      string             `json:"currency"`
}

// PayrollRunRequest settles everyone up to AsOf; nil means today.
type PayrollRunRequest struct {
	AsOf *generic.TimePoint `json:"as_of,omitempty"`
}

type PayoutDTO struct {
	Employee   string            `json:"employee"`
	Status     string            `json:"status"`
	Amount     string            `json:"amount"`
	Checkpoint generic.TimePoint `json:"checkpoint"`
	Error      string            `json:"error,omitempty"`
}

type PayrollRunDTO struct {
	BatchID string            `json:"batch_id"`
	AsOf    generic.TimePoint `json:"as_of"`
	Settled int               `json:"settled"`
	Failed  int               `json:"failed"`
	Skipped int               `json:"skipped"`
	Results []PayoutDTO       `json:"results"`
}

type RunDTO struct {
	ID          string `json:"id"`
	BatchID     string `json:"batch_id"`
	Employee    string `json:"employee"`
	WindowStart string `json:"window_start,omitempty"`
	WindowEnd   string `json:"window_end,omitempty"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at"`
}

// =============================================================================
// JOURNAL
// =============================================================================

type TransactionDTO struct {
	ID          string            `json:"id"`
	Sequence    int64             `json:"sequence"`
	Type        string            `json:"type"`
	EffectiveAt generic.TimePoint `json:"effective_at"`
	OccurredAt  string            `json:"occurred_at"`
	Delta       string            `json:"delta"`
	Unit        string            `json:"unit"`
	ReferenceID string            `json:"reference_id,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedBy   string            `json:"created_by"`
}

// =============================================================================
// ERRORS
// =============================================================================

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// ReplayedResponse answers a retried write whose idempotency key was
// already accepted.
type ReplayedResponse struct {
	Replayed       bool   `json:"replayed"`
	IdempotencyKey string `json:"idempotency_key"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

var weekdayNames = []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

func toScheduleDTO(s payroll.Schedule) ScheduleDTO {
	days := make([]string, len(s.WorkDays))
	for i, d := range s.WorkDays {
		days[i] = weekdayNames[d]
	}
	return ScheduleDTO{
		StartTime:      secondsToClock(s.StartTime),
		EndTime:        secondsToClock(s.EndTime),
		BufferMinutes:  s.BufferTime / 60,
		WorkDays:       days,
		TimezoneOffset: s.TimezoneOffset,
	}
}

func toScheduleVersionDTO(v payroll.ScheduleVersion) ScheduleVersionDTO {
	return ScheduleVersionDTO{
		Version:       v.Version,
		EffectiveFrom: v.EffectiveFrom,
		Schedule:      toScheduleDTO(v.Schedule),
	}
}

func toEmployerDTO(b *payroll.Book) EmployerDTO {
	e := b.Employer()
	dto := EmployerDTO{
		ID:                string(e.ID),
		Owner:             e.Owner,
		Name:              e.Name,
		Currency:          e.Currency,
		PaidLeavesPerYear: e.PaidLeavesPerYear,
		RegisteredAt:      e.RegisteredAt.Format(time.RFC3339),
		WorkingHours:      toScheduleVersionDTO(b.WorkingHours()),
		Today:             b.Today(),
	}
	if !e.StandardWorkingDays.IsZero() {
		dto.StandardWorkingDays = e.StandardWorkingDays.String()
	}
	return dto
}

func toEmployeeDTO(e payroll.Employee) EmployeeDTO {
	dto := EmployeeDTO{
		ID:                   string(e.ID),
		Name:                 e.Name,
		MonthlySalary:        e.MonthlySalaryRate.Value.String(),
		Currency:             string(e.MonthlySalaryRate.Unit),
		JoiningDate:          e.JoiningDate,
		LastPayoutCheckpoint: e.LastPayoutCheckpoint,
		AvailablePaidLeaves:  e.AvailablePaidLeaves,
		IsActive:             e.IsActive,
		TotalFines:           e.TotalFines.Value.String(),
		TotalBonuses:         e.TotalBonuses.Value.String(),
	}
	if !e.TerminationDate.IsZero() {
		td := e.TerminationDate
		dto.TerminationDate = &td
	}
	return dto
}

func toAttendanceDTO(r payroll.AttendanceRecord) AttendanceDTO {
	return AttendanceDTO{
		Date:            r.Date,
		LogInTime:       epochToRFC3339(r.LogInTime),
		LogOutTime:      epochToRFC3339(r.LogOutTime),
		Status:          r.Status.String(),
		IsLate:          r.IsLate,
		IsEarlyCheckout: r.IsEarlyCheckout,
		IsOpen:          r.IsOpen(),
		ScheduleVersion: r.ScheduleVersion,
	}
}

func toLeaveDTO(r payroll.LeaveRequest) LeaveDTO {
	dto := LeaveDTO{
		ID:          r.ID,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
		Days:        r.Days(),
		Reason:      r.Reason,
		IsPaidLeave: r.IsPaidLeave,
		State:       "pending",
		Remarks:     r.Remarks,
		RequestedAt: r.RequestedAt.Format(time.RFC3339),
		ProcessedBy: r.ProcessedBy,
	}
	if r.IsProcessed {
		dto.State = "rejected"
		if r.IsApproved {
			dto.State = "approved"
		}
		dto.ProcessedAt = r.ProcessedAt.Format(time.RFC3339)
	}
	return dto
}

func toSalaryDTO(bd payroll.SalaryBreakdown, asOf generic.TimePoint) SalaryDTO {
	dto := SalaryDTO{
		Employee:      string(bd.Employee),
		AsOf:          asOf,
		DailyRate:     bd.DailyRate.Value.String(),
		FullDays:      bd.FullDays,
		HalfDays:      bd.HalfDays,
		PaidLeaveDays: bd.PaidLeaveDays,
		AbsentDays:    bd.AbsentDays,
		OpenDays:      bd.OpenDays,
		Base:          bd.Base.Value.String(),
		Bonuses:       bd.Bonuses.Value.String(),
		Fines:         bd.Fines.Value.String(),
		Total:         bd.Total.Value.String(),
		Currency:      string(bd.Total.Unit),
	}
	if !bd.Window.Start.IsZero() {
		start, end := bd.Window.Start, bd.Window.End
		dto.WindowStart, dto.WindowEnd = &start, &end
	}
	return dto
}

func toPayoutDTO(res payroll.PayoutResult) PayoutDTO {
	dto := PayoutDTO{
		Employee:   string(res.Employee),
		Status:     string(res.Status),
		Amount:     res.Amount.Value.String(),
		Checkpoint: res.Checkpoint,
	}
	if res.Err != nil {
		dto.Error = res.Err.Error()
	}
	return dto
}

func toPayrollRunDTO(rep payroll.PayoutReport) PayrollRunDTO {
	results := make([]PayoutDTO, len(rep.Results))
	for i, res := range rep.Results {
		results[i] = toPayoutDTO(res)
	}
	return PayrollRunDTO{
		BatchID: rep.BatchID,
		AsOf:    rep.AsOf,
		Settled: rep.Settled(),
		Failed:  rep.Failed(),
		Skipped: rep.Skipped(),
		Results: results,
	}
}

func toRunDTO(r generic.RunRecord) RunDTO {
	dto := RunDTO{
		ID:          r.ID,
		BatchID:     r.BatchID,
		Employee:    string(r.EntityID),
		Amount:      r.Amount.Value.String(),
		Currency:    string(r.Amount.Unit),
		Status:      string(r.Status),
		Error:       r.Error,
		StartedAt:   r.StartedAt.Format(time.RFC3339),
		CompletedAt: r.CompletedAt.Format(time.RFC3339),
	}
	if !r.Window.Start.IsZero() {
		dto.WindowStart = r.Window.Start.String()
		dto.WindowEnd = r.Window.End.String()
	}
	return dto
}

func toTransactionDTO(tx generic.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:          string(tx.ID),
		Sequence:    tx.Sequence,
		Type:        string(tx.Type),
		EffectiveAt: tx.EffectiveAt,
		OccurredAt:  tx.OccurredAt.Format(time.RFC3339),
		Delta:       tx.Delta.Value.String(),
		Unit:        string(tx.Delta.Unit),
		ReferenceID: tx.ReferenceID,
		Reason:      tx.Reason,
		Metadata:    tx.Metadata,
		CreatedBy:   tx.CreatedBy,
	}
}

func epochToRFC3339(epoch int64) string {
	if epoch == 0 {
		return ""
	}
	return time.Unix(epoch, 0).UTC().Format(time.RFC3339)
}
