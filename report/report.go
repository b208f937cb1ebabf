/*
Package report renders read-only exports of an employer's book.

EXPORTS:
  AttendanceWorkbook: XLSX with one Attendance sheet (a row per employee
                      per day, absent days included), a Salary sheet
                      (breakdown as of the last day) and a Leave sheet.
  LeaveCalendar:      iCalendar feed of approved leave as all-day events.

Reports read through the Book's public queries only; they never take
locks of their own.
*/
package report

import (
	"fmt"
	"io"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/xuri/excelize/v2"

	"github.com/warp/payroll-ledger/generic"
	"github.com/warp/payroll-ledger/payroll"
)

const (
	sheetAttendance = "Attendance"
	sheetSalary     = "Salary"
	sheetLeave      = "Leave"
)

// AttendanceWorkbook writes the workbook for [from, to] to w.
func AttendanceWorkbook(w io.Writer, b *payroll.Book, from, to generic.TimePoint) error {
	if err := (generic.Period{Start: from, End: to}).Validate(); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(sheetAttendance)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")
	f.NewSheet(sheetSalary)
	f.NewSheet(sheetLeave)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	employer := b.Employer()
	employees := b.Registry().List()
	loc := time.FixedZone("schedule", int(b.WorkingHours().Schedule.TimezoneOffset))

	// Attendance
	writeHeader(f, sheetAttendance, headerStyle, "Date", "Employee", "Name", "Status", "Check-in", "Check-out", "Late", "Early checkout")
	f.SetColWidth(sheetAttendance, "A", "A", 12)
	f.SetColWidth(sheetAttendance, "C", "C", 24)
	f.SetColWidth(sheetAttendance, "E", "F", 20)
	row := 2
	for _, emp := range employees {
		seq, err := b.AttendanceRange(emp.ID, from, to)
		if err != nil {
			return err
		}
		for rec := range seq {
			values := []any{
				rec.Date.String(), string(emp.ID), emp.Name, rec.Status.String(),
				clock(rec.LogInTime, loc), clock(rec.LogOutTime, loc),
				rec.IsLate, rec.IsEarlyCheckout,
			}
			if err := f.SetSheetRow(sheetAttendance, cell("A", row), &values); err != nil {
				return fmt.Errorf("write attendance row: %w", err)
			}
			row++
		}
	}

	// Salary
	writeHeader(f, sheetSalary, headerStyle, "Employee", "Name", "Active", "Window", "Daily rate",
		"Full days", "Half days", "Paid leave", "Absent", "Bonuses", "Fines", "Total", "Currency")
	f.SetColWidth(sheetSalary, "D", "D", 26)
	row = 2
	for _, emp := range employees {
		bd, err := b.Payroll().Breakdown(emp.ID, to)
		if err != nil {
			return err
		}
		values := []any{
			string(emp.ID), emp.Name, emp.IsActive, bd.Window.String(),
			number(bd.DailyRate), bd.FullDays, bd.HalfDays, bd.PaidLeaveDays, bd.AbsentDays,
			number(bd.Bonuses), number(bd.Fines), number(bd.Total), employer.Currency,
		}
		if err := f.SetSheetRow(sheetSalary, cell("A", row), &values); err != nil {
			return fmt.Errorf("write salary row: %w", err)
		}
		row++
	}

	// Leave
	writeHeader(f, sheetLeave, headerStyle, "Employee", "Request", "Start", "End", "Days", "Paid", "State", "Reason", "Remarks")
	row = 2
	window := generic.Period{Start: from, End: to}
	for _, emp := range employees {
		reqs, err := b.LeaveRequests(emp.ID)
		if err != nil {
			return err
		}
		for _, req := range reqs {
			if !req.Period().Overlaps(window) {
				continue
			}
			values := []any{
				string(emp.ID), req.ID, req.StartDate.String(), req.EndDate.String(), req.Days(),
				req.IsPaidLeave, leaveState(req), req.Reason, req.Remarks,
			}
			if err := f.SetSheetRow(sheetLeave, cell("A", row), &values); err != nil {
				return fmt.Errorf("write leave row: %w", err)
			}
			row++
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// LeaveCalendar returns approved leave as an iCalendar document. An empty
// employee includes everyone.
func LeaveCalendar(b *payroll.Book, employee payroll.EmployeeID) (string, error) {
	employer := b.Employer()
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//payroll-ledger//leave//EN")
	cal.SetXWRCalName(fmt.Sprintf("%s leave", employerName(employer)))

	employees := b.Registry().List()
	for _, emp := range employees {
		if employee != "" && emp.ID != employee {
			continue
		}
		reqs, err := b.LeaveRequests(emp.ID)
		if err != nil {
			return "", err
		}
		for _, req := range reqs {
			if !req.IsProcessed || !req.IsApproved {
				continue
			}
			kind := "Unpaid leave"
			if req.IsPaidLeave {
				kind = "Paid leave"
			}
			event := cal.AddEvent(fmt.Sprintf("%s-%s-%d@payroll-ledger", employer.ID, emp.ID, req.ID))
			event.SetDtStampTime(req.ProcessedAt)
			event.SetSummary(fmt.Sprintf("%s: %s", emp.Name, kind))
			if req.Reason != "" {
				event.SetDescription(req.Reason)
			}
			event.SetAllDayStartAt(req.StartDate.Time)
			// DTEND of an all-day event is exclusive.
			event.SetAllDayEndAt(req.EndDate.AddDays(1).Time)
		}
	}
	return cal.Serialize(), nil
}

// Helper functions

func writeHeader(f *excelize.File, sheet string, style int, titles ...string) {
	for i, title := range titles {
		c, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, c, title)
	}
	last, _ := excelize.CoordinatesToCellName(len(titles), 1)
	f.SetCellStyle(sheet, "A1", last, style)
	f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}

func clock(epoch int64, loc *time.Location) string {
	if epoch == 0 {
		return ""
	}
	return time.Unix(epoch, 0).In(loc).Format("2006-01-02 15:04")
}

func number(a generic.Amount) float64 {
	v, _ := a.Value.Round(2).Float64()
	return v
}

func leaveState(r payroll.LeaveRequest) string {
	switch {
	case !r.IsProcessed:
		return "pending"
	case r.IsApproved:
		return "approved"
	default:
		return "rejected"
	}
}

func employerName(e payroll.Employer) string {
	if e.Name != "" {
		return e.Name
	}
	return string(e.ID)
}
