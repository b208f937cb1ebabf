/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate a directory with realistic
	employers for demos. Each scenario registers its own employer, hires
	employees and replays a week of attendance and leave through the same
	operations the API uses, so everything lands in the journal.

AVAILABLE SCENARIOS:

	punctuality:      On-time, late and early-leaving days side by side
	leave-approval:   Paid leave approved once, second decision rejected
	salary-breakdown: Four full days, one half day, a bonus and a fine
	offboarding:      A fired employee waiting for final settlement

HOW SCENARIOS WORK:
 1. Register employer demo-<id>, owned by demo:<id>, Mon-Fri 09:00-17:00
 2. Hire employees joining on the Monday of last week
 3. Check in and out at explicit instants during that week
 4. Add leave, bonuses and fines where the scenario needs them

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "salary-breakdown"}

NOTE:

	The journal is append-only, so scenarios never reset anything. Loading
	a scenario whose employer exists answers 409.

SEE ALSO:
  - cmd/server/main.go: payroll.seed_demo loads every scenario at startup
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-ledger/generic"
	"github.com/warp/payroll-ledger/payroll"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Employer    string `json:"employer"`
	Owner       string `json:"owner"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

type scenario struct {
	ScenarioDTO
	load func(ctx context.Context, s *seeder) error
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "punctuality",
			Name:        "Punctuality",
			Description: "Arrivals inside and outside the buffer and an early checkout",
		},
		load: loadPunctualityScenario,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "leave-approval",
			Name:        "Leave Approval",
			Description: "Three paid days approved exactly once; the balance drops by three",
		},
		load: loadLeaveApprovalScenario,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "salary-breakdown",
			Name:        "Salary Breakdown",
			Description: "3000 a month over 20 days: four full days, one half day, +50 bonus, -20 fine",
		},
		load: loadSalaryBreakdownScenario,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "offboarding",
			Name:        "Offboarding",
			Description: "An employee fired mid-week with an unsettled balance",
		},
		load: loadOffboardingScenario,
	},
}

func init() {
	for i := range scenarios {
		scenarios[i].Employer = "demo-" + scenarios[i].ID
		scenarios[i].Owner = "demo:" + scenarios[i].ID
	}
}

// Scenarios lists the available demo scenarios.
func Scenarios() []ScenarioDTO {
	out := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		out[i] = s.ScenarioDTO
	}
	return out
}

// LoadScenario registers the scenario's employer in dir and plays it.
func LoadScenario(ctx context.Context, dir *payroll.Directory, id string) (*payroll.Book, error) {
	for _, sc := range scenarios {
		if sc.ID != id {
			continue
		}
		s, err := newSeeder(ctx, dir, sc.ScenarioDTO)
		if err != nil {
			return nil, err
		}
		if err := sc.load(ctx, s); err != nil {
			return nil, fmt.Errorf("scenario %s: %w", id, err)
		}
		return s.book, nil
	}
	return nil, fmt.Errorf("%w: unknown scenario %q", generic.ErrInvalidInput, id)
}

// SeedDemo loads every scenario whose employer is not registered yet.
// Returns the number loaded.
func SeedDemo(ctx context.Context, dir *payroll.Directory) (int, error) {
	n := 0
	for _, sc := range scenarios {
		if _, err := dir.Book(payroll.EmployerID(sc.Employer)); err == nil {
			continue
		}
		if _, err := LoadScenario(ctx, dir, sc.ID); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Scenarios())
}

// LoadScenarioHandler loads a scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenarioHandler(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decode(w, r, &req) {
		return
	}
	book, err := LoadScenario(r.Context(), h.Directory, req.ScenarioID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.Logger.Sugar().Infow("scenario loaded", "scenario", req.ScenarioID, "employer", book.Employer().ID)
	writeJSON(w, http.StatusCreated, toEmployerDTO(book))
}

// =============================================================================
// SEEDER
// =============================================================================

// seeder writes on behalf of the scenario's owner and employees. Every
// instant is relative to monday, the Monday of last week in the
// employer's timezone.
type seeder struct {
	ctx    context.Context
	book   *payroll.Book
	owner  payroll.Meta
	monday generic.TimePoint
}

func newSeeder(ctx context.Context, dir *payroll.Directory, sc ScenarioDTO) (*seeder, error) {
	owner := payroll.Meta{Actor: sc.Owner}
	employer, err := dir.Register(ctx, owner, payroll.EmployerInput{
		ID:                  payroll.EmployerID(sc.Employer),
		Owner:               sc.Owner,
		Name:                sc.Name + " (demo)",
		Currency:            "USD",
		PaidLeavesPerYear:   12,
		StandardWorkingDays: decimal.NewFromInt(20),
		Schedule: payroll.Schedule{
			StartTime:  9 * 3600,
			EndTime:    17 * 3600,
			BufferTime: 600,
			WorkDays:   []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		},
	})
	if err != nil {
		return nil, err
	}
	book, err := dir.Book(employer.ID)
	if err != nil {
		return nil, err
	}
	today := book.Today()
	// Monday of the current week, then one week back.
	offset := (int(today.Weekday()) + 6) % 7
	return &seeder{
		ctx:    ctx,
		book:   book,
		owner:  owner,
		monday: today.AddDays(-offset - 7),
	}, nil
}

func (s *seeder) day(n int) generic.TimePoint { return s.monday.AddDays(n) }

// at is local time h:m on weekday n (0 = Monday) of the seeded week.
func (s *seeder) at(n, h, m int) time.Time {
	offset := time.Duration(s.book.WorkingHours().Schedule.TimezoneOffset) * time.Second
	return s.day(n).Time.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute - offset)
}

func (s *seeder) hire(id, name, salary string) error {
	_, err := s.book.Registry().Hire(s.ctx, s.owner, payroll.HireInput{
		ID:            payroll.EmployeeID(id),
		Name:          name,
		MonthlySalary: decimal.RequireFromString(salary),
		JoiningDate:   s.monday,
	})
	return err
}

func (s *seeder) work(id string, n, inH, inM, outH, outM int) error {
	self := payroll.Meta{Actor: id}
	if _, err := s.book.CheckIn(s.ctx, self, payroll.EmployeeID(id), s.at(n, inH, inM)); err != nil {
		return err
	}
	_, err := s.book.CheckOut(s.ctx, self, payroll.EmployeeID(id), s.at(n, outH, outM))
	return err
}

// =============================================================================
// SCENARIOS
// =============================================================================

func loadPunctualityScenario(ctx context.Context, s *seeder) error {
	if err := s.hire("ana", "Ana Punctual", "3000"); err != nil {
		return err
	}
	if err := s.hire("ben", "Ben Late", "3000"); err != nil {
		return err
	}
	return errors.Join(
		// Inside the ten minute buffer both ways: full day.
		s.work("ana", 0, 9, 5, 16, 55),
		s.work("ana", 1, 8, 55, 17, 0),
		// Twenty minutes late: half day.
		s.work("ben", 0, 9, 20, 17, 0),
		// Leaves at 15:30: half day.
		s.work("ben", 1, 9, 0, 15, 30),
	)
}

func loadLeaveApprovalScenario(ctx context.Context, s *seeder) error {
	if err := s.hire("cara", "Cara Traveller", "3600"); err != nil {
		return err
	}
	self := payroll.Meta{Actor: "cara"}
	req, err := s.book.RequestLeave(ctx, self, "cara", payroll.LeaveInput{
		StartDate: s.day(2),
		EndDate:   s.day(4),
		Reason:    "family visit",
		Paid:      true,
	})
	if err != nil {
		return err
	}
	if _, err := s.book.ProcessLeave(ctx, s.owner, "cara", req.ID, true, "approved, enjoy"); err != nil {
		return err
	}
	// A second unpaid request left pending for the owner to decide.
	_, err = s.book.RequestLeave(ctx, self, "cara", payroll.LeaveInput{
		StartDate: s.day(7),
		EndDate:   s.day(7),
		Reason:    "appointment",
	})
	return err
}

func loadSalaryBreakdownScenario(ctx context.Context, s *seeder) error {
	if err := s.hire("dev", "Dev Steady", "3000"); err != nil {
		return err
	}
	for n := range 4 {
		if err := s.work("dev", n, 9, 0, 17, 0); err != nil {
			return err
		}
	}
	if err := s.work("dev", 4, 9, 30, 17, 0); err != nil {
		return err
	}
	reg := s.book.Registry()
	if _, err := reg.ApplyBonus(ctx, s.owner, "dev", decimal.NewFromInt(50), "extra shift"); err != nil {
		return err
	}
	_, err := reg.ApplyFine(ctx, s.owner, "dev", decimal.NewFromInt(20), "missed standup")
	return err
}

func loadOffboardingScenario(ctx context.Context, s *seeder) error {
	if err := s.hire("eve", "Eve Leaving", "4200"); err != nil {
		return err
	}
	for n := range 3 {
		if err := s.work("eve", n, 9, 0, 17, 0); err != nil {
			return err
		}
	}
	_, err := s.book.Registry().Fire(ctx, s.owner, "eve")
	return err
}
