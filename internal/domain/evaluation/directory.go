package evaluation

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"perfhrm/internal/platform/db"
)

// Fixtures describes assignments and evaluation lines in YAML. The memory
// driver serves them directly; evalctl seed imports them into Postgres.
type Fixtures struct {
	Periods []PeriodFixture `yaml:"periods"`
}

type PeriodFixture struct {
	ID        string            `yaml:"id"`
	Employees []EmployeeFixture `yaml:"employees"`
}

type EmployeeFixture struct {
	ID        string          `yaml:"id"`
	WBS       []WBSAssignment `yaml:"wbs"`
	Primary   []string        `yaml:"primary"`
	Secondary []string        `yaml:"secondary"`
}

func LoadFixturesFile(path string) (Fixtures, error) {
	var fixtures Fixtures
	data, err := os.ReadFile(path)
	if err != nil {
		return fixtures, err
	}
	if err := yaml.Unmarshal(data, &fixtures); err != nil {
		return fixtures, fmt.Errorf("parse fixtures %s: %w", path, err)
	}
	for _, period := range fixtures.Periods {
		if period.ID == "" {
			return fixtures, fmt.Errorf("fixtures %s: period without id", path)
		}
		for _, employee := range period.Employees {
			if employee.ID == "" {
				return fixtures, fmt.Errorf("fixtures %s: employee without id in period %s", path, period.ID)
			}
		}
	}
	return fixtures, nil
}

type lineKey struct {
	periodID   string
	employeeID string
	step       Step
}

// MemoryDirectory answers assignment and evaluation-line lookups from memory.
type MemoryDirectory struct {
	mu        sync.RWMutex
	employees map[string][]string
	wbs       map[[2]string][]WBSAssignment
	lines     map[lineKey][]string
}

func NewMemoryDirectory(fixtures Fixtures) *MemoryDirectory {
	d := &MemoryDirectory{
		employees: map[string][]string{},
		wbs:       map[[2]string][]WBSAssignment{},
		lines:     map[lineKey][]string{},
	}
	for _, period := range fixtures.Periods {
		for _, employee := range period.Employees {
			d.SetAssignments(period.ID, employee.ID, employee.WBS...)
			d.SetEvaluators(period.ID, employee.ID, StepPrimary, employee.Primary...)
			d.SetEvaluators(period.ID, employee.ID, StepSecondary, employee.Secondary...)
		}
	}
	return d
}

func (d *MemoryDirectory) SetAssignments(periodID, employeeID string, assignments ...WBSAssignment) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.wbs[[2]string{periodID, employeeID}] = slices.Clone(assignments)
	if !slices.Contains(d.employees[periodID], employeeID) {
		d.employees[periodID] = append(d.employees[periodID], employeeID)
	}
}

func (d *MemoryDirectory) SetEvaluators(periodID, employeeID string, step Step, evaluatorIDs ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lines[lineKey{periodID, employeeID, step}] = slices.Clone(evaluatorIDs)
}

func (d *MemoryDirectory) AssignedWBSItems(ctx context.Context, periodID, employeeID string) ([]WBSAssignment, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.wbs[[2]string{periodID, employeeID}]), nil
}

func (d *MemoryDirectory) AssignedEmployees(ctx context.Context, periodID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.employees[periodID]), nil
}

func (d *MemoryDirectory) Evaluators(ctx context.Context, periodID, employeeID string, step Step) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.lines[lineKey{periodID, employeeID, step}]), nil
}

// Directory reads assignments and evaluation lines mirrored into Postgres.
type Directory struct {
	DB db.Querier
}

func NewDirectory(q db.Querier) *Directory {
	return &Directory{DB: q}
}

func (d *Directory) AssignedWBSItems(ctx context.Context, periodID, employeeID string) ([]WBSAssignment, error) {
	rows, err := d.DB.Query(ctx, `
    SELECT wbs_item_id, project_id
    FROM wbs_assignments
    WHERE period_id = $1 AND employee_id = $2
    ORDER BY wbs_item_id
  `, periodID, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	assignments := make([]WBSAssignment, 0)
	for rows.Next() {
		var a WBSAssignment
		if err := rows.Scan(&a.WBSItemID, &a.ProjectID); err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

func (d *Directory) AssignedEmployees(ctx context.Context, periodID string) ([]string, error) {
	rows, err := d.DB.Query(ctx, `
    SELECT DISTINCT employee_id
    FROM wbs_assignments
    WHERE period_id = $1
    ORDER BY employee_id
  `, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var employees []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		employees = append(employees, id)
	}
	return employees, rows.Err()
}

func (d *Directory) Evaluators(ctx context.Context, periodID, employeeID string, step Step) ([]string, error) {
	rows, err := d.DB.Query(ctx, `
    SELECT evaluator_id
    FROM evaluation_lines
    WHERE period_id = $1 AND employee_id = $2 AND step = $3
    ORDER BY rank, evaluator_id
  `, periodID, employeeID, string(step))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var evaluators []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		evaluators = append(evaluators, id)
	}
	return evaluators, rows.Err()
}

// Import replaces the assignments and lines of every period in fixtures.
func (d *Directory) Import(ctx context.Context, fixtures Fixtures) error {
	tx, err := d.DB.Begin(ctx)
	if err != nil {
		return err
	}
	if err := importFixtures(ctx, tx, fixtures); err != nil {
		rollbackTx(ctx, tx, "fixtures")
		return err
	}
	return tx.Commit(ctx)
}

func importFixtures(ctx context.Context, q db.Querier, fixtures Fixtures) error {
	for _, period := range fixtures.Periods {
		if _, err := q.Exec(ctx, "DELETE FROM wbs_assignments WHERE period_id = $1", period.ID); err != nil {
			return err
		}
		if _, err := q.Exec(ctx, "DELETE FROM evaluation_lines WHERE period_id = $1", period.ID); err != nil {
			return err
		}
		for _, employee := range period.Employees {
			for _, a := range employee.WBS {
				if _, err := q.Exec(ctx, `
          INSERT INTO wbs_assignments (period_id, employee_id, wbs_item_id, project_id)
          VALUES ($1,$2,$3,$4)
        `, period.ID, employee.ID, a.WBSItemID, a.ProjectID); err != nil {
					return err
				}
			}
			lines := map[Step][]string{StepPrimary: employee.Primary, StepSecondary: employee.Secondary}
			for _, step := range []Step{StepPrimary, StepSecondary} {
				for rank, evaluatorID := range lines[step] {
					if _, err := q.Exec(ctx, `
            INSERT INTO evaluation_lines (period_id, employee_id, step, evaluator_id, rank)
            VALUES ($1,$2,$3,$4,$5)
          `, period.ID, employee.ID, string(step), evaluatorID, rank); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}
