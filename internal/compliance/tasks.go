package compliance

import (
	"fmt"
	"sort"
	"time"

	"certline/internal/domain"
)

// NoDepartment is shown when a person has no resolvable department.
const NoDepartment = "—"

// TaskID is the deterministic id of the task a certification produces in bucket b.
func TaskID(personID, certificationID string, b Bucket) string {
	return fmt.Sprintf("task-%s-%s-%s", personID, certificationID, b.Suffix)
}

// DeriveTasks produces the renewal work queue for the active employees of a
// snapshot. Each certification yields at most one task. Certifications with an
// unparsable expiry date are skipped and reported as warnings.
func DeriveTasks(snap domain.Snapshot, now time.Time, labels map[domain.Category]string) ([]domain.Task, []Warning) {
	idx := newIndex(snap)
	tasks := make([]domain.Task, 0)
	var warnings []Warning
	for _, p := range idx.eligible {
		for _, cert := range idx.certsByPerson[p.ID] {
			expiry, err := ParseDate(cert.ExpiryDate, now.Location())
			if err != nil {
				warnings = append(warnings, invalidDateWarning(cert, err))
				continue
			}
			c := Classify(expiry, now)
			b, ok := BucketFor(c.DaysLeft)
			if !ok {
				continue
			}
			tasks = append(tasks, domain.Task{
				ID:               TaskID(p.ID, cert.ID, b),
				Type:             b.Type,
				Priority:         b.Priority,
				EmployeeID:       p.ID,
				EmployeeName:     p.FullName,
				EmployeePosition: idx.positionName(p.PositionID),
				Department:       idx.departmentName(p.DepartmentID),
				Category:         categoryLabel(labels, cert.Category),
				Area:             cert.Area,
				CertificationID:  cert.ID,
				ExpiryDate:       cert.ExpiryDate,
				DaysLeft:         c.DaysLeft,
				CreatedAt:        b.EnteredAt(expiry).Format(time.RFC3339),
				Status:           domain.TaskPending,
			})
		}
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.DaysLeft != b.DaysLeft {
			return a.DaysLeft < b.DaysLeft
		}
		if a.EmployeeID != b.EmployeeID {
			return a.EmployeeID < b.EmployeeID
		}
		return a.CertificationID < b.CertificationID
	})
	return tasks, warnings
}

func invalidDateWarning(cert domain.Certification, err error) Warning {
	return Warning{
		Code:            WarnInvalidDate,
		PersonID:        cert.PersonID,
		CertificationID: cert.ID,
		Message:         err.Error(),
	}
}

func categoryLabel(labels map[domain.Category]string, c domain.Category) string {
	if l, ok := labels[c]; ok && l != "" {
		return l
	}
	return string(c)
}

// index resolves snapshot references for one evaluation.
type index struct {
	eligible      []domain.Personnel
	positions     map[string]domain.Position
	departments   map[string]domain.Department
	templates     map[string]domain.CompetencyTemplate
	certsByPerson map[string][]domain.Certification
}

func newIndex(snap domain.Snapshot) index {
	idx := index{
		positions:     make(map[string]domain.Position, len(snap.Positions)),
		departments:   make(map[string]domain.Department, len(snap.Departments)),
		templates:     make(map[string]domain.CompetencyTemplate, len(snap.Templates)),
		certsByPerson: make(map[string][]domain.Certification),
	}
	for _, p := range snap.Positions {
		idx.positions[p.ID] = p
	}
	for _, d := range snap.Departments {
		idx.departments[d.ID] = d
	}
	for _, t := range snap.Templates {
		if _, seen := idx.templates[t.PositionID]; !seen {
			idx.templates[t.PositionID] = t
		}
	}
	for _, c := range snap.Certifications {
		idx.certsByPerson[c.PersonID] = append(idx.certsByPerson[c.PersonID], c)
	}
	for _, p := range snap.Personnel {
		if snap.TenantID != "" && p.TenantID != snap.TenantID {
			continue
		}
		if p.PersonnelType != domain.PersonnelEmployee || !p.Active() {
			continue
		}
		idx.eligible = append(idx.eligible, p)
	}
	sort.SliceStable(idx.eligible, func(i, j int) bool { return idx.eligible[i].ID < idx.eligible[j].ID })
	return idx
}

func (idx index) positionName(id string) string {
	if p, ok := idx.positions[id]; ok {
		return p.Name
	}
	return ""
}

func (idx index) departmentName(id string) string {
	if d, ok := idx.departments[id]; ok && d.Name != "" {
		return d.Name
	}
	return NoDepartment
}
