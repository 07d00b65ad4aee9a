package compliance

import (
	"fmt"
	"math"
	"sort"
	"time"

	"certline/internal/domain"
)

// ComputeCompliance evaluates every active employee of the snapshot against the
// competency template of their position.
//
// An area counts as covered when the person holds a valid or expiring_soon
// certification for it. An area with any expiring_soon certification is
// listed as expiring and does not count toward the percentage, even when
// another certification for it is valid. A person with no required areas is
// 0% compliant.
func ComputeCompliance(snap domain.Snapshot, now time.Time) ([]domain.ComplianceRecord, []Warning) {
	idx := newIndex(snap)
	records := make([]domain.ComplianceRecord, 0, len(idx.eligible))
	var warnings []Warning
	for _, p := range idx.eligible {
		tmpl, ok := idx.templates[p.PositionID]
		if !ok {
			warnings = append(warnings, Warning{
				Code:       WarnMissingTemplate,
				PersonID:   p.ID,
				PositionID: p.PositionID,
				Message:    fmt.Sprintf("%s: no competency template for position %q", ErrMissingTemplate, p.PositionID),
			})
		}
		required := requiredAreas(tmpl)

		covered := map[string]bool{}
		expiringSet := map[string]bool{}
		for _, cert := range idx.certsByPerson[p.ID] {
			expiry, err := ParseDate(cert.ExpiryDate, now.Location())
			if err != nil {
				warnings = append(warnings, invalidDateWarning(cert, err))
				continue
			}
			switch Classify(expiry, now).Status {
			case domain.StatusValid:
				covered[cert.Area] = true
			case domain.StatusExpiringSoon:
				covered[cert.Area] = true
				expiringSet[cert.Area] = true
			}
		}

		actual := setToSlice(covered)
		expiring := setToSlice(expiringSet)
		missing := make([]string, 0)
		fullyValid := 0
		for _, area := range required {
			switch {
			case !covered[area]:
				missing = append(missing, area)
			case !expiringSet[area]:
				fullyValid++
			}
		}
		sort.Strings(required)
		sort.Strings(missing)

		records = append(records, domain.ComplianceRecord{
			PersonID:          p.ID,
			PersonName:        p.FullName,
			Position:          idx.positionName(p.PositionID),
			Department:        idx.departmentName(p.DepartmentID),
			RequiredAreas:     required,
			ActualAreas:       actual,
			ExpiringAreas:     expiring,
			MissingAreas:      missing,
			CompliancePercent: percent(fullyValid, len(required)),
		})
	}
	return records, warnings
}

func setToSlice(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func requiredAreas(tmpl domain.CompetencyTemplate) []string {
	seen := map[string]bool{}
	out := make([]string, 0)
	for _, group := range tmpl.RequiredAreas {
		for _, area := range group.Areas {
			if area == "" || seen[area] {
				continue
			}
			seen[area] = true
			out = append(out, area)
		}
	}
	return out
}

func percent(n, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(n) * 100 / float64(total)))
}

// Summarize aggregates per-person records into fleet statistics.
func Summarize(records []domain.ComplianceRecord) domain.FleetStats {
	stats := domain.FleetStats{TotalEmployees: len(records)}
	sum := 0
	for _, r := range records {
		switch {
		case r.CompliancePercent == 100:
			stats.FullCompliance++
		case r.CompliancePercent > 0:
			stats.PartialCompliance++
		default:
			stats.NonCompliant++
		}
		sum += r.CompliancePercent
	}
	if len(records) > 0 {
		stats.AvgCompliance = int(math.Round(float64(sum) / float64(len(records))))
	}
	return stats
}
