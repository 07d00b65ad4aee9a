package compliance

import "certline/internal/domain"

func dateIn(days int) string {
	return refDate.AddDate(0, 0, days).Format(DateLayout)
}

func cert(id, personID, area string, expiresIn int) domain.Certification {
	return domain.Certification{
		ID:         id,
		PersonID:   personID,
		Category:   domain.CategoryIndustrialSafety,
		Area:       area,
		IssueDate:  refDate.AddDate(-5, 0, 0).Format(DateLayout),
		ExpiryDate: dateIn(expiresIn),
	}
}

func employee(id, positionID, departmentID string) domain.Personnel {
	return domain.Personnel{
		ID:            id,
		TenantID:      "t1",
		FullName:      "Person " + id,
		PositionID:    positionID,
		DepartmentID:  departmentID,
		PersonnelType: domain.PersonnelEmployee,
		Status:        "active",
	}
}

func baseSnapshot() domain.Snapshot {
	return domain.Snapshot{
		TenantID: "t1",
		Positions: []domain.Position{
			{ID: "pos-op", TenantID: "t1", Name: "Operator"},
			{ID: "pos-eng", TenantID: "t1", Name: "Engineer"},
		},
		Departments: []domain.Department{
			{ID: "dep-a", TenantID: "t1", Name: "Workshop A"},
			{ID: "dep-b", TenantID: "t1", Name: "Workshop B"},
		},
		Templates: []domain.CompetencyTemplate{
			{PositionID: "pos-op", RequiredAreas: []domain.AreaRequirement{
				{Category: domain.CategoryIndustrialSafety, Areas: []string{"A.1", "B.3"}},
			}},
		},
	}
}

var labels = map[domain.Category]string{
	domain.CategoryIndustrialSafety: "Промышленная безопасность",
}
