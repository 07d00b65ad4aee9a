package domain

// Category is the regulatory domain a certification belongs to.
type Category string

const (
	CategoryIndustrialSafety Category = "industrial_safety"
	CategoryEnergySafety     Category = "energy_safety"
	CategoryLaborSafety      Category = "labor_safety"
	CategoryEcology          Category = "ecology"
	CategoryOther            Category = "other"
)

// Categories lists every known category code.
var Categories = []Category{
	CategoryIndustrialSafety,
	CategoryEnergySafety,
	CategoryLaborSafety,
	CategoryEcology,
	CategoryOther,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// LifecycleStatus is the derived state of a certification. It is never stored.
type LifecycleStatus string

const (
	StatusValid        LifecycleStatus = "valid"
	StatusExpiringSoon LifecycleStatus = "expiring_soon"
	StatusExpired      LifecycleStatus = "expired"
)

type TaskType string

const (
	TaskReminder90 TaskType = "reminder_90"
	TaskReminder60 TaskType = "reminder_60"
	TaskReminder30 TaskType = "reminder_30"
	TaskExpired    TaskType = "expired"
)

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted:
		return true
	}
	return false
}

type PersonnelType string

const (
	PersonnelEmployee   PersonnelType = "employee"
	PersonnelContractor PersonnelType = "contractor"
)

type Tenant struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Department struct {
	ID       string `json:"id" yaml:"id"`
	TenantID string `json:"tenant_id" yaml:"tenant_id"`
	Name     string `json:"name" yaml:"name"`
}

type Position struct {
	ID       string `json:"id" yaml:"id"`
	TenantID string `json:"tenant_id" yaml:"tenant_id"`
	Name     string `json:"name" yaml:"name"`
}

type Personnel struct {
	ID            string        `json:"id" yaml:"id"`
	TenantID      string        `json:"tenant_id" yaml:"tenant_id"`
	FullName      string        `json:"full_name" yaml:"full_name"`
	PositionID    string        `json:"position_id,omitempty" yaml:"position_id"`
	DepartmentID  string        `json:"department_id,omitempty" yaml:"department_id"`
	PersonnelType PersonnelType `json:"personnel_type" yaml:"personnel_type" enum:"employee,contractor"`
	Status        string        `json:"status" yaml:"status" enum:"active,inactive"`
}

// Active reports whether the person takes part in task derivation and compliance.
func (p Personnel) Active() bool {
	return p.Status == "" || p.Status == "active"
}

// AreaRequirement groups required competency areas under a category.
type AreaRequirement struct {
	Category Category `json:"category" yaml:"category"`
	Areas    []string `json:"areas" yaml:"areas"`
}

// CompetencyTemplate lists the areas a position requires.
type CompetencyTemplate struct {
	PositionID    string            `json:"position_id" yaml:"position_id"`
	RequiredAreas []AreaRequirement `json:"required_areas" yaml:"required_areas"`
}

type Certification struct {
	ID             string   `json:"id" yaml:"id"`
	PersonID       string   `json:"person_id" yaml:"person_id"`
	Category       Category `json:"category" yaml:"category"`
	Area           string   `json:"area" yaml:"area"`
	IssueDate      string   `json:"issue_date" yaml:"issue_date" format:"date"`
	ExpiryDate     string   `json:"expiry_date" yaml:"expiry_date" format:"date"`
	ProtocolNumber string   `json:"protocol_number,omitempty" yaml:"protocol_number"`
	ProtocolDate   string   `json:"protocol_date,omitempty" yaml:"protocol_date"`
	Verified       bool     `json:"verified" yaml:"verified"`
	VerifiedDate   string   `json:"verified_date,omitempty" yaml:"verified_date"`
}

// Snapshot is a read-only view of one tenant's data used by a single evaluation.
type Snapshot struct {
	TenantID       string               `json:"tenant_id"`
	Personnel      []Personnel          `json:"personnel"`
	Positions      []Position           `json:"positions"`
	Departments    []Department         `json:"departments"`
	Templates      []CompetencyTemplate `json:"templates"`
	Certifications []Certification      `json:"certifications"`
}

type Task struct {
	ID               string     `json:"id"`
	Type             TaskType   `json:"type" enum:"reminder_90,reminder_60,reminder_30,expired"`
	Priority         Priority   `json:"priority" enum:"low,medium,high,critical"`
	EmployeeID       string     `json:"employee_id"`
	EmployeeName     string     `json:"employee_name"`
	EmployeePosition string     `json:"employee_position"`
	Department       string     `json:"department"`
	Category         string     `json:"category"`
	Area             string     `json:"area"`
	CertificationID  string     `json:"certification_id"`
	ExpiryDate       string     `json:"expiry_date" format:"date"`
	DaysLeft         int        `json:"days_left"`
	CreatedAt        string     `json:"created_at" format:"date-time"`
	Status           TaskStatus `json:"status" enum:"pending,in_progress,completed"`
	CompletedAt      *string    `json:"completed_at,omitempty" format:"date-time"`
}

type ComplianceRecord struct {
	PersonID          string   `json:"person_id"`
	PersonName        string   `json:"person_name"`
	Position          string   `json:"position"`
	Department        string   `json:"department"`
	RequiredAreas     []string `json:"required_areas"`
	ActualAreas       []string `json:"actual_areas"`
	ExpiringAreas     []string `json:"expiring_areas"`
	MissingAreas      []string `json:"missing_areas"`
	CompliancePercent int      `json:"compliance_percent"`
}

type FleetStats struct {
	TotalEmployees    int `json:"total_employees"`
	FullCompliance    int `json:"full_compliance"`
	PartialCompliance int `json:"partial_compliance"`
	NonCompliant      int `json:"non_compliant"`
	AvgCompliance     int `json:"avg_compliance"`
}

type TaskStats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Critical   int `json:"critical"`
	High       int `json:"high"`
	Medium     int `json:"medium"`
	Low        int `json:"low"`
}

// Override is a manually set task status keyed by deterministic task id.
type Override struct {
	TaskID      string     `json:"task_id"`
	Status      TaskStatus `json:"status"`
	CompletedAt *string    `json:"completed_at,omitempty" format:"date-time"`
	UpdatedAt   string     `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	TenantID   string `json:"tenant_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
