package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
)

/* =============================== Enums ================================== */

// Role defines the type of user in the system.
type Role string

const (
	RoleCitizen   Role = "citizen"
	RoleEngineer  Role = "engineer"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// StaffRoles may act on grievances they did not file.
var StaffRoles = []Role{RoleEngineer, RoleModerator, RoleAdmin}

// AdminRoles may use the admin console.
var AdminRoles = []Role{RoleModerator, RoleAdmin}

// IsStaff reports whether r is one of StaffRoles.
func (r Role) IsStaff() bool {
	for _, s := range StaffRoles {
		if r == s {
			return true
		}
	}
	return false
}

// Category is the closed set of grievance (and budget) categories.
type Category string

const (
	CategoryWater    Category = "water"
	CategoryWaste    Category = "waste"
	CategoryRoads    Category = "roads"
	CategoryElectric Category = "electric"
	CategoryOther    Category = "other"
)

// Categories lists every valid category in display order.
var Categories = []Category{CategoryWater, CategoryWaste, CategoryRoads, CategoryElectric, CategoryOther}

// LegacyCategories maps values from the older schema revisions onto the
// current closed set. Used only for migrating stored rows.
var LegacyCategories = map[string]Category{
	"academic":       CategoryOther,
	"infrastructure": CategoryRoads,
	"health":         CategoryOther,
	"administrative": CategoryOther,
	"electricity":    CategoryElectric,
}

func (c Category) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// Priority of a grievance.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Status defines lifecycle states for a grievance.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in-progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
	StatusRejected   Status = "rejected"
	StatusBlocked    Status = "blocked"
	StatusCancelled  Status = "cancelled"
)

// Statuses lists every valid status.
var Statuses = []Status{
	StatusOpen, StatusInProgress, StatusResolved, StatusClosed,
	StatusRejected, StatusBlocked, StatusCancelled,
}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// In reports whether s is one of set.
func (s Status) In(set ...Status) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

// CancellationStatus tracks a filer's cancellation request.
type CancellationStatus string

const (
	CancellationNone     CancellationStatus = ""
	CancellationPending  CancellationStatus = "pending"
	CancellationApproved CancellationStatus = "approved"
	CancellationRejected CancellationStatus = "rejected"
)

/* =============================== Entities =============================== */

// User represents a citizen or a staff member.
type User struct {
	ID            uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Email         string    `gorm:"uniqueIndex;not null" json:"email"`
	Phone         *string   `gorm:"uniqueIndex" json:"phone,omitempty"`
	PasswordHash  string    `gorm:"not null" json:"-"`
	Role          Role      `gorm:"type:varchar(20);not null;default:'citizen'" json:"role"`
	Name          string    `json:"name"`
	Department    string    `json:"department,omitempty"`
	IsActive      bool      `gorm:"not null;default:true" json:"is_active"`
	PhoneVerified bool      `gorm:"not null;default:false" json:"phone_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

// Expense is one itemized cost booked against a grievance budget.
type Expense struct {
	Item string    `json:"item"`
	Cost int64     `json:"cost"`
	Date time.Time `json:"date"`
}

// Budget is the money allocated to and spent on fixing a grievance.
// Amounts are minor currency units.
type Budget struct {
	Allocated   int64                        `gorm:"not null;default:0" json:"allocated"`
	Spent       int64                        `gorm:"not null;default:0" json:"spent"`
	Category    Category                     `gorm:"type:varchar(20)" json:"category,omitempty"`
	Description string                       `json:"description,omitempty"`
	Expenses    datatypes.JSONSlice[Expense] `gorm:"type:jsonb" json:"expenses"`
}

// CancellationRequest is attached by the filer and decided by an admin.
type CancellationRequest struct {
	Reason      string             `json:"reason,omitempty"`
	RequestedAt *time.Time         `json:"requested_at,omitempty"`
	Status      CancellationStatus `gorm:"type:varchar(20)" json:"status,omitempty"`
	DecidedAt   *time.Time         `json:"decided_at,omitempty"`
	DecidedBy   *uuid.UUID         `gorm:"type:uuid" json:"decided_by,omitempty"`
	Note        string             `json:"note,omitempty"`
}

// Grievance is a filed civic complaint and its full lifecycle state.
type Grievance struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Title       string    `gorm:"not null" json:"title"`
	Description string    `gorm:"not null" json:"description"`
	Category    Category  `gorm:"type:varchar(20);not null;index" json:"category"`
	Priority    Priority  `gorm:"type:varchar(20);not null;default:'medium'" json:"priority"`
	Status      Status    `gorm:"type:varchar(20);not null;default:'open';index" json:"status"`
	Location    string    `json:"location,omitempty"`

	FilerID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"filer_id"`
	Filer        *User      `gorm:"foreignKey:FilerID" json:"filer,omitempty"`
	AssignedToID *uuid.UUID `gorm:"type:uuid;index" json:"assigned_to_id,omitempty"`
	Assignee     *User      `gorm:"foreignKey:AssignedToID" json:"assignee,omitempty"`

	AssignedAt      *time.Time `json:"assigned_at,omitempty"`
	FirstAssignedAt *time.Time `json:"first_assigned_at,omitempty"`
	ResolutionDate  *time.Time `json:"resolution_date,omitempty"`
	Resolution      string     `json:"resolution,omitempty"`

	Upvotes       int            `gorm:"not null;default:0" json:"upvotes"`
	UpvotedBy     pq.StringArray `gorm:"type:text[]" json:"upvoted_by"`
	ReopenedCount int            `gorm:"not null;default:0" json:"reopened_count"`
	CitizenRating *int           `json:"citizen_rating,omitempty"`

	Budget       Budget              `gorm:"embedded;embeddedPrefix:budget_" json:"budget"`
	Cancellation CancellationRequest `gorm:"embedded;embeddedPrefix:cancel_" json:"cancellation"`

	Files    []GrievanceFile    `json:"files,omitempty"`
	Comments []GrievanceComment `json:"comments,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GrievanceFile is an attachment stored in object storage.
type GrievanceFile struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	GrievanceID  uuid.UUID `gorm:"type:uuid;not null;index" json:"grievance_id"`
	Key          string    `gorm:"not null" json:"key"`
	Mime         string    `gorm:"not null" json:"mime"`
	Size         int       `gorm:"not null" json:"size"`
	OriginalName string    `json:"original_name"`
	CreatedAt    time.Time `json:"created_at"`

	Grievance *Grievance `gorm:"foreignKey:GrievanceID;references:ID" json:"-"`
}

// GrievanceComment is a remark left by any authenticated user.
type GrievanceComment struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	GrievanceID uuid.UUID `gorm:"type:uuid;not null;index" json:"grievance_id"`
	UserID      uuid.UUID `gorm:"type:uuid;not null" json:"user_id"`
	Body        string    `gorm:"type:text;not null" json:"comment"`
	CreatedAt   time.Time `json:"created_at"`
}

// GrievanceHistory is an audit log entry for important grievance changes.
type GrievanceHistory struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	GrievanceID uuid.UUID `gorm:"type:uuid;not null;index"`
	ActorID     uuid.UUID `gorm:"type:uuid;not null;index"`
	Action      string    `gorm:"type:varchar(50);not null"` // created, status_changed, assigned, cancellation_requested, ...
	OldStatus   Status    `gorm:"type:varchar(20)"`
	NewStatus   Status    `gorm:"type:varchar(20)"`
	Reason      string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

// All lists every entity for AutoMigrate.
func All() []any {
	return []any{
		&User{}, &Grievance{}, &GrievanceFile{}, &GrievanceComment{}, &GrievanceHistory{},
	}
}
