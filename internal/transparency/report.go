// Package transparency computes the public accountability aggregates:
// resolution and SLA rates, category and budget breakdowns, and the overdue
// escalation list.
package transparency

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/aldoetobex/civic-grievance-backend/internal/lifecycle"
	"github.com/aldoetobex/civic-grievance-backend/pkg/models"
	"github.com/aldoetobex/civic-grievance-backend/pkg/sanitize"
)

const (
	// ReportOverdueLimit caps the overdue list embedded in the report.
	ReportOverdueLimit = 6

	// SLADays is the resolution target used for SLA compliance.
	SLADays = 7
)

// CategoryCount is one row of the category breakdown.
type CategoryCount struct {
	Category   models.Category `json:"category"`
	Count      int             `json:"count"`
	Percentage int             `json:"percentage"`
}

// BudgetLine is the spend for one budget category.
type BudgetLine struct {
	Category   models.Category `json:"category"`
	Allocated  int64           `json:"allocated"`
	Spent      int64           `json:"spent"`
	Percentage int             `json:"percentage"` // share of total spend
}

// BudgetBreakdown groups spend per budget category.
type BudgetBreakdown struct {
	TotalAllocated int64        `json:"totalAllocated"`
	TotalSpent     int64        `json:"totalSpent"`
	Categories     []BudgetLine `json:"categories"`
}

// PersonRef is the public view of a filer or assignee.
type PersonRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// IssueSnapshot is the public view of a single grievance.
type IssueSnapshot struct {
	ID          uuid.UUID       `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    models.Category `json:"category"`
	Priority    models.Priority `json:"priority"`
	Status      models.Status   `json:"status"`
	Location    string          `json:"location,omitempty"`
	Upvotes     int             `json:"upvotes"`
	DaysOpen    int             `json:"daysOpen"`
	Overdue     bool            `json:"overdue"`
	CreatedAt   time.Time       `json:"createdAt"`
	Filer       *PersonRef      `json:"filer,omitempty"`
	Assignee    *PersonRef      `json:"assignee,omitempty"`
}

// Report is the transparency dashboard payload.
type Report struct {
	GeneratedAt           time.Time       `json:"generatedAt"`
	TotalGrievances       int             `json:"totalGrievances"`
	ResolvedCount         int             `json:"resolvedCount"`
	PendingCount          int             `json:"pendingCount"`
	ResolutionRate        int             `json:"resolutionRate"`
	AvgResolutionDays     float64         `json:"avgResolutionDays"`
	SLAComplianceRate     int             `json:"slaComplianceRate"`
	FirstResponseHoursAvg float64         `json:"firstResponseHoursAvg"`
	RepeatIssuesCount     int             `json:"repeatIssuesCount"`
	AvgCitizenRating      float64         `json:"avgCitizenRating"`
	CategoryBreakdown     []CategoryCount `json:"categoryBreakdown"`
	BudgetBreakdown       BudgetBreakdown `json:"budgetBreakdown"`
	OverdueIssues         []IssueSnapshot `json:"overdueIssues"`
}

// BuildReport aggregates every grievance as of now. It never mutates its input.
func BuildReport(gs []models.Grievance, now time.Time) Report {
	r := Report{GeneratedAt: now, TotalGrievances: len(gs)}

	var (
		resolutionDays []float64
		withinSLA      int
		responseHours  []float64
		ratings        []float64
	)
	for i := range gs {
		g := &gs[i]

		switch g.Status {
		case models.StatusResolved:
			r.ResolvedCount++
			d := ResolutionDuration(g)
			resolutionDays = append(resolutionDays, d.Hours()/24)
			if d <= SLADays*24*time.Hour {
				withinSLA++
			}
		case models.StatusOpen, models.StatusInProgress:
			r.PendingCount++
		}

		if g.FirstAssignedAt != nil {
			responseHours = append(responseHours, g.FirstAssignedAt.Sub(g.CreatedAt).Hours())
		}
		if g.CitizenRating != nil {
			ratings = append(ratings, float64(*g.CitizenRating))
		}
		r.RepeatIssuesCount += g.ReopenedCount
	}

	r.ResolutionRate = percent(r.ResolvedCount, r.TotalGrievances)
	r.AvgResolutionDays = round1(mean(resolutionDays))
	r.SLAComplianceRate = percent(withinSLA, r.ResolvedCount)
	r.FirstResponseHoursAvg = round1(mean(responseHours))
	r.AvgCitizenRating = round1(mean(ratings))
	r.CategoryBreakdown = CategoryStats(gs)
	r.BudgetBreakdown = Budget(gs)
	r.OverdueIssues = OverdueIssues(gs, now, ReportOverdueLimit)
	return r
}

// ResolutionDuration is how long g took to resolve, falling back to the last
// update time for rows resolved before ResolutionDate existed.
func ResolutionDuration(g *models.Grievance) time.Duration {
	end := g.UpdatedAt
	if g.ResolutionDate != nil {
		end = *g.ResolutionDate
	}
	return end.Sub(g.CreatedAt)
}

// CategoryStats counts grievances over the fixed category set.
func CategoryStats(gs []models.Grievance) []CategoryCount {
	counts := make(map[models.Category]int, len(models.Categories))
	for i := range gs {
		counts[gs[i].Category]++
	}
	out := make([]CategoryCount, 0, len(models.Categories))
	for _, c := range models.Categories {
		out = append(out, CategoryCount{
			Category:   c,
			Count:      counts[c],
			Percentage: percent(counts[c], len(gs)),
		})
	}
	return out
}

// Budget sums allocation and spend per budget category. Grievances without a
// budget category count as other.
func Budget(gs []models.Grievance) BudgetBreakdown {
	type acc struct{ allocated, spent int64 }
	per := make(map[models.Category]*acc, len(models.Categories))
	for _, c := range models.Categories {
		per[c] = &acc{}
	}

	var b BudgetBreakdown
	for i := range gs {
		bg := gs[i].Budget
		c := bg.Category
		if !c.Valid() {
			c = models.CategoryOther
		}
		per[c].allocated += bg.Allocated
		per[c].spent += bg.Spent
		b.TotalAllocated += bg.Allocated
		b.TotalSpent += bg.Spent
	}

	b.Categories = make([]BudgetLine, 0, len(models.Categories))
	for _, c := range models.Categories {
		b.Categories = append(b.Categories, BudgetLine{
			Category:   c,
			Allocated:  per[c].allocated,
			Spent:      per[c].spent,
			Percentage: percent64(per[c].spent, b.TotalSpent),
		})
	}
	return b
}

// OverdueIssues lists overdue grievances oldest first. limit <= 0 means all.
func OverdueIssues(gs []models.Grievance, now time.Time, limit int) []IssueSnapshot {
	overdue := make([]*models.Grievance, 0)
	for i := range gs {
		if lifecycle.IsOverdue(&gs[i], now) {
			overdue = append(overdue, &gs[i])
		}
	}
	sort.SliceStable(overdue, func(i, j int) bool {
		if !overdue[i].CreatedAt.Equal(overdue[j].CreatedAt) {
			return overdue[i].CreatedAt.Before(overdue[j].CreatedAt)
		}
		return overdue[i].ID.String() < overdue[j].ID.String()
	})
	if limit > 0 && len(overdue) > limit {
		overdue = overdue[:limit]
	}

	out := make([]IssueSnapshot, 0, len(overdue))
	for _, g := range overdue {
		out = append(out, Snapshot(g, now))
	}
	return out
}

// Snapshot builds the public view of g. Contact details in the description
// are redacted.
func Snapshot(g *models.Grievance, now time.Time) IssueSnapshot {
	s := IssueSnapshot{
		ID:          g.ID,
		Title:       g.Title,
		Description: sanitize.RedactPII(g.Description),
		Category:    g.Category,
		Priority:    g.Priority,
		Status:      g.Status,
		Location:    g.Location,
		Upvotes:     g.Upvotes,
		DaysOpen:    lifecycle.DaysOpen(g, now),
		Overdue:     lifecycle.IsOverdue(g, now),
		CreatedAt:   g.CreatedAt,
	}
	if g.Filer != nil {
		s.Filer = &PersonRef{ID: g.Filer.ID, Name: g.Filer.Name}
	}
	if g.Assignee != nil {
		s.Assignee = &PersonRef{ID: g.Assignee.ID, Name: g.Assignee.Name}
	}
	return s
}

func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}

func percent64(part, total int64) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func round1(x float64) float64 { return math.Round(x*10) / 10 }
