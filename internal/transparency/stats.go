package transparency

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/aldoetobex/civic-grievance-backend/internal/lifecycle"
	"github.com/aldoetobex/civic-grievance-backend/pkg/models"
)

// MonthTrend is the filed/resolved count for one calendar month (YYYY-MM, UTC).
type MonthTrend struct {
	Month    string `json:"month"`
	Filed    int    `json:"filed"`
	Resolved int    `json:"resolved"`
}

// MonthlyTrends returns the last `months` calendar months ending with now's
// month, oldest first. Months with no activity are included as zeros.
func MonthlyTrends(gs []models.Grievance, now time.Time, months int) []MonthTrend {
	if months < 1 {
		months = 6
	}
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(months - 1), 0)

	out := make([]MonthTrend, months)
	index := make(map[string]int, months)
	for i := 0; i < months; i++ {
		m := start.AddDate(0, i, 0).Format("2006-01")
		out[i].Month = m
		index[m] = i
	}

	for i := range gs {
		g := &gs[i]
		if j, ok := index[g.CreatedAt.UTC().Format("2006-01")]; ok {
			out[j].Filed++
		}
		if g.ResolutionDate != nil {
			if j, ok := index[g.ResolutionDate.UTC().Format("2006-01")]; ok {
				out[j].Resolved++
			}
		}
	}
	return out
}

// OfficerStat summarises one assignee's workload.
type OfficerStat struct {
	Officer           PersonRef `json:"officer"`
	Assigned          int       `json:"assigned"`
	Resolved          int       `json:"resolved"`
	Overdue           int       `json:"overdue"`
	AvgResolutionDays float64   `json:"avgResolutionDays"`
}

// OfficerStats groups grievances by their current assignee, busiest first.
func OfficerStats(gs []models.Grievance, now time.Time) []OfficerStat {
	type acc struct {
		stat OfficerStat
		days []float64
	}
	per := map[uuid.UUID]*acc{}
	for i := range gs {
		g := &gs[i]
		if g.AssignedToID == nil {
			continue
		}
		a, ok := per[*g.AssignedToID]
		if !ok {
			a = &acc{stat: OfficerStat{Officer: PersonRef{ID: *g.AssignedToID}}}
			if g.Assignee != nil {
				a.stat.Officer.Name = g.Assignee.Name
			}
			per[*g.AssignedToID] = a
		}
		a.stat.Assigned++
		if g.Status == models.StatusResolved {
			a.stat.Resolved++
			a.days = append(a.days, ResolutionDuration(g).Hours()/24)
		}
		if lifecycle.IsOverdue(g, now) {
			a.stat.Overdue++
		}
	}

	out := make([]OfficerStat, 0, len(per))
	for _, a := range per {
		a.stat.AvgResolutionDays = round1(mean(a.days))
		out = append(out, a.stat)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Assigned != out[j].Assigned {
			return out[i].Assigned > out[j].Assigned
		}
		return out[i].Officer.ID.String() < out[j].Officer.ID.String()
	})
	return out
}

var exportHeader = []string{
	"id", "title", "category", "priority", "status", "upvotes",
	"days_open", "overdue", "reopened_count", "created_at", "resolution_date",
	"budget_allocated", "budget_spent",
}

// WriteCSV writes the public export of gs. Descriptions and filer identities
// are left out.
func WriteCSV(w io.Writer, gs []models.Grievance, now time.Time) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for i := range gs {
		g := &gs[i]
		resolved := ""
		if g.ResolutionDate != nil {
			resolved = g.ResolutionDate.UTC().Format(time.RFC3339)
		}
		row := []string{
			g.ID.String(),
			g.Title,
			string(g.Category),
			string(g.Priority),
			string(g.Status),
			strconv.Itoa(g.Upvotes),
			strconv.Itoa(lifecycle.DaysOpen(g, now)),
			strconv.FormatBool(lifecycle.IsOverdue(g, now)),
			strconv.Itoa(g.ReopenedCount),
			g.CreatedAt.UTC().Format(time.RFC3339),
			resolved,
			strconv.FormatInt(g.Budget.Allocated, 10),
			strconv.FormatInt(g.Budget.Spent, 10),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
