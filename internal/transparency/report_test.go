package transparency

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aldoetobex/civic-grievance-backend/pkg/models"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func daysAgo(d float64) time.Time {
	return now.Add(-time.Duration(d * 24 * float64(time.Hour)))
}

func grievance(status models.Status, createdDaysAgo float64) models.Grievance {
	return models.Grievance{
		ID:        uuid.New(),
		Title:     "Streetlight out",
		Category:  models.CategoryElectric,
		Priority:  models.PriorityMedium,
		Status:    status,
		CreatedAt: daysAgo(createdDaysAgo),
		UpdatedAt: daysAgo(createdDaysAgo),
	}
}

func resolvedAfter(createdDaysAgo, tookDays float64) models.Grievance {
	g := grievance(models.StatusResolved, createdDaysAgo)
	rd := g.CreatedAt.Add(time.Duration(tookDays * 24 * float64(time.Hour)))
	g.ResolutionDate = &rd
	return g
}

func TestBuildReport_Empty(t *testing.T) {
	r := BuildReport(nil, now)

	assert.Equal(t, 0, r.TotalGrievances)
	assert.Equal(t, 0, r.ResolutionRate)
	assert.Equal(t, 0.0, r.AvgResolutionDays)
	assert.Equal(t, 0, r.SLAComplianceRate)
	assert.Equal(t, 0.0, r.FirstResponseHoursAvg)
	assert.Equal(t, 0.0, r.AvgCitizenRating)
	assert.Empty(t, r.OverdueIssues)
	require.Len(t, r.CategoryBreakdown, len(models.Categories))
	for _, c := range r.CategoryBreakdown {
		assert.Zero(t, c.Count)
		assert.Zero(t, c.Percentage)
	}
}

func TestBuildReport_SLAAndAverages(t *testing.T) {
	fast := resolvedAfter(20, 5) // within SLA
	slow := resolvedAfter(20, 10)
	open := grievance(models.StatusOpen, 1)
	inProgress := grievance(models.StatusInProgress, 2)

	r := BuildReport([]models.Grievance{fast, slow, open, inProgress}, now)

	assert.Equal(t, 4, r.TotalGrievances)
	assert.Equal(t, 2, r.ResolvedCount)
	assert.Equal(t, 2, r.PendingCount)
	assert.Equal(t, 50, r.ResolutionRate)
	assert.Equal(t, 50, r.SLAComplianceRate)
	assert.Equal(t, 7.5, r.AvgResolutionDays)
}

func TestBuildReport_ResolutionFallsBackToUpdatedAt(t *testing.T) {
	g := grievance(models.StatusResolved, 10)
	g.UpdatedAt = g.CreatedAt.Add(3 * 24 * time.Hour)

	r := BuildReport([]models.Grievance{g}, now)

	assert.Equal(t, 3.0, r.AvgResolutionDays)
	assert.Equal(t, 100, r.SLAComplianceRate)
}

func TestBuildReport_FirstResponseRatingRepeats(t *testing.T) {
	a := grievance(models.StatusInProgress, 3)
	fa := a.CreatedAt.Add(2 * time.Hour)
	a.FirstAssignedAt = &fa
	a.ReopenedCount = 2

	b := resolvedAfter(5, 1)
	fb := b.CreatedAt.Add(5 * time.Hour)
	b.FirstAssignedAt = &fb
	four, five := 4, 5
	b.CitizenRating = &four
	b.ReopenedCount = 1

	c := resolvedAfter(5, 1)
	c.CitizenRating = &five

	r := BuildReport([]models.Grievance{a, b, c}, now)

	assert.Equal(t, 3.5, r.FirstResponseHoursAvg)
	assert.Equal(t, 4.5, r.AvgCitizenRating)
	assert.Equal(t, 3, r.RepeatIssuesCount)
}

func TestCategoryStats_Percentages(t *testing.T) {
	mk := func(c models.Category) models.Grievance {
		g := grievance(models.StatusOpen, 1)
		g.Category = c
		return g
	}
	gs := []models.Grievance{
		mk(models.CategoryWater), mk(models.CategoryWater),
		mk(models.CategoryRoads),
	}

	out := CategoryStats(gs)

	byCat := map[models.Category]CategoryCount{}
	for _, c := range out {
		byCat[c.Category] = c
	}
	assert.Equal(t, CategoryCount{models.CategoryWater, 2, 67}, byCat[models.CategoryWater])
	assert.Equal(t, CategoryCount{models.CategoryRoads, 1, 33}, byCat[models.CategoryRoads])
	assert.Equal(t, 0, byCat[models.CategoryWaste].Count)
	assert.Equal(t, models.Categories[0], out[0].Category)
}

func TestBudget_SpendShares(t *testing.T) {
	mk := func(c models.Category, alloc, spent int64) models.Grievance {
		g := grievance(models.StatusResolved, 1)
		g.Budget = models.Budget{Allocated: alloc, Spent: spent, Category: c}
		return g
	}
	gs := []models.Grievance{
		mk(models.CategoryWater, 1000, 300),
		mk(models.CategoryRoads, 2000, 700),
		mk("", 0, 0),
	}

	b := Budget(gs)

	assert.Equal(t, int64(3000), b.TotalAllocated)
	assert.Equal(t, int64(1000), b.TotalSpent)
	lines := map[models.Category]BudgetLine{}
	for _, l := range b.Categories {
		lines[l.Category] = l
	}
	assert.Equal(t, 30, lines[models.CategoryWater].Percentage)
	assert.Equal(t, 70, lines[models.CategoryRoads].Percentage)
	assert.Equal(t, 0, lines[models.CategoryOther].Percentage)
}

func TestOverdueIssues_OrderLimitAndRedaction(t *testing.T) {
	var gs []models.Grievance
	for d := 8; d <= 15; d++ { // 8 overdue grievances
		gs = append(gs, grievance(models.StatusOpen, float64(d)+0.5))
	}
	gs[7].Description = "Call me at 98765 43210 or mail a@b.com"
	gs = append(gs,
		grievance(models.StatusOpen, 7.5),     // age 7 days: not overdue
		grievance(models.StatusResolved, 30),  // settled
		grievance(models.StatusBlocked, 30),   // not open or in-progress
	)

	top := OverdueIssues(gs, now, ReportOverdueLimit)
	require.Len(t, top, 6)
	assert.Equal(t, 15, top[0].DaysOpen)
	for i := 1; i < len(top); i++ {
		assert.GreaterOrEqual(t, top[i-1].DaysOpen, top[i].DaysOpen)
	}
	assert.NotContains(t, top[0].Description, "98765")
	assert.NotContains(t, top[0].Description, "a@b.com")
	assert.True(t, top[0].Overdue)

	all := OverdueIssues(gs, now, 0)
	assert.Len(t, all, 8)
}

func TestSnapshot_People(t *testing.T) {
	g := grievance(models.StatusInProgress, 2)
	g.Filer = &models.User{ID: uuid.New(), Name: "Asha", Email: "asha@example.com"}
	g.Assignee = &models.User{ID: uuid.New(), Name: "Ravi"}

	s := Snapshot(&g, now)

	require.NotNil(t, s.Filer)
	assert.Equal(t, "Asha", s.Filer.Name)
	assert.Equal(t, "Ravi", s.Assignee.Name)
	assert.Equal(t, 2, s.DaysOpen)
	assert.False(t, s.Overdue)
}

func TestMonthlyTrends_ZeroFilled(t *testing.T) {
	may := resolvedAfter(40, 30) // filed early May, resolved early June
	june := grievance(models.StatusOpen, 3)

	out := MonthlyTrends([]models.Grievance{may, june}, now, 3)

	require.Len(t, out, 3)
	assert.Equal(t, MonthTrend{Month: "2025-04"}, out[0])
	assert.Equal(t, MonthTrend{Month: "2025-05", Filed: 1}, out[1])
	assert.Equal(t, MonthTrend{Month: "2025-06", Filed: 1, Resolved: 1}, out[2])
}

func TestOfficerStats(t *testing.T) {
	ravi := &models.User{ID: uuid.New(), Name: "Ravi"}
	meera := &models.User{ID: uuid.New(), Name: "Meera"}
	assign := func(g models.Grievance, u *models.User) models.Grievance {
		g.AssignedToID = &u.ID
		g.Assignee = u
		return g
	}
	gs := []models.Grievance{
		assign(resolvedAfter(10, 2), ravi),
		assign(resolvedAfter(10, 4), ravi),
		assign(grievance(models.StatusOpen, 9), ravi),
		assign(grievance(models.StatusOpen, 1), meera),
		grievance(models.StatusOpen, 1),
	}

	out := OfficerStats(gs, now)

	require.Len(t, out, 2)
	assert.Equal(t, "Ravi", out[0].Officer.Name)
	assert.Equal(t, 3, out[0].Assigned)
	assert.Equal(t, 2, out[0].Resolved)
	assert.Equal(t, 1, out[0].Overdue)
	assert.Equal(t, 3.0, out[0].AvgResolutionDays)
	assert.Equal(t, "Meera", out[1].Officer.Name)
}

func TestWriteCSV(t *testing.T) {
	g := resolvedAfter(3, 1)
	g.Title = `Leak, "urgent"`
	g.Description = "private details"

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []models.Grievance{g}, now))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, exportHeader, rows[0])
	assert.Equal(t, `Leak, "urgent"`, rows[1][1])
	assert.Equal(t, "resolved", rows[1][4])
	assert.NotContains(t, buf.String(), "private details")
}
