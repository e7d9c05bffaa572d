// Package budget aggregates the money spent on fixing grievances.
package budget

import (
	"math"
	"sort"
	"time"

	"github.com/aldoetobex/civic-grievance-backend/pkg/models"
)

// DefaultTrendMonths is the look-back window for Trends.
const DefaultTrendMonths = 6

type Totals struct {
	Allocated  int64   `json:"allocated"`
	Spent      int64   `json:"spent"`
	Efficiency float64 `json:"efficiency"`
}

type CategoryTotals struct {
	Allocated int64 `json:"allocated"`
	Spent     int64 `json:"spent"`
	Count     int   `json:"count"`
}

type OverviewResult struct {
	Total                Totals                              `json:"total"`
	ByCategory           map[models.Category]*CategoryTotals `json:"byCategory"`
	GrievancesWithBudget int                                 `json:"grievancesWithBudget"`
}

type MonthTotals struct {
	Month     string `json:"month"` // YYYY-MM
	Allocated int64  `json:"allocated"`
	Spent     int64  `json:"spent"`
	Count     int    `json:"count"`
}

// counted reports whether g contributes to Overview.
func counted(g *models.Grievance) bool {
	return g.Status.In(models.StatusResolved, models.StatusClosed) && g.Budget.Allocated > 0
}

func category(g *models.Grievance) models.Category {
	if g.Budget.Category.Valid() {
		return g.Budget.Category
	}
	return models.CategoryOther
}

// Efficiency is spent/allocated as a percentage rounded to two decimals.
func Efficiency(spent, allocated int64) float64 {
	if allocated <= 0 {
		return 0
	}
	return math.Round(float64(spent)/float64(allocated)*10000) / 100
}

// Overview totals settled grievances that had money allocated. Every
// category is present in ByCategory, zero-filled.
func Overview(gs []models.Grievance) OverviewResult {
	out := OverviewResult{ByCategory: make(map[models.Category]*CategoryTotals, len(models.Categories))}
	for _, c := range models.Categories {
		out.ByCategory[c] = &CategoryTotals{}
	}

	for i := range gs {
		g := &gs[i]
		if !counted(g) {
			continue
		}
		ct := out.ByCategory[category(g)]
		ct.Allocated += g.Budget.Allocated
		ct.Spent += g.Budget.Spent
		ct.Count++

		out.Total.Allocated += g.Budget.Allocated
		out.Total.Spent += g.Budget.Spent
		out.GrievancesWithBudget++
	}
	out.Total.Efficiency = Efficiency(out.Total.Spent, out.Total.Allocated)
	return out
}

// Trends groups budgeted grievances by the month of their resolution date,
// keeping those resolved at or after since. Months are ascending.
func Trends(gs []models.Grievance, since time.Time) []MonthTotals {
	byMonth := map[string]*MonthTotals{}
	for i := range gs {
		g := &gs[i]
		if g.ResolutionDate == nil || g.Budget.Allocated <= 0 || g.ResolutionDate.Before(since) {
			continue
		}
		key := g.ResolutionDate.UTC().Format("2006-01")
		m, ok := byMonth[key]
		if !ok {
			m = &MonthTotals{Month: key}
			byMonth[key] = m
		}
		m.Allocated += g.Budget.Allocated
		m.Spent += g.Budget.Spent
		m.Count++
	}

	out := make([]MonthTotals, 0, len(byMonth))
	for _, m := range byMonth {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}
