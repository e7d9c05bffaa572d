// Package lifecycle owns the grievance state machine: status transitions,
// assignment, the upvote priority ratchet, cancellation requests and the
// overdue rule behind public escalation.
//
// Every operation mutates the grievance in memory only. Callers load the row
// under a lock, apply the engine, and persist the result.
package lifecycle

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aldoetobex/civic-grievance-backend/pkg/apperr"
	"github.com/aldoetobex/civic-grievance-backend/pkg/models"
)

const (
	// OverdueAfterDays is the age (in whole days) a grievance may reach while
	// unresolved before it is escalated publicly.
	OverdueAfterDays = 7

	HighPriorityUpvotes     = 25
	CriticalPriorityUpvotes = 50
)

var (
	reopenFrom = []models.Status{models.StatusResolved, models.StatusClosed}
	reopenTo   = []models.Status{models.StatusOpen, models.StatusInProgress}

	noUpvote  = []models.Status{models.StatusResolved, models.StatusClosed, models.StatusRejected}
	noCancel  = []models.Status{models.StatusResolved, models.StatusRejected, models.StatusCancelled}
	noAssign  = []models.Status{models.StatusResolved, models.StatusClosed, models.StatusRejected, models.StatusCancelled}
	unsettled = []models.Status{models.StatusOpen, models.StatusInProgress}
)

// Engine applies lifecycle rules using its clock for timestamps.
type Engine struct {
	now func() time.Time
}

// New returns an Engine. A nil clock means time.Now.
func New(clock func() time.Time) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{now: clock}
}

// Now reads the engine clock.
func (e *Engine) Now() time.Time { return e.now() }

// Transition moves g to next.
//
// Moving from resolved/closed back to open/in-progress counts as a reopen.
// The first move to resolved stamps ResolutionDate, which is never cleared.
// No other transition is refused.
func (e *Engine) Transition(g *models.Grievance, next models.Status) error {
	if !next.Valid() {
		return apperr.Validation("unknown status %q", next)
	}
	prev := g.Status

	if prev.In(reopenFrom...) && next.In(reopenTo...) {
		g.ReopenedCount++
	}
	if next == models.StatusResolved && g.ResolutionDate == nil {
		t := e.now()
		g.ResolutionDate = &t
	}
	g.Status = next
	return nil
}

// Assign hands g to assignee and marks work as started (status in-progress).
// Reassignment is allowed until the grievance is settled.
func (e *Engine) Assign(g *models.Grievance, assignee uuid.UUID) error {
	if g.Status.In(noAssign...) {
		return apperr.InvalidState("cannot assign a %s grievance", g.Status)
	}
	t := e.now()
	g.AssignedToID = &assignee
	g.AssignedAt = &t
	if g.FirstAssignedAt == nil {
		first := t
		g.FirstAssignedAt = &first
	}
	return e.Transition(g, models.StatusInProgress)
}

// Upvote records one vote by user and promotes priority at the thresholds.
// It reports whether the priority changed.
func (e *Engine) Upvote(g *models.Grievance, user uuid.UUID) (escalated bool, err error) {
	id := user.String()
	if slices.Contains(g.UpvotedBy, id) {
		return false, apperr.AlreadyUpvoted()
	}
	if g.Status.In(noUpvote...) {
		return false, apperr.InvalidState("cannot upvote a %s grievance", g.Status)
	}

	g.UpvotedBy = append(g.UpvotedBy, id)
	g.Upvotes++

	before := g.Priority
	g.Priority = RatchetPriority(g.Priority, g.Upvotes)
	return g.Priority != before, nil
}

// RatchetPriority returns the priority implied by upvotes. It never lowers p.
func RatchetPriority(p models.Priority, upvotes int) models.Priority {
	switch {
	case upvotes >= CriticalPriorityUpvotes:
		return models.PriorityCritical
	case upvotes >= HighPriorityUpvotes && p != models.PriorityHigh && p != models.PriorityCritical:
		return models.PriorityHigh
	}
	return p
}

// RequestCancellation attaches a pending cancellation request from the filer.
// A later request replaces an earlier one. Status is left unchanged.
func (e *Engine) RequestCancellation(g *models.Grievance, requester uuid.UUID, reason string) error {
	if requester != g.FilerID {
		return apperr.Forbidden("only the person who filed this grievance can request cancellation")
	}
	if g.Status.In(noCancel...) {
		return apperr.InvalidState("cannot cancel a %s grievance", g.Status)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return apperr.Validation("cancellation reason is required")
	}

	t := e.now()
	g.Cancellation = models.CancellationRequest{
		Reason:      reason,
		RequestedAt: &t,
		Status:      models.CancellationPending,
	}
	return nil
}

// DecideCancellation approves or rejects a pending request. Approval moves
// the grievance to cancelled.
func (e *Engine) DecideCancellation(g *models.Grievance, decider uuid.UUID, approve bool, note string) error {
	if g.Cancellation.Status != models.CancellationPending {
		return apperr.InvalidState("no pending cancellation request")
	}
	if approve && g.Status.In(noCancel...) {
		return apperr.InvalidState("cannot cancel a %s grievance", g.Status)
	}

	t := e.now()
	g.Cancellation.DecidedAt = &t
	g.Cancellation.DecidedBy = &decider
	g.Cancellation.Note = strings.TrimSpace(note)

	if !approve {
		g.Cancellation.Status = models.CancellationRejected
		return nil
	}
	g.Cancellation.Status = models.CancellationApproved
	return e.Transition(g, models.StatusCancelled)
}

// DaysOpen is the whole number of days since g was filed.
func DaysOpen(g *models.Grievance, now time.Time) int {
	d := now.Sub(g.CreatedAt)
	if d < 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}

// IsOverdue reports whether g is still unsettled after OverdueAfterDays.
func IsOverdue(g *models.Grievance, now time.Time) bool {
	return g.Status.In(unsettled...) && DaysOpen(g, now) > OverdueAfterDays
}
