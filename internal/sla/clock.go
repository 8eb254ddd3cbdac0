// Package sla computes approval-request due dates and escalation tiers, and
// runs the background sweep that applies them to open requests.
package sla

import "time"

// Escalation levels. Levels only ever increase while a request stays open.
const (
	LevelNone     = 0
	LevelOverdue  = 1
	LevelCritical = 2
)

// criticalAfterDays is how many whole days past due a request must be before
// it reaches LevelCritical.
const criticalAfterDays = 14

// DueAt returns the SLA deadline for a request opened at openedAt.
func DueAt(openedAt time.Time, slaDays int) time.Time {
	return openedAt.Add(time.Duration(slaDays) * 24 * time.Hour)
}

// DaysOverdue returns the number of whole days now is past dueAt, clamped to
// zero. Clock skew that puts now before dueAt never yields a negative count.
func DaysOverdue(now, dueAt time.Time) int {
	if !now.After(dueAt) {
		return 0
	}
	return int(now.Sub(dueAt) / (24 * time.Hour))
}

// Level returns the escalation tier for an open request: LevelNone until the
// deadline passes, LevelOverdue for the first fortnight past due, and
// LevelCritical from the fourteenth whole day over.
func Level(now, dueAt time.Time) int {
	if !now.After(dueAt) {
		return LevelNone
	}
	if DaysOverdue(now, dueAt) >= criticalAfterDays {
		return LevelCritical
	}
	return LevelOverdue
}
