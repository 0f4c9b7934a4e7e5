// Package lifecycle guards the status transitions of a single unit of work
// (a rename item or a scrape item) as it moves through scan, match, scrape and
// rename stages.
//
// Every persisted status change must pass Assert first. The transition table is
// a DAG with a small number of retry edges out of the failure states so an item
// can be re-run without being re-scanned.
package lifecycle

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Status is the per-item workflow state.
type Status string

const (
	StatusPending           Status = "pending"
	StatusScanned           Status = "scanned"
	StatusScraping          Status = "scraping"
	StatusMatching          Status = "matching"
	StatusScraped           Status = "scraped"
	StatusMatched           Status = "matched"
	StatusParsed            Status = "parsed"
	StatusNeedsConfirmation Status = "needs_confirmation"
	StatusRenaming          Status = "renaming"
	StatusRenamed           Status = "renamed"
	StatusScrapeFailed      Status = "scrape_failed"
	StatusRenameFailed      Status = "rename_failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusScanned,
	StatusScraping,
	StatusMatching,
	StatusScraped,
	StatusMatched,
	StatusParsed,
	StatusNeedsConfirmation,
	StatusRenaming,
	StatusRenamed,
	StatusScrapeFailed,
	StatusRenameFailed,
}

// transitions lists the legal outgoing edges of every status.
// scrape_failed -> scanned and rename_failed -> renaming|scanned are the retry edges.
var transitions = map[Status][]Status{
	StatusPending:           {StatusScanned, StatusScrapeFailed, StatusRenameFailed},
	StatusScanned:           {StatusScraping, StatusMatching, StatusScrapeFailed, StatusRenameFailed},
	StatusScraping:          {StatusScraped, StatusScrapeFailed},
	StatusMatching:          {StatusMatched, StatusParsed, StatusNeedsConfirmation, StatusRenameFailed},
	StatusScraped:           {StatusRenaming, StatusRenameFailed},
	StatusMatched:           {StatusRenaming, StatusRenameFailed},
	StatusParsed:            {StatusRenaming, StatusRenameFailed},
	StatusNeedsConfirmation: {StatusParsed, StatusRenameFailed},
	StatusRenaming:          {StatusRenamed, StatusRenameFailed},
	StatusRenamed:           {},
	StatusScrapeFailed:      {StatusScanned},
	StatusRenameFailed:      {StatusRenaming, StatusScanned},
}

// ErrInvalidTransition is matched by every *TransitionError via errors.Is.
var ErrInvalidTransition = errors.New("invalid state transition")

// TransitionError reports a transition that is not in the table.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}

// ErrorCode classifies the error for persistence alongside the item.
func (e *TransitionError) ErrorCode() string { return "invalid_state_transition" }

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether s has no outgoing edges.
func (s Status) Terminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// Failed reports whether s is one of the failure states.
func (s Status) Failed() bool {
	return s == StatusScrapeFailed || s == StatusRenameFailed
}

// CanTransition reports whether from -> to is legal. Same-state is always legal.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Assert returns a *TransitionError when from -> to is not allowed.
func Assert(from, to Status) error {
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// Next returns the legal targets of s in a stable order.
func Next(s Status) []Status {
	out := append([]Status(nil), transitions[s]...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Reachable reports whether target can be reached from pending.
func Reachable(target Status) bool {
	seen := map[Status]bool{StatusPending: true}
	queue := []Status{StatusPending}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == target {
			return true
		}
		for _, next := range transitions[cur] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// All returns every known status.
func All() []Status {
	return append([]Status(nil), allStatuses...)
}

// Parse converts a stored string back to a Status.
func Parse(s string) (Status, error) {
	st := Status(strings.TrimSpace(strings.ToLower(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

// Guard performs a compare-and-set transition. read loads the persisted
// status immediately before the write; write must apply the change only while
// the stored status still equals from (UPDATE ... WHERE status = ?). The
// status that was read is returned even when the transition is refused.
func Guard(read func() (Status, error), to Status, write func(from Status) error) (Status, error) {
	from, err := read()
	if err != nil {
		return "", err
	}
	if err := Assert(from, to); err != nil {
		return from, err
	}
	return from, write(from)
}
