package usage

import (
	"context"
	"strings"
	"time"
)

// DefaultMonthlyLimit is the number of feedback requests a user may consume
// per calendar month.
const DefaultMonthlyLimit = 30

// Record is one user's consumption for one calendar month.
type Record struct {
	Used  int `json:"used"`
	Limit int `json:"limit"`
}

// Remaining returns how many requests are left this month.
func (r Record) Remaining() int {
	if r.Limit < r.Used {
		return 0
	}
	return r.Limit - r.Used
}

// Ledger maps a lowercased user identifier to per-month records. It is the
// in-memory image of the whole remote usage document.
type Ledger map[string]map[string]Record

// Store persists the full ledger document. There is no partial-update API:
// Save replaces the entire document, last writer wins.
type Store interface {
	Load(ctx context.Context) (Ledger, error)
	Save(ctx context.Context, l Ledger) error
}

// MonthKey returns the UTC calendar-month key ("2006-01") for t.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// NormalizeUser lowercases a user identifier before any ledger access.
func NormalizeUser(userID string) string {
	return strings.ToLower(strings.TrimSpace(userID))
}

// resolve returns the record for (user, month), creating it lazily with
// used=0 and the given limit. Records persisted with a zero limit are
// upgraded to the configured limit.
func (l Ledger) resolve(user, month string, limit int) Record {
	months, ok := l[user]
	if !ok {
		months = make(map[string]Record)
		l[user] = months
	}
	rec, ok := months[month]
	if !ok {
		rec = Record{Used: 0, Limit: limit}
		months[month] = rec
	}
	if rec.Limit <= 0 {
		rec.Limit = limit
		months[month] = rec
	}
	return rec
}
