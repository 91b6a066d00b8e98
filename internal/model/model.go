// Package model defines domain entities used by services and repositories.
package model

import (
	"encoding/json"
	"time"
)

// Tokens collects the access token issued after a successful login.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // access token expiry (for diagnostics)
}

// ThrottleRecord is the failure state of a single throttle key.
// Timestamps are unix seconds; BlockedUntil == 0 means not blocked.
type ThrottleRecord struct {
	Attempts      int   `json:"attempts"`
	FirstFailedAt int64 `json:"first_failed_at"`
	BlockedUntil  int64 `json:"blocked_until"`
}

// Expired reports whether the record must no longer be visible at now.
// maxAge is window + lock, in seconds.
func (r ThrottleRecord) Expired(now, maxAge int64) bool {
	if r.BlockedUntil > 0 && r.BlockedUntil <= now {
		return true
	}
	return r.FirstFailedAt > 0 && now-r.FirstFailedAt > maxAge
}

// Blocked reports whether the record blocks the key at now.
func (r ThrottleRecord) Blocked(now int64) bool { return r.BlockedUntil > now }

// ThrottleSnapshot maps throttle keys to records. It is the whole persisted state.
type ThrottleSnapshot map[string]ThrottleRecord

// Prune deletes expired records in place.
func (s ThrottleSnapshot) Prune(now, maxAge int64) {
	for k, r := range s {
		if r.Expired(now, maxAge) {
			delete(s, k)
		}
	}
}

// UnmarshalJSON decodes leniently: entries that are not records are dropped
// instead of failing the whole snapshot.
func (s *ThrottleSnapshot) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(ThrottleSnapshot, len(raw))
	for k, v := range raw {
		if len(v) == 0 || v[0] != '{' {
			continue
		}
		var r ThrottleRecord
		if err := json.Unmarshal(v, &r); err != nil {
			continue
		}
		out[k] = r
	}
	*s = out
	return nil
}

// DecodeSnapshot parses a persisted snapshot. Empty or corrupt input yields an
// empty snapshot, never an error.
func DecodeSnapshot(b []byte) ThrottleSnapshot {
	if len(b) == 0 {
		return ThrottleSnapshot{}
	}
	var s ThrottleSnapshot
	if err := json.Unmarshal(b, &s); err != nil || s == nil {
		return ThrottleSnapshot{}
	}
	return s
}

// EncodeSnapshot renders the snapshot in its persisted form.
func EncodeSnapshot(s ThrottleSnapshot) ([]byte, error) {
	if len(s) == 0 {
		return []byte("{}"), nil
	}
	return json.MarshalIndent(s, "", "    ")
}

// EntryInput is normalized (trimmed) form input for a time entry.
type EntryInput struct {
	Date           string `json:"date"`
	ClientID       string `json:"client_id"`
	WorkCategoryID string `json:"work_category_id"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	Comment        string `json:"comment"`
}

// TimeEntry is a validated unit of work ready for persistence.
type TimeEntry struct {
	ID             int64
	ClientID       int64
	WorkCategoryID int64
	Date           time.Time // date only, UTC midnight
	StartTime      time.Time // time of day only
	EndTime        time.Time // time of day only
	Hours          float64
	Comment        *string
	CreatedAt      time.Time
}

// ClientHours is the total of recorded hours for one client in a period.
type ClientHours struct {
	ClientID   int64
	ClientName string
	Hours      float64
}

// HoursReport summarizes hours per client between two dates, inclusive.
type HoursReport struct {
	From       time.Time
	To         time.Time
	Summary    []ClientHours
	TotalHours float64 // rounded to two decimals
}

// APIKey is a stored machine credential. Only the sha256 of the raw key is kept.
type APIKey struct {
	ID       int64
	KeyHash  string
	Label    string
	IsActive bool
}
