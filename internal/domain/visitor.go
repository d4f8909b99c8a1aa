package domain

import (
	"fmt"
	"time"
)

// TimestampLayout is the ISO-8601 layout used for persisted visit instants
const TimestampLayout = time.RFC3339Nano

// VisitorRecord is the persisted analytics state owned by the visitor store
type VisitorRecord struct {
	Count      int64    `json:"count"`
	Timestamps []string `json:"timestamps"`
}

// NewVisitorRecord returns the empty record used on first access and after a reset
func NewVisitorRecord() *VisitorRecord {
	return &VisitorRecord{
		Count:      0,
		Timestamps: []string{},
	}
}

// Append records one visit at the given instant
func (r *VisitorRecord) Append(now time.Time) {
	r.Timestamps = append(r.Timestamps, FormatTimestamp(now))
	r.Count++
}

// Validate checks that count and timestamps agree
func (r *VisitorRecord) Validate() error {
	if r.Count < 0 {
		return fmt.Errorf("negative visitor count %d", r.Count)
	}
	if int64(len(r.Timestamps)) != r.Count {
		return fmt.Errorf("visitor count %d does not match %d timestamps", r.Count, len(r.Timestamps))
	}
	return nil
}

// Clone returns a deep copy so callers never share the store's slice
func (r *VisitorRecord) Clone() *VisitorRecord {
	timestamps := make([]string, len(r.Timestamps))
	copy(timestamps, r.Timestamps)
	return &VisitorRecord{
		Count:      r.Count,
		Timestamps: timestamps,
	}
}

// FormatTimestamp renders a visit instant in UTC
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// VisitorStats represents the read-only view served to the analytics page
type VisitorStats struct {
	Count      int64      `json:"count"`
	Timestamps []string   `json:"timestamps"`
	FirstVisit *time.Time `json:"first_visit,omitempty"`
	LastVisit  *time.Time `json:"last_visit,omitempty"`
}

// NewVisitorStats builds stats from a record snapshot
func NewVisitorStats(record *VisitorRecord) *VisitorStats {
	snapshot := record.Clone()
	stats := &VisitorStats{
		Count:      snapshot.Count,
		Timestamps: snapshot.Timestamps,
	}

	if len(snapshot.Timestamps) > 0 {
		if first, err := time.Parse(TimestampLayout, snapshot.Timestamps[0]); err == nil {
			stats.FirstVisit = &first
		}
		if last, err := time.Parse(TimestampLayout, snapshot.Timestamps[len(snapshot.Timestamps)-1]); err == nil {
			stats.LastVisit = &last
		}
	}

	return stats
}
