package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVisitorRecord_Append(t *testing.T) {
	record := NewVisitorRecord()
	require.NoError(t, record.Validate())

	t1 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	record.Append(t1)
	record.Append(t2)

	assert.Equal(t, int64(2), record.Count)
	assert.Equal(t, []string{FormatTimestamp(t1), FormatTimestamp(t2)}, record.Timestamps)
	assert.NoError(t, record.Validate())
}

func TestVisitorRecord_Validate(t *testing.T) {
	tests := []struct {
		name    string
		record  *VisitorRecord
		wantErr bool
	}{
		{name: "empty", record: NewVisitorRecord()},
		{name: "consistent", record: &VisitorRecord{Count: 1, Timestamps: []string{"2024-01-01T00:00:00Z"}}},
		{name: "count ahead of log", record: &VisitorRecord{Count: 2, Timestamps: []string{"2024-01-01T00:00:00Z"}}, wantErr: true},
		{name: "negative", record: &VisitorRecord{Count: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.record.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestVisitorRecord_CloneIsIndependent(t *testing.T) {
	record := NewVisitorRecord()
	record.Append(time.Now())

	clone := record.Clone()
	clone.Append(time.Now())

	assert.Equal(t, int64(1), record.Count)
	assert.Len(t, record.Timestamps, 1)
	assert.Len(t, clone.Timestamps, 2)
}

func TestNewVisitorStats(t *testing.T) {
	empty := NewVisitorStats(NewVisitorRecord())
	assert.Equal(t, int64(0), empty.Count)
	assert.Empty(t, empty.Timestamps)
	assert.Nil(t, empty.FirstVisit)
	assert.Nil(t, empty.LastVisit)

	first := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)
	last := first.Add(2 * time.Hour)
	record := NewVisitorRecord()
	record.Append(first)
	record.Append(last)

	stats := NewVisitorStats(record)
	assert.Equal(t, int64(2), stats.Count)
	require.NotNil(t, stats.FirstVisit)
	require.NotNil(t, stats.LastVisit)
	assert.True(t, first.Equal(*stats.FirstVisit))
	assert.True(t, last.Equal(*stats.LastVisit))
}
