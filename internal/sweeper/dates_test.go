package sweeper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDatedPath(t *testing.T) {
	tests := []struct {
		path string
		want RetentionDir
		ok   bool
	}{
		{"tmp/2024/01/10", RetentionDir{Path: "tmp/2024/01/10", Year: 2024, Month: 1, Day: 10}, true},
		{"tmp/2024/01/10/nested/deeper", RetentionDir{Path: "tmp/2024/01/10", Year: 2024, Month: 1, Day: 10}, true},
		{"tmp/2024/13/40", RetentionDir{Path: "tmp/2024/13/40", Year: 2024, Month: 13, Day: 40}, true},
		{"tmp/2024/01", RetentionDir{}, false},
		{"tmp/2024/01/100", RetentionDir{}, false},
		{"tmp/uploads", RetentionDir{}, false},
		{"other/tmp/2024/01/10", RetentionDir{}, false},
	}

	for _, tt := range tests {
		got, ok := ParseDatedPath("tmp", tt.path)
		assert.Equal(t, tt.ok, ok, tt.path)
		assert.Equal(t, tt.want, got, tt.path)
	}
}

func TestRetentionDirDate(t *testing.T) {
	d, err := RetentionDir{Year: 2024, Month: 2, Day: 29}.Date(time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), d)

	for _, bad := range []RetentionDir{
		{Year: 2023, Month: 2, Day: 29},
		{Year: 2024, Month: 13, Day: 1},
		{Year: 2024, Month: 1, Day: 32},
		{Year: 2024, Month: 0, Day: 10},
		{Year: 2024, Month: 1, Day: 0},
	} {
		_, err := bad.Date(time.UTC)
		assert.ErrorIs(t, err, ErrInvalidDate, "%+v", bad)
	}
}

func TestCutoff(t *testing.T) {
	now := time.Date(2024, 1, 12, 17, 45, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC), Cutoff(now, 1))
	assert.Equal(t, time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC), Cutoff(now, 0))
	assert.Equal(t, time.Date(2023, 12, 13, 0, 0, 0, 0, time.UTC), Cutoff(now, 30))
}

func TestIntermediateDirectories(t *testing.T) {
	p := newDatePattern("tmp")
	assert.True(t, p.intermediate("tmp/2024"))
	assert.True(t, p.intermediate("tmp/2024/01"))
	assert.False(t, p.intermediate("tmp/2024/misc"))
	assert.False(t, p.intermediate("tmp/uploads"))
}

func TestExpiredIntermediateDirectories(t *testing.T) {
	p := newDatePattern("tmp")
	cutoff := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, p.expired("tmp/2023", cutoff))
	assert.True(t, p.expired("tmp/2024/02", cutoff), "February ends exactly at the cutoff")
	assert.False(t, p.expired("tmp/2024/03", cutoff))
	assert.False(t, p.expired("tmp/2024", cutoff))
	assert.False(t, p.expired("tmp/2023/00", cutoff))
	assert.False(t, p.expired("tmp/2023/13", cutoff))
	assert.False(t, p.expired("tmp/2023/01/05", cutoff))
	assert.False(t, p.expired("tmp/misc", cutoff))
}
