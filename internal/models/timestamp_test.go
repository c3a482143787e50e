package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampUnmarshal(t *testing.T) {
	want := time.Date(2023, 8, 15, 14, 30, 25, 0, time.UTC)
	for _, in := range []string{
		`"2023-08-15T14:30:25"`,
		`"2023-08-15T14:30:25Z"`,
		`"2023-08-15T16:30:25+02:00"`,
		`"2023-08-15 14:30:25"`,
	} {
		var ts Timestamp
		require.NoError(t, json.Unmarshal([]byte(in), &ts), in)
		assert.True(t, want.Equal(ts.Time), in)
		assert.Equal(t, time.UTC, ts.Location(), in)
	}

	var frac Timestamp
	require.NoError(t, json.Unmarshal([]byte(`"2023-08-15T14:30:25.5"`), &frac))
	assert.Equal(t, 500*time.Millisecond, time.Duration(frac.Nanosecond()))
}

func TestTimestampRejectsGarbage(t *testing.T) {
	for _, in := range []string{`"15/08/2023"`, `""`, `20230815`} {
		var ts Timestamp
		assert.Error(t, json.Unmarshal([]byte(in), &ts), in)
	}
}

func TestTimestampNull(t *testing.T) {
	var rec ExifRecord
	require.NoError(t, json.Unmarshal([]byte(`{"has_exif":true,"datetime":null}`), &rec))
	assert.Nil(t, rec.CapturedAt)
	assert.Nil(t, rec.Captured())
}

func TestTimestampMarshal(t *testing.T) {
	loc := time.FixedZone("CEST", 2*60*60)
	out, err := json.Marshal(Classification{DateTaken: NewTimestamp(time.Date(2023, 8, 15, 16, 30, 25, 0, loc))})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"date_taken":"2023-08-15T14:30:25Z"`)

	var back Classification
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, 2023, back.DateTaken.Year())
}
