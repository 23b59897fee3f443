package civil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paris(t *testing.T) *time.Location {
	loc, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	return loc
}

func TestParseDateKey(t *testing.T) {
	d, err := ParseDateKey("20240603")
	require.NoError(t, err)
	assert.Equal(t, DateKey(20240603), d)

	for _, bad := range []string{"", "2024063", "202406030", "2024-06-03", "abcdefgh"} {
		_, err := ParseDateKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestDateKeyAt(t *testing.T) {
	loc := paris(t)

	// 2024-06-03 23:30 UTC is already June 4th in Paris (UTC+2).
	unix := time.Date(2024, 6, 3, 23, 30, 0, 0, time.UTC).Unix()
	assert.Equal(t, DateKey(20240604), DateKeyAt(unix, loc))

	// 2024-01-15 23:30 UTC is January 16th in Paris (UTC+1).
	unix = time.Date(2024, 1, 15, 23, 30, 0, 0, time.UTC).Unix()
	assert.Equal(t, DateKey(20240116), DateKeyAt(unix, loc))
}

func TestUnixPlainDay(t *testing.T) {
	loc := paris(t)

	// 08:00 local on a summer day is 06:00 UTC.
	unix := Unix(DateKey(20240603), 8*3600, loc)
	assert.Equal(t, time.Date(2024, 6, 3, 6, 0, 0, 0, time.UTC).Unix(), unix)

	// Hours past 24 land on the next civil day.
	unix = Unix(DateKey(20240603), 25*3600, loc)
	assert.Equal(t, time.Date(2024, 6, 3, 23, 0, 0, 0, time.UTC).Unix(), unix)
}

func TestUnixSpringForward(t *testing.T) {
	loc := paris(t)

	// On 2024-03-31 Paris jumps from 02:00 to 03:00. The offset at
	// midnight is +1, but 05:00 local resolves with the +2 offset.
	unix := Unix(DateKey(20240331), 5*3600, loc)
	assert.Equal(t, time.Date(2024, 3, 31, 3, 0, 0, 0, time.UTC).Unix(), unix)

	// Before the transition the +1 offset holds.
	unix = Unix(DateKey(20240331), 1*3600, loc)
	assert.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC).Unix(), unix)
}

func TestUnixFallBack(t *testing.T) {
	loc := paris(t)

	// On 2024-10-27 Paris falls back from 03:00 to 02:00. 05:00
	// local is 04:00 UTC (+1), not 03:00 (+2).
	unix := Unix(DateKey(20241027), 5*3600, loc)
	assert.Equal(t, time.Date(2024, 10, 27, 4, 0, 0, 0, time.UTC).Unix(), unix)
}

func TestCandidateDateKeys(t *testing.T) {
	loc := paris(t)

	// A short midday window stays within one civil day but still
	// includes its neighbors.
	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC).Unix()
	keys := CandidateDateKeys(now, now+3600, loc)
	assert.Equal(t, []DateKey{20240602, 20240603, 20240604}, keys)

	// A window spanning local midnight covers four days.
	now = time.Date(2024, 6, 3, 21, 0, 0, 0, time.UTC).Unix() // 23:00 local
	keys = CandidateDateKeys(now, now+2*3600, loc)
	assert.Equal(t, []DateKey{20240602, 20240603, 20240604, 20240605}, keys)
}

func TestParseLocalDateTime(t *testing.T) {
	loc := paris(t)

	unix, err := ParseLocalDateTime("2024-06-03T08:30", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 3, 6, 30, 0, 0, time.UTC).Unix(), unix)

	unix, err = ParseLocalDateTime("2024-06-03T08:30:15", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 3, 6, 30, 15, 0, time.UTC).Unix(), unix)

	for _, bad := range []string{"", "2024-06-03", "08:30", "2024-06-03 08:30", "2024-06-03T08:30:15Z"} {
		_, err := ParseLocalDateTime(bad, loc)
		assert.Error(t, err, bad)
	}
}
