package timespan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		input string
		want  time.Duration
	}{
		{"7.00:00:00", 7 * 24 * time.Hour},
		{"00:05:00", 5 * time.Minute},
		{"01:30", time.Hour + 30*time.Minute},
		{"1.02:03:04", 26*time.Hour + 3*time.Minute + 4*time.Second},
		{"00:00:01.5", 1500 * time.Millisecond},
		{"00:00:00.0000001", 100 * time.Nanosecond},
		{"-00:01:00", -time.Minute},
		{"7", 7 * 24 * time.Hour},
		{"90s", 90 * time.Second},
		{"1h30m", 90 * time.Minute},
		{"  00:00:10  ", 10 * time.Second},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := Parse(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	testCases := []string{
		"",
		"abc",
		"24:00:00",
		"00:60:00",
		"00:00:60",
		"1:2:3:4",
		"x.00:00:00",
		"00:00:01.",
		"00:00:01.12345678",
		"00:aa:00",
	}

	for _, tc := range testCases {
		t.Run(tc, func(t *testing.T) {
			_, err := Parse(tc)
			assert.ErrorIs(t, err, ErrInvalidFormat)
		})
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "7.00:00:00", Format(7*24*time.Hour))
	assert.Equal(t, "00:05:00", Format(5*time.Minute))
	assert.Equal(t, "1.02:03:04", Format(26*time.Hour+3*time.Minute+4*time.Second))
	assert.Equal(t, "-00:01:00", Format(-time.Minute))

	// 往返一致
	d := 3*24*time.Hour + 4*time.Hour + 5*time.Second
	parsed, err := Parse(Format(d))
	require.NoError(t, err)
	assert.Equal(t, d, parsed)
}
