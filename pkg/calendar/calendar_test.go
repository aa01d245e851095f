package calendar_test

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codeshape/pkg/calendar"
)

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()

	parsed, err := calendar.Parse(s)
	require.NoError(t, err)

	return parsed
}

func TestAddMonths(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		from string
		n    int
		want string
	}{
		{name: "same year", from: "2024-11-19", n: 1, want: "2024-12-19"},
		{name: "year rollover", from: "2024-12-19", n: 1, want: "2025-01-19"},
		{name: "clamp to february", from: "2023-01-31", n: 1, want: "2023-02-28"},
		{name: "clamp to leap february", from: "2024-01-31", n: 1, want: "2024-02-29"},
		{name: "clamp to thirty days", from: "2024-03-31", n: 1, want: "2024-04-30"},
		{name: "backwards over year", from: "2025-01-19", n: -1, want: "2024-12-19"},
		{name: "backwards clamp", from: "2024-03-31", n: -1, want: "2024-02-29"},
		{name: "many months", from: "2020-06-15", n: 30, want: "2022-12-15"},
		{name: "zero", from: "2020-06-15", n: 0, want: "2020-06-15"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := calendar.AddMonths(mustParse(t, tt.from), tt.n)
			assert.Equal(t, tt.want, calendar.Key(got))
		})
	}
}

func TestNext_Advances(t *testing.T) {
	t.Parallel()

	next, err := calendar.Next(mustParse(t, "2024-12-19"))
	require.NoError(t, err)
	assert.Equal(t, "2025-01-19", calendar.Key(next))
}

func TestPrevious(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "2024-10-19", calendar.Key(calendar.Previous(mustParse(t, "2024-11-19"))))
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	_, err := calendar.Parse("19/11/2024")
	require.ErrorIs(t, err, calendar.ErrInvalidDate)
}

func TestToday_TruncatesToDate(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 4, 17, 30, 0, 0, time.UTC)
	assert.Equal(t, "2025-03-04", calendar.Key(calendar.Today(now)))
	assert.True(t, calendar.Today(now).Equal(mustParse(t, "2025-03-04")))
}

func TestDaysIn(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 29, calendar.DaysIn(2024, time.February))
	assert.Equal(t, 28, calendar.DaysIn(2100, time.February))
	assert.Equal(t, 31, calendar.DaysIn(2024, time.December))
}

func TestAddMonths_Properties(t *testing.T) {
	t.Parallel()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500

	properties := gopter.NewProperties(parameters)

	base := time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC)
	dayGen := gen.IntRange(0, 365*60)

	properties.Property("one month forward is strictly later", prop.ForAll(
		func(offset int) bool {
			d := base.AddDate(0, 0, offset)
			next, err := calendar.Next(d)

			return err == nil && next.After(d)
		},
		dayGen,
	))

	properties.Property("one month forward lands in the following month", prop.ForAll(
		func(offset int) bool {
			d := base.AddDate(0, 0, offset)
			next := calendar.AddMonths(d, 1)

			return (int(next.Month())-int(d.Month())+12)%12 == 1
		},
		dayGen,
	))

	properties.Property("day is kept unless clamped", prop.ForAll(
		func(offset int) bool {
			d := base.AddDate(0, 0, offset)
			next := calendar.AddMonths(d, 1)

			return next.Day() == d.Day() || next.Day() == calendar.DaysIn(next.Year(), next.Month())
		},
		dayGen,
	))

	properties.TestingRun(t)
}
