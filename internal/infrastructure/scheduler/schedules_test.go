package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntervalScheduleNext(t *testing.T) {
	s := Every(30 * time.Second)
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, now.Add(30*time.Second), s.Next(now))
	assert.Equal(t, "every 30s", s.String())
}

func TestCronScheduleNext(t *testing.T) {
	s, err := Cron("*/10 * * * *")
	require.NoError(t, err)

	now := time.Date(2025, 3, 1, 10, 3, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 10, 0, 0, time.UTC), s.Next(now))
	assert.Equal(t, "cron */10 * * * *", s.String())
}

func TestCronRejectsInvalidExpression(t *testing.T) {
	_, err := Cron("not a cron line")
	assert.Error(t, err)
}

func TestMustCronPanicsOnInvalid(t *testing.T) {
	assert.Panics(t, func() { MustCron("definitely broken") })
	assert.NotPanics(t, func() { MustCron("0 3 * * *") })
}
