package service

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDailySpec(t *testing.T) {
	spec, err := buildDailySpec("09:05")
	require.NoError(t, err)
	assert.Equal(t, "0 5 9 * * *", spec)

	for _, bad := range []string{"9", "24:00", "12:60", "ab:cd", "1:2:3"} {
		_, err := buildDailySpec(bad)
		assert.Error(t, err, bad)
	}
}

func TestSchedulerService_Register(t *testing.T) {
	s := NewSchedulerService(time.UTC, nil)

	_, err := s.ScheduleInterval("digest", 0, func() {})
	assert.Error(t, err)
	_, err = s.ScheduleDaily("digest", "25:00", func() {})
	assert.Error(t, err)

	_, err = s.ScheduleDaily("digest", "08:30", func() {})
	require.NoError(t, err)
	_, err = s.ScheduleInterval("digest", 5*time.Hour, func() {})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Entries())
}

func TestSchedulerService_RunsIntervalJobs(t *testing.T) {
	s := NewSchedulerService(time.UTC, nil)
	var runs atomic.Int32
	_, err := s.ScheduleInterval("tick", time.Second, func() { runs.Add(1) })
	require.NoError(t, err)

	s.Start()
	defer s.Stop()
	assert.Eventually(t, func() bool { return runs.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
}
