package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSchedule() *Schedule {
	return &Schedule{
		Recommendations: []Recommendation{
			{Datetime: "2025-12-01 03:00", Region: "europe-north1", Priority: 1},
			{Datetime: "2025-12-01 14:00", Region: "europe-west1", Priority: 2},
			{Datetime: "2025-12-01 19:00", Region: "us-east1", Priority: 3},
		},
	}
}

func TestRestampToDayPreservesHourAndRanking(t *testing.T) {
	schedule := sampleSchedule()
	today := time.Date(2025, 12, 9, 16, 35, 0, 0, time.UTC)

	require.NoError(t, schedule.RestampToDay(today))

	assert.Equal(t, "2025-12-09 03:00", schedule.Recommendations[0].Datetime)
	assert.Equal(t, "2025-12-09 14:00", schedule.Recommendations[1].Datetime)
	assert.Equal(t, "2025-12-09 19:00", schedule.Recommendations[2].Datetime)

	// Ranking is untouched.
	assert.Equal(t, 1, schedule.Recommendations[0].Priority)
	assert.Equal(t, "europe-north1", schedule.Recommendations[0].Region)
}

func TestBestReturnsPriorityOne(t *testing.T) {
	schedule := sampleSchedule()
	// Shuffle so Best cannot rely on position.
	schedule.Recommendations[0], schedule.Recommendations[2] = schedule.Recommendations[2], schedule.Recommendations[0]

	best, ok := schedule.Best()
	require.True(t, ok)
	assert.Equal(t, 1, best.Priority)
	assert.Equal(t, "europe-north1", best.Region)

	empty := &Schedule{}
	_, ok = empty.Best()
	assert.False(t, ok)
}

func TestTopNSortsAndLimits(t *testing.T) {
	schedule := sampleSchedule()
	schedule.Recommendations[0], schedule.Recommendations[1] = schedule.Recommendations[1], schedule.Recommendations[0]

	top := schedule.TopN(2)
	require.Len(t, top, 2)
	assert.Equal(t, 1, top[0].Priority)
	assert.Equal(t, 2, top[1].Priority)

	// TopN does not mutate the schedule's own ordering.
	assert.Equal(t, 2, schedule.Recommendations[0].Priority)
}

func TestInjectFunctionURL(t *testing.T) {
	schedule := sampleSchedule()
	schedule.InjectFunctionURL("https://fn.example.run")

	for _, rec := range schedule.Recommendations {
		assert.Equal(t, "https://fn.example.run", rec.FunctionURL)
	}
}

func TestSlotTimeParsesUTC(t *testing.T) {
	rec := Recommendation{Datetime: "2025-12-01 03:00"}
	at, err := rec.SlotTime()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 12, 1, 3, 0, 0, 0, time.UTC), at)

	bad := Recommendation{Datetime: "01.12.2025 03:00"}
	_, err = bad.SlotTime()
	assert.Error(t, err)
}
