package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_TryStartRejectsConcurrentRuns(t *testing.T) {
	r := NewRegistry()

	job, ok := r.TryStart()
	require.True(t, ok)
	require.NotNil(t, job)
	assert.Equal(t, JobRunning, job.Status)
	assert.True(t, r.Running())

	second, ok := r.TryStart()
	assert.False(t, ok)
	assert.Nil(t, second)
}

func TestRegistry_FinishRecordsOutcome(t *testing.T) {
	r := NewRegistry()
	job, _ := r.TryStart()

	stats := &Stats{TradesSaved: 5, DepositsSaved: 2}
	r.Finish(job, stats, false)

	assert.False(t, r.Running())

	status := r.Status()
	require.NotNil(t, status)
	assert.Equal(t, JobCompleted, status.Status)
	assert.Equal(t, 7, status.TotalRecords)
	require.NotNil(t, status.FinishedAt)
	assert.WithinDuration(t, time.Now().UTC(), *status.FinishedAt, time.Minute)

	// A new run can start once the previous one finished.
	_, ok := r.TryStart()
	assert.True(t, ok)
}

func TestRegistry_FailedRunKeepsErrors(t *testing.T) {
	r := NewRegistry()
	job, _ := r.TryStart()

	r.Finish(job, &Stats{Errors: []string{"trades: boom"}}, true)

	status := r.Status()
	require.NotNil(t, status)
	assert.Equal(t, JobFailed, status.Status)
	assert.Equal(t, []string{"trades: boom"}, status.Errors)
}

func TestRegistry_StatusIsNilBeforeFirstRun(t *testing.T) {
	r := NewRegistry()
	assert.Nil(t, r.Status())
	assert.False(t, r.Running())
}

func TestRegistry_StatusReturnsCopy(t *testing.T) {
	r := NewRegistry()
	job, _ := r.TryStart()

	status := r.Status()
	status.Status = JobFailed

	assert.Equal(t, JobRunning, job.Status)
	assert.Equal(t, JobRunning, r.Status().Status)
}

func TestStats_TotalRecords(t *testing.T) {
	stats := &Stats{
		BalancesSaved:    1,
		PricesSaved:      2,
		TradesSaved:      3,
		DepositsSaved:    4,
		WithdrawalsSaved: 5,
		FiatOrdersSaved:  6,
	}
	assert.Equal(t, 21, stats.TotalRecords())
	assert.False(t, stats.HasErrors())

	stats.Errors = append(stats.Errors, "prices: boom")
	assert.True(t, stats.HasErrors())
}
