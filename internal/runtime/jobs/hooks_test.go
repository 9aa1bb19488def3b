package jobs

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/jetflow/internal/runtime/logging"
)

func TestHooksMergeOrder(t *testing.T) {
	var calls []string
	a := Hooks{
		OnJobStart: func(JobInfo) { calls = append(calls, "a.start") },
		OnJobError: func(JobInfo, error) { calls = append(calls, "a.error") },
	}
	b := Hooks{
		OnJobStart: func(JobInfo) { calls = append(calls, "b.start") },
		OnJobDone:  func(JobInfo) { calls = append(calls, "b.done") },
	}
	merged := a.Merge(b)
	merged.start(JobInfo{})
	merged.done(JobInfo{})
	merged.failed(JobInfo{}, errors.New("x"))
	merged.retry(JobInfo{}, time.Second)
	merged.exhausted(JobInfo{}, true)
	merged.unresolved("A", errors.New("x"))

	assert.Equal(t, []string{"a.start", "b.start", "b.done", "a.error"}, calls)
}

func TestMetricsHooks(t *testing.T) {
	var got []string
	record := func(kind string) func(class, stream string) {
		return func(class, stream string) { got = append(got, kind+":"+class+"@"+stream) }
	}
	h := MetricsHooks(record("start"), record("done"), record("error"))
	info := JobInfo{Class: "MyJob", Stream: "default"}
	h.start(info)
	h.done(info)
	h.failed(info, errors.New("x"))
	assert.Equal(t, []string{"start:MyJob@default", "done:MyJob@default", "error:MyJob@default"}, got)
}

func TestLoggingHooks(t *testing.T) {
	rec := logging.NewRecorder()
	h := LoggingHooks(rec)
	h.retry(JobInfo{JID: "1", Class: "MyJob", Attempt: 1}, 16*time.Second)
	h.exhausted(JobInfo{JID: "1", Class: "MyJob", Attempt: 4}, true)

	retry := rec.Find("job retry scheduled")
	require.Len(t, retry, 1)
	assert.Equal(t, "16s", retry[0].Fields["delay"])

	dead := rec.Find("job retries exhausted")
	require.Len(t, dead, 1)
	assert.Equal(t, true, dead[0].Fields["dead_letter"])
}

func TestAlertingHooks(t *testing.T) {
	var alerted error
	h := AlertingHooks(func(_ JobInfo, err error) { alerted = err })
	h.failed(JobInfo{}, errors.New("boom"))
	assert.EqualError(t, alerted, "boom")
}
