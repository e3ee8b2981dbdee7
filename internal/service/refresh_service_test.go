package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/member-signups/internal/models"
)

type flakyRunner struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyRunner) Compute(_ context.Context, q SignupQuery) (*models.SignupResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("member service unavailable")
	}
	return &models.SignupResult{
		Signups: map[string]models.SignupSummary{"1001": {MemberNumber: "1001"}},
		Meta:    models.SignupMeta{MainEventCode: q.MainEventCode},
	}, nil
}

type recordingSink struct {
	saved     chan string
	published chan string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{saved: make(chan string, 4), published: make(chan string, 4)}
}

func (r *recordingSink) Save(_ context.Context, result *models.SignupResult) (*models.SignupSnapshot, error) {
	r.saved <- result.Meta.MainEventCode
	return &models.SignupSnapshot{ID: "snap"}, nil
}

func (r *recordingSink) Publish(_ context.Context, result *models.SignupResult) error {
	r.published <- result.Meta.MainEventCode
	return nil
}

func waitFor(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
		return ""
	}
}

func TestRefreshServiceRetriesAndPublishes(t *testing.T) {
	runner := &flakyRunner{failures: 1}
	sink := newRecordingSink()
	metrics := NewMetricsService()
	svc := NewRefreshService(runner, sink, metrics, RefreshConfig{MaxRetries: 2, RetryDelay: time.Millisecond, Persist: true}, zap.NewNop())
	svc.Start(context.Background())
	defer svc.Stop()

	id, err := svc.Enqueue(SignupQuery{MainEventCode: "14600"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	assert.Equal(t, "14600", waitFor(t, sink.saved))
	assert.Equal(t, "14600", waitFor(t, sink.published))
	assert.Equal(t, uint64(1), metrics.Snapshot().SignupRuns)
}

func TestRefreshServiceSchedule(t *testing.T) {
	sink := newRecordingSink()
	svc := NewRefreshService(&flakyRunner{}, sink, nil, RefreshConfig{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	svc.Schedule(ctx, time.Hour, SignupQuery{MainEventCode: "14600"}, SignupQuery{MainEventCode: "14700"})
	got := []string{waitFor(t, sink.published), waitFor(t, sink.published)}
	assert.ElementsMatch(t, []string{"14600", "14700"}, got)
}
