package updates

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairpm/fair-go/internal/registry"
)

type fakeRescanner struct {
	calls   atomic.Int32
	err     error
	block   chan struct{}
	started chan struct{}
}

func (f *fakeRescanner) Rescan() (*registry.ScanResult, error) {
	f.calls.Add(1)
	if f.started != nil {
		close(f.started)
		f.started = nil
	}
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	return &registry.ScanResult{}, nil
}

func TestJob_RunOnce(t *testing.T) {
	e := newEnv(t)
	e.addPlugin(t, didNewer, "newer", "1.0.0")
	e.src.docs[didNewer] = metadata(didNewer, "newer", "1.2.0", nil)

	scanner := &fakeRescanner{}
	job := NewJob(e.checker, scanner)

	assert.Nil(t, job.Last(registry.KindPlugin))
	require.True(t, job.RunOnce(context.Background()))
	assert.EqualValues(t, 1, scanner.calls.Load())

	plugins := job.Last(registry.KindPlugin)
	require.NotNil(t, plugins)
	assert.Contains(t, plugins.Response, "newer/newer.php")

	themes := job.Last(registry.KindTheme)
	require.NotNil(t, themes)
	assert.Empty(t, themes.Response)
}

func TestJob_RunOnceScanFailureStillSweeps(t *testing.T) {
	e := newEnv(t)
	e.addPlugin(t, didNewer, "newer", "1.0.0")
	e.src.docs[didNewer] = metadata(didNewer, "newer", "1.2.0", nil)

	job := NewJob(e.checker, &fakeRescanner{err: errors.New("permission denied")})
	require.True(t, job.RunOnce(context.Background()))
	assert.Contains(t, job.Last(registry.KindPlugin).Response, "newer/newer.php")
}

func TestJob_RunOnceSkipsWhileRunning(t *testing.T) {
	e := newEnv(t)
	scanner := &fakeRescanner{block: make(chan struct{}), started: make(chan struct{})}
	started := scanner.started
	job := NewJob(e.checker, scanner)

	done := make(chan bool)
	go func() { done <- job.RunOnce(context.Background()) }()
	<-started

	assert.False(t, job.RunOnce(context.Background()), "overlapping runs are skipped")
	close(scanner.block)
	assert.True(t, <-done)
}

func TestJob_StartStop(t *testing.T) {
	e := newEnv(t)
	scanner := &fakeRescanner{}
	job := NewJob(e.checker, scanner)

	job.Start(context.Background(), time.Hour)
	require.Eventually(t, func() bool { return scanner.calls.Load() == 1 }, time.Second, 10*time.Millisecond)
	job.Stop()
	assert.NotNil(t, job.Last(registry.KindPlugin))
}

type panicRescanner struct {
	calls atomic.Int32
}

func (p *panicRescanner) Rescan() (*registry.ScanResult, error) {
	if p.calls.Add(1) == 1 {
		panic("scan exploded")
	}
	return &registry.ScanResult{}, nil
}

func TestJob_SurvivesPanickingSweep(t *testing.T) {
	e := newEnv(t)
	scanner := &panicRescanner{}
	job := NewJob(e.checker, scanner)

	job.Start(context.Background(), 20*time.Millisecond)
	require.Eventually(t, func() bool { return job.Last(registry.KindPlugin) != nil }, 2*time.Second, 10*time.Millisecond)
	job.Stop()
	assert.GreaterOrEqual(t, scanner.calls.Load(), int32(2))
}

func TestJob_StopTwice(t *testing.T) {
	e := newEnv(t)
	job := NewJob(e.checker, &fakeRescanner{})
	job.Start(context.Background(), time.Hour)

	job.Stop()
	assert.NotPanics(t, job.Stop)
}
