package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/ooak-quotation-api/internal/dto"
)

type runnerStub struct {
	calls       int32
	err         error
	partial     bool
	hadDeadline int32
}

func (r *runnerStub) Run(ctx context.Context, now time.Time) (*dto.OverdueScanReport, error) {
	atomic.AddInt32(&r.calls, 1)
	if _, ok := ctx.Deadline(); ok {
		atomic.StoreInt32(&r.hadDeadline, 1)
	}
	if r.err != nil {
		return nil, r.err
	}
	return &dto.OverdueScanReport{RanAt: now, Partial: r.partial}, nil
}

func TestOverdueSchedulerTicksUntilCancelled(t *testing.T) {
	runner := &runnerStub{}
	scheduler := NewOverdueScheduler(runner, 10*time.Millisecond, time.Second, nil)
	ctx, cancel := context.WithCancel(context.Background())

	scheduler.Start(ctx)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&runner.calls) >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	scheduler.Wait()

	calls := atomic.LoadInt32(&runner.calls)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, atomic.LoadInt32(&runner.calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&runner.hadDeadline))
}

func TestOverdueSchedulerRunOnce(t *testing.T) {
	runner := &runnerStub{}
	scheduler := NewOverdueScheduler(runner, 0, 0, nil)
	report := scheduler.RunOnce(context.Background())
	require.NotNil(t, report)
	assert.Equal(t, int32(0), atomic.LoadInt32(&runner.hadDeadline))

	runner.err = errors.New("db down")
	assert.Nil(t, scheduler.RunOnce(context.Background()))

	scheduler.Start(context.Background())
	scheduler.Wait()
}

func TestOverdueSchedulerWarnsOnPartialRun(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	scheduler := NewOverdueScheduler(&runnerStub{partial: true}, 0, 0, zap.New(core))

	report := scheduler.RunOnce(context.Background())
	require.NotNil(t, report)
	assert.True(t, report.Partial)
	assert.Equal(t, 1, logs.FilterMessageSnippet("interrupted").Len())
}
