package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"video-forge/app/config"
	"video-forge/app/logger"
	"video-forge/app/videoapi"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logger.Logger {
	return logger.New(config.LogConfig{Level: "error", Format: "text", Output: "stdout"})
}

// fakePoller 按预设序列返回轮询结果，越界后重复最后一个
type fakePoller struct {
	mu      sync.Mutex
	results []videoapi.PollResult
	err     error
	calls   int
	times   []time.Time
}

func (f *fakePoller) PollOne(apiKey, taskID string) (videoapi.PollResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.times = append(f.times, time.Now())
	idx := f.calls
	f.calls++
	if f.err != nil {
		return videoapi.PollResult{}, f.err
	}
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	return f.results[idx], nil
}

func (f *fakePoller) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestNextInterval(t *testing.T) {
	policy := DefaultPollPolicy()

	// 前三次保持初始间隔，之后按 1.6 倍递增
	current := policy.InitialInterval
	var sequence []time.Duration
	for attempt := 1; attempt <= 10; attempt++ {
		current = nextInterval(attempt, current, policy)
		sequence = append(sequence, current)
	}

	assert.Equal(t, 3*time.Second, sequence[0])
	assert.Equal(t, 3*time.Second, sequence[1])
	assert.Equal(t, 3*time.Second, sequence[2])
	assert.Equal(t, 4800*time.Millisecond, sequence[3])
	assert.Equal(t, 7680*time.Millisecond, sequence[4])

	// 单调不减且不超过上限，最终停在上限
	for i := 1; i < len(sequence); i++ {
		assert.GreaterOrEqual(t, sequence[i], sequence[i-1])
		assert.LessOrEqual(t, sequence[i], policy.MaxInterval)
	}
	assert.Equal(t, policy.MaxInterval, sequence[len(sequence)-1])
}

func TestSchedulerStopsOnSuccess(t *testing.T) {
	poller := &fakePoller{results: []videoapi.PollResult{
		{State: videoapi.PollSucceeded, VideoURL: "https://cdn.example.com/v.mp4"},
	}}

	var mu sync.Mutex
	var got []videoapi.PollResult

	sched := NewPollScheduler("t1", "key", poller,
		PollPolicy{InitialInterval: 10 * time.Millisecond, MaxInterval: 50 * time.Millisecond, MaxWait: time.Second},
		testLogger(),
		func(taskID string, result videoapi.PollResult) {
			mu.Lock()
			got = append(got, result)
			mu.Unlock()
		},
		func(taskID string) { t.Error("不应触发超时") },
	)

	sched.Start()
	select {
	case <-sched.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("调度器未在预期时间内退出")
	}

	assert.Equal(t, SchedulerSucceeded, sched.State())
	assert.Equal(t, 1, poller.callCount())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, "https://cdn.example.com/v.mp4", got[0].VideoURL)
}

func TestSchedulerStopsOnFailure(t *testing.T) {
	poller := &fakePoller{results: []videoapi.PollResult{
		{State: videoapi.PollInProgress},
		{State: videoapi.PollFailed, Reason: "内容审核未通过"},
	}}

	sched := NewPollScheduler("t1", "key", poller,
		PollPolicy{InitialInterval: 10 * time.Millisecond, MaxInterval: 50 * time.Millisecond, MaxWait: time.Second},
		testLogger(),
		func(string, videoapi.PollResult) {},
		func(string) { t.Error("不应触发超时") },
	)

	sched.Start()
	select {
	case <-sched.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("调度器未在预期时间内退出")
	}

	assert.Equal(t, SchedulerFailed, sched.State())
	assert.Equal(t, 2, poller.callCount())
}

func TestSchedulerTimeout(t *testing.T) {
	poller := &fakePoller{results: []videoapi.PollResult{
		{State: videoapi.PollInProgress},
	}}

	var timeouts int
	var mu sync.Mutex

	sched := NewPollScheduler("t1", "key", poller,
		PollPolicy{InitialInterval: 10 * time.Millisecond, MaxInterval: 20 * time.Millisecond, MaxWait: 50 * time.Millisecond},
		testLogger(),
		func(string, videoapi.PollResult) {},
		func(taskID string) {
			mu.Lock()
			timeouts++
			mu.Unlock()
			assert.Equal(t, "t1", taskID)
		},
	)

	sched.Start()
	select {
	case <-sched.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("调度器未在预期时间内退出")
	}

	assert.Equal(t, SchedulerTimedOut, sched.State())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, timeouts)
}

func TestSchedulerFirstPollImmediate(t *testing.T) {
	poller := &fakePoller{results: []videoapi.PollResult{
		{State: videoapi.PollSucceeded},
	}}

	sched := NewPollScheduler("t1", "key", poller,
		PollPolicy{InitialInterval: 10 * time.Second, MaxInterval: 30 * time.Second, MaxWait: time.Minute},
		testLogger(),
		func(string, videoapi.PollResult) {},
		func(string) {},
	)

	start := time.Now()
	sched.Start()
	select {
	case <-sched.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("调度器未在预期时间内退出")
	}

	// 初始间隔 10 秒，但第一次轮询不等待
	assert.Less(t, time.Since(start), time.Second)
}

func TestSchedulerTransportErrorKeepsAttempt(t *testing.T) {
	poller := &fakePoller{err: errors.New("connection refused")}

	sched := NewPollScheduler("t1", "key", poller,
		PollPolicy{InitialInterval: 10 * time.Millisecond, MaxInterval: 20 * time.Millisecond, MaxWait: time.Minute},
		testLogger(),
		func(string, videoapi.PollResult) {},
		func(string) {},
	)

	sched.Start()
	defer sched.Stop()

	// 等待若干次失败的轮询
	require.Eventually(t, func() bool { return poller.callCount() >= 3 },
		2*time.Second, 5*time.Millisecond)

	// 传输层错误不推进退避：间隔保持初始值
	assert.Equal(t, 0, sched.attemptCount())
	assert.Equal(t, 10*time.Millisecond, sched.currentInterval())
	assert.Equal(t, SchedulerPolling, sched.State())
}

func TestSchedulerStopDiscardsResult(t *testing.T) {
	poller := &fakePoller{results: []videoapi.PollResult{
		{State: videoapi.PollInProgress},
	}}

	sched := NewPollScheduler("t1", "key", poller,
		PollPolicy{InitialInterval: 50 * time.Millisecond, MaxInterval: 100 * time.Millisecond, MaxWait: time.Minute},
		testLogger(),
		func(string, videoapi.PollResult) {},
		func(string) { t.Error("停止后不应触发超时") },
	)

	sched.Start()
	sched.Stop()

	select {
	case <-sched.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("调度器未在预期时间内退出")
	}
}

func TestSchedulerProgressBounds(t *testing.T) {
	policy := DefaultPollPolicy()
	sched := NewPollScheduler("t1", "key", &fakePoller{}, policy, testLogger(),
		func(string, videoapi.PollResult) {}, func(string) {})

	// 未启动时进度为下界
	assert.Equal(t, 30, sched.Progress())

	// 耗时过半
	sched.mu.Lock()
	sched.startTime = time.Now().Add(-policy.MaxWait / 2)
	sched.mu.Unlock()
	progress := sched.Progress()
	assert.GreaterOrEqual(t, progress, 30)
	assert.LessOrEqual(t, progress, 75)

	// 超过最长等待后封顶
	sched.mu.Lock()
	sched.startTime = time.Now().Add(-2 * policy.MaxWait)
	sched.mu.Unlock()
	assert.Equal(t, 75, sched.Progress())
}
