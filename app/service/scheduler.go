package service

import (
	"context"
	"sync"
	"time"

	"video-forge/app/logger"
	"video-forge/app/videoapi"
)

// Poller 轮询接口，由远程客户端实现
type Poller interface {
	PollOne(apiKey, taskID string) (videoapi.PollResult, error)
}

// SchedulerState 调度器状态
type SchedulerState int

const (
	SchedulerIdle      SchedulerState = iota // 未启动
	SchedulerPolling                         // 轮询中
	SchedulerSucceeded                       // 远端成功，已停止
	SchedulerFailed                          // 远端失败，已停止
	SchedulerTimedOut                        // 等待超时，已停止
)

// PollPolicy 轮询退避策略
type PollPolicy struct {
	InitialInterval time.Duration // 初始间隔
	MaxInterval     time.Duration // 间隔上限
	MaxWait         time.Duration // 单任务最长等待
}

// DefaultPollPolicy 默认策略：3 秒起步，1.6 倍递增，上限 30 秒，总计最多等 300 秒
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		InitialInterval: 3 * time.Second,
		MaxInterval:     30 * time.Second,
		MaxWait:         300 * time.Second,
	}
}

// backoffFactor 间隔递增系数
const backoffFactor = 1.6

// nextInterval 计算下一次轮询间隔
// attempt 为已完成的轮询次数：前三次保持初始间隔，短任务能快速拿到结果；
// 之后按系数递增并封顶，长任务不会持续高频请求
func nextInterval(attempt int, current time.Duration, policy PollPolicy) time.Duration {
	if attempt <= 3 {
		return policy.InitialInterval
	}
	next := time.Duration(float64(current) * backoffFactor)
	if next > policy.MaxInterval {
		next = policy.MaxInterval
	}
	return next
}

// PollScheduler 单任务轮询调度器
// 每个未完成任务各持有一个实例，串行轮询：上一次请求返回前不会发起下一次
type PollScheduler struct {
	taskID string
	apiKey string
	poller Poller
	policy PollPolicy
	log    *logger.Logger

	// onResult 在每次轮询返回后调用（包括非终态），终态结果触发后调度停止
	onResult func(taskID string, result videoapi.PollResult)
	// onTimeout 在超过 MaxWait 仍未终态时调用一次
	onTimeout func(taskID string)

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	state     SchedulerState
	startTime time.Time
	attempt   int
	interval  time.Duration
}

// NewPollScheduler 创建调度器
func NewPollScheduler(
	taskID, apiKey string,
	poller Poller,
	policy PollPolicy,
	log *logger.Logger,
	onResult func(taskID string, result videoapi.PollResult),
	onTimeout func(taskID string),
) *PollScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &PollScheduler{
		taskID:    taskID,
		apiKey:    apiKey,
		poller:    poller,
		policy:    policy,
		log:       log,
		onResult:  onResult,
		onTimeout: onTimeout,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     SchedulerIdle,
	}
}

// Start 启动轮询，第一次轮询立即发出，不等待初始间隔
// 超时时钟从 Start 被调用的时刻起算
func (s *PollScheduler) Start() {
	s.mu.Lock()
	if s.state != SchedulerIdle {
		s.mu.Unlock()
		return
	}
	s.state = SchedulerPolling
	s.startTime = time.Now()
	s.attempt = 0
	s.interval = s.policy.InitialInterval
	s.mu.Unlock()

	go s.run()
}

// Stop 停止调度，取消挂起的定时器；已发出的请求返回后被丢弃
func (s *PollScheduler) Stop() {
	s.cancel()
}

// Done 调度循环退出后关闭
func (s *PollScheduler) Done() <-chan struct{} {
	return s.done
}

// State 当前状态
func (s *PollScheduler) State() SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Elapsed 自启动以来经过的时间
func (s *PollScheduler) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startTime.IsZero() {
		return 0
	}
	return time.Since(s.startTime)
}

// Remaining 距离超时剩余的时间
func (s *PollScheduler) Remaining() time.Duration {
	remaining := s.policy.MaxWait - s.Elapsed()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Progress 展示用的进度估计，取值 [30,75]，随耗时单调不减
// 仅供界面显示，不参与任何正确性判断
func (s *PollScheduler) Progress() int {
	elapsed := s.Elapsed()
	progress := 30 + int(float64(elapsed)/float64(s.policy.MaxWait)*45)
	if progress > 75 {
		progress = 75
	}
	if progress < 30 {
		progress = 30
	}
	return progress
}

func (s *PollScheduler) setState(state SchedulerState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// run 轮询主循环
func (s *PollScheduler) run() {
	defer close(s.done)

	for {
		// 超时判定在每次轮询前进行
		if s.Elapsed() > s.policy.MaxWait {
			s.setState(SchedulerTimedOut)
			s.log.Warnf("任务轮询超时: TaskID=%s, 已等待 %.0fs", s.taskID, s.Elapsed().Seconds())
			s.onTimeout(s.taskID)
			return
		}

		result, err := s.poller.PollOne(s.apiKey, s.taskID)

		// 取消后返回的结果不再应用
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		if err != nil {
			// 传输层错误：保持当前间隔继续，不计入退避次数
			s.log.Warnf("轮询请求失败，将继续重试: TaskID=%s, Error=%v", s.taskID, err)
		} else {
			switch result.State {
			case videoapi.PollSucceeded:
				s.setState(SchedulerSucceeded)
				s.onResult(s.taskID, result)
				return
			case videoapi.PollFailed:
				s.setState(SchedulerFailed)
				s.onResult(s.taskID, result)
				return
			default:
				// 处理中或未知状态：更新退避参数后继续
				s.mu.Lock()
				s.attempt++
				s.interval = nextInterval(s.attempt, s.interval, s.policy)
				interval := s.interval
				s.mu.Unlock()

				s.onResult(s.taskID, result)
				s.log.Debugf("任务处理中: TaskID=%s, 第 %d 次轮询, 下次间隔 %v",
					s.taskID, s.attemptCount(), interval)
			}
		}

		timer := time.NewTimer(s.currentInterval())
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *PollScheduler) attemptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

func (s *PollScheduler) currentInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}
