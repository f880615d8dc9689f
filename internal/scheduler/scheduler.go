package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LJTian/TransitAlerts/internal/pipeline"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// 延迟执行首轮采集，避免进程刚启动时与存储连接建立争抢
const defaultStartupDelay = 15 * time.Second

// Runner 一次完整的采集入库
type Runner interface {
	Run(ctx context.Context) (pipeline.Result, error)
}

type Scheduler struct {
	cron         *cron.Cron
	runner       Runner
	timeout      time.Duration
	startupDelay time.Duration

	// ctx 在 Stop 时取消，所有运行（定时、首轮、手动）都从它派生
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	stopped  bool
	timer    *time.Timer
	inFlight sync.WaitGroup

	running atomic.Bool
	last    atomic.Pointer[pipeline.Result]
}

func New(spec string, runner Runner, timeout time.Duration) (*Scheduler, error) {
	c := cron.New()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		cron:         c,
		runner:       runner,
		timeout:      timeout,
		startupDelay: defaultStartupDelay,
		ctx:          ctx,
		cancel:       cancel,
	}

	_, err := c.AddFunc(spec, s.runOnce)
	if err != nil {
		cancel()
		return nil, err
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.cron.Start()
	s.timer = time.AfterFunc(s.startupDelay, s.runOnce)
}

// Stop 停止调度，取消正在执行的任务并等待其退出；返回后不会再有任务访问存储
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()

	s.cancel()
	<-s.cron.Stop().Done()
	s.inFlight.Wait()
}

// RunOnce 对外暴露的单次执行入口，方便手动触发采集；上一轮未结束或已停止时直接跳过
func (s *Scheduler) RunOnce() (pipeline.Result, bool, error) {
	return s.run()
}

// Last 最近一次成功结束的运行统计
func (s *Scheduler) Last() *pipeline.Result {
	return s.last.Load()
}

func (s *Scheduler) runOnce() {
	_, _, _ = s.run()
}

// begin 登记一次运行；Stop 之后返回 false
func (s *Scheduler) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.inFlight.Add(1)
	return true
}

func (s *Scheduler) run() (res pipeline.Result, ran bool, err error) {
	if !s.begin() {
		zap.L().Info("scheduler stopped, skip collect job")
		return pipeline.Result{}, false, nil
	}
	defer s.inFlight.Done()

	if !s.running.CompareAndSwap(false, true) {
		zap.L().Warn("previous collect job still running, skip")
		return pipeline.Result{}, false, nil
	}
	defer s.running.Store(false)

	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	zap.L().Info("start collect job")
	res, err = s.runner.Run(ctx)
	if err != nil {
		zap.L().Error("collect job failed", zap.String("run_id", res.RunID), zap.Error(err))
		return res, true, err
	}
	s.last.Store(&res)
	zap.L().Info("collect job done", zap.String("run_id", res.RunID), zap.Int("saved", res.Saved))
	return res, true, nil
}
