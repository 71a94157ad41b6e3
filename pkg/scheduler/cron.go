package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Cron 基于 robfig/cron 的定时任务，任务 panic 会被恢复，
// 上一轮未结束时跳过本轮，保证慢任务不会堆积
type Cron struct {
	c      *cron.Cron
	loc    *time.Location
	ctx    context.Context
	cancel context.CancelFunc
}

func NewCron(loc *time.Location, lg *zap.Logger) *Cron {
	if loc == nil {
		loc = time.Local
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	cl := zapCronLogger{lg: lg.Sugar()}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	ctx, cancel := context.WithCancel(context.Background())
	return &Cron{c: c, loc: loc, ctx: ctx, cancel: cancel}
}

func (cr *Cron) Start() { cr.c.Start() }

// Stop cancels running jobs' context and waits for them to return.
func (cr *Cron) Stop() {
	cr.cancel()
	<-cr.c.Stop().Done()
}

func (cr *Cron) Add(expr string, job Job) (cron.EntryID, error) {
	return cr.c.AddFunc(expr, func() { job.Run(cr.ctx) })
}

func (cr *Cron) AddWithCtx(expr string, fn func(ctx context.Context)) (cron.EntryID, error) {
	return cr.Add(expr, FuncJob(fn))
}

func (cr *Cron) Entries() []cron.Entry { return cr.c.Entries() }

// Next returns the next activation of expr in the cron's location.
func (cr *Cron) Next(expr string, from time.Time) (time.Time, error) {
	s, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, err
	}
	return s.Next(from.In(cr.loc)), nil
}

type zapCronLogger struct{ lg *zap.SugaredLogger }

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.lg.Debugw("cron: "+msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.lg.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
