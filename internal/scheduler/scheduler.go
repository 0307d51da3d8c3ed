// Package scheduler 周期性扫描到期的定时消息并交给 Hub 投递。
package scheduler

import (
	"context"
	"time"

	"github.com/dilwearus-ops/neochat-server/internal/clock"
	"github.com/dilwearus-ops/neochat-server/internal/models"

	"github.com/rs/zerolog/log"
)

const batchSize = 100

// Queue 是 Dispatcher 需要的持久化操作，store.Store 满足该接口。
type Queue interface {
	DueScheduled(ctx context.Context, now time.Time, limit int) ([]models.ScheduledMessage, error)
	MarkScheduledSent(ctx context.Context, id uint) (bool, error)
}

// Deliverer 把一条到期消息按实时消息的路径投递，ws.Hub 满足该接口。
type Deliverer interface {
	DeliverScheduled(ctx context.Context, sm models.ScheduledMessage) error
}

type Dispatcher struct {
	queue    Queue
	deliver  Deliverer
	clock    clock.Clock
	interval time.Duration
}

func New(q Queue, d Deliverer, c clock.Clock, interval time.Duration) *Dispatcher {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Dispatcher{queue: q, deliver: d, clock: c, interval: interval}
}

// Run 每个周期执行一次 Tick，直到 ctx 结束。
func (d *Dispatcher) Run(ctx context.Context) {
	t := d.clock.NewTicker(d.interval)
	defer t.Stop()
	log.Info().Dur("interval", d.interval).Msg("scheduled message dispatcher started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			d.Tick(ctx)
		}
	}
}

// Tick 投递当前到期的消息，返回本次投递成功的数量。
// 每一行先被标记为已发送，只有标记成功的一方负责投递；投递失败的消息不会重试。
func (d *Dispatcher) Tick(ctx context.Context) int {
	rows, err := d.queue.DueScheduled(ctx, d.clock.Now(), batchSize)
	if err != nil {
		log.Error().Err(err).Msg("load due scheduled messages")
		return 0
	}
	delivered := 0
	for _, sm := range rows {
		claimed, err := d.queue.MarkScheduledSent(ctx, sm.ID)
		if err != nil {
			log.Error().Err(err).Uint("scheduled_id", sm.ID).Msg("claim scheduled message")
			continue
		}
		if !claimed {
			continue
		}
		if err := d.deliver.DeliverScheduled(ctx, sm); err != nil {
			log.Warn().Err(err).Uint("scheduled_id", sm.ID).Str("sender", sm.Sender).Msg("deliver scheduled message")
			continue
		}
		delivered++
	}
	if delivered > 0 {
		log.Debug().Int("count", delivered).Msg("scheduled messages delivered")
	}
	return delivered
}
