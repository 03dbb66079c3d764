package background

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"kaspi-bot/service"
)

// PricePoller 週期性跑比價與沉睡商品檢查，只在有狀況時通知
type PricePoller struct {
	logger   zerolog.Logger
	prices   *service.PriceService
	notifier Notifier

	interval     time.Duration
	sleepingDays int

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewPricePoller(logger zerolog.Logger, prices *service.PriceService, notifier Notifier, interval time.Duration, sleepingDays int) *PricePoller {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	if sleepingDays <= 0 {
		sleepingDays = 10
	}
	return &PricePoller{
		logger:       logger.With().Str("service", "price_poller").Logger(),
		prices:       prices,
		notifier:     notifier,
		interval:     interval,
		sleepingDays: sleepingDays,
	}
}

func (p *PricePoller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		p.logger.Warn().Msg("比價輪詢已在執行中")
		return
	}
	p.running = true

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.run(ctx)

	p.logger.Info().Dur("interval", p.interval).Msg("🚀 比價輪詢已啟動")
}

func (p *PricePoller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()

	cancel()
	<-done
	p.logger.Info().Msg("比價輪詢已停止")
}

func (p *PricePoller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *PricePoller) run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.safeCycle(ctx)
		}
	}
}

func (p *PricePoller) safeCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Interface("panic", r).Msg("比價週期 panic，已恢復")
		}
	}()
	p.RunCycle(ctx)
}

// RunCycle 跑一輪比價與沉睡商品檢查，一切正常時不打擾操作者
func (p *PricePoller) RunCycle(ctx context.Context) {
	alerts, err := p.prices.CheckPrices(ctx)
	if err != nil {
		p.logger.Error().Err(err).Msg("比價失敗")
	} else if len(alerts) > 0 {
		p.notifier.NotifyText(service.FormatPriceAlerts(alerts))
	}

	sleeping, err := p.prices.CheckSleeping(ctx, p.sleepingDays)
	if err != nil {
		p.logger.Error().Err(err).Msg("沉睡商品檢查失敗")
	} else if len(sleeping) > 0 {
		p.notifier.NotifyText(service.FormatSleepingProducts(sleeping, p.sleepingDays))
	}
}
