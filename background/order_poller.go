package background

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"kaspi-bot/infra"
	"kaspi-bot/metrics"
	"kaspi-bot/model"
	"kaspi-bot/service"
	"kaspi-bot/utils"
)

// OrderSource 是輪詢需要的訂單來源
type OrderSource interface {
	FetchOrders(ctx context.Context, filter model.OrderFilter) ([]model.Order, error)
}

// Notifier 是輪詢的通知出口
type Notifier interface {
	NotifyOrder(order *model.Order, c service.Classification) bool
	NotifyText(text string)
}

// ProductTracker 記錄商品的最近成單時間，供沉睡商品判斷
type ProductTracker interface {
	TouchLastOrder(ctx context.Context, productName string, orderedAt time.Time)
}

// OrderPoller 週期性掃描 Kaspi 訂單並把需要動作的訂單推給操作者。
// Start / Stop 可由聊天指令隨時切換
type OrderPoller struct {
	logger   zerolog.Logger
	source   OrderSource
	notifier Notifier
	tracker  ProductTracker // 可為 nil

	interval     time.Duration
	lookbackDays int
	fetchTimeout time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewOrderPoller(logger zerolog.Logger, source OrderSource, notifier Notifier, tracker ProductTracker, interval time.Duration, lookbackDays int) *OrderPoller {
	if interval <= 0 {
		interval = time.Hour
	}
	if lookbackDays <= 0 {
		lookbackDays = 3
	}
	return &OrderPoller{
		logger:       logger.With().Str("service", "order_poller").Logger(),
		source:       source,
		notifier:     notifier,
		tracker:      tracker,
		interval:     interval,
		lookbackDays: lookbackDays,
		fetchTimeout: 2 * time.Minute,
	}
}

// Start 啟動輪詢，已在執行時不做事
func (p *OrderPoller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		p.logger.Warn().Msg("訂單輪詢已在執行中")
		return
	}
	p.running = true

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.run(ctx)

	p.logger.Info().
		Dur("interval", p.interval).
		Int("lookback_days", p.lookbackDays).
		Msg("🚀 訂單輪詢已啟動")
}

// Stop 停止輪詢並等待當前週期結束
func (p *OrderPoller) Stop() {
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
	p.logger.Info().Msg("訂單輪詢已停止")
}

// IsRunning 回報輪詢是否執行中
func (p *OrderPoller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *OrderPoller) run(ctx context.Context) {
	defer close(p.done)

	// 啟動後先跑一輪，不等第一個 tick
	p.safeCycle(ctx)

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

// safeCycle 包住單一輪詢週期的 panic，輪詢迴圈不因單次失敗中斷
func (p *OrderPoller) safeCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordPollCycle("panic")
			p.logger.Error().Interface("panic", r).Msg("輪詢週期 panic，已恢復")
		}
	}()
	p.RunCycle(ctx)
}

// pollFilters 回傳每輪要掃描的訂單條件
func (p *OrderPoller) pollFilters(now time.Time) []model.OrderFilter {
	from := utils.LookbackFrom(now, p.lookbackDays)
	return []model.OrderFilter{
		{State: model.OrderStateNew, CreatedFrom: from, CreatedTo: now},
		{State: model.OrderStateDelivery, Status: model.OrderStatusAcceptedByMerchant, CreatedFrom: from, CreatedTo: now},
		{State: model.OrderStateKaspiDelivery, Status: model.OrderStatusAcceptedByMerchant, CreatedFrom: from, CreatedTo: now},
	}
}

// RunCycle 執行一輪掃描。抓取失敗只對操作者報一次錯，不會讓同一輪的
// 其他條件停止掃描
func (p *OrderPoller) RunCycle(ctx context.Context) {
	ctx, span := infra.StartSpan(ctx, "OrderPoller.RunCycle")
	defer span.End()

	start := time.Now()
	notified := 0
	fetchErrors := 0
	var firstErr error

	for _, filter := range p.pollFilters(start) {
		fetchCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
		orders, err := p.source.FetchOrders(fetchCtx, filter)
		cancel()

		if err != nil {
			fetchErrors++
			if firstErr == nil {
				firstErr = err
			}
			p.logger.Error().Err(err).
				Str("state", string(filter.State)).
				Msg("訂單抓取失敗")
			continue
		}

		for i := range orders {
			order := &orders[i]

			// 已交給物流士的訂單不需要操作者做任何事
			if order.State == model.OrderStateKaspiDelivery && order.HandedToCourier() {
				continue
			}

			c := service.Classify(order)
			if p.notifier.NotifyOrder(order, c) {
				notified++
				p.touchProducts(ctx, order)
			}
		}
	}

	elapsed := time.Since(start)

	switch {
	case fetchErrors > 0:
		metrics.RecordPollCycle("error")
		infra.RecordError(span, firstErr)
		p.notifier.NotifyText(service.OperatorMessage(firstErr))
	case notified == 0:
		metrics.RecordPollCycle("success")
		infra.MarkSuccess(span)
		p.notifier.NotifyText("📭 Новых заказов нет.")
	default:
		metrics.RecordPollCycle("success")
		infra.MarkSuccess(span)
	}

	p.logger.Info().
		Int("notified", notified).
		Int("fetch_errors", fetchErrors).
		Dur("elapsed", elapsed).
		Msg("輪詢週期完成")
}

// touchProducts 把訂單內的商品記為近期有成單
func (p *OrderPoller) touchProducts(ctx context.Context, order *model.Order) {
	if p.tracker == nil {
		return
	}
	for _, item := range order.LineItems {
		p.tracker.TouchLastOrder(ctx, item.Name, order.CreatedAt)
	}
}
