package background

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"kaspi-bot/model"
	"kaspi-bot/service"
)

// fakeOrderSource 依 state 回傳固定訂單或錯誤
type fakeOrderSource struct {
	mu     sync.Mutex
	orders map[model.OrderState][]model.Order
	err    error
	calls  int
}

func (f *fakeOrderSource) FetchOrders(ctx context.Context, filter model.OrderFilter) ([]model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.orders[filter.State], nil
}

func (f *fakeOrderSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeNotifier 記錄通知並模擬去重
type fakeNotifier struct {
	mu       sync.Mutex
	notified map[string]bool
	orders   []string
	texts    []string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{notified: make(map[string]bool)}
}

func (f *fakeNotifier) NotifyOrder(order *model.Order, c service.Classification) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.notified[order.ID] {
		return false
	}
	f.notified[order.ID] = true
	f.orders = append(f.orders, order.ID)
	return true
}

func (f *fakeNotifier) NotifyText(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
}

func (f *fakeNotifier) snapshot() ([]string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.orders...), append([]string(nil), f.texts...)
}

func newTestPoller(source *fakeOrderSource, notifier *fakeNotifier) *OrderPoller {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout})
	return NewOrderPoller(logger, source, notifier, nil, time.Hour, 3)
}

// TestRunCycleNotifiesActionableOrders 一輪掃描把需要動作的訂單推給通知
func TestRunCycleNotifiesActionableOrders(t *testing.T) {
	source := &fakeOrderSource{orders: map[model.OrderState][]model.Order{
		model.OrderStateNew: {
			{ID: "n1", State: model.OrderStateNew},
		},
		model.OrderStateKaspiDelivery: {
			{ID: "k1", State: model.OrderStateKaspiDelivery},
		},
	}}
	notifier := newFakeNotifier()
	poller := newTestPoller(source, notifier)

	poller.RunCycle(context.Background())

	orders, texts := notifier.snapshot()
	if len(orders) != 2 {
		t.Fatalf("notified %d orders, want 2: %v", len(orders), orders)
	}
	if len(texts) != 0 {
		t.Errorf("no operator texts expected when orders were found: %v", texts)
	}
}

// TestRunCycleEmptyNotice 沒有任何可動作訂單時發一則空週期通知
func TestRunCycleEmptyNotice(t *testing.T) {
	source := &fakeOrderSource{orders: map[model.OrderState][]model.Order{}}
	notifier := newFakeNotifier()
	poller := newTestPoller(source, notifier)

	poller.RunCycle(context.Background())

	_, texts := notifier.snapshot()
	if len(texts) != 1 {
		t.Fatalf("got %d texts, want exactly one empty-cycle notice: %v", len(texts), texts)
	}
}

// TestRunCycleSkipsHandedToCourier 已交付物流士的訂單不通知
func TestRunCycleSkipsHandedToCourier(t *testing.T) {
	now := time.Now()
	source := &fakeOrderSource{orders: map[model.OrderState][]model.Order{
		model.OrderStateKaspiDelivery: {
			{ID: "done", State: model.OrderStateKaspiDelivery, CourierHandoffAt: &now},
		},
	}}
	notifier := newFakeNotifier()
	poller := newTestPoller(source, notifier)

	poller.RunCycle(context.Background())

	orders, _ := notifier.snapshot()
	if len(orders) != 0 {
		t.Errorf("handed-over orders should not be notified: %v", orders)
	}
}

// TestRunCycleFetchErrorSingleMessage 抓取失敗時只報一次錯，不發空週期通知
func TestRunCycleFetchErrorSingleMessage(t *testing.T) {
	source := &fakeOrderSource{err: &model.APIError{Kind: model.APIErrorTimeout, Op: "list_orders"}}
	notifier := newFakeNotifier()
	poller := newTestPoller(source, notifier)

	poller.RunCycle(context.Background())

	_, texts := notifier.snapshot()
	if len(texts) != 1 {
		t.Fatalf("got %d texts, want exactly one error message: %v", len(texts), texts)
	}
	if !strings.Contains(texts[0], "Kaspi API") {
		t.Errorf("error message should mention the API: %q", texts[0])
	}
	// 三個查詢條件都要被嘗試過，單一失敗不中斷整輪
	if source.callCount() != 3 {
		t.Errorf("callCount = %d, want 3 (all filters attempted)", source.callCount())
	}
}

// TestRunCycleDedupAcrossCycles 第二輪看到同一筆訂單不再通知，也不發
// 空週期通知以外的重複訊息
func TestRunCycleDedupAcrossCycles(t *testing.T) {
	source := &fakeOrderSource{orders: map[model.OrderState][]model.Order{
		model.OrderStateNew: {{ID: "n1", State: model.OrderStateNew}},
	}}
	notifier := newFakeNotifier()
	poller := newTestPoller(source, notifier)

	poller.RunCycle(context.Background())
	poller.RunCycle(context.Background())

	orders, texts := notifier.snapshot()
	if len(orders) != 1 {
		t.Fatalf("notified %d orders, want 1 across two cycles: %v", len(orders), orders)
	}
	// 第二輪沒有新通知，視為空週期
	if len(texts) != 1 {
		t.Errorf("got %d texts, want 1 empty-cycle notice for the second cycle: %v", len(texts), texts)
	}
}

// TestStartStop Start / Stop 切換與重複呼叫
func TestStartStop(t *testing.T) {
	source := &fakeOrderSource{orders: map[model.OrderState][]model.Order{}}
	notifier := newFakeNotifier()
	poller := newTestPoller(source, notifier)

	if poller.IsRunning() {
		t.Fatal("poller should not be running before Start")
	}

	poller.Start()
	poller.Start() // 重複啟動無效果
	if !poller.IsRunning() {
		t.Fatal("poller should be running after Start")
	}

	// 啟動後第一輪立即執行
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && source.callCount() < 3 {
		time.Sleep(10 * time.Millisecond)
	}
	if source.callCount() < 3 {
		t.Fatalf("initial cycle did not run, calls = %d", source.callCount())
	}

	poller.Stop()
	poller.Stop() // 重複停止無效果
	if poller.IsRunning() {
		t.Fatal("poller should not be running after Stop")
	}

	// 停止後不再有新的抓取
	calls := source.callCount()
	time.Sleep(50 * time.Millisecond)
	if source.callCount() != calls {
		t.Error("fetches continued after Stop")
	}
}
