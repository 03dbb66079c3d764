package service

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/rs/zerolog"

	"kaspi-bot/model"
)

// fakeSender 收集送出的訊息供斷言
type fakeSender struct {
	mu       sync.Mutex
	texts    []string
	messages int
}

func (f *fakeSender) PushText(userID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeSender) PushMessage(userID string, message messaging_api.MessageInterface) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages++
	return nil
}

func (f *fakeSender) messageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages
}

func newTestNotificationService(sender *fakeSender) *NotificationService {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout})
	return NewNotificationService(logger, sender, nil, "admin-user", 1, 10)
}

func waitForMessages(t *testing.T, sender *fakeSender, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sender.messageCount() >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d messages, got %d", want, sender.messageCount())
}

// TestNotifyOrderDedup 同一筆訂單跨多輪只通知一次
func TestNotifyOrderDedup(t *testing.T) {
	sender := &fakeSender{}
	svc := newTestNotificationService(sender)
	svc.Start()
	defer svc.Stop()

	order := &model.Order{ID: "order-1", Code: "409911111", State: model.OrderStateNew}
	c := Classify(order)

	if !svc.NotifyOrder(order, c) {
		t.Fatal("first notification should be enqueued")
	}

	// 後續輪詢再看到同一筆訂單
	for i := 0; i < 3; i++ {
		if svc.NotifyOrder(order, c) {
			t.Fatalf("cycle %d: duplicate notification was enqueued", i)
		}
	}

	waitForMessages(t, sender, 1)
	if got := sender.messageCount(); got != 1 {
		t.Errorf("delivered %d messages, want 1", got)
	}
}

// TestNotifyOrderDifferentOrders 不同訂單各自通知
func TestNotifyOrderDifferentOrders(t *testing.T) {
	sender := &fakeSender{}
	svc := newTestNotificationService(sender)
	svc.Start()
	defer svc.Stop()

	for _, id := range []string{"a", "b", "c"} {
		order := &model.Order{ID: id, State: model.OrderStateNew}
		if !svc.NotifyOrder(order, Classify(order)) {
			t.Errorf("order %s should be enqueued", id)
		}
	}

	waitForMessages(t, sender, 3)
}

// TestResetNotified 清空集合後同一筆訂單可再次通知
func TestResetNotified(t *testing.T) {
	sender := &fakeSender{}
	svc := newTestNotificationService(sender)
	svc.Start()
	defer svc.Stop()

	order := &model.Order{ID: "order-1", State: model.OrderStateNew}
	c := Classify(order)

	if !svc.NotifyOrder(order, c) {
		t.Fatal("first notification should be enqueued")
	}
	if svc.NotifyOrder(order, c) {
		t.Fatal("duplicate should be suppressed before reset")
	}

	svc.ResetNotified()

	if !svc.NotifyOrder(order, c) {
		t.Fatal("notification should be enqueued again after reset")
	}
}

// TestStartStopIdempotent 重複 Start / Stop 不會 panic 或卡住
func TestStartStopIdempotent(t *testing.T) {
	svc := newTestNotificationService(&fakeSender{})

	svc.Start()
	svc.Start()
	svc.Stop()
	svc.Stop()
}

// TestStopDrainsQueue 停止時佇列裡已排入的通知仍要送完
func TestStopDrainsQueue(t *testing.T) {
	sender := &fakeSender{}
	svc := newTestNotificationService(sender)

	// 在 worker 啟動前排滿佇列，Stop 返回後全部都要送達
	for i := 0; i < 5; i++ {
		svc.NotifyText("queued notice")
	}

	svc.Start()
	svc.Stop()

	sender.mu.Lock()
	got := len(sender.texts)
	sender.mu.Unlock()
	if got != 5 {
		t.Errorf("delivered %d queued texts after Stop, want 5", got)
	}
}
