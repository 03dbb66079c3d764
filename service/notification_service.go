package service

import (
	"sync"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/rs/zerolog"

	"kaspi-bot/metrics"
	"kaspi-bot/model"
)

// ChatSender 是通知輸出的最小介面，方便測試替身
type ChatSender interface {
	PushText(userID, text string) error
	PushMessage(userID string, message messaging_api.MessageInterface) error
}

type notificationJob struct {
	message messaging_api.MessageInterface
	text    string
}

// NotificationService 負責訂單通知的去重與送出。同一筆訂單在服務存活
// 期間只通知一次；重啟後允許重新通知一輪，屬於可接受的行為
type NotificationService struct {
	logger  zerolog.Logger
	sender  ChatSender
	discord *DiscordService // 可為 nil
	flex    *FlexMessageService
	adminID string

	queue   chan notificationJob
	workers int

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup

	notifiedMu sync.RWMutex
	notified   map[string]struct{}
}

func NewNotificationService(logger zerolog.Logger, sender ChatSender, discord *DiscordService, adminID string, workers, queueSize int) *NotificationService {
	if workers <= 0 {
		workers = 3
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	return &NotificationService{
		logger:   logger.With().Str("service", "notification").Logger(),
		sender:   sender,
		discord:  discord,
		flex:     NewFlexMessageService(logger),
		adminID:  adminID,
		queue:    make(chan notificationJob, queueSize),
		workers:  workers,
		notified: make(map[string]struct{}),
	}
}

// Start 啟動 worker pool，重複呼叫無效果
func (s *NotificationService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.logger.Info().Int("workers", s.workers).Msg("通知 worker pool 已啟動")
}

// Stop 停止 worker pool，等佇列裡已排入的通知送完才返回
func (s *NotificationService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("通知 worker pool 已停止")
}

func (s *NotificationService) worker(id int) {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopChan:
			s.drainQueue()
			return
		case job := <-s.queue:
			s.deliver(job)
		}
	}
}

// drainQueue 把停止當下佇列裡殘留的通知送完，不讓已排入的通知蒸發
func (s *NotificationService) drainQueue() {
	for {
		select {
		case job := <-s.queue:
			s.deliver(job)
		default:
			return
		}
	}
}

func (s *NotificationService) deliver(job notificationJob) {
	var err error
	if job.message != nil {
		err = s.sender.PushMessage(s.adminID, job.message)
	} else {
		err = s.sender.PushText(s.adminID, job.text)
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("通知送出失敗")
		return
	}

	if s.discord != nil && job.text != "" {
		s.discord.SendText(job.text)
	}
}

// ShouldNotify 回報訂單是否尚未通知過
func (s *NotificationService) ShouldNotify(orderID string) bool {
	s.notifiedMu.RLock()
	defer s.notifiedMu.RUnlock()
	_, seen := s.notified[orderID]
	return !seen
}

// MarkNotified 把訂單標記為已通知
func (s *NotificationService) MarkNotified(orderID string) {
	s.notifiedMu.Lock()
	defer s.notifiedMu.Unlock()
	s.notified[orderID] = struct{}{}
}

// ResetNotified 清空已通知集合，讓所有訂單可重新通知
func (s *NotificationService) ResetNotified() {
	s.notifiedMu.Lock()
	defer s.notifiedMu.Unlock()
	s.notified = make(map[string]struct{})
}

// NotifyOrder 對單筆訂單送出通知卡片，回傳是否真的排入通知。
// 已通知過的訂單直接略過。標記在排入前完成，訊息送出失敗不會
// 觸發重送，避免操作者被同一筆訂單轟炸
func (s *NotificationService) NotifyOrder(order *model.Order, c Classification) bool {
	if !s.ShouldNotify(order.ID) {
		return false
	}
	s.MarkNotified(order.ID)

	job := notificationJob{
		message: s.flex.CreateOrderCard(order, c),
		text:    FormatOrderSummary(order, c),
	}

	select {
	case s.queue <- job:
		metrics.RecordOrderNotification()
		s.logger.Info().
			Str("order_id", order.ID).
			Str("order_code", order.Code).
			Str("bucket", string(c.Bucket)).
			Msg("訂單通知已排入")
		return true
	default:
		s.logger.Warn().Str("order_id", order.ID).Msg("通知佇列已滿，丟棄通知")
		return false
	}
}

// NotifyText 送出一般文字通知（輪詢錯誤、無新訂單等）
func (s *NotificationService) NotifyText(text string) {
	job := notificationJob{text: text}
	select {
	case s.queue <- job:
	default:
		s.logger.Warn().Msg("通知佇列已滿，丟棄文字通知")
	}
}
