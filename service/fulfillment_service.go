package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"kaspi-bot/infra"
	"kaspi-bot/metrics"
	"kaspi-bot/model"
)

// CancelKeyword 是取消交貨 session 的指令字
const CancelKeyword = "отмена"

const minWaybillPDFSize = 1024

// MarketplaceAPI 是履約流程需要的遠端操作
type MarketplaceAPI interface {
	GetOrderByID(ctx context.Context, orderID string) (*model.Order, error)
	CreateInvoice(ctx context.Context, orderID string, numberOfSpace int) (*model.Order, error)
	SendSecurityCode(ctx context.Context, orderID, orderCode string) error
	CompleteOrder(ctx context.Context, orderID, orderCode, securityCode string) (*model.Order, error)
	DownloadWaybill(ctx context.Context, waybillURL string) ([]byte, string, error)
}

// WaybillStore 把下載好的運單落地並回傳連結
type WaybillStore interface {
	SaveWaybill(orderCode string, data []byte) (*StoredFile, error)
}

// handoffSession 是等待買家驗證碼的進行中交貨
type handoffSession struct {
	orderID   string
	orderCode string
	startedAt time.Time
}

// FulfillmentService 處理發貨單建立、運單下載與驗證碼交貨。
// 交貨 session 以對話為 key，一個對話同時只有一筆進行中的交貨，
// 後開的 session 覆蓋先開的
type FulfillmentService struct {
	logger  zerolog.Logger
	api     MarketplaceAPI
	waybill WaybillStore

	mu       sync.Mutex
	sessions map[string]*handoffSession
}

func NewFulfillmentService(logger zerolog.Logger, api MarketplaceAPI, waybill WaybillStore) *FulfillmentService {
	return &FulfillmentService{
		logger:   logger.With().Str("service", "fulfillment").Logger(),
		api:      api,
		waybill:  waybill,
		sessions: make(map[string]*handoffSession),
	}
}

// HandleCreateInvoice 把訂單推進到 ASSEMBLE，Kaspi 隨之產生發貨單
func (s *FulfillmentService) HandleCreateInvoice(ctx context.Context, orderID string) string {
	ctx, span := infra.StartSpan(ctx, "FulfillmentService.HandleCreateInvoice")
	defer span.End()

	order, err := s.api.CreateInvoice(ctx, orderID, 1)
	if err != nil {
		infra.RecordError(span, err)
		s.logger.Error().Err(err).Str("order_id", orderID).Msg("建立發貨單失敗")
		return OperatorMessage(err)
	}

	infra.MarkSuccess(span)
	s.logger.Info().Str("order_id", orderID).Str("order_code", order.Code).Msg("發貨單已建立")
	return fmt.Sprintf("✅ Накладная по заказу №%s создана. Ссылка на PDF появится после обработки Kaspi — нажмите «Скачать накладную» позже.", order.Code)
}

// HandleDownloadInvoice 下載運單 PDF、驗證內容後存檔，回傳訊息與檔案
func (s *FulfillmentService) HandleDownloadInvoice(ctx context.Context, orderID string) (string, *StoredFile) {
	ctx, span := infra.StartSpan(ctx, "FulfillmentService.HandleDownloadInvoice")
	defer span.End()

	order, err := s.api.GetOrderByID(ctx, orderID)
	if err != nil {
		infra.RecordError(span, err)
		s.logger.Error().Err(err).Str("order_id", orderID).Msg("查詢訂單失敗")
		return OperatorMessage(err), nil
	}

	if order.WaybillURL == "" {
		return fmt.Sprintf("⏳ Накладная по заказу №%s ещё не готова. Попробуйте через пару минут.", order.Code), nil
	}

	data, contentType, err := s.api.DownloadWaybill(ctx, order.WaybillURL)
	if err != nil {
		infra.RecordError(span, err)
		s.logger.Error().Err(err).Str("order_id", orderID).Msg("下載運單失敗")
		return OperatorMessage(err), nil
	}

	if err := ValidateWaybillPDF(data, contentType); err != nil {
		s.logger.Warn().Err(err).Str("order_id", orderID).Msg("運單內容驗證失敗")
		return fmt.Sprintf("⚠️ Скачанный файл по заказу №%s не похож на накладную (%v). Попробуйте позже.", order.Code, err), nil
	}

	stored, err := s.waybill.SaveWaybill(order.Code, data)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", orderID).Msg("運單存檔失敗")
		return fmt.Sprintf("❌ Не удалось сохранить накладную по заказу №%s.", order.Code), nil
	}

	infra.MarkSuccess(span)
	return fmt.Sprintf("🖨 Накладная по заказу №%s готова:\n%s", order.Code, stored.URL), stored
}

// HandleStartHandoff 開始驗證碼交貨：請 Kaspi 發簡訊給買家並建立 session。
// 同一對話已有 session 時直接覆蓋（最後一次操作為準）
func (s *FulfillmentService) HandleStartHandoff(ctx context.Context, conversationID, orderID string) string {
	ctx, span := infra.StartSpan(ctx, "FulfillmentService.HandleStartHandoff")
	defer span.End()

	order, err := s.api.GetOrderByID(ctx, orderID)
	if err != nil {
		infra.RecordError(span, err)
		s.logger.Error().Err(err).Str("order_id", orderID).Msg("查詢訂單失敗")
		return OperatorMessage(err)
	}

	if err := s.api.SendSecurityCode(ctx, order.ID, order.Code); err != nil {
		infra.RecordError(span, err)
		s.logger.Error().Err(err).Str("order_id", orderID).Msg("發送驗證碼失敗")
		return OperatorMessage(err)
	}

	s.setSession(conversationID, &handoffSession{
		orderID:   order.ID,
		orderCode: order.Code,
		startedAt: time.Now(),
	})

	infra.MarkSuccess(span)
	s.logger.Info().Str("order_id", orderID).Str("order_code", order.Code).Msg("交貨 session 已開啟")
	return fmt.Sprintf("📲 Покупателю заказа №%s отправлен код подтверждения.\nВведите код из SMS покупателя, либо напишите «%s».", order.Code, CancelKeyword)
}

// HandleText 嘗試把文字訊息當成交貨 session 的輸入。沒有進行中的
// session 時回傳 handled=false，訊息交回一般指令處理
func (s *FulfillmentService) HandleText(ctx context.Context, conversationID, text string) (string, bool) {
	session := s.getSession(conversationID)
	if session == nil {
		return "", false
	}

	input := strings.TrimSpace(text)

	if strings.EqualFold(input, CancelKeyword) {
		s.clearSession(conversationID)
		s.logger.Info().Str("order_code", session.orderCode).Msg("交貨 session 已取消")
		return fmt.Sprintf("🚫 Выдача заказа №%s отменена.", session.orderCode), true
	}

	order, err := s.api.CompleteOrder(ctx, session.orderID, session.orderCode, input)
	// 不論成敗 session 都結束，避免卡住後續操作；失敗時操作者可重新
	// 發起交貨拿新的驗證碼
	s.clearSession(conversationID)

	if err != nil {
		s.logger.Error().Err(err).Str("order_code", session.orderCode).Msg("交貨驗證失敗")
		return fmt.Sprintf("%s\nВыдача заказа №%s прервана. Начните заново при необходимости.", OperatorMessage(err), session.orderCode), true
	}

	s.logger.Info().Str("order_code", order.Code).Msg("訂單交貨完成")
	return fmt.Sprintf("🎉 Заказ №%s успешно выдан покупателю!", order.Code), true
}

// HasSession 回報對話是否有進行中的交貨
func (s *FulfillmentService) HasSession(conversationID string) bool {
	return s.getSession(conversationID) != nil
}

func (s *FulfillmentService) getSession(conversationID string) *handoffSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[conversationID]
}

func (s *FulfillmentService) setSession(conversationID string, session *handoffSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[conversationID] = session
	metrics.SetActiveHandoffSessions(len(s.sessions))
}

func (s *FulfillmentService) clearSession(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, conversationID)
	metrics.SetActiveHandoffSessions(len(s.sessions))
}

// ValidateWaybillPDF 驗證下載內容確實是一份運單 PDF。Kaspi 出錯時會
// 回傳 HTML 錯誤頁或空檔案，直接存檔會讓操作者拿到壞連結
func ValidateWaybillPDF(data []byte, contentType string) error {
	if len(data) < minWaybillPDFSize {
		return fmt.Errorf("file too small: %d bytes (content-type %q)", len(data), contentType)
	}
	if strings.Contains(strings.ToLower(contentType), "pdf") {
		return nil
	}
	if bytes.HasPrefix(data, []byte("%PDF-")) {
		return nil
	}
	return fmt.Errorf("not a PDF: content-type %q, %d bytes", contentType, len(data))
}
