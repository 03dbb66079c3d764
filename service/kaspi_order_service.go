package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"kaspi-bot/infra"
	"kaspi-bot/model"
	"kaspi-bot/utils"
)

const (
	ordersPageSize = 20
	// 翻頁保險絲，避免遠端 meta 異常時無限翻頁
	maxOrderPages = 50
)

// KaspiOrderService 把 Kaspi JSON:API 的分頁與資源格式收斂成正規化的
// model.Order，呼叫端不需要知道翻頁與欄位缺漏的細節
type KaspiOrderService struct {
	logger zerolog.Logger
	client *infra.KaspiClient
}

func NewKaspiOrderService(logger zerolog.Logger, client *infra.KaspiClient) *KaspiOrderService {
	return &KaspiOrderService{
		logger: logger.With().Str("service", "KaspiOrderService").Logger(),
		client: client,
	}
}

// FetchOrders 依條件抓取全部訂單，內部自動翻頁。單一訂單的明細抓取失敗
// 不會中斷整批，該筆訂單以無明細狀態回傳
func (s *KaspiOrderService) FetchOrders(ctx context.Context, filter model.OrderFilter) ([]model.Order, error) {
	ctx, span := infra.StartSpan(ctx, "KaspiOrderService.FetchOrders")
	defer span.End()

	var orders []model.Order

	for page := 0; page < maxOrderPages; page++ {
		params := infra.ListOrdersParams{
			State:       string(filter.State),
			Status:      string(filter.Status),
			CreatedFrom: filter.CreatedFrom,
			CreatedTo:   filter.CreatedTo,
			PageNumber:  page,
			PageSize:    ordersPageSize,
		}

		resp, err := s.client.ListOrders(ctx, params)
		if err != nil {
			infra.RecordError(span, err)
			return nil, err
		}

		for i := range resp.Data {
			order := s.mapOrder(&resp.Data[i])
			s.attachEntries(ctx, &order)
			orders = append(orders, order)
		}

		if page+1 >= resp.Meta.PageCount {
			break
		}
	}

	s.logger.Debug().
		Str("state", string(filter.State)).
		Str("status", string(filter.Status)).
		Int("count", len(orders)).
		Msg("訂單抓取完成")

	infra.MarkSuccess(span)
	return orders, nil
}

// GetOrderByID 取得單筆訂單並補上商品明細
func (s *KaspiOrderService) GetOrderByID(ctx context.Context, orderID string) (*model.Order, error) {
	resource, err := s.client.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	order := s.mapOrder(resource)
	s.attachEntries(ctx, &order)
	return &order, nil
}

// CreateInvoice 把訂單推進到 ASSEMBLE 狀態，Kaspi 隨之產生發貨單。
// 這個操作不可盲目重試，失敗時直接回傳錯誤讓操作者判斷
func (s *KaspiOrderService) CreateInvoice(ctx context.Context, orderID string, numberOfSpace int) (*model.Order, error) {
	if numberOfSpace <= 0 {
		numberOfSpace = 1
	}
	resource, err := s.client.UpdateOrderStatus(ctx, orderID, string(model.OrderStatusAssemble), numberOfSpace)
	if err != nil {
		return nil, err
	}
	order := s.mapOrder(resource)
	return &order, nil
}

// SendSecurityCode 請 Kaspi 發送交貨驗證碼簡訊給買家
func (s *KaspiOrderService) SendSecurityCode(ctx context.Context, orderID, orderCode string) error {
	_, err := s.client.SubmitSecurityCode(ctx, orderID, orderCode, "")
	return err
}

// CompleteOrder 以買家回報的驗證碼完成訂單交貨
func (s *KaspiOrderService) CompleteOrder(ctx context.Context, orderID, orderCode, securityCode string) (*model.Order, error) {
	resource, err := s.client.SubmitSecurityCode(ctx, orderID, orderCode, securityCode)
	if err != nil {
		return nil, err
	}
	order := s.mapOrder(resource)
	return &order, nil
}

// DownloadWaybill 下載運單檔案，回傳原始 bytes 與 content-type
func (s *KaspiOrderService) DownloadWaybill(ctx context.Context, waybillURL string) ([]byte, string, error) {
	return s.client.DownloadFile(ctx, waybillURL)
}

// attachEntries 補上訂單明細，失敗時僅記 log，訂單仍可用
func (s *KaspiOrderService) attachEntries(ctx context.Context, order *model.Order) {
	entries, err := s.client.ListOrderEntries(ctx, order.ID)
	if err != nil {
		s.logger.Warn().Err(err).Str("order_id", order.ID).Msg("訂單明細抓取失敗，以無明細繼續")
		return
	}
	order.LineItems = mapEntries(entries)
}

// mapOrder 正規化單筆訂單資源，缺漏欄位採用安全預設值
func (s *KaspiOrderService) mapOrder(r *infra.OrderResource) model.Order {
	attr := r.Attributes

	order := model.Order{
		ID:                r.ID,
		Code:              attr.Code,
		State:             model.OrderState(attr.State),
		Status:            model.OrderStatus(attr.Status),
		DeliveryMode:      attr.DeliveryMode,
		TotalPrice:        attr.TotalPrice,
		PaymentMode:       attr.PaymentMode,
		SignatureRequired: attr.SignatureRequired,
		Comment:           attr.Comment,
		Assembled:         attr.Assembled,
		CreatedAt:         utils.FromEpochMillis(attr.CreationDate),
	}

	if attr.Customer != nil {
		order.Customer = model.Customer{
			Name:  strings.TrimSpace(attr.Customer.FirstName + " " + attr.Customer.LastName),
			Phone: attr.Customer.CellPhone,
			Email: attr.Customer.Email,
		}
	}
	if attr.DeliveryAddress != nil {
		order.DeliveryAddress = attr.DeliveryAddress.FormattedAddress
	}
	if attr.KaspiDelivery != nil {
		order.WaybillURL = attr.KaspiDelivery.Waybill
		if attr.KaspiDelivery.CourierTransmissionDate != nil && *attr.KaspiDelivery.CourierTransmissionDate > 0 {
			t := utils.FromEpochMillis(*attr.KaspiDelivery.CourierTransmissionDate)
			order.CourierHandoffAt = &t
		}
	}

	return order
}

// mapEntries 正規化商品明細，數量缺漏時視為 1 以免金額計算歸零
func mapEntries(entries []infra.EntryResource) []model.LineItem {
	items := make([]model.LineItem, 0, len(entries))
	for _, e := range entries {
		qty := e.Attributes.Quantity
		if qty <= 0 {
			qty = 1
		}
		name := e.Attributes.Offer.Name
		if name == "" {
			name = e.Attributes.Offer.Code
		}
		items = append(items, model.LineItem{
			Name:      name,
			Quantity:  qty,
			UnitPrice: e.Attributes.BasePrice,
		})
	}
	return items
}
