package model

import (
	"time"
)

// OrderState 是 Kaspi 訂單的粗粒度生命週期分類
type OrderState string

const (
	OrderStateNew           OrderState = "NEW"
	OrderStateSignRequired  OrderState = "SIGN_REQUIRED"
	OrderStatePickup        OrderState = "PICKUP"
	OrderStateDelivery      OrderState = "DELIVERY"
	OrderStateKaspiDelivery OrderState = "KASPI_DELIVERY"
	OrderStateArchive       OrderState = "ARCHIVE"
)

// OrderStatus 是遠端平台回報的細粒度狀態字串
type OrderStatus string

const (
	OrderStatusApprovedByBank     OrderStatus = "APPROVED_BY_BANK"
	OrderStatusAcceptedByMerchant OrderStatus = "ACCEPTED_BY_MERCHANT"
	OrderStatusAssemble           OrderStatus = "ASSEMBLE"
	OrderStatusCompleted          OrderStatus = "COMPLETED"
	OrderStatusCancelled          OrderStatus = "CANCELLED"
)

// Customer 是下單客戶的聯絡資料，欄位皆可能為空
type Customer struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// LineItem 是訂單中的單一商品項目
type LineItem struct {
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// Order 是每輪輪詢從 Kaspi API 重建的正規化訂單。
// 訂單本身不落地保存，遠端 API 是唯一的真實來源。
type Order struct {
	ID                string      `json:"id"`
	Code              string      `json:"code"`
	State             OrderState  `json:"state"`
	Status            OrderStatus `json:"status"`
	DeliveryMode      string      `json:"delivery_mode,omitempty"`
	DeliveryAddress   string      `json:"delivery_address,omitempty"`
	Customer          Customer    `json:"customer"`
	LineItems         []LineItem  `json:"line_items,omitempty"`
	TotalPrice        int64       `json:"total_price"`
	PaymentMode       string      `json:"payment_mode,omitempty"`
	SignatureRequired bool        `json:"signature_required,omitempty"`
	Comment           string      `json:"comment,omitempty"`

	// Assembled 為三態：nil 表示遠端未回報打包狀態
	Assembled *bool `json:"assembled,omitempty"`
	// CourierHandoffAt 存在即代表訂單已交付物流
	CourierHandoffAt *time.Time `json:"courier_handoff_at,omitempty"`
	WaybillURL       string     `json:"waybill_url,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// IsAssembled 回報訂單是否已確認打包完成
func (o *Order) IsAssembled() bool {
	return o.Assembled != nil && *o.Assembled
}

// HandedToCourier 回報訂單是否已交付物流士
func (o *Order) HandedToCourier() bool {
	return o.CourierHandoffAt != nil
}

// OrderFilter 對應 Kaspi 訂單列表 API 的查詢條件
type OrderFilter struct {
	State        OrderState
	Status       OrderStatus
	DeliveryType string
	CreatedFrom  time.Time
	CreatedTo    time.Time
}
