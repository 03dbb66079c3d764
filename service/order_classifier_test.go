package service

import (
	"strings"
	"testing"
	"time"

	"kaspi-bot/model"
)

func boolPtr(v bool) *bool { return &v }

// TestClassifyBuckets 驗證各種 state / status 組合落在正確的分組與動作
func TestClassifyBuckets(t *testing.T) {
	now := time.Now()

	testCases := []struct {
		name       string
		order      model.Order
		wantBucket OrderBucket
		wantAction ActionKind
	}{
		{
			name:       "新訂單",
			order:      model.Order{ID: "1", State: model.OrderStateNew},
			wantBucket: BucketNew,
			wantAction: ActionNone,
		},
		{
			name:       "銀行已放款",
			order:      model.Order{ID: "2", State: model.OrderStateSignRequired, Status: model.OrderStatusApprovedByBank},
			wantBucket: BucketApproved,
			wantAction: ActionNone,
		},
		{
			name:       "自送訂單",
			order:      model.Order{ID: "3", State: model.OrderStateDelivery, Status: model.OrderStatusAcceptedByMerchant},
			wantBucket: BucketSelfDelivery,
			wantAction: ActionCompleteHandoff,
		},
		{
			name:       "Kaspi 物流未打包",
			order:      model.Order{ID: "4", State: model.OrderStateKaspiDelivery, Assembled: boolPtr(false)},
			wantBucket: BucketPlatformDelivery,
			wantAction: ActionCreateInvoice,
		},
		{
			name:       "Kaspi 物流打包狀態未知",
			order:      model.Order{ID: "5", State: model.OrderStateKaspiDelivery},
			wantBucket: BucketPlatformDelivery,
			wantAction: ActionCreateInvoice,
		},
		{
			name:       "Kaspi 物流已打包但運單未出",
			order:      model.Order{ID: "6", State: model.OrderStateKaspiDelivery, Assembled: boolPtr(true)},
			wantBucket: BucketPlatformDelivery,
			wantAction: ActionDownloadInvoice,
		},
		{
			name:       "Kaspi 物流已交付物流士",
			order:      model.Order{ID: "7", State: model.OrderStateKaspiDelivery, Assembled: boolPtr(true), CourierHandoffAt: &now},
			wantBucket: BucketHandover,
			wantAction: ActionNone,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := Classify(&tc.order)
			if c.Bucket != tc.wantBucket {
				t.Errorf("bucket = %q, want %q", c.Bucket, tc.wantBucket)
			}
			if c.Action != tc.wantAction {
				t.Errorf("action = %q, want %q", c.Action, tc.wantAction)
			}
		})
	}
}

// TestClassifyWaybillLink 已打包且運單連結就緒時，卡片直接帶連結而非下載動作
func TestClassifyWaybillLink(t *testing.T) {
	order := model.Order{
		ID:         "o1",
		State:      model.OrderStateKaspiDelivery,
		Assembled:  boolPtr(true),
		WaybillURL: "https://kaspi.kz/files/waybill.pdf",
	}

	c := Classify(&order)
	if c.Action != ActionNone {
		t.Errorf("action = %q, want none when waybill link is present", c.Action)
	}
	if c.WaybillURL != order.WaybillURL {
		t.Errorf("waybill url = %q, want %q", c.WaybillURL, order.WaybillURL)
	}
}

// TestClassifyInvoiceProgression 同一筆訂單從未打包到打包完成，動作應
// 從建立發貨單推進到下載運單
func TestClassifyInvoiceProgression(t *testing.T) {
	order := model.Order{ID: "o1", State: model.OrderStateKaspiDelivery, Assembled: boolPtr(false)}

	if c := Classify(&order); c.Action != ActionCreateInvoice {
		t.Fatalf("before assembly: action = %q, want %q", c.Action, ActionCreateInvoice)
	}

	order.Assembled = boolPtr(true)
	if c := Classify(&order); c.Action != ActionDownloadInvoice {
		t.Fatalf("after assembly: action = %q, want %q", c.Action, ActionDownloadInvoice)
	}
}

// TestClassifyDeterministic 純函式：同一筆訂單重複分類結果不變
func TestClassifyDeterministic(t *testing.T) {
	order := model.Order{ID: "x", State: model.OrderStateDelivery}
	first := Classify(&order)
	for i := 0; i < 5; i++ {
		if got := Classify(&order); got != first {
			t.Fatalf("classification changed between calls: %+v vs %+v", got, first)
		}
	}
}

func TestFormatOrderSummary(t *testing.T) {
	order := model.Order{
		ID:     "o1",
		Code:   "409912345",
		State:  model.OrderStateDelivery,
		Status: model.OrderStatusAcceptedByMerchant,
		LineItems: []model.LineItem{
			{Name: "iPhone 15", Quantity: 1, UnitPrice: 450000},
			{Name: "Чехол", Quantity: 2, UnitPrice: 5000},
		},
		TotalPrice:      460000,
		Customer:        model.Customer{Name: "Айдар", Phone: "+7 777 123 4567"},
		DeliveryMode:    "DELIVERY_LOCAL",
		DeliveryAddress: "г. Алматы, ул. Абая 1",
		PaymentMode:     "PAY_WITH_CREDIT",
	}

	c := Classify(&order)
	summary := FormatOrderSummary(&order, c)

	for _, want := range []string{
		"409912345",
		"iPhone 15 ×1 — 450 000 ₸",
		"Чехол ×2 — 5 000 ₸",
		"Итого: 460 000 ₸",
		"Айдар",
		"+7 777 123 4567",
		"г. Алматы, ул. Абая 1",
	} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
}

// TestFormatOrderSummaryKaspiDelivery Kaspi 物流的訂單不顯示地址，
// 出貨由平台處理
func TestFormatOrderSummaryKaspiDelivery(t *testing.T) {
	order := model.Order{
		ID:              "o2",
		Code:            "409900001",
		State:           model.OrderStateKaspiDelivery,
		DeliveryAddress: "г. Астана, пр. Республики 5",
		TotalPrice:      1000,
	}

	summary := FormatOrderSummary(&order, Classify(&order))
	if strings.Contains(summary, "Астана") {
		t.Errorf("kaspi delivery summary should not contain the address:\n%s", summary)
	}
}

// TestOperatorMessageDistinct 每種錯誤分類都有不同的操作者訊息
func TestOperatorMessageDistinct(t *testing.T) {
	kinds := []model.APIErrorKind{
		model.APIErrorTimeout,
		model.APIErrorHTTP,
		model.APIErrorAuth,
		model.APIErrorNoAPIKey,
		model.APIErrorNotFound,
		model.APIErrorUnknown,
	}

	seen := make(map[string]model.APIErrorKind)
	for _, kind := range kinds {
		msg := OperatorMessage(&model.APIError{Kind: kind, Op: "test"})
		if msg == "" {
			t.Errorf("kind %s: empty operator message", kind)
			continue
		}
		if prev, dup := seen[msg]; dup {
			t.Errorf("kinds %s and %s share the message %q", prev, kind, msg)
		}
		seen[msg] = kind
	}
}

// TestOperatorMessageHTTPDetails 遠端 4xx/5xx 的狀態碼與回應內文要出現
// 在操作者訊息裡，內文超長時截斷
func TestOperatorMessageHTTPDetails(t *testing.T) {
	msg := OperatorMessage(&model.APIError{
		Kind:   model.APIErrorHTTP,
		Op:     "update_order_status",
		Status: 500,
		Body:   `{"errors":[{"detail":"internal failure"}]}`,
	})

	if !strings.Contains(msg, "500") {
		t.Errorf("message missing status code:\n%s", msg)
	}
	if !strings.Contains(msg, "internal failure") {
		t.Errorf("message missing response body:\n%s", msg)
	}

	longBody := strings.Repeat("x", 500)
	msg = OperatorMessage(&model.APIError{Kind: model.APIErrorHTTP, Status: 502, Body: longBody})
	if strings.Contains(msg, longBody) {
		t.Errorf("long body should be truncated:\n%s", msg)
	}
	if !strings.Contains(msg, "502") {
		t.Errorf("message missing status code:\n%s", msg)
	}

	// 沒有狀態碼時退回固定說法
	msg = OperatorMessage(&model.APIError{Kind: model.APIErrorHTTP})
	if !strings.Contains(msg, "Подробности в логах") {
		t.Errorf("statusless HTTP error should use the generic message:\n%s", msg)
	}
}
