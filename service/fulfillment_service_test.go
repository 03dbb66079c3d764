package service

import (
	"bytes"
	"context"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"kaspi-bot/model"
)

// fakeMarketplace 記錄呼叫並回傳預設結果
type fakeMarketplace struct {
	mu sync.Mutex

	order       *model.Order
	completeErr error
	sendCodeErr error

	sendCodeCalls int
	completeCalls int
	lastCode      string
	lastOrderID   string

	waybillData []byte
	waybillType string
	waybillErr  error
}

func (f *fakeMarketplace) GetOrderByID(ctx context.Context, orderID string) (*model.Order, error) {
	if f.order == nil {
		return nil, &model.APIError{Kind: model.APIErrorNotFound, Op: "get_order"}
	}
	return f.order, nil
}

func (f *fakeMarketplace) CreateInvoice(ctx context.Context, orderID string, numberOfSpace int) (*model.Order, error) {
	if f.order == nil {
		return nil, &model.APIError{Kind: model.APIErrorNotFound, Op: "update_status"}
	}
	return f.order, nil
}

func (f *fakeMarketplace) SendSecurityCode(ctx context.Context, orderID, orderCode string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCodeCalls++
	return f.sendCodeErr
}

func (f *fakeMarketplace) CompleteOrder(ctx context.Context, orderID, orderCode, securityCode string) (*model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeCalls++
	f.lastCode = securityCode
	f.lastOrderID = orderID
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	return f.order, nil
}

func (f *fakeMarketplace) DownloadWaybill(ctx context.Context, waybillURL string) ([]byte, string, error) {
	return f.waybillData, f.waybillType, f.waybillErr
}

type fakeWaybillStore struct {
	saved int
}

func (f *fakeWaybillStore) SaveWaybill(orderCode string, data []byte) (*StoredFile, error) {
	f.saved++
	return &StoredFile{URL: "http://localhost/uploads/waybills/test.pdf", Size: int64(len(data))}, nil
}

func newTestFulfillmentService(api *fakeMarketplace) (*FulfillmentService, *fakeWaybillStore) {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout})
	store := &fakeWaybillStore{}
	return NewFulfillmentService(logger, api, store), store
}

func fakePDF(size int) []byte {
	data := make([]byte, size)
	copy(data, []byte("%PDF-1.4"))
	return data
}

// TestHandoffHappyPath 發起交貨、輸入驗證碼、session 結束
func TestHandoffHappyPath(t *testing.T) {
	api := &fakeMarketplace{order: &model.Order{ID: "o1", Code: "409911111"}}
	svc, _ := newTestFulfillmentService(api)
	ctx := context.Background()

	msg := svc.HandleStartHandoff(ctx, "conv", "o1")
	if !strings.Contains(msg, "409911111") {
		t.Errorf("start message should mention the order code: %q", msg)
	}
	if api.sendCodeCalls != 1 {
		t.Fatalf("sendCodeCalls = %d, want 1", api.sendCodeCalls)
	}
	if !svc.HasSession("conv") {
		t.Fatal("session should be open after starting handoff")
	}

	reply, handled := svc.HandleText(ctx, "conv", "1234")
	if !handled {
		t.Fatal("code input should be handled by the session")
	}
	if api.completeCalls != 1 || api.lastCode != "1234" {
		t.Fatalf("completeCalls = %d, lastCode = %q", api.completeCalls, api.lastCode)
	}
	if !strings.Contains(reply, "409911111") {
		t.Errorf("success message should mention the order code: %q", reply)
	}
	if svc.HasSession("conv") {
		t.Error("session should be cleared after success")
	}
}

// TestHandoffCancelKeyword 取消指令關閉 session 且不呼叫 CompleteOrder
func TestHandoffCancelKeyword(t *testing.T) {
	api := &fakeMarketplace{order: &model.Order{ID: "o1", Code: "409911111"}}
	svc, _ := newTestFulfillmentService(api)
	ctx := context.Background()

	svc.HandleStartHandoff(ctx, "conv", "o1")

	_, handled := svc.HandleText(ctx, "conv", "  ОТМЕНА ")
	if !handled {
		t.Fatal("cancel keyword should be handled by the session")
	}
	if api.completeCalls != 0 {
		t.Errorf("completeCalls = %d, want 0 after cancel", api.completeCalls)
	}
	if svc.HasSession("conv") {
		t.Error("session should be cleared after cancel")
	}
}

// TestHandoffFailureClearsSession 驗證失敗也會結束 session，不會卡住
// 後續操作
func TestHandoffFailureClearsSession(t *testing.T) {
	api := &fakeMarketplace{
		order:       &model.Order{ID: "o1", Code: "409911111"},
		completeErr: &model.APIError{Kind: model.APIErrorHTTP, Op: "submit_security_code", Status: 400},
	}
	svc, _ := newTestFulfillmentService(api)
	ctx := context.Background()

	svc.HandleStartHandoff(ctx, "conv", "o1")

	reply, handled := svc.HandleText(ctx, "conv", "0000")
	if !handled {
		t.Fatal("code input should be handled")
	}
	if !strings.Contains(reply, "409911111") {
		t.Errorf("failure message should mention the order code: %q", reply)
	}
	if svc.HasSession("conv") {
		t.Error("session should be cleared after failure")
	}
}

// TestHandoffLastWriteWins 同一對話重複發起交貨時，後者覆蓋前者
func TestHandoffLastWriteWins(t *testing.T) {
	api := &fakeMarketplace{order: &model.Order{ID: "o1", Code: "409911111"}}
	svc, _ := newTestFulfillmentService(api)
	ctx := context.Background()

	svc.HandleStartHandoff(ctx, "conv", "o1")
	// 操作者改對另一筆訂單發起交貨
	api.order = &model.Order{ID: "o2", Code: "409922222"}
	svc.HandleStartHandoff(ctx, "conv", "o2")

	svc.HandleText(ctx, "conv", "9999")

	if api.completeCalls != 1 {
		t.Fatalf("completeCalls = %d, want 1", api.completeCalls)
	}
	if api.lastOrderID != "o2" {
		t.Errorf("lastOrderID = %q, want o2 (later session wins)", api.lastOrderID)
	}
	if api.lastCode != "9999" {
		t.Errorf("lastCode = %q, want 9999", api.lastCode)
	}
}

// TestHandleTextWithoutSession 沒有 session 時文字訊息不被吃掉
func TestHandleTextWithoutSession(t *testing.T) {
	api := &fakeMarketplace{}
	svc, _ := newTestFulfillmentService(api)

	if _, handled := svc.HandleText(context.Background(), "conv", "1234"); handled {
		t.Error("text should not be handled when no session is open")
	}
	if api.completeCalls != 0 {
		t.Errorf("completeCalls = %d, want 0", api.completeCalls)
	}
}

// TestDownloadInvoiceValidatesPDF 壞掉的下載內容不會存檔
func TestDownloadInvoiceValidatesPDF(t *testing.T) {
	testCases := []struct {
		name        string
		data        []byte
		contentType string
		wantSaved   bool
	}{
		{"正常 PDF", fakePDF(4096), "application/pdf", true},
		{"PDF magic 但 content-type 錯", fakePDF(4096), "application/octet-stream", true},
		{"太小的檔案", fakePDF(100), "application/pdf", false},
		{"HTML 錯誤頁", bytes.Repeat([]byte("<html>error</html>"), 100), "text/html", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			api := &fakeMarketplace{
				order:       &model.Order{ID: "o1", Code: "409911111", WaybillURL: "https://kaspi.kz/wb.pdf"},
				waybillData: tc.data,
				waybillType: tc.contentType,
			}
			svc, store := newTestFulfillmentService(api)

			msg, stored := svc.HandleDownloadInvoice(context.Background(), "o1")

			if tc.wantSaved {
				if stored == nil || store.saved != 1 {
					t.Errorf("expected file to be saved, msg: %q", msg)
				}
			} else {
				if stored != nil || store.saved != 0 {
					t.Errorf("expected file to be rejected, msg: %q", msg)
				}
			}
		})
	}
}

// TestDownloadInvoiceNoWaybillYet 運單連結尚未出現時提示稍後再試
func TestDownloadInvoiceNoWaybillYet(t *testing.T) {
	api := &fakeMarketplace{order: &model.Order{ID: "o1", Code: "409911111"}}
	svc, store := newTestFulfillmentService(api)

	msg, stored := svc.HandleDownloadInvoice(context.Background(), "o1")
	if stored != nil || store.saved != 0 {
		t.Error("nothing should be saved when the waybill link is missing")
	}
	if !strings.Contains(msg, "409911111") {
		t.Errorf("message should mention the order code: %q", msg)
	}
}

func TestValidateWaybillPDF(t *testing.T) {
	if err := ValidateWaybillPDF(fakePDF(2048), ""); err != nil {
		t.Errorf("pdf magic should pass without content-type: %v", err)
	}
	if err := ValidateWaybillPDF(make([]byte, 2048), "application/pdf"); err != nil {
		t.Errorf("pdf content-type should pass without magic: %v", err)
	}
	if err := ValidateWaybillPDF(nil, "application/pdf"); err == nil {
		t.Error("empty file should be rejected")
	}

	err := ValidateWaybillPDF(make([]byte, 2048), "text/html")
	if err == nil {
		t.Fatal("html payload should be rejected")
	}
	// 診斷訊息要帶大小與 content-type，方便操作者回報
	if !strings.Contains(err.Error(), "text/html") || !strings.Contains(err.Error(), "2048") {
		t.Errorf("diagnostic should mention content-type and size: %v", err)
	}
}
