package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"kaspi-bot/metrics"
	"kaspi-bot/model"
)

const (
	kaspiContentType = "application/vnd.api+json"
	// 回應 body 保留長度，避免把整頁 HTML 塞進 log
	maxErrorBodyBytes = 2048
)

type KaspiConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// KaspiClient 是 Kaspi 賣家 API 的低階 HTTP client，只處理傳輸與錯誤分類，
// 不做任何業務邏輯
type KaspiClient struct {
	logger  zerolog.Logger
	config  KaspiConfig
	httpCli *http.Client
}

func NewKaspiClient(logger zerolog.Logger, config KaspiConfig) *KaspiClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://kaspi.kz/shop/api/v2"
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	return &KaspiClient{
		logger:  logger.With().Str("service", "KaspiClient").Logger(),
		config:  config,
		httpCli: &http.Client{Timeout: config.Timeout},
	}
}

// ---- JSON:API 資源結構 ----

type CustomerResource struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	CellPhone string `json:"cellPhone"`
	Email     string `json:"email"`
}

type DeliveryAddressResource struct {
	FormattedAddress string `json:"formattedAddress"`
}

type KaspiDeliveryResource struct {
	Waybill                 string `json:"waybill"`
	CourierTransmissionDate *int64 `json:"courierTransmissionDate"`
}

type OrderAttributes struct {
	Code              string                   `json:"code"`
	State             string                   `json:"state"`
	Status            string                   `json:"status"`
	TotalPrice        int64                    `json:"totalPrice"`
	PaymentMode       string                   `json:"paymentMode"`
	DeliveryMode      string                   `json:"deliveryMode"`
	SignatureRequired bool                     `json:"signatureRequired"`
	CreationDate      int64                    `json:"creationDate"`
	Assembled         *bool                    `json:"assembled"`
	Customer          *CustomerResource        `json:"customer"`
	DeliveryAddress   *DeliveryAddressResource `json:"deliveryAddress"`
	KaspiDelivery     *KaspiDeliveryResource   `json:"kaspiDelivery"`
	Comment           string                   `json:"customerComment"`
}

type OrderResource struct {
	ID         string          `json:"id"`
	Attributes OrderAttributes `json:"attributes"`
}

type EntryAttributes struct {
	Quantity  int   `json:"quantity"`
	BasePrice int64 `json:"basePrice"`
	Offer     struct {
		Name string `json:"name"`
		Code string `json:"code"`
	} `json:"offer"`
}

type EntryResource struct {
	ID         string          `json:"id"`
	Attributes EntryAttributes `json:"attributes"`
}

type PageMeta struct {
	TotalCount int `json:"totalCount"`
	PageCount  int `json:"pageCount"`
}

type OrdersPage struct {
	Data []OrderResource `json:"data"`
	Meta PageMeta        `json:"meta"`
}

type EntriesPage struct {
	Data []EntryResource `json:"data"`
}

type singleOrder struct {
	Data OrderResource `json:"data"`
}

type ProductAttributes struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	MasterSKU   string `json:"masterProduct"`
	Available   bool   `json:"available"`
	PrimaryLink string `json:"primaryLink"`
}

type ProductResource struct {
	ID         string            `json:"id"`
	Attributes ProductAttributes `json:"attributes"`
}

type ProductsPage struct {
	Data []ProductResource `json:"data"`
	Meta PageMeta          `json:"meta"`
}

// ---- 查詢參數 ----

type ListOrdersParams struct {
	State       string
	Status      string
	CreatedFrom time.Time
	CreatedTo   time.Time
	PageNumber  int
	PageSize    int
}

func (p ListOrdersParams) values() url.Values {
	v := url.Values{}
	v.Set("page[number]", strconv.Itoa(p.PageNumber))
	size := p.PageSize
	if size <= 0 {
		size = 20
	}
	v.Set("page[size]", strconv.Itoa(size))
	if p.State != "" {
		v.Set("filter[orders][state]", p.State)
	}
	if p.Status != "" {
		v.Set("filter[orders][status]", p.Status)
	}
	if !p.CreatedFrom.IsZero() {
		v.Set("filter[orders][creationDate][$ge]", strconv.FormatInt(p.CreatedFrom.UnixMilli(), 10))
	}
	if !p.CreatedTo.IsZero() {
		v.Set("filter[orders][creationDate][$le]", strconv.FormatInt(p.CreatedTo.UnixMilli(), 10))
	}
	return v
}

// ---- 操作 ----

// ListOrders 取得單一頁訂單，翻頁由上層負責
func (c *KaspiClient) ListOrders(ctx context.Context, params ListOrdersParams) (*OrdersPage, error) {
	var page OrdersPage
	endpoint := "/orders?" + params.values().Encode()
	if err := c.doJSON(ctx, "list_orders", http.MethodGet, endpoint, nil, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ListOrderEntries 取得訂單的商品明細
func (c *KaspiClient) ListOrderEntries(ctx context.Context, orderID string) ([]EntryResource, error) {
	var page EntriesPage
	endpoint := "/orders/" + url.PathEscape(orderID) + "/entries"
	if err := c.doJSON(ctx, "list_entries", http.MethodGet, endpoint, nil, nil, &page); err != nil {
		return nil, err
	}
	return page.Data, nil
}

func (c *KaspiClient) GetOrder(ctx context.Context, orderID string) (*OrderResource, error) {
	var resp singleOrder
	endpoint := "/orders/" + url.PathEscape(orderID)
	if err := c.doJSON(ctx, "get_order", http.MethodGet, endpoint, nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// UpdateOrderStatus 以 PATCH 更新訂單狀態，numberOfSpace 為包裹件數（開發票時必填）
func (c *KaspiClient) UpdateOrderStatus(ctx context.Context, orderID, status string, numberOfSpace int) (*OrderResource, error) {
	attributes := map[string]interface{}{
		"status": status,
	}
	if numberOfSpace > 0 {
		attributes["numberOfSpace"] = numberOfSpace
	}
	payload := map[string]interface{}{
		"data": map[string]interface{}{
			"type":       "orders",
			"id":         orderID,
			"attributes": attributes,
		},
	}

	var resp singleOrder
	endpoint := "/orders/" + url.PathEscape(orderID)
	if err := c.doJSON(ctx, "update_status", http.MethodPatch, endpoint, nil, payload, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// SubmitSecurityCode 送出交貨安全碼。securityCode 為空字串時 Kaspi 會發簡訊
// 驗證碼給買家，帶值時則驗證並完成訂單
func (c *KaspiClient) SubmitSecurityCode(ctx context.Context, orderID, orderCode, securityCode string) (*OrderResource, error) {
	payload := map[string]interface{}{
		"data": map[string]interface{}{
			"type": "orders",
			"id":   orderID,
			"attributes": map[string]interface{}{
				"code":   orderCode,
				"status": "COMPLETED",
			},
		},
	}
	headers := map[string]string{
		"X-Security-Code": securityCode,
		"X-Send-Code":     "true",
	}

	var resp singleOrder
	if err := c.doJSON(ctx, "submit_security_code", http.MethodPost, "/orders", headers, payload, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// GetProducts 取得賣家商品單頁
func (c *KaspiClient) GetProducts(ctx context.Context, pageNumber, pageSize int) (*ProductsPage, error) {
	if pageSize <= 0 {
		pageSize = 100
	}
	v := url.Values{}
	v.Set("page[number]", strconv.Itoa(pageNumber))
	v.Set("page[size]", strconv.Itoa(pageSize))

	var page ProductsPage
	endpoint := "/products?" + v.Encode()
	if err := c.doJSON(ctx, "get_products", http.MethodGet, endpoint, nil, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// DownloadFile 以瀏覽器 UA 下載運單等檔案，Kaspi 對非瀏覽器請求會回 403
func (c *KaspiClient) DownloadFile(ctx context.Context, fileURL string) ([]byte, string, error) {
	const op = "download_file"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, "", c.classify(op, nil, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	req.Header.Set("Accept", "application/pdf,*/*")

	resp, err := c.httpCli.Do(req)
	if err != nil {
		metrics.RecordKaspiRequest(op, "error")
		return nil, "", c.classify(op, nil, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.RecordKaspiRequest(op, "error")
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, "", c.classify(op, resp, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RecordKaspiRequest(op, "error")
		return nil, "", c.classify(op, resp, err)
	}

	metrics.RecordKaspiRequest(op, "success")
	return data, resp.Header.Get("Content-Type"), nil
}

// ---- 傳輸與錯誤分類 ----

func (c *KaspiClient) doJSON(ctx context.Context, op, method, endpoint string, headers map[string]string, payload, out interface{}) error {
	if c.config.Token == "" {
		return &model.APIError{Kind: model.APIErrorNoAPIKey, Op: op, Err: errors.New("kaspi API token is not configured")}
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return &model.APIError{Kind: model.APIErrorUnknown, Op: op, Err: err}
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+endpoint, body)
	if err != nil {
		return &model.APIError{Kind: model.APIErrorUnknown, Op: op, Err: err}
	}
	req.Header.Set("X-Auth-Token", c.config.Token)
	req.Header.Set("Accept", kaspiContentType)
	if payload != nil {
		req.Header.Set("Content-Type", kaspiContentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpCli.Do(req)
	if err != nil {
		metrics.RecordKaspiRequest(op, "error")
		return c.classify(op, nil, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("op", op).
		Str("method", method).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("Kaspi API 請求完成")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.RecordKaspiRequest(op, "error")
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		classified := c.classify(op, resp, fmt.Errorf("kaspi API returned %d", resp.StatusCode))
		if apiErr, ok := classified.(*model.APIError); ok {
			apiErr.Body = string(raw)
		}
		return classified
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			metrics.RecordKaspiRequest(op, "error")
			return &model.APIError{Kind: model.APIErrorUnknown, Op: op, Err: fmt.Errorf("decode response: %w", err)}
		}
	}

	metrics.RecordKaspiRequest(op, "success")
	return nil
}

// classify 將傳輸層錯誤與 HTTP 狀態碼對應到穩定的錯誤分類
func (c *KaspiClient) classify(op string, resp *http.Response, err error) error {
	apiErr := &model.APIError{Op: op, Err: err}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		apiErr.Kind = model.APIErrorTimeout
	case resp == nil:
		// 傳輸層失敗（連線拒絕、DNS 等），timeout 以外一律歸為 unknown
		if isTimeout(err) {
			apiErr.Kind = model.APIErrorTimeout
		} else {
			apiErr.Kind = model.APIErrorUnknown
		}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		apiErr.Kind = model.APIErrorAuth
		apiErr.Status = resp.StatusCode
	case resp.StatusCode == http.StatusNotFound:
		apiErr.Kind = model.APIErrorNotFound
		apiErr.Status = resp.StatusCode
	default:
		apiErr.Kind = model.APIErrorHTTP
		apiErr.Status = resp.StatusCode
	}

	return apiErr
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
