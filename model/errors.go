package model

import (
	"errors"
	"fmt"
)

// APIErrorKind 是遠端呼叫失敗的分類，每一類對應一種操作者可見的訊息
type APIErrorKind string

const (
	APIErrorTimeout  APIErrorKind = "TIMEOUT"
	APIErrorHTTP     APIErrorKind = "HTTP"
	APIErrorAuth     APIErrorKind = "AUTH"
	APIErrorNoAPIKey APIErrorKind = "NO_API_KEY"
	APIErrorNotFound APIErrorKind = "NOT_FOUND"
	APIErrorUnknown  APIErrorKind = "UNKNOWN"
)

// APIError 是 Kaspi API 呼叫失敗的標準錯誤型別
type APIError struct {
	Kind   APIErrorKind
	Op     string // 失敗的操作名稱，例如 list_orders
	Status int    // HTTP 狀態碼，僅 Kind 為 HTTP / AUTH / NOT_FOUND 時有值
	Body   string // 截斷後的回應內文
	Err    error
}

func (e *APIError) Error() string {
	switch {
	case e.Status != 0 && e.Body != "":
		return fmt.Sprintf("kaspi api %s: %s (status %d): %s", e.Op, e.Kind, e.Status, e.Body)
	case e.Status != 0:
		return fmt.Sprintf("kaspi api %s: %s (status %d)", e.Op, e.Kind, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("kaspi api %s: %s: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("kaspi api %s: %s", e.Op, e.Kind)
	}
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// KindOf 取出錯誤的分類，非 APIError 一律視為 UNKNOWN
func KindOf(err error) APIErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return APIErrorUnknown
}

// AsAPIError 以 errors.As 解出 APIError，方便呼叫端讀取狀態碼與內文
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
