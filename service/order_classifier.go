package service

import (
	"fmt"
	"strings"

	"kaspi-bot/model"
	"kaspi-bot/utils"
)

// ActionKind 是分類結果建議操作者執行的下一步動作
type ActionKind string

const (
	ActionNone            ActionKind = ""
	ActionCreateInvoice   ActionKind = "create_invoice"
	ActionDownloadInvoice ActionKind = "download_invoice"
	ActionCompleteHandoff ActionKind = "complete_handoff"
)

// OrderBucket 是訂單在通知卡片上的分組
type OrderBucket string

const (
	BucketNew              OrderBucket = "new"
	BucketApproved         OrderBucket = "approved"
	BucketSelfDelivery     OrderBucket = "self_delivery"
	BucketPlatformDelivery OrderBucket = "platform_delivery"
	BucketHandover         OrderBucket = "handover"
)

// Classification 是單筆訂單的分類結果
type Classification struct {
	Bucket     OrderBucket
	Icon       string
	Title      string
	Action     ActionKind
	WaybillURL string
}

// Classify 依 state / status / 打包與交付物流欄位決定訂單落在哪個分組、
// 需要什麼動作。純函式，不碰任何外部狀態
func Classify(o *model.Order) Classification {
	// 新訂單尚未被賣家接單
	if o.State == model.OrderStateNew {
		return Classification{
			Bucket: BucketNew,
			Icon:   "🆕",
			Title:  "Новый заказ — требуется принять",
		}
	}

	// 銀行已放款但賣家還沒接單
	if o.Status == model.OrderStatusApprovedByBank {
		return Classification{
			Bucket: BucketApproved,
			Icon:   "💳",
			Title:  "Заказ одобрен банком — требуется принять",
		}
	}

	// 賣家自送：唯一的收尾動作是跟買家完成驗證碼交貨
	if o.State == model.OrderStateDelivery {
		return Classification{
			Bucket: BucketSelfDelivery,
			Icon:   "🚗",
			Title:  "Своя доставка — завершить выдачу кодом",
			Action: ActionCompleteHandoff,
		}
	}

	// Kaspi 物流：依打包與運單狀態決定下一步
	if o.State == model.OrderStateKaspiDelivery {
		switch {
		case !o.IsAssembled() && o.CourierHandoffAt == nil:
			return Classification{
				Bucket: BucketPlatformDelivery,
				Icon:   "📦",
				Title:  "Kaspi доставка — создать накладную",
				Action: ActionCreateInvoice,
			}
		case o.IsAssembled() && o.CourierHandoffAt == nil:
			c := Classification{
				Bucket: BucketPlatformDelivery,
				Icon:   "🖨",
				Title:  "Kaspi доставка — накладная готова",
			}
			if o.WaybillURL != "" {
				c.WaybillURL = o.WaybillURL
			} else {
				c.Action = ActionDownloadInvoice
			}
			return c
		}
	}

	return Classification{
		Bucket: BucketHandover,
		Icon:   "✅",
		Title:  "Заказ готов к передаче",
	}
}

// FormatOrderSummary 組出通知用的訂單摘要文字
func FormatOrderSummary(o *model.Order, c Classification) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n", c.Icon, c.Title)
	fmt.Fprintf(&b, "Заказ №%s\n", o.Code)

	for _, item := range o.LineItems {
		fmt.Fprintf(&b, "• %s ×%d — %s\n", item.Name, item.Quantity, utils.FormatTenge(item.UnitPrice))
	}
	fmt.Fprintf(&b, "Итого: %s\n", utils.FormatTenge(o.TotalPrice))

	if o.Customer.Name != "" {
		fmt.Fprintf(&b, "Покупатель: %s\n", o.Customer.Name)
	}
	if o.Customer.Phone != "" {
		fmt.Fprintf(&b, "Телефон: %s\n", o.Customer.Phone)
	}

	if o.State != model.OrderStateKaspiDelivery {
		if o.DeliveryMode != "" {
			fmt.Fprintf(&b, "Доставка: %s\n", o.DeliveryMode)
		}
		if o.DeliveryAddress != "" {
			fmt.Fprintf(&b, "Адрес: %s\n", o.DeliveryAddress)
		}
	}

	if o.PaymentMode != "" {
		fmt.Fprintf(&b, "Оплата: %s\n", o.PaymentMode)
	}
	if o.SignatureRequired {
		b.WriteString("⚠️ Требуется подпись покупателя\n")
	}
	if o.Comment != "" {
		fmt.Fprintf(&b, "Комментарий: %s\n", utils.TruncateText(o.Comment, 200))
	}

	return strings.TrimRight(b.String(), "\n")
}

// operatorBodyLimit 是操作者訊息裡遠端回應內文的長度上限
const operatorBodyLimit = 200

// OperatorMessage 把 API 錯誤分類轉成操作者看得懂的訊息，每一類只有
// 一種固定說法，方便操作者辨識。遠端拒絕（4xx/5xx）會帶上狀態碼與
// 截斷後的回應內文
func OperatorMessage(err error) string {
	switch model.KindOf(err) {
	case model.APIErrorNoAPIKey:
		return "⚠️ Токен Kaspi API не настроен. Проверьте конфигурацию."
	case model.APIErrorTimeout:
		return "⏱ Kaspi API не ответил вовремя. Попробуйте позже."
	case model.APIErrorAuth:
		return "🔑 Kaspi API отклонил токен. Проверьте срок действия токена."
	case model.APIErrorNotFound:
		return "🔍 Заказ не найден в Kaspi. Возможно, он уже в архиве."
	case model.APIErrorHTTP:
		apiErr, ok := model.AsAPIError(err)
		if !ok || apiErr.Status == 0 {
			return "❌ Kaspi API вернул ошибку. Подробности в логах."
		}
		msg := fmt.Sprintf("❌ Kaspi API вернул ошибку %d.", apiErr.Status)
		if body := strings.TrimSpace(apiErr.Body); body != "" {
			msg += "\n" + utils.TruncateText(body, operatorBodyLimit)
		}
		return msg
	default:
		return "❌ Не удалось связаться с Kaspi API. Подробности в логах."
	}
}
