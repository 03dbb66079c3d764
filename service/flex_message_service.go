package service

import (
	"fmt"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/rs/zerolog"

	"kaspi-bot/model"
	"kaspi-bot/utils"
)

// FlexMessageService 處理 Flex Message 建立
type FlexMessageService struct {
	logger zerolog.Logger
}

// NewFlexMessageService 建立新的 Flex Message 服務
func NewFlexMessageService(logger zerolog.Logger) *FlexMessageService {
	return &FlexMessageService{
		logger: logger.With().Str("service", "flex_message").Logger(),
	}
}

// bucket 對應的 header 顏色
func headerColor(bucket OrderBucket) string {
	switch bucket {
	case BucketNew:
		return "#6366F1"
	case BucketApproved:
		return "#0EA5E9"
	case BucketSelfDelivery:
		return "#F59E0B"
	case BucketPlatformDelivery:
		return "#EF4444"
	default:
		return "#10B981"
	}
}

// CreateOrderCard 依分類結果建立訂單通知卡片
func (s *FlexMessageService) CreateOrderCard(order *model.Order, c Classification) *messaging_api.FlexMessage {
	bubble := &messaging_api.FlexBubble{
		Size: "kilo",
		Header: &messaging_api.FlexBox{
			Layout:          "horizontal",
			BackgroundColor: headerColor(c.Bucket),
			PaddingAll:      "16px",
			Spacing:         "lg",
			AlignItems:      "center",
			Contents: []messaging_api.FlexComponentInterface{
				&messaging_api.FlexText{
					Text:  c.Icon,
					Size:  "lg",
					Flex:  0,
					Color: "#FFFFFF",
				},
				&messaging_api.FlexText{
					Text:   c.Title,
					Weight: "bold",
					Size:   "md",
					Color:  "#FFFFFF",
					Wrap:   true,
					Flex:   5,
				},
			},
		},
		Body: s.createOrderBody(order),
	}

	if footer := s.createActionFooter(order, c); footer != nil {
		bubble.Footer = footer
	}

	return &messaging_api.FlexMessage{
		AltText:  fmt.Sprintf("%s Заказ №%s — %s", c.Icon, order.Code, utils.FormatTenge(order.TotalPrice)),
		Contents: bubble,
	}
}

func (s *FlexMessageService) createOrderBody(order *model.Order) *messaging_api.FlexBox {
	contents := []messaging_api.FlexComponentInterface{
		s.createOrderNumberRow(order.Code),
	}

	for _, item := range order.LineItems {
		contents = append(contents, s.createInfoRow(
			fmt.Sprintf("×%d", item.Quantity),
			fmt.Sprintf("%s — %s", utils.TruncateText(item.Name, 60), utils.FormatTenge(item.UnitPrice)),
			false,
		))
	}

	contents = append(contents, s.createInfoRow("Итого", utils.FormatTenge(order.TotalPrice), true))

	if order.Customer.Name != "" {
		contents = append(contents, s.createInfoRow("Клиент", order.Customer.Name, false))
	}
	if order.Customer.Phone != "" {
		contents = append(contents, s.createInfoRow("Тел.", order.Customer.Phone, false))
	}
	if order.State != model.OrderStateKaspiDelivery && order.DeliveryAddress != "" {
		contents = append(contents, s.createInfoRow("Адрес", utils.TruncateText(order.DeliveryAddress, 120), false))
	}
	if order.PaymentMode != "" {
		contents = append(contents, s.createInfoRow("Оплата", order.PaymentMode, false))
	}
	if order.SignatureRequired {
		contents = append(contents, s.createInfoRow("⚠️", "Требуется подпись", true))
	}
	if order.Comment != "" {
		contents = append(contents, s.createInfoRow("注", utils.TruncateText(order.Comment, 120), false))
	}

	return &messaging_api.FlexBox{
		Layout:     "vertical",
		Spacing:    "sm",
		PaddingAll: "16px",
		Contents:   contents,
	}
}

func (s *FlexMessageService) createOrderNumberRow(code string) *messaging_api.FlexBox {
	return &messaging_api.FlexBox{
		Layout:  "horizontal",
		Spacing: "md",
		Contents: []messaging_api.FlexComponentInterface{
			&messaging_api.FlexText{
				Text:  "Заказ",
				Color: "#6B7280",
				Size:  "md",
				Flex:  2,
			},
			&messaging_api.FlexText{
				Text:  code,
				Color: "#3B82F6",
				Size:  "md",
				Flex:  5,
				Wrap:  true,
				Action: &messaging_api.ClipboardAction{
					Label:         "Копировать",
					ClipboardText: code,
				},
			},
		},
	}
}

func (s *FlexMessageService) createInfoRow(label, value string, isBold bool) *messaging_api.FlexBox {
	var weight messaging_api.FlexTextWEIGHT
	if isBold {
		weight = messaging_api.FlexTextWEIGHT_BOLD
	} else {
		weight = messaging_api.FlexTextWEIGHT_REGULAR
	}

	return &messaging_api.FlexBox{
		Layout:  "horizontal",
		Spacing: "md",
		Contents: []messaging_api.FlexComponentInterface{
			&messaging_api.FlexText{
				Text:  label,
				Color: "#6B7280",
				Size:  "md",
				Flex:  2,
			},
			&messaging_api.FlexText{
				Text:   value,
				Wrap:   true,
				Color:  "#111827",
				Size:   "md",
				Flex:   5,
				Weight: weight,
			},
		},
	}
}

// createActionFooter 依建議動作產生按鈕，沒有動作也沒有運單連結時回傳 nil
func (s *FlexMessageService) createActionFooter(order *model.Order, c Classification) *messaging_api.FlexBox {
	var contents []messaging_api.FlexComponentInterface

	switch c.Action {
	case ActionCreateInvoice:
		contents = append(contents, s.createPostbackButton("Создать накладную", "create_invoice", order.ID, "#6366F1"))
	case ActionDownloadInvoice:
		contents = append(contents, s.createPostbackButton("Скачать накладную", "download_invoice", order.ID, "#6366F1"))
	case ActionCompleteHandoff:
		contents = append(contents, s.createPostbackButton("Выдать заказ", "complete_handoff", order.ID, "#F59E0B"))
	}

	if c.WaybillURL != "" {
		contents = append(contents, &messaging_api.FlexButton{
			Style:  "secondary",
			Height: "md",
			Action: &messaging_api.UriAction{
				Label: "Открыть накладную",
				Uri:   c.WaybillURL,
			},
		})
	}

	if len(contents) == 0 {
		return nil
	}

	return &messaging_api.FlexBox{
		Layout:   "vertical",
		Spacing:  "sm",
		Contents: contents,
	}
}

func (s *FlexMessageService) createPostbackButton(label, action, orderID, color string) *messaging_api.FlexButton {
	return &messaging_api.FlexButton{
		Style:  "primary",
		Height: "md",
		Color:  color,
		Action: &messaging_api.PostbackAction{
			Label:       label,
			Data:        fmt.Sprintf("action=%s&order_id=%s", action, orderID),
			DisplayText: label,
		},
	}
}

// CreateMenu 建立主選單卡片
func (s *FlexMessageService) CreateMenu(pollerRunning bool) *messaging_api.FlexMessage {
	pollLabel := "▶️ Включить мониторинг"
	pollAction := "polling_on"
	statusText := "Мониторинг выключен"
	if pollerRunning {
		pollLabel = "⏸ Выключить мониторинг"
		pollAction = "polling_off"
		statusText = "Мониторинг работает"
	}

	return &messaging_api.FlexMessage{
		AltText: "Меню",
		Contents: &messaging_api.FlexBubble{
			Size: "kilo",
			Header: &messaging_api.FlexBox{
				Layout:          "horizontal",
				BackgroundColor: "#111827",
				PaddingAll:      "16px",
				Contents: []messaging_api.FlexComponentInterface{
					&messaging_api.FlexText{
						Text:   "Kaspi ассистент",
						Weight: "bold",
						Size:   "lg",
						Color:  "#FFFFFF",
					},
				},
			},
			Body: &messaging_api.FlexBox{
				Layout:     "vertical",
				Spacing:    "sm",
				PaddingAll: "16px",
				Contents: []messaging_api.FlexComponentInterface{
					&messaging_api.FlexText{
						Text:  statusText,
						Size:  "sm",
						Color: "#6B7280",
					},
				},
			},
			Footer: &messaging_api.FlexBox{
				Layout:  "vertical",
				Spacing: "sm",
				Contents: []messaging_api.FlexComponentInterface{
					s.createMenuButton("🔄 Проверить заказы", "check_now"),
					s.createMenuButton(pollLabel, pollAction),
					s.createMenuButton("📋 Мои товары", "list_products"),
					s.createMenuButton("➕ Добавить товар", "add_product"),
					s.createMenuButton("🔁 Синхронизировать каталог", "sync_products"),
					s.createMenuButton("💰 Проверить цены", "check_prices"),
				},
			},
		},
	}
}

func (s *FlexMessageService) createMenuButton(label, action string) *messaging_api.FlexButton {
	return &messaging_api.FlexButton{
		Style:  "secondary",
		Height: "sm",
		Action: &messaging_api.PostbackAction{
			Label:       label,
			Data:        "action=" + action,
			DisplayText: label,
		},
	}
}
