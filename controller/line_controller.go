package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
	"github.com/rs/zerolog"

	"kaspi-bot/background"
	"kaspi-bot/service"
	"kaspi-bot/utils"
)

// addProductStep 是新增商品對話的進度
type addProductStep int

const (
	stepName addProductStep = iota
	stepLink
	stepMinPrice
)

type addProductDialog struct {
	step     addProductStep
	name     string
	link     string
	minPrice *int64
}

// LineController 負責處理來自 LINE 的 Webhook 事件，並把指令分派給
// 對應的服務。所有操作只接受管理者帳號
type LineController struct {
	logger      zerolog.Logger
	lineService *service.LineService
	fulfillment *service.FulfillmentService
	products    *service.ProductService
	prices      *service.PriceService
	orderPoller *background.OrderPoller

	mu      sync.Mutex
	dialogs map[string]*addProductDialog
}

func NewLineController(
	logger zerolog.Logger,
	lineService *service.LineService,
	fulfillment *service.FulfillmentService,
	products *service.ProductService,
	prices *service.PriceService,
	orderPoller *background.OrderPoller,
) *LineController {
	return &LineController{
		logger:      logger.With().Str("module", "line_controller").Logger(),
		lineService: lineService,
		fulfillment: fulfillment,
		products:    products,
		prices:      prices,
		orderPoller: orderPoller,
		dialogs:     make(map[string]*addProductDialog),
	}
}

// WebhookInput 定義了 LINE Webhook Handler 的輸入結構
type WebhookInput struct {
	XLineSignature string `header:"X-Line-Signature"`

	// 這個欄位會在 Handler 被呼叫前，由 Resolve 方法填入
	BodyBytes []byte `doc:"-"`
}

// Resolve 實現了 huma.Resolver 介面
func (i *WebhookInput) Resolve(ctx huma.Context) []error {
	if i.XLineSignature == "" {
		return []error{huma.NewError(http.StatusBadRequest, "缺少 X-Line-Signature 標頭")}
	}

	body, err := io.ReadAll(ctx.BodyReader())
	if err != nil {
		return []error{huma.NewError(http.StatusInternalServerError, "讀取請求內文失敗", err)}
	}
	i.BodyBytes = body
	return nil
}

type WebhookOutput struct {
	Body string
}

// RegisterRoutes 註冊 LINE Webhook 的路由
func (lc *LineController) RegisterRoutes(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "line-webhook",
		Method:      http.MethodPost,
		Path:        "/line/webhook",
		Summary:     "LINE Bot Webhook",
		Description: "處理來自 LINE Platform 的 Webhook 事件",
		Tags:        []string{"LINE"},
	}, lc.Webhook)
}

// Webhook 是處理傳入 LINE 事件的主要函式
func (lc *LineController) Webhook(ctx context.Context, input *WebhookInput) (*WebhookOutput, error) {
	if !webhook.ValidateSignature(lc.lineService.ChannelSecret(), input.XLineSignature, input.BodyBytes) {
		lc.logger.Warn().Msg("Webhook 簽名無效")
		return nil, huma.NewError(http.StatusUnauthorized, "簽名無效")
	}

	var rawData map[string]interface{}
	if err := json.Unmarshal(input.BodyBytes, &rawData); err != nil {
		lc.logger.Error().Err(err).Msg("解析 Webhook 內文失敗")
		return nil, huma.NewError(http.StatusBadRequest, "解析請求內文時發生錯誤")
	}

	// 在背景執行事件處理，避免阻塞 Webhook 的回應
	go lc.handleEvents(context.Background(), rawData)

	return &WebhookOutput{Body: "OK"}, nil
}

func (lc *LineController) handleEvents(ctx context.Context, data map[string]interface{}) {
	events, ok := data["events"].([]interface{})
	if !ok {
		lc.logger.Warn().Msg("收到的資料不包含 events 陣列")
		return
	}

	for _, eventData := range events {
		eventMap, ok := eventData.(map[string]interface{})
		if !ok {
			continue
		}

		userID := extractUserID(eventMap)
		if userID == "" {
			continue
		}

		// 僅接受管理者操作，其他人一律無視
		if userID != lc.lineService.AdminUserID() {
			lc.logger.Warn().Str("user_id", userID).Msg("非管理者訊息，忽略")
			continue
		}

		replyToken, _ := eventMap["replyToken"].(string)

		switch eventMap["type"] {
		case "message":
			lc.handleMessageEvent(ctx, eventMap, userID, replyToken)
		case "postback":
			lc.handlePostbackEvent(ctx, eventMap, userID, replyToken)
		}
	}
}

func extractUserID(eventMap map[string]interface{}) string {
	source, ok := eventMap["source"].(map[string]interface{})
	if !ok {
		return ""
	}
	userID, _ := source["userId"].(string)
	return userID
}

func (lc *LineController) handleMessageEvent(ctx context.Context, eventMap map[string]interface{}, userID, replyToken string) {
	message, ok := eventMap["message"].(map[string]interface{})
	if !ok {
		return
	}

	text, ok := message["text"].(string)
	if !ok {
		return
	}

	lc.logger.Info().Str("message", text).Msg("收到 LINE 文字訊息")
	lc.handleTextMessage(ctx, userID, replyToken, text)
}

func (lc *LineController) handleTextMessage(ctx context.Context, userID, replyToken, text string) {
	// 進行中的交貨 session 優先吃掉文字輸入
	if msg, handled := lc.fulfillment.HandleText(ctx, userID, text); handled {
		lc.lineService.ReplyText(replyToken, msg)
		return
	}

	// 新增商品對話進行中
	if lc.handleDialogInput(ctx, userID, replyToken, text) {
		return
	}

	command := strings.ToLower(strings.TrimSpace(text))

	// "удалить N" 依清單序號刪除追蹤商品
	if idx, ok := parseDeleteCommand(command); ok {
		lc.deleteProductByIndex(ctx, replyToken, idx)
		return
	}

	switch command {
	case "меню", "menu":
		lc.lineService.Reply(replyToken, lc.lineService.Flex().CreateMenu(lc.orderPoller.IsRunning()))
	case "заказы", "orders":
		lc.runCheckNow(replyToken)
	default:
		lc.lineService.ReplyText(replyToken, "Напишите «меню», чтобы открыть список команд.")
	}
}

// parseDeleteCommand 解析 "удалить N" / "delete N"，回傳 1-based 序號
func parseDeleteCommand(command string) (int, bool) {
	fields := strings.Fields(command)
	if len(fields) != 2 {
		return 0, false
	}
	if fields[0] != "удалить" && fields[0] != "delete" {
		return 0, false
	}
	idx, err := strconv.Atoi(fields[1])
	if err != nil || idx < 1 {
		return 0, false
	}
	return idx, true
}

func (lc *LineController) deleteProductByIndex(ctx context.Context, replyToken string, idx int) {
	products, err := lc.products.List(ctx)
	if err != nil {
		lc.logger.Error().Err(err).Msg("讀取商品清單失敗")
		lc.lineService.ReplyText(replyToken, "❌ Не удалось загрузить список товаров.")
		return
	}
	if idx > len(products) {
		lc.lineService.ReplyText(replyToken, fmt.Sprintf("В списке только %d товаров.", len(products)))
		return
	}

	target := products[idx-1]
	if err := lc.products.Delete(ctx, target.ID.Hex()); err != nil {
		lc.logger.Error().Err(err).Str("name", target.Name).Msg("刪除商品失敗")
		lc.lineService.ReplyText(replyToken, "❌ Не удалось удалить товар.")
		return
	}
	lc.lineService.ReplyText(replyToken, fmt.Sprintf("🗑 Товар «%s» удалён.", target.Name))
}

func (lc *LineController) handlePostbackEvent(ctx context.Context, eventMap map[string]interface{}, userID, replyToken string) {
	postback, ok := eventMap["postback"].(map[string]interface{})
	if !ok {
		return
	}
	data, _ := postback["data"].(string)

	values, err := url.ParseQuery(data)
	if err != nil {
		lc.logger.Warn().Str("data", data).Msg("無法解析 postback data")
		return
	}

	action := values.Get("action")
	orderID := values.Get("order_id")

	lc.logger.Info().Str("action", action).Str("order_id", orderID).Msg("收到 LINE postback")

	switch action {
	case "check_now":
		lc.runCheckNow(replyToken)
	case "polling_on":
		lc.orderPoller.Start()
		lc.lineService.ReplyText(replyToken, "▶️ Мониторинг заказов включён.")
	case "polling_off":
		lc.orderPoller.Stop()
		lc.lineService.ReplyText(replyToken, "⏸ Мониторинг заказов выключен.")
	case "create_invoice":
		lc.lineService.ReplyText(replyToken, lc.fulfillment.HandleCreateInvoice(ctx, orderID))
	case "download_invoice":
		msg, _ := lc.fulfillment.HandleDownloadInvoice(ctx, orderID)
		lc.lineService.ReplyText(replyToken, msg)
	case "complete_handoff":
		lc.lineService.ReplyText(replyToken, lc.fulfillment.HandleStartHandoff(ctx, userID, orderID))
	case "add_product":
		lc.startAddProductDialog(userID)
		lc.lineService.ReplyText(replyToken, "Введите название товара:")
	case "list_products":
		lc.replyProductList(ctx, replyToken)
	case "sync_products":
		lc.runSyncProducts(replyToken)
	case "check_prices":
		lc.runCheckPrices(replyToken)
	default:
		lc.logger.Warn().Str("action", action).Msg("未知的 postback 動作")
	}
}

// runCheckNow 觸發一輪即時掃描，結果由通知服務非同步送出
func (lc *LineController) runCheckNow(replyToken string) {
	lc.lineService.ReplyText(replyToken, "🔄 Проверяю заказы…")
	go lc.orderPoller.RunCycle(context.Background())
}

// runSyncProducts 在背景同步商品目錄，完成後推播結果
func (lc *LineController) runSyncProducts(replyToken string) {
	lc.lineService.ReplyText(replyToken, "🔁 Синхронизирую каталог…")
	go func() {
		count, err := lc.products.SyncFromMarketplace(context.Background())
		if err != nil {
			lc.logger.Error().Err(err).Msg("商品目錄同步失敗")
			lc.lineService.PushText(lc.lineService.AdminUserID(), service.OperatorMessage(err))
			return
		}
		lc.lineService.PushText(lc.lineService.AdminUserID(), fmt.Sprintf("✅ Каталог синхронизирован: %d товаров.", count))
	}()
}

func (lc *LineController) runCheckPrices(replyToken string) {
	lc.lineService.ReplyText(replyToken, "💰 Проверяю цены, это может занять минуту…")
	go func() {
		alerts, err := lc.prices.CheckPrices(context.Background())
		if err != nil {
			lc.logger.Error().Err(err).Msg("比價失敗")
			lc.lineService.PushText(lc.lineService.AdminUserID(), "❌ Проверка цен не удалась. Подробности в логах.")
			return
		}
		lc.lineService.PushText(lc.lineService.AdminUserID(), service.FormatPriceAlerts(alerts))
	}()
}

func (lc *LineController) replyProductList(ctx context.Context, replyToken string) {
	products, err := lc.products.List(ctx)
	if err != nil {
		lc.logger.Error().Err(err).Msg("讀取商品清單失敗")
		lc.lineService.ReplyText(replyToken, "❌ Не удалось загрузить список товаров.")
		return
	}
	if len(products) == 0 {
		lc.lineService.ReplyText(replyToken, "Список товаров пуст. Нажмите «Добавить товар» в меню.")
		return
	}

	var b strings.Builder
	b.WriteString("📋 Отслеживаемые товары:\n")
	for i, p := range products {
		fmt.Fprintf(&b, "%d. %s", i+1, p.Name)
		if p.MinPrice != nil {
			fmt.Fprintf(&b, " (мин. %s)", utils.FormatTenge(*p.MinPrice))
		}
		if p.LastPrice != nil {
			fmt.Fprintf(&b, " — сейчас %s", utils.FormatTenge(*p.LastPrice))
		}
		b.WriteByte('\n')
	}
	b.WriteString("\nЧтобы убрать товар, отправьте «удалить N».")
	lc.lineService.ReplyText(replyToken, b.String())
}

// ---- 新增商品對話 ----

func (lc *LineController) startAddProductDialog(userID string) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.dialogs[userID] = &addProductDialog{step: stepName}
}

// advanceAddProductDialog 依輸入推進對話一步，直接改寫 dialog 欄位。
// completed 為 true 時欄位已收齊，可以入庫；此時 reply 為空字串
func advanceAddProductDialog(dialog *addProductDialog, input string) (reply string, completed bool) {
	switch dialog.step {
	case stepName:
		dialog.name = input
		dialog.step = stepLink
		return "Пришлите ссылку на страницу товара kaspi.kz (или «-», чтобы пропустить):", false
	case stepLink:
		if input != "-" {
			dialog.link = input
		}
		dialog.step = stepMinPrice
		return "Укажите минимальную цену в тенге (или «-», чтобы пропустить):", false
	default:
		if input != "-" {
			price, err := utils.ParsePriceText(input)
			if err != nil {
				return "Не понял цену. Введите число или «-».", false
			}
			dialog.minPrice = &price
		}
		return "", true
	}
}

// handleDialogInput 推進新增商品對話，回傳是否吃掉了這則訊息。
// 事件各自在獨立 goroutine 處理，dialog 的讀寫都要在鎖內完成
func (lc *LineController) handleDialogInput(ctx context.Context, userID, replyToken, text string) bool {
	input := strings.TrimSpace(text)

	lc.mu.Lock()
	dialog, active := lc.dialogs[userID]
	if !active {
		lc.mu.Unlock()
		return false
	}

	if strings.EqualFold(input, service.CancelKeyword) {
		delete(lc.dialogs, userID)
		lc.mu.Unlock()
		lc.lineService.ReplyText(replyToken, "🚫 Добавление товара отменено.")
		return true
	}

	reply, completed := advanceAddProductDialog(dialog, input)
	if completed {
		// 對話結束，移出 map 後其他事件就拿不到這個 dialog
		delete(lc.dialogs, userID)
	}
	lc.mu.Unlock()

	if !completed {
		lc.lineService.ReplyText(replyToken, reply)
		return true
	}

	if _, err := lc.products.Add(ctx, dialog.name, dialog.link, dialog.minPrice); err != nil {
		lc.logger.Error().Err(err).Str("name", dialog.name).Msg("新增商品失敗")
		lc.lineService.ReplyText(replyToken, "❌ Не удалось сохранить товар.")
		return true
	}
	lc.lineService.ReplyText(replyToken, fmt.Sprintf("✅ Товар «%s» добавлен.", dialog.name))
	return true
}
