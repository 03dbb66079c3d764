package controller

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog"

	"kaspi-bot/background"
)

// DevelopController 提供開發與維運用的端點：手動觸發輪詢、查詢與
// 切換排程器狀態
type DevelopController struct {
	logger      zerolog.Logger
	orderPoller *background.OrderPoller
	pricePoller *background.PricePoller // 可為 nil（爬蟲未啟用）
}

func NewDevelopController(logger zerolog.Logger, orderPoller *background.OrderPoller, pricePoller *background.PricePoller) *DevelopController {
	return &DevelopController{
		logger:      logger.With().Str("module", "develop_controller").Logger(),
		orderPoller: orderPoller,
		pricePoller: pricePoller,
	}
}

type PingResponse struct {
	Body struct {
		Message string `json:"message" example:"pong" doc:"回應訊息"`
	}
}

type SchedulerStatusResponse struct {
	Body struct {
		OrderPollerRunning bool `json:"order_poller_running" doc:"訂單輪詢是否執行中"`
		PricePollerRunning bool `json:"price_poller_running" doc:"比價輪詢是否執行中"`
	}
}

func (c *DevelopController) RegisterRoutes(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "develop-ping",
		Method:      "GET",
		Path:        "/develop/ping",
		Summary:     "開發環境健康檢查",
		Tags:        []string{"develop"},
	}, c.ping)

	huma.Register(api, huma.Operation{
		OperationID: "develop-poll-cycle",
		Method:      "POST",
		Path:        "/develop/poll-cycle",
		Summary:     "手動執行一輪訂單掃描",
		Description: "不影響排程器狀態，掃描結果走正常通知流程",
		Tags:        []string{"develop"},
	}, c.runPollCycle)

	huma.Register(api, huma.Operation{
		OperationID: "scheduler-status",
		Method:      "GET",
		Path:        "/develop/scheduler",
		Summary:     "查詢排程器狀態",
		Tags:        []string{"develop"},
	}, c.schedulerStatus)

	huma.Register(api, huma.Operation{
		OperationID: "scheduler-start",
		Method:      "POST",
		Path:        "/develop/scheduler/start",
		Summary:     "啟動訂單輪詢",
		Tags:        []string{"develop"},
	}, c.schedulerStart)

	huma.Register(api, huma.Operation{
		OperationID: "scheduler-stop",
		Method:      "POST",
		Path:        "/develop/scheduler/stop",
		Summary:     "停止訂單輪詢",
		Tags:        []string{"develop"},
	}, c.schedulerStop)
}

func (c *DevelopController) ping(ctx context.Context, input *struct{}) (*PingResponse, error) {
	resp := &PingResponse{}
	resp.Body.Message = "pong"
	return resp, nil
}

func (c *DevelopController) runPollCycle(ctx context.Context, input *struct{}) (*PingResponse, error) {
	c.logger.Info().Msg("手動觸發訂單掃描")
	go c.orderPoller.RunCycle(context.Background())

	resp := &PingResponse{}
	resp.Body.Message = "poll cycle started"
	return resp, nil
}

func (c *DevelopController) schedulerStatus(ctx context.Context, input *struct{}) (*SchedulerStatusResponse, error) {
	resp := &SchedulerStatusResponse{}
	resp.Body.OrderPollerRunning = c.orderPoller.IsRunning()
	if c.pricePoller != nil {
		resp.Body.PricePollerRunning = c.pricePoller.IsRunning()
	}
	return resp, nil
}

func (c *DevelopController) schedulerStart(ctx context.Context, input *struct{}) (*PingResponse, error) {
	c.orderPoller.Start()
	resp := &PingResponse{}
	resp.Body.Message = "order poller started"
	return resp, nil
}

func (c *DevelopController) schedulerStop(ctx context.Context, input *struct{}) (*PingResponse, error) {
	c.orderPoller.Stop()
	resp := &PingResponse{}
	resp.Body.Message = "order poller stopped"
	return resp, nil
}
