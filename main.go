package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"kaspi-bot/background"
	"kaspi-bot/controller"
	"kaspi-bot/infra"
	"kaspi-bot/metrics"
	"kaspi-bot/service"
)

type Options struct {
	Port int `help:"服務監聽端口" short:"p" default:"8090"`
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, options *Options) {
		// 載入設定檔
		if err := infra.LoadConfig(); err != nil {
			log.Fatal().
				Err(err).
				Msg("讀取 config.yml 失敗")
		}

		// 初始化 logger（在載入配置後）
		infra.InitLogger()

		// 初始化 OpenTelemetry
		otelShutdown, err := infra.InitTracing("kaspi-bot")
		if err != nil {
			log.Error().
				Err(err).
				Msg("Tracing 初始化失敗，將繼續運行")
			otelShutdown = func(context.Context) error { return nil }
		}

		// 初始化 Prometheus metrics
		registry := prometheus.NewRegistry()
		metrics.Init(registry)

		log.Info().
			Int("port", options.Port).
			Msg("啟動 Kaspi 賣家助理服務")

		// MongoDB 是追蹤商品的儲存層，連不上直接失敗
		mongoDB, err := infra.NewMongoDB(infra.MongoConfig{
			URI:      infra.AppConfig.MongoDB.URI,
			Database: infra.AppConfig.MongoDB.Database,
		})
		if err != nil {
			log.Fatal().
				Err(err).
				Msg("MongoDB 連接失敗")
		}
		if err := mongoDB.EnsureIndexes(context.Background()); err != nil {
			log.Error().
				Err(err).
				Msg("建立索引失敗，將繼續運行")
		}

		// Redis 只用於爬蟲快取，連不上降級為不快取
		var redisClient *infra.Redis
		redisClient, err = infra.NewRedis(infra.RedisConfig{
			Addr:     infra.AppConfig.Redis.Addr,
			Password: infra.AppConfig.Redis.Password,
			DB:       infra.AppConfig.Redis.DB,
		})
		if err != nil {
			log.Error().
				Err(err).
				Msg("Redis 連接失敗，報價快取停用")
			redisClient = nil
		}

		// Kaspi API client 與訂單 adapter
		kaspiClient := infra.NewKaspiClient(log.Logger, infra.KaspiConfig{
			BaseURL: infra.AppConfig.Kaspi.APIBaseURL,
			Token:   infra.AppConfig.Kaspi.Token,
			Timeout: time.Duration(infra.AppConfig.Kaspi.TimeoutSeconds) * time.Second,
		})
		orderService := service.NewKaspiOrderService(log.Logger, kaspiClient)

		// LINE 是唯一的操作介面，credential 缺漏無法運作
		if infra.AppConfig.LINE.ChannelToken == "" || infra.AppConfig.LINE.ChannelSecret == "" {
			log.Fatal().Msg("LINE channel credential 未設定")
		}
		lineService, err := service.NewLineService(log.Logger, service.LineConfig{
			ChannelSecret: infra.AppConfig.LINE.ChannelSecret,
			ChannelToken:  infra.AppConfig.LINE.ChannelToken,
			AdminUserID:   infra.AppConfig.LINE.AdminUserID,
		})
		if err != nil {
			log.Fatal().
				Err(err).
				Msg("初始化 LineService 失敗")
		}

		// Discord 鏡像為選配
		var discordService *service.DiscordService
		if infra.AppConfig.Discord.BotToken != "" {
			discordService, err = service.NewDiscordService(log.Logger, infra.AppConfig.Discord.BotToken, infra.AppConfig.Discord.ChannelID)
			if err != nil {
				log.Error().
					Err(err).
					Msg("初始化 DiscordService 失敗，鏡像停用")
				discordService = nil
			}
		} else {
			log.Info().Msg("☑️ Discord 鏡像未啟用（缺 bot_token）")
		}

		// 檔案存放（運單 PDF）
		fileStorage := service.NewFileStorageService(log.Logger,
			infra.AppConfig.App.UploadPath,
			fmt.Sprintf("%s/uploads", infra.AppConfig.App.BaseURL),
		)
		if err := fileStorage.InitializeUploadDirectories(); err != nil {
			log.Fatal().
				Err(err).
				Msg("初始化上傳目錄失敗")
		}

		// 通知服務（worker pool + 去重）
		notificationService := service.NewNotificationService(log.Logger,
			lineService, discordService,
			infra.AppConfig.LINE.AdminUserID,
			infra.AppConfig.Notifications.Workers,
			infra.AppConfig.Notifications.QueueSize,
		)
		notificationService.Start()

		// 履約流程與商品服務
		fulfillmentService := service.NewFulfillmentService(log.Logger, orderService, fileStorage)
		productService := service.NewProductService(log.Logger, mongoDB, kaspiClient)

		// 比價爬蟲為選配
		var priceCrawler *service.PriceCrawlerService
		if infra.AppConfig.App.IsCrawler {
			priceCrawler, err = service.NewPriceCrawlerService(log.Logger, redisClient)
			if err != nil {
				log.Error().
					Err(err).
					Msg("初始化比價爬蟲失敗，繼續運行其他服務")
				priceCrawler = nil
			}
		} else {
			log.Info().Msg("☑️ 比價爬蟲未啟用（config.yml is_crawler=false）")
		}

		var offerSource service.OfferSource
		if priceCrawler != nil {
			offerSource = priceCrawler
		}
		priceService := service.NewPriceService(log.Logger, productService, offerSource, infra.AppConfig.App.ShopName)

		// 背景輪詢
		orderPoller := background.NewOrderPoller(log.Logger,
			orderService, notificationService, productService,
			time.Duration(infra.AppConfig.Orders.PollIntervalSeconds)*time.Second,
			infra.AppConfig.Orders.LookbackDays,
		)
		var pricePoller *background.PricePoller
		if priceCrawler != nil {
			pricePoller = background.NewPricePoller(log.Logger,
				priceService, notificationService,
				time.Duration(infra.AppConfig.Prices.PollIntervalSeconds)*time.Second,
				infra.AppConfig.Prices.SleepingDays,
			)
		}

		router := chi.NewRouter()
		router.Use(middleware.Logger)
		router.Use(middleware.Recoverer)
		router.Use(middleware.RequestID)
		router.Use(middleware.Heartbeat("/ping"))

		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Link"},
			AllowCredentials: false,
			MaxAge:           300,
		}))

		apiConfig := huma.DefaultConfig("Kaspi Seller Bot API", "1.0.0")
		apiConfig.Info.Description = "Kaspi 賣家助理：訂單輪詢、履約操作與比價"

		serverURL := fmt.Sprintf("http://localhost:%d", options.Port)
		if infra.AppConfig.App.BaseURL != "" {
			serverURL = infra.AppConfig.App.BaseURL
		}
		apiConfig.Servers = []*huma.Server{
			{URL: serverURL},
		}

		api := humachi.New(router, apiConfig)

		// === LINE Controller ===
		lineController := controller.NewLineController(log.Logger, lineService, fulfillmentService, productService, priceService, orderPoller)
		lineController.RegisterRoutes(api)

		// === Develop Controller ===
		developController := controller.NewDevelopController(log.Logger, orderPoller, pricePoller)
		developController.RegisterRoutes(api)

		// 健康檢查
		huma.Register(api, huma.Operation{
			OperationID: "health",
			Method:      "GET",
			Path:        "/health",
			Summary:     "健康檢查",
			Tags:        []string{"monitoring"},
		}, func(ctx context.Context, input *struct{}) (*struct {
			Body struct {
				Status  string `json:"status" example:"ok"`
				Message string `json:"message" example:"服務運行正常"`
			}
		}, error) {
			resp := &struct {
				Body struct {
					Status  string `json:"status" example:"ok"`
					Message string `json:"message" example:"服務運行正常"`
				}
			}{}
			resp.Body.Status = "ok"
			resp.Body.Message = "Kaspi 賣家助理服務運行正常"
			return resp, nil
		})

		// MongoDB 監控端點
		huma.Register(api, huma.Operation{
			OperationID: "mongodb-monitoring",
			Method:      "GET",
			Path:        "/api/monitoring/mongodb",
			Summary:     "MongoDB 健康狀態監控",
			Tags:        []string{"monitoring"},
		}, func(ctx context.Context, input *struct{}) (*struct {
			Body struct {
				Status  string  `json:"status" example:"healthy"`
				Latency float64 `json:"latency" example:"1.23"`
				Message string  `json:"message" example:"MongoDB 連接正常"`
			}
		}, error) {
			start := time.Now()
			err := mongoDB.Client.Ping(ctx, nil)
			latency := float64(time.Since(start).Nanoseconds()) / 1e6

			resp := &struct {
				Body struct {
					Status  string  `json:"status" example:"healthy"`
					Latency float64 `json:"latency" example:"1.23"`
					Message string  `json:"message" example:"MongoDB 連接正常"`
				}
			}{}

			if err != nil {
				resp.Body.Status = "unhealthy"
				resp.Body.Latency = latency
				resp.Body.Message = fmt.Sprintf("MongoDB 連接失敗: %v", err)
			} else {
				resp.Body.Status = "healthy"
				resp.Body.Latency = latency
				resp.Body.Message = "MongoDB 連接正常"
			}
			return resp, nil
		})

		// Redis 監控端點
		huma.Register(api, huma.Operation{
			OperationID: "redis-monitoring",
			Method:      "GET",
			Path:        "/api/monitoring/redis",
			Summary:     "Redis 健康狀態監控",
			Tags:        []string{"monitoring"},
		}, func(ctx context.Context, input *struct{}) (*struct {
			Body struct {
				Status  string  `json:"status" example:"healthy"`
				Latency float64 `json:"latency" example:"0.45"`
				Message string  `json:"message" example:"Redis 連接正常"`
			}
		}, error) {
			start := time.Now()
			var err error
			if redisClient != nil {
				err = redisClient.Client.Ping(ctx).Err()
			} else {
				err = fmt.Errorf("Redis 服務未啟用")
			}
			latency := float64(time.Since(start).Nanoseconds()) / 1e6

			resp := &struct {
				Body struct {
					Status  string  `json:"status" example:"healthy"`
					Latency float64 `json:"latency" example:"0.45"`
					Message string  `json:"message" example:"Redis 連接正常"`
				}
			}{}

			if err != nil {
				resp.Body.Status = "unhealthy"
				resp.Body.Latency = latency
				resp.Body.Message = fmt.Sprintf("Redis 連接失敗: %v", err)
			} else {
				resp.Body.Status = "healthy"
				resp.Body.Latency = latency
				resp.Body.Message = "Redis 連接正常"
			}
			return resp, nil
		})

		// Prometheus metrics 端點
		router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

		// 運單 PDF 的靜態檔案服務
		uploadFS := http.FileServer(http.Dir(infra.AppConfig.App.UploadPath))
		router.Handle("/uploads/*", http.StripPrefix("/uploads/", uploadFS))

		hooks.OnStart(func() {
			log.Info().
				Int("port", options.Port).
				Str("docs_url", fmt.Sprintf("%s/docs", serverURL)).
				Msg("API文檔已啟用")

			if infra.AppConfig.Orders.AutoStart {
				orderPoller.Start()
			}
			if pricePoller != nil && infra.AppConfig.Prices.AutoStart {
				pricePoller.Start()
			}

			server := &http.Server{
				Addr:    fmt.Sprintf(":%d", options.Port),
				Handler: router,
			}
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal().
						Err(err).
						Msg("服務器啟動失敗")
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit
			log.Info().Msg("正在關閉服務器...")

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				log.Error().
					Err(err).
					Msg("服務器關閉錯誤")
			}

			orderPoller.Stop()
			if pricePoller != nil {
				pricePoller.Stop()
			}
			if priceCrawler != nil {
				priceCrawler.Close()
			}
			notificationService.Stop()
			if discordService != nil {
				log.Info().Msg("正在關閉 Discord 服務...")
				discordService.Close()
			}
			if err := otelShutdown(context.Background()); err != nil {
				log.Error().
					Err(err).
					Msg("關閉 OpenTelemetry 失敗")
			}
			if redisClient != nil {
				redisClient.Close()
			}
			mongoDB.Close(context.Background())
			log.Info().Msg("服務器已關閉")
		})
	})

	cli.Run()
}
