package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"

	"kaspi-bot/infra"
	"kaspi-bot/utils"
)

// isDebug 模式開關：設定為 true 以顯示瀏覽器進行除錯
const isDebug = false
const priceCacheKeyPrefix = "crawler:v1:kaspi-offers" // Redis 快取鍵前綴，方便版本管理
const priceCacheTTL = 30 * time.Minute

// SellerOffer 是商品頁賣家列表中的一筆報價
type SellerOffer struct {
	Seller string `json:"seller"`
	Price  int64  `json:"price"`
}

// PriceCrawlerService 以無頭瀏覽器抓取 kaspi.kz 商品頁的賣家報價表。
// Kaspi 沒有公開的比價 API，報價表由前端 JS 渲染，必須用真瀏覽器
type PriceCrawlerService struct {
	logger      zerolog.Logger
	pw          *playwright.Playwright
	browser     playwright.Browser
	redisClient *infra.Redis // 可為 nil，此時不快取
}

func NewPriceCrawlerService(logger zerolog.Logger, redisClient *infra.Redis) (*PriceCrawlerService, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, err
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(!isDebug),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-extensions",
			"--disable-gpu",
			"--no-sandbox",
			"--disable-dev-shm-usage",
			"--no-first-run",
			"--no-default-browser-check",
		},
	})
	if err != nil {
		pw.Stop()
		return nil, err
	}

	logger.Info().Msg("比價爬蟲已初始化")

	return &PriceCrawlerService{
		logger:      logger.With().Str("module", "price_crawler_service").Logger(),
		pw:          pw,
		browser:     browser,
		redisClient: redisClient,
	}, nil
}

// FetchOffers 抓取商品頁的賣家報價，由低到高排序。命中快取時不開頁面
func (s *PriceCrawlerService) FetchOffers(ctx context.Context, productURL string) ([]SellerOffer, error) {
	cacheKey := fmt.Sprintf("%s:%s", priceCacheKeyPrefix, productURL)

	if s.redisClient != nil {
		cached, err := s.redisClient.Client.Get(ctx, cacheKey).Result()
		if err == nil {
			var offers []SellerOffer
			if jsonErr := json.Unmarshal([]byte(cached), &offers); jsonErr == nil {
				s.logger.Debug().Str("url", productURL).Msg("報價快取命中")
				return offers, nil
			}
		}
	}

	offers, err := s.scrapeOffers(productURL)
	if err != nil {
		return nil, err
	}

	if s.redisClient != nil && len(offers) > 0 {
		if jsonData, jsonErr := json.Marshal(offers); jsonErr == nil {
			s.redisClient.Client.Set(ctx, cacheKey, jsonData, priceCacheTTL)
		}
	}

	return offers, nil
}

func (s *PriceCrawlerService) scrapeOffers(productURL string) ([]SellerOffer, error) {
	page, err := s.browser.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	defer page.Close()

	if _, err := page.Goto(productURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(30000),
	}); err != nil {
		return nil, fmt.Errorf("failed to open product page: %w", err)
	}

	// 賣家報價表是前端渲染的，等表格出現
	table := page.Locator(".sellers-table tbody tr")
	if err := table.First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(15000),
	}); err != nil {
		return nil, fmt.Errorf("sellers table did not appear: %w", err)
	}

	rows, err := table.All()
	if err != nil {
		return nil, fmt.Errorf("failed to read sellers table: %w", err)
	}

	var offers []SellerOffer
	for _, row := range rows {
		sellerName, _ := row.Locator(".sellers-table__merchant-name").TextContent()
		priceText, _ := row.Locator(".sellers-table__price-cell-text").First().TextContent()

		sellerName = strings.TrimSpace(sellerName)
		price, err := utils.ParsePriceText(priceText)
		if err != nil || sellerName == "" {
			continue
		}

		offers = append(offers, SellerOffer{Seller: sellerName, Price: price})
	}

	s.logger.Debug().Str("url", productURL).Int("offers", len(offers)).Msg("報價抓取完成")
	return offers, nil
}

// Close 關閉瀏覽器與 Playwright
func (s *PriceCrawlerService) Close() {
	if s.browser != nil {
		s.browser.Close()
	}
	if s.pw != nil {
		s.pw.Stop()
	}
}
