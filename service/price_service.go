package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"kaspi-bot/model"
	"kaspi-bot/utils"
)

// OfferSource 提供商品頁的賣家報價
type OfferSource interface {
	FetchOffers(ctx context.Context, productURL string) ([]SellerOffer, error)
}

// PriceService 比對追蹤商品在 Kaspi 上的報價，找出我們不是最低價、
// 或售價掉到最低允許價以下的商品
type PriceService struct {
	logger   zerolog.Logger
	products *ProductService
	offers   OfferSource // 可為 nil（爬蟲未啟用）
	shopName string
}

func NewPriceService(logger zerolog.Logger, products *ProductService, offers OfferSource, shopName string) *PriceService {
	return &PriceService{
		logger:   logger.With().Str("service", "price").Logger(),
		products: products,
		offers:   offers,
		shopName: shopName,
	}
}

// PriceAlert 是一筆需要操作者注意的價格狀況
type PriceAlert struct {
	Product   model.Product
	OurPrice  int64
	BestPrice int64
	BestShop  string
	BelowMin  bool
}

// CheckPrices 逐一比對追蹤商品的報價，回傳警示清單。
// 單一商品抓取失敗不會中斷整批
func (s *PriceService) CheckPrices(ctx context.Context) ([]PriceAlert, error) {
	if s.offers == nil {
		return nil, fmt.Errorf("price crawler is not enabled")
	}

	products, err := s.products.List(ctx)
	if err != nil {
		return nil, err
	}

	var alerts []PriceAlert

	for _, p := range products {
		if p.Link == "" {
			continue
		}

		offers, err := s.offers.FetchOffers(ctx, p.Link)
		if err != nil {
			s.logger.Warn().Err(err).Str("product", p.Name).Msg("報價抓取失敗，略過")
			continue
		}
		if len(offers) == 0 {
			continue
		}

		best := offers[0]
		var ourPrice int64
		for _, o := range offers {
			if o.Price < best.Price {
				best = o
			}
			if strings.EqualFold(o.Seller, s.shopName) {
				ourPrice = o.Price
			}
		}

		if ourPrice > 0 {
			if err := s.products.UpdateLastPrice(ctx, p.ID, ourPrice); err != nil {
				s.logger.Warn().Err(err).Str("product", p.Name).Msg("記錄售價失敗")
			}
		}

		belowMin := p.MinPrice != nil && ourPrice > 0 && ourPrice < *p.MinPrice
		losing := ourPrice == 0 || !strings.EqualFold(best.Seller, s.shopName)

		if losing || belowMin {
			alerts = append(alerts, PriceAlert{
				Product:   p,
				OurPrice:  ourPrice,
				BestPrice: best.Price,
				BestShop:  best.Seller,
				BelowMin:  belowMin,
			})
		}
	}

	return alerts, nil
}

// CheckSleeping 找出久未成單的商品
func (s *PriceService) CheckSleeping(ctx context.Context, days int) ([]model.Product, error) {
	return s.products.FindSleeping(ctx, days)
}

// FormatPriceAlerts 組出比價結果的通知文字
func FormatPriceAlerts(alerts []PriceAlert) string {
	if len(alerts) == 0 {
		return "✅ По всем товарам мы первые в списке продавцов."
	}

	var b strings.Builder
	b.WriteString("💰 Проверка цен:\n")
	for _, a := range alerts {
		fmt.Fprintf(&b, "\n• %s\n", a.Product.Name)
		if a.OurPrice > 0 {
			fmt.Fprintf(&b, "  Наша цена: %s\n", utils.FormatTenge(a.OurPrice))
		} else {
			b.WriteString("  Наше предложение не найдено в списке\n")
		}
		fmt.Fprintf(&b, "  Лучшая цена: %s (%s)\n", utils.FormatTenge(a.BestPrice), a.BestShop)
		if a.BelowMin && a.Product.MinPrice != nil {
			fmt.Fprintf(&b, "  ⚠️ Ниже минимума %s\n", utils.FormatTenge(*a.Product.MinPrice))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatSleepingProducts 組出沉睡商品的通知文字
func FormatSleepingProducts(products []model.Product, days int) string {
	if len(products) == 0 {
		return fmt.Sprintf("✅ Все товары продавались за последние %d дней.", days)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "😴 Товары без заказов более %d дней:\n", days)
	for _, p := range products {
		fmt.Fprintf(&b, "• %s\n", p.Name)
	}
	return strings.TrimRight(b.String(), "\n")
}
