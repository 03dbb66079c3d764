package service

import (
	"strings"
	"testing"

	"kaspi-bot/model"
)

func int64Ptr(v int64) *int64 { return &v }

func TestFormatPriceAlerts(t *testing.T) {
	t.Run("沒有警示", func(t *testing.T) {
		msg := FormatPriceAlerts(nil)
		if !strings.Contains(msg, "✅") {
			t.Errorf("all-clear message expected, got %q", msg)
		}
	})

	t.Run("輸給別家", func(t *testing.T) {
		alerts := []PriceAlert{
			{
				Product:   model.Product{Name: "iPhone 15"},
				OurPrice:  455000,
				BestPrice: 450000,
				BestShop:  "OtherShop",
			},
		}
		msg := FormatPriceAlerts(alerts)
		for _, want := range []string{"iPhone 15", "455 000 ₸", "450 000 ₸", "OtherShop"} {
			if !strings.Contains(msg, want) {
				t.Errorf("message missing %q:\n%s", want, msg)
			}
		}
	})

	t.Run("低於最低價", func(t *testing.T) {
		alerts := []PriceAlert{
			{
				Product:   model.Product{Name: "Чехол", MinPrice: int64Ptr(5000)},
				OurPrice:  4500,
				BestPrice: 4500,
				BestShop:  "MyStore",
				BelowMin:  true,
			},
		}
		msg := FormatPriceAlerts(alerts)
		if !strings.Contains(msg, "5 000 ₸") {
			t.Errorf("message should mention the configured minimum:\n%s", msg)
		}
	})

	t.Run("我們的報價不在列表", func(t *testing.T) {
		alerts := []PriceAlert{
			{
				Product:   model.Product{Name: "Кабель"},
				OurPrice:  0,
				BestPrice: 1200,
				BestShop:  "OtherShop",
			},
		}
		msg := FormatPriceAlerts(alerts)
		if !strings.Contains(msg, "не найдено") {
			t.Errorf("message should note the missing offer:\n%s", msg)
		}
	})
}

func TestFormatSleepingProducts(t *testing.T) {
	if msg := FormatSleepingProducts(nil, 10); !strings.Contains(msg, "10") {
		t.Errorf("all-clear message should mention the window: %q", msg)
	}

	products := []model.Product{{Name: "iPhone 15"}, {Name: "Чехол"}}
	msg := FormatSleepingProducts(products, 10)
	for _, want := range []string{"iPhone 15", "Чехол", "10"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}
