package infra

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		AppVersion string `yaml:"app_version"`
		ShopName   string `yaml:"shop_name"`    // 我們在 Kaspi 上的店家名稱，用於比價判斷是否為 top-1
		BaseURL    string `yaml:"base_url"`     // 對外可達的服務網址，用於產生運單 PDF 連結
		UploadPath string `yaml:"upload_path"`  // 運單等檔案的本地存放目錄
		IsCrawler  bool   `yaml:"is_crawler"`   // 是否啟用比價爬蟲
	} `yaml:"app"`
	Kaspi struct {
		APIBaseURL     string `yaml:"api_base_url"`
		Token          string `yaml:"token"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"kaspi"`
	Orders struct {
		PollIntervalSeconds int  `yaml:"poll_interval_seconds"`
		LookbackDays        int  `yaml:"lookback_days"`
		AutoStart           bool `yaml:"auto_start"`
	} `yaml:"orders"`
	Prices struct {
		PollIntervalSeconds int  `yaml:"poll_interval_seconds"`
		SleepingDays        int  `yaml:"sleeping_days"`
		AutoStart           bool `yaml:"auto_start"`
	} `yaml:"prices"`
	Notifications struct {
		Workers   int `yaml:"workers"`
		QueueSize int `yaml:"queue_size"`
	} `yaml:"notifications"`
	MongoDB struct {
		URI      string `yaml:"uri"`
		Database string `yaml:"database"`
	} `yaml:"mongodb"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	LINE struct {
		ChannelSecret string `yaml:"channel_secret"`
		ChannelToken  string `yaml:"channel_token"`
		AdminUserID   string `yaml:"admin_user_id"` // 唯一允許操作的 LINE 使用者
	} `yaml:"line"`
	Discord struct {
		BotToken  string `yaml:"bot_token"`
		ChannelID string `yaml:"channel_id"`
	} `yaml:"discord"`
}

var AppConfig Config

func LoadConfig() error {
	f, err := os.Open("config.yml")
	if err != nil {
		return err
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&AppConfig); err != nil {
		return err
	}
	applyDefaults(&AppConfig)
	return nil
}

// applyDefaults 補上未設定的預設值，對齊 Kaspi 賣家後台的慣用參數
func applyDefaults(c *Config) {
	if c.Kaspi.APIBaseURL == "" {
		c.Kaspi.APIBaseURL = "https://kaspi.kz/shop/api/v2"
	}
	if c.Kaspi.TimeoutSeconds <= 0 {
		c.Kaspi.TimeoutSeconds = 15
	}
	if c.Orders.PollIntervalSeconds <= 0 {
		c.Orders.PollIntervalSeconds = 3600
	}
	if c.Orders.LookbackDays <= 0 {
		c.Orders.LookbackDays = 3
	}
	if c.Prices.PollIntervalSeconds <= 0 {
		c.Prices.PollIntervalSeconds = 1800
	}
	if c.Prices.SleepingDays <= 0 {
		c.Prices.SleepingDays = 10
	}
	if c.Notifications.Workers <= 0 {
		c.Notifications.Workers = 3
	}
	if c.Notifications.QueueSize <= 0 {
		c.Notifications.QueueSize = 100
	}
	if c.App.UploadPath == "" {
		c.App.UploadPath = "./uploads"
	}
	if c.MongoDB.Database == "" {
		c.MongoDB.Database = "kaspi_bot"
	}
}
