package service

import (
	"fmt"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/rs/zerolog"
)

// LineConfig 是單一 channel 的 LINE 配置
type LineConfig struct {
	ChannelSecret string
	ChannelToken  string
	AdminUserID   string
}

// LineService 封裝 LINE Messaging API 的推播與回覆
type LineService struct {
	logger             zerolog.Logger
	config             LineConfig
	client             *messaging_api.MessagingApiAPI
	flexMessageService *FlexMessageService
}

// NewLineService 建立 LINE 服務，channel token 無效時回傳錯誤
func NewLineService(logger zerolog.Logger, config LineConfig) (*LineService, error) {
	client, err := messaging_api.NewMessagingApiAPI(config.ChannelToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create LINE client: %w", err)
	}

	logger.Info().Msg("LINE client initialized")

	return &LineService{
		logger:             logger.With().Str("service", "line").Logger(),
		config:             config,
		client:             client,
		flexMessageService: NewFlexMessageService(logger),
	}, nil
}

// ChannelSecret 提供 webhook 簽章驗證使用
func (s *LineService) ChannelSecret() string {
	return s.config.ChannelSecret
}

// AdminUserID 回傳唯一允許操作的使用者 ID
func (s *LineService) AdminUserID() string {
	return s.config.AdminUserID
}

// Flex 提供卡片建構器給 controller 使用
func (s *LineService) Flex() *FlexMessageService {
	return s.flexMessageService
}

// PushText 推播純文字訊息
func (s *LineService) PushText(userID, text string) error {
	return s.push(userID, &messaging_api.TextMessage{Text: text})
}

// PushMessage 推播任意訊息（Flex 卡片等）
func (s *LineService) PushMessage(userID string, message messaging_api.MessageInterface) error {
	return s.push(userID, message)
}

// ReplyText 以 reply token 回覆文字訊息，比推播省額度
func (s *LineService) ReplyText(replyToken, text string) error {
	return s.Reply(replyToken, &messaging_api.TextMessage{Text: text})
}

// Reply 以 reply token 回覆任意訊息
func (s *LineService) Reply(replyToken string, messages ...messaging_api.MessageInterface) error {
	_, err := s.client.ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   messages,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("LINE 回覆失敗")
		return fmt.Errorf("failed to reply LINE message: %w", err)
	}
	return nil
}

func (s *LineService) push(userID string, message messaging_api.MessageInterface) error {
	_, err := s.client.PushMessage(&messaging_api.PushMessageRequest{
		To:       userID,
		Messages: []messaging_api.MessageInterface{message},
	}, "")
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("LINE 推播失敗")
		return fmt.Errorf("failed to push LINE message: %w", err)
	}
	return nil
}
