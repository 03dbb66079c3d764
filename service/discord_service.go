package service

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

// DiscordService 是選配的通知鏡像，把送給操作者的訊息同步抄送到
// Discord 頻道，方便留存紀錄。只發不收
type DiscordService struct {
	logger    zerolog.Logger
	session   *discordgo.Session
	channelID string
}

func NewDiscordService(logger zerolog.Logger, botToken, channelID string) (*DiscordService, error) {
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("failed to open Discord session: %w", err)
	}

	logger.Info().Str("channel_id", channelID).Msg("Discord mirror initialized")

	return &DiscordService{
		logger:    logger.With().Str("service", "discord").Logger(),
		session:   session,
		channelID: channelID,
	}, nil
}

// SendText 送出文字訊息到鏡像頻道，失敗只記 log 不往上傳
func (s *DiscordService) SendText(text string) {
	if _, err := s.session.ChannelMessageSend(s.channelID, text); err != nil {
		s.logger.Warn().Err(err).Msg("Discord 鏡像訊息發送失敗")
	}
}

func (s *DiscordService) Close() error {
	return s.session.Close()
}
