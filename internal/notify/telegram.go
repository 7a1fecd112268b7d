package notify

import (
	"fmt"
	"log"

	tele "gopkg.in/telebot.v3"
)

// TelegramSink pushes events to a Telegram chat. Sends are one-way and
// asynchronous so a slow or failing delivery never blocks the engine.
type TelegramSink struct {
	bot  *tele.Bot
	chat *tele.Chat
}

func NewTelegramSink(token string, chatID int64) (*TelegramSink, error) {
	bot, err := tele.NewBot(tele.Settings{Token: token})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	log.Printf("📱 Telegram: notifications to chat %d", chatID)
	return &TelegramSink{bot: bot, chat: &tele.Chat{ID: chatID}}, nil
}

func (s *TelegramSink) Notify(ev Event) {
	text := fmt.Sprintf("[%s] %s\n%s", ev.Kind, ev.Symbol, ev.Message)
	go func() {
		if _, err := s.bot.Send(s.chat, text); err != nil {
			log.Printf("⚠️ Telegram: send failed: %v", err)
		}
	}()
}
