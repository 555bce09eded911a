package monitor

import (
	"hostwatch/internal/alert"
	"hostwatch/internal/utils"

	"github.com/sirupsen/logrus"
)

// NewTelegramNotifier builds the Telegram notifier from config, or returns nil
// when the channel is off.
func NewTelegramNotifier(config *utils.Config, logger *logrus.Logger) *alert.TelegramNotifier {
	tg := config.Alerting.Telegram
	if !config.Alerting.Channels.Telegram || !tg.Enabled {
		return nil
	}
	return alert.NewTelegramNotifier(alert.TelegramOptions{
		APIURL:          tg.APIURL,
		BotToken:        tg.BotToken,
		ChatID:          tg.ChatID,
		ParseMode:       tg.ParseMode,
		Enabled:         tg.Enabled,
		MessageTemplate: tg.MessageTemplate,
	}, logger)
}

// RegisterNotifiersFromConfig attaches the alert channels enabled in config
func (m *Monitor) RegisterNotifiersFromConfig(config *utils.Config) {
	if !config.Alerting.Enabled {
		m.logger.Info("Alerting disabled, findings are only recorded")
		return
	}

	if config.Alerting.Channels.Log {
		m.RegisterNotifier(alert.NewLogAlertNotifier(m.logger))
	}

	if tn := NewTelegramNotifier(config, m.logger); tn != nil {
		m.RegisterNotifier(tn)
		m.logger.Info("Telegram notifier enabled")
	}
}
