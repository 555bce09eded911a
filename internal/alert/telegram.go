package alert

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"text/template"
	"time"

	"hostwatch/internal/model"

	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
)

const DefaultTelegramAPIURL = "https://api.telegram.org"

type TelegramNotifier struct {
	mu              sync.RWMutex
	apiURL          string
	botToken        string
	chatID          string
	parseMode       string
	enabled         bool
	maxRetries      int
	retryDelay      time.Duration
	messageTemplate *template.Template
	client          *http.Client
	logger          *logrus.Logger
}

type TelegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type TelegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

type TelegramOptions struct {
	APIURL          string
	BotToken        string
	ChatID          string
	ParseMode       string
	Enabled         bool
	MessageTemplate string
	MaxRetries      int
	RetryDelay      time.Duration
	Timeout         time.Duration
}

func NewTelegramNotifier(opts TelegramOptions, logger *logrus.Logger) *TelegramNotifier {
	if opts.APIURL == "" {
		opts.APIURL = DefaultTelegramAPIURL
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	tn := &TelegramNotifier{
		apiURL:     strings.TrimRight(opts.APIURL, "/"),
		botToken:   opts.BotToken,
		chatID:     opts.ChatID,
		parseMode:  opts.ParseMode,
		enabled:    opts.Enabled,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		client: &http.Client{
			Timeout: opts.Timeout,
		},
		logger: logger,
	}

	if strings.TrimSpace(opts.MessageTemplate) != "" {
		funcMap := template.FuncMap{
			"formatTime": func(t time.Time, layout string) string {
				return t.Format(layout)
			},
		}
		tmpl, err := template.New("telegram_message").Funcs(funcMap).Parse(opts.MessageTemplate)
		if err != nil {
			logger.Warnf("Failed to parse Telegram message template: %v, using default format", err)
		} else {
			tn.messageTemplate = tmpl
		}
	}

	return tn
}

func (tn *TelegramNotifier) SendAlert(ctx context.Context, finding model.Finding) error {
	if !tn.IsEnabled() {
		tn.logger.Debug("Telegram notifier is disabled, skipping alert")
		return nil
	}

	message := tn.formatAlertMessage(finding)

	var lastErr error
	for i := 0; i < tn.maxRetries; i++ {
		lastErr = tn.sendMessage(ctx, message)
		if lastErr == nil {
			return nil
		}

		tn.logger.Warnf("Failed to send alert (attempt %d/%d): %v", i+1, tn.maxRetries, lastErr)

		if i < tn.maxRetries-1 {
			timer := time.NewTimer(time.Duration(i+1) * tn.retryDelay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("alert delivery cancelled after %d attempts: %w", i+1, ctx.Err())
			}
		}
	}

	return fmt.Errorf("failed to send alert after %d attempts: %w", tn.maxRetries, lastErr)
}

func (tn *TelegramNotifier) formatAlertMessage(finding model.Finding) string {
	if tn.messageTemplate != nil {
		var buf bytes.Buffer
		err := tn.messageTemplate.Execute(&buf, finding)
		if err != nil {
			tn.logger.Warnf("Failed to execute message template: %v, using default format", err)
		} else {
			return buf.String()
		}
	}

	return fmt.Sprintf("ALERT FIRING: %s\n\n"+
		"time: %s\n"+
		"severity: %s\n"+
		"description: %s\n"+
		"mitigation: %s",
		finding.Category,
		finding.Timestamp.Format("2006-01-02 15:04:05"),
		finding.Severity,
		finding.Message,
		finding.Mitigation)
}

func (tn *TelegramNotifier) sendMessage(ctx context.Context, text string) error {
	tn.mu.RLock()
	url := fmt.Sprintf("%s/bot%s/sendMessage", tn.apiURL, tn.botToken)
	chatID := tn.chatID
	// Markdown modes choke on unescaped characters in messages
	parseMode := ""
	if tn.parseMode != "" && tn.parseMode != "Markdown" && tn.parseMode != "MarkdownV2" {
		parseMode = tn.parseMode
	}
	tn.mu.RUnlock()

	jsonData, err := json.Marshal(TelegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: parseMode,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := tn.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	var telegramResp TelegramResponse
	if err := json.NewDecoder(resp.Body).Decode(&telegramResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if !telegramResp.OK {
		return fmt.Errorf("telegram API error: %s", telegramResp.Description)
	}

	tn.logger.Infof("Alert sent to Telegram successfully")
	return nil
}

func (tn *TelegramNotifier) SendTestMessage(ctx context.Context) error {
	if !tn.IsEnabled() {
		return fmt.Errorf("telegram notifier is disabled")
	}
	return tn.sendMessage(ctx, "Test Message\n\nhostwatch is working correctly!")
}

func (tn *TelegramNotifier) IsEnabled() bool {
	tn.mu.RLock()
	defer tn.mu.RUnlock()
	return tn.enabled
}

func (tn *TelegramNotifier) UpdateConfig(botToken, chatID, parseMode string, enabled bool) {
	tn.mu.Lock()
	tn.botToken = botToken
	tn.chatID = chatID
	tn.parseMode = parseMode
	tn.enabled = enabled
	tn.mu.Unlock()
	tn.logger.Infof("Telegram notifier config updated: enabled=%v", enabled)
}
