package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ariefcatur/go-crypto-shop/internal/logging"
	"go.uber.org/zap"
)

var ErrSend = errors.New("telegram send failed")

// TelegramSender posts plain-text messages through the Bot API sendMessage method.
type TelegramSender struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewTelegramSender(token string, timeout time.Duration) *TelegramSender {
	return &TelegramSender{
		BaseURL: "https://api.telegram.org",
		Token:   token,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

type sendMessage struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type botResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	ErrorCode   int    `json:"error_code"`
}

func (s *TelegramSender) Send(ctx context.Context, chatID int64, text string) error {
	body, err := json.Marshal(sendMessage{ChatID: chatID, Text: text, DisableWebPagePreview: true})
	if err != nil {
		return err
	}
	endpoint := strings.TrimRight(s.BaseURL, "/") + "/bot" + s.Token + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request", ErrSend)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.HTTP.Do(req)
	if err != nil {
		// token ada di path, jangan sampai ikut ke log
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("%w: %v", ErrSend, err)
	}
	defer resp.Body.Close()

	var br botResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&br); err != nil {
		return fmt.Errorf("%w: http %d", ErrSend, resp.StatusCode)
	}
	if !br.OK {
		return fmt.Errorf("%w: %s (code %d)", ErrSend, br.Description, br.ErrorCode)
	}
	return nil
}

// LogSender writes messages to the log. Used when no bot token is configured.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, chatID int64, text string) error {
	logging.FromContext(ctx).Info("notification_logged", zap.Int64("chat_id", chatID), zap.String("text", text))
	return nil
}
