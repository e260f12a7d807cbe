package channels

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"response-service/internal/db"
	"response-service/internal/models"
)

// ContactStore resolves a user's Telegram chat id.
type ContactStore interface {
	GetTelegramChatID(ctx context.Context, userID int) (int64, error)
}

// Telegram delivers messages through the Telegram Bot API. A global rate
// limiter keeps the service under the API's message-per-second cap.
type Telegram struct {
	token    string
	contacts ContactStore
	limiter  *rate.Limiter
	logger   *logrus.Logger
}

func NewTelegram(token string, ratePerSecond int, contacts ContactStore, logger *logrus.Logger) *Telegram {
	return &Telegram{
		token:    token,
		contacts: contacts,
		limiter:  rate.NewLimiter(rate.Limit(float64(ratePerSecond)), ratePerSecond),
		logger:   logger,
	}
}

func (c *Telegram) Name() string { return "telegram" }

func (c *Telegram) Validate() error {
	if c.token == "" {
		return fmt.Errorf("missing bot token")
	}
	if c.contacts == nil {
		return fmt.Errorf("telegram channel requires a contact store")
	}
	return nil
}

func (c *Telegram) Send(ctx context.Context, recipientID int, msg models.Message) error {
	chatID, err := c.contacts.GetTelegramChatID(ctx, recipientID)
	if err != nil {
		if errors.Is(err, db.ErrNoContact) {
			return Permanent(err)
		}
		return Transient(err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return Transient(fmt.Errorf("telegram rate limit wait: %w", err))
	}

	text := fmt.Sprintf("*%s*\n%s", msg.Subject, msg.Body)
	if msg.Urgency != "" {
		text = fmt.Sprintf("*[%s]* %s", strings.ToUpper(msg.Urgency), text)
	}

	b, err := bot.New(c.token)
	if err != nil {
		return classifyNetErr(fmt.Errorf("failed to initialize Telegram bot: %w", err))
	}
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "Markdown",
	}
	if _, err := b.SendMessage(ctx, params); err != nil {
		return classifyNetErr(fmt.Errorf("failed to send Telegram message to chat_id %d: %w", chatID, err))
	}
	c.logger.WithField("chat_id", chatID).Debug("Telegram message sent")
	return nil
}

// classifyNetErr maps network-shaped failures to transient and everything
// else (bad token, unknown chat) to permanent.
func classifyNetErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Transient(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient(err)
	}
	s := strings.ToLower(err.Error())
	for _, sig := range []string{"timeout", "too many requests", "429", "connection refused", "connection reset", "temporarily unavailable", "no such host"} {
		if strings.Contains(s, sig) {
			return Transient(err)
		}
	}
	return Permanent(err)
}
