// Package telegram delivers receipt and cash drawer requests, plus operational
// alerts, to a Telegram chat.
package telegram

import (
	"context"
	"fmt"
	"strings"

	"TableSide/internal/models"
	"TableSide/pkg/logging"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/pkg/errors"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Notifier struct {
	bot      sender
	chatID   int64
	terminal string
}

// NewNotifier connects the bot. Without a token the notifier only logs.
func NewNotifier(token string, chatID int64, debug bool, terminal string) (*Notifier, error) {
	logger := logging.GetLogger()
	n := &Notifier{chatID: chatID, terminal: terminal}
	if token == "" {
		logger.Warn("TELEGRAM.BotToken is empty, notifications go to the log only")
		return n, nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "failed tgbotapi.NewBotAPI()")
	}
	bot.Debug = debug
	logger.Infof("Authorized on telegram account %s", bot.Self.UserName)
	n.bot = bot
	return n, nil
}

func (n *Notifier) SendMessage(text string) error {
	if n.bot == nil || n.chatID == 0 {
		logging.GetLogger().Infof("telegram (not sent): %s", text)
		return nil
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		return errors.Wrap(err, "failed bot.Send()")
	}
	return nil
}

// SendMessageWithLogError sends text and only logs a failure.
func (n *Notifier) SendMessageWithLogError(text string) {
	if err := n.SendMessage(text); err != nil {
		logging.GetLogger().Errorf("failed telegram.SendMessage(), error: %v", err)
	}
}

func (n *Notifier) ReceiptRequested(_ context.Context, r models.Receipt) {
	n.SendMessageWithLogError(FormatReceipt(r))
}

func (n *Notifier) DrawerOpenRequested(_ context.Context, tableID string, p *models.Payment) {
	n.SendMessageWithLogError(fmt.Sprintf("[%s] open cash drawer: table %s, %s %s by %s",
		n.terminal, tableID, p.Method, p.Amount.StringFixed(2), p.StaffName))
}

func FormatReceipt(r models.Receipt) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] receipt, table %s\n", r.Terminal, r.TableID)
	if r.OpenedAt != nil {
		fmt.Fprintf(&b, "opened %s\n", r.OpenedAt.Format("02.01.2006 15:04"))
	}
	for _, l := range r.Lines {
		fmt.Fprintf(&b, "%dx %s  %s", l.Quantity, l.Name, l.Amount.StringFixed(2))
		if l.Status != models.StatusSent {
			fmt.Fprintf(&b, " (%s)", l.Status)
		}
		if l.Label != "" {
			fmt.Fprintf(&b, " %s", l.Label)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "total %s\n", r.Total.StringFixed(2))
	fmt.Fprintf(&b, "to pay %s", r.Balance.StringFixed(2))
	if r.Staff != "" {
		fmt.Fprintf(&b, "\nserved by %s", r.Staff)
	}
	return b.String()
}
