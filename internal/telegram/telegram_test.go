package telegram

import (
	"context"
	"testing"
	"time"

	"TableSide/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBot struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func TestWithoutTokenOnlyLogs(t *testing.T) {
	n, err := NewNotifier("", 42, false, "POS-1")
	require.NoError(t, err)
	assert.NoError(t, n.SendMessage("hello"))
}

func TestDrawerAndReceipt(t *testing.T) {
	bot := &fakeBot{}
	n := &Notifier{bot: bot, chatID: 42, terminal: "POS-1"}

	n.DrawerOpenRequested(context.Background(), "T4", &models.Payment{Method: models.MethodCash,
		Amount: decimal.RequireFromString("12.5"), StaffName: "ana"})
	require.Len(t, bot.sent, 1)
	assert.Equal(t, int64(42), bot.sent[0].ChatID)
	assert.Equal(t, "[POS-1] open cash drawer: table T4, cash 12.50 by ana", bot.sent[0].Text)

	opened := time.Date(2024, 3, 1, 19, 5, 0, 0, time.UTC)
	n.ReceiptRequested(context.Background(), models.Receipt{
		TableID:  "T4",
		Terminal: "POS-1",
		OpenedAt: &opened,
		Lines: []models.ReceiptLine{
			{Name: "Soup", Quantity: 2, Amount: decimal.NewFromInt(12), Status: models.StatusSent},
			{Name: "Cake", Quantity: 1, Amount: decimal.NewFromInt(4), Status: models.StatusGift},
		},
		Total:   decimal.NewFromInt(12),
		Balance: decimal.NewFromInt(12),
	})
	require.Len(t, bot.sent, 2)
	assert.Equal(t, "[POS-1] receipt, table T4\nopened 01.03.2024 19:05\n2x Soup  12.00\n1x Cake  4.00 (gift)\ntotal 12.00\nto pay 12.00", bot.sent[1].Text)

	bot.err = errors.New("network")
	assert.Error(t, n.SendMessage("x"))
	n.SendMessageWithLogError("x")
}
