package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/steamwatch/internal/domain/model"
)

// DefaultMaxItems caps the item lines of one notification.
const DefaultMaxItems = 10

// Sender posts a message to a chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts MessageOptions) (int, error)
}

// Notifier delivers new-item messages to watchers' private chats.
type Notifier struct {
	sender   Sender
	maxItems int
}

// NewNotifier creates a notifier. maxItems <= 0 uses DefaultMaxItems.
func NewNotifier(sender Sender, maxItems int) *Notifier {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	return &Notifier{sender: sender, maxItems: maxItems}
}

// Notify sends one message listing items to watcherID.
func (n *Notifier) Notify(ctx context.Context, watcherID int64, accountID string, gameID int64, items []model.NewItem) error {
	if len(items) == 0 {
		return nil
	}
	text := FormatNewItems(accountID, gameID, items, n.maxItems)
	if _, err := n.sender.SendMessage(ctx, watcherID, text, MessageOptions{ParseMode: ParseModeMarkdown}); err != nil {
		return fmt.Errorf("notify watcher %d: %w", watcherID, err)
	}
	return nil
}

// FormatNewItems renders the notification text: a header, at most maxItems
// names and a trailing count of omitted items.
func FormatNewItems(accountID string, gameID int64, items []model.NewItem, maxItems int) string {
	var b strings.Builder
	b.WriteString("🎁 *New items!*\n")
	fmt.Fprintf(&b, "👤 `%s` | 🎮 %s\n\n", accountID, EscapeMarkdown(GameName(gameID)))

	shown := items
	if len(shown) > maxItems {
		shown = shown[:maxItems]
	}
	for _, it := range shown {
		name := it.DisplayName
		if name == "" {
			name = "Item #" + it.ClassID
		}
		b.WriteString("• ")
		b.WriteString(EscapeMarkdown(name))
		b.WriteString("\n")
	}
	if extra := len(items) - len(shown); extra > 0 {
		fmt.Fprintf(&b, "\n_... and %d more_", extra)
	}
	return b.String()
}
