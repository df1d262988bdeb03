package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/okian/steamwatch/internal/adapters/repository"
	"github.com/okian/steamwatch/internal/adapters/telegram"
	"github.com/okian/steamwatch/internal/domain/model"
	"github.com/okian/steamwatch/pkg/logger"
)

// Reply keyboard labels.
const (
	ButtonAdd    = "➕ Add"
	ButtonTracks = "📋 My tracks"
)

// Callback payloads.
const (
	callbackGamePrefix = "game_"
	callbackCancel     = "cancel"
)

const exampleLink = "https://steamcommunity.com/profiles/76561199109461098/inventory/"

var markdown = telegram.MessageOptions{ParseMode: telegram.ParseModeMarkdown}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.Chat == nil {
		return nil
	}
	watcherID := msg.Chat.ID
	if msg.From != nil {
		watcherID = msg.From.ID
	}
	text := strings.TrimSpace(msg.Text)
	cmd, args := splitCommand(text)

	switch {
	case cmd == "/start":
		return b.cmdStart(ctx, msg)
	case cmd == "/add" || text == ButtonAdd:
		return b.cmdAdd(ctx, msg.Chat.ID, watcherID)
	case cmd == "/list" || text == ButtonTracks:
		return b.cmdList(ctx, msg.Chat.ID, watcherID)
	case cmd == "/remove":
		return b.cmdRemove(ctx, msg.Chat.ID, watcherID, args)
	case strings.Contains(text, "steamcommunity.com"):
		return b.onSteamLink(ctx, msg.Chat.ID, watcherID, text)
	default:
		b.logger.Debug(ctx, "unhandled message", logger.Int64("watcher_id", watcherID))
		return nil
	}
}

// splitCommand returns the command (without a @botname suffix) and its
// arguments; cmd is empty when text is not a command.
func splitCommand(text string) (string, []string) {
	if !strings.HasPrefix(text, "/") {
		return "", nil
	}
	fields := strings.Fields(text)
	cmd := fields[0]
	if at := strings.IndexByte(cmd, '@'); at > 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd), fields[1:]
}

func (b *Bot) cmdStart(ctx context.Context, msg *tgbotapi.Message) error {
	name := "there"
	if msg.From != nil && msg.From.FirstName != "" {
		name = msg.From.FirstName
	}
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(ButtonAdd)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(ButtonTracks)),
	)
	text := fmt.Sprintf("👋 Hi, %s!\n\n"+
		"I watch Steam inventories and tell you when new items show up.\n\n"+
		"🔹 Tap \"%s\" and send an inventory link\n"+
		"🔹 Get a message whenever new items appear\n\n"+
		"Commands:\n"+
		"/add - track an inventory\n"+
		"/list - show what you track\n"+
		"/remove - stop tracking", name, ButtonAdd)
	_, err := b.api.SendMessage(ctx, msg.Chat.ID, text, telegram.MessageOptions{ReplyMarkup: kb})
	return err
}

func (b *Bot) cmdAdd(ctx context.Context, chatID, watcherID int64) error {
	b.sessions.Open(watcherID)
	_, err := b.api.SendMessage(ctx, chatID,
		"🔗 Send a link to a Steam inventory:\nExample: `"+exampleLink+"`", markdown)
	return err
}

func (b *Bot) onSteamLink(ctx context.Context, chatID, watcherID int64, text string) error {
	accountID := ExtractSteamID(text)
	if accountID == "" {
		_, err := b.api.SendMessage(ctx, chatID,
			"❌ Could not find a SteamID64 in that link.\n\nA valid link looks like:\n`"+exampleLink+"`", markdown)
		return err
	}

	b.sessions.Put(watcherID, accountID)
	_, err := b.api.SendMessage(ctx, chatID,
		"✅ SteamID: `"+accountID+"`\n\nWhich game should I watch?",
		telegram.MessageOptions{ParseMode: telegram.ParseModeMarkdown, ReplyMarkup: gamesKeyboard()})
	return err
}

func gamesKeyboard() tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(telegram.KnownGames)+1)
	for _, g := range telegram.KnownGames {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(g.Name, callbackGamePrefix+strconv.FormatInt(g.AppID, 10)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("❌ Cancel", callbackCancel)))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	if q.From == nil {
		return b.api.AnswerCallbackQuery(ctx, q.ID, "", false)
	}
	watcherID := q.From.ID
	var (
		chatID    int64
		messageID int
	)
	if q.Message != nil && q.Message.Chat != nil {
		chatID, messageID = q.Message.Chat.ID, q.Message.MessageID
	}

	switch {
	case q.Data == callbackCancel:
		b.sessions.Drop(watcherID)
		if err := b.edit(ctx, chatID, messageID, "❌ Cancelled."); err != nil {
			return err
		}
		return b.api.AnswerCallbackQuery(ctx, q.ID, "", false)
	case strings.HasPrefix(q.Data, callbackGamePrefix):
		return b.onGameSelected(ctx, q, watcherID, chatID, messageID)
	default:
		return b.api.AnswerCallbackQuery(ctx, q.ID, "", false)
	}
}

func (b *Bot) onGameSelected(ctx context.Context, q *tgbotapi.CallbackQuery, watcherID, chatID int64, messageID int) error {
	sess, ok := b.sessions.Get(watcherID)
	if !ok || sess.AccountID == "" {
		return b.api.AnswerCallbackQuery(ctx, q.ID, "⚠️ Session expired. Please start again.", true)
	}
	appID, err := strconv.ParseInt(strings.TrimPrefix(q.Data, callbackGamePrefix), 10, 64)
	if err != nil || appID <= 0 {
		return b.api.AnswerCallbackQuery(ctx, q.ID, "Unknown game.", true)
	}
	b.sessions.Drop(watcherID)

	reg := model.Registration{
		WatcherID: watcherID,
		AccountID: sess.AccountID,
		GameID:    appID,
		ContextID: b.defaultContextID,
	}
	log := b.logger.With(
		logger.Int64("watcher_id", watcherID),
		logger.String("account_id", reg.AccountID),
		logger.Int64("app_id", appID),
	)

	var text string
	added, err := b.store.AddRegistration(ctx, reg)
	switch {
	case err != nil:
		log.Error(ctx, "add registration failed", logger.Error(err))
		text = "❌ Could not save this right now. Please try again later."
	case !added:
		text = fmt.Sprintf("ℹ️ You already track %s (%s).", reg.AccountID, telegram.GameName(appID))
	default:
		log.Info(ctx, "registration added")
		text = fmt.Sprintf("✅ Now tracking inventory %s\n🎮 Game: %s\n\n"+
			"You will get a message when new items appear! 🎁", reg.AccountID, telegram.GameName(appID))
	}

	editErr := b.edit(ctx, chatID, messageID, text)
	answerErr := b.api.AnswerCallbackQuery(ctx, q.ID, "", false)
	if added && b.firstWatcher(ctx, reg, log) {
		b.seedAsync(ctx, reg.Target(), log)
	}
	if editErr != nil {
		return editErr
	}
	return answerErr
}

// firstWatcher reports whether reg is the only registration on its target.
// Targets someone already watches keep their snapshot as is.
func (b *Bot) firstWatcher(ctx context.Context, reg model.Registration, log logger.Logger) bool {
	regs, err := b.store.ListRegistrations(ctx, repository.Filter{AccountID: reg.AccountID, GameID: reg.GameID})
	if err != nil {
		log.Warn(ctx, "cannot tell if target is new, skipping initial snapshot", logger.Error(err))
		return false
	}
	return len(regs) == 1
}

func (b *Bot) edit(ctx context.Context, chatID int64, messageID int, text string) error {
	if chatID == 0 || messageID == 0 {
		return nil
	}
	return b.api.EditMessageText(ctx, chatID, messageID, text, telegram.MessageOptions{})
}

func (b *Bot) cmdList(ctx context.Context, chatID, watcherID int64) error {
	regs, err := b.store.ListRegistrations(ctx, repository.Filter{WatcherID: watcherID})
	if err != nil {
		b.logger.Error(ctx, "list registrations failed", logger.Int64("watcher_id", watcherID), logger.Error(err))
		_, sendErr := b.api.SendMessage(ctx, chatID, "❌ Could not load your list right now.", telegram.MessageOptions{})
		return sendErr
	}
	if len(regs) == 0 {
		_, err := b.api.SendMessage(ctx, chatID,
			"📭 You are not tracking anything yet.\nTap \""+ButtonAdd+"\" to start.", telegram.MessageOptions{})
		return err
	}

	var sb strings.Builder
	sb.WriteString("📋 *You are tracking:*\n\n")
	for _, r := range regs {
		fmt.Fprintf(&sb, "• `%s` - %s\n", r.AccountID, telegram.EscapeMarkdown(telegram.GameName(r.GameID)))
	}
	sb.WriteString("\nTo remove: `/remove 76561199109461098 730`")
	_, err = b.api.SendMessage(ctx, chatID, sb.String(), markdown)
	return err
}

func (b *Bot) removeUsage() string {
	return "🗑️ Usage: `/remove <SteamID64> [AppID]`\n" +
		"Example: `/remove 76561199109461098 730`\n\n" +
		fmt.Sprintf("Default AppID: %d (%s)", b.defaultAppID, telegram.GameName(b.defaultAppID))
}

func (b *Bot) cmdRemove(ctx context.Context, chatID, watcherID int64, args []string) error {
	if len(args) == 0 || len(args) > 2 || !IsSteamID(args[0]) {
		_, err := b.api.SendMessage(ctx, chatID, b.removeUsage(), markdown)
		return err
	}
	accountID := args[0]
	appID := b.defaultAppID
	if len(args) == 2 {
		v, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || v <= 0 {
			_, sendErr := b.api.SendMessage(ctx, chatID, b.removeUsage(), markdown)
			return sendErr
		}
		appID = v
	}

	game := telegram.GameName(appID)
	var text string
	removed, err := b.store.RemoveRegistration(ctx, watcherID, accountID, appID)
	switch {
	case err != nil:
		b.logger.Error(ctx, "remove registration failed",
			logger.Int64("watcher_id", watcherID),
			logger.String("account_id", accountID),
			logger.Int64("app_id", appID),
			logger.Error(err),
		)
		text = "❌ Could not remove this right now. Please try again later."
	case removed:
		text = fmt.Sprintf("✅ Stopped tracking %s (%s).", accountID, game)
	default:
		text = fmt.Sprintf("ℹ️ %s (%s) is not in your list.", accountID, game)
	}
	_, err = b.api.SendMessage(ctx, chatID, text, telegram.MessageOptions{})
	return err
}
