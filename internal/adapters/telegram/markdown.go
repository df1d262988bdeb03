package telegram

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

// EscapeMarkdown escapes the characters legacy Markdown treats as markup.
func EscapeMarkdown(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}
