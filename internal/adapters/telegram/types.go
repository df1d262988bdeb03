package telegram

// MessageOptions are the optional sendMessage/editMessageText fields.
// ReplyMarkup holds a tgbotapi keyboard value.
type MessageOptions struct {
	ParseMode   string
	ReplyMarkup any
}
