package telegram

import "errors"

// Sentinel kinds for Telegram errors. Bot API rejections also unwrap to
// *tgbotapi.Error, which carries the error code and retry_after.
var (
	ErrMissingToken = errors.New("telegram bot token is required")
	ErrAPI          = errors.New("telegram api error")
)
