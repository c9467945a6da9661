package bot

import "slices"

func (b *Bot) withRecovery(handler func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Interface("panic", r).Msg("Recovered from panic in update handler")
		}
	}()
	handler()
}

// isStaff reports whether userID is exempt from rate limiting.
func (b *Bot) isStaff(userID int64) bool {
	return slices.Contains(b.config.Bot.Staff, userID)
}
