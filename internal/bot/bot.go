package bot

import (
	"context"
	"strconv"
	"time"

	"diagdesk/internal/config"
	"diagdesk/internal/domain"
	"diagdesk/internal/logging"
	"diagdesk/internal/metrics"
	"diagdesk/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Bot is the Telegram front end of the dashboard. Every chat gets its own
// workspace, so each chat logs in separately.
type Bot struct {
	tgService    domain.TelegramService
	config       *config.Config
	stateService domain.StateManager
	workspaces   *service.Workspaces
	logger       *zerolog.Logger
}

func NewBot(
	tgService domain.TelegramService,
	config *config.Config,
	stateService domain.StateManager,
	workspaces *service.Workspaces,
	logger *zerolog.Logger,
) *Bot {
	return &Bot{
		tgService:    tgService,
		config:       config,
		stateService: stateService,
		workspaces:   workspaces,
		logger:       logging.Component(logger, "bot"),
	}
}

func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.tgService.GetUpdatesChan(u)

	b.logger.Info().Str("username", b.tgService.GetSelf().UserName).Msg("Authorized on account")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Bot stopping...")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.processUpdate(ctx, update)
		}
	}
}

// Stop stops receiving Telegram updates.
func (b *Bot) Stop() {
	if b == nil || b.tgService == nil {
		return
	}
	b.tgService.StopReceivingUpdates()
}

func (b *Bot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	start := time.Now()
	defer func() { metrics.ObserveBotUpdate(time.Since(start)) }()

	// Bookings wait out the settle and close delays inside one update.
	updateCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	requestID := uuid.New().String()
	l := b.logger.With().Str("request_id", requestID).Logger()
	updateCtx = l.WithContext(updateCtx)

	b.withRecovery(func() {
		var userID int64
		if update.Message != nil && update.Message.From != nil {
			userID = update.Message.From.ID
		} else if update.CallbackQuery != nil {
			userID = update.CallbackQuery.From.ID
		}

		if userID == 0 {
			return
		}

		if !b.isStaff(userID) {
			allowed, err := b.stateService.CheckRateLimit(updateCtx, userID, b.config.Bot.RateLimitMessages, time.Duration(b.config.Bot.RateLimitWindow)*time.Second)
			if err != nil {
				l.Error().Err(err).Int64("user_id", userID).Msg("Rate limit check failed")
			} else if !allowed {
				l.Warn().Int64("user_id", userID).Msg("Rate limit exceeded")
				if update.Message != nil {
					b.sendMessage(update.Message.Chat.ID, "⚠️ You are sending messages too fast. Please wait a moment.")
				}
				return
			}
		}

		if update.CallbackQuery != nil {
			b.handleCallbackQuery(updateCtx, update.CallbackQuery)
			return
		}

		if update.Message == nil {
			return
		}

		b.handleMessage(updateCtx, update.Message)
	})
}

// workspaceID keys a chat's dashboard in shared storage.
func workspaceID(chatID int64) string {
	return "tg:" + strconv.FormatInt(chatID, 10)
}

// dashboard returns the chat's signed-in dashboard, telling the user to log
// in when there is none.
func (b *Bot) dashboard(ctx context.Context, chatID int64) (*service.Dashboard, bool) {
	d, err := b.workspaces.Get(ctx, workspaceID(chatID))
	if err != nil {
		b.replyError(ctx, chatID, err)
		return nil, false
	}
	return d, true
}
