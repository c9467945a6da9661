package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"diagdesk/internal/analytics"
	"diagdesk/internal/domain"
	"diagdesk/internal/export"
	"diagdesk/internal/logging"
	"diagdesk/internal/metrics"
	"diagdesk/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var ErrQueueFull = errors.New("sync queue is full")

// GuestSource is the backend data a sync mirrors.
type GuestSource interface {
	Guests(ctx context.Context, centers []string) ([]models.Guest, error)
	Investigations(ctx context.Context, centers []string) (*models.InvestigationPayload, error)
}

// SyncTask asks for the guest and summary sheets of a center set to be rebuilt.
type SyncTask struct {
	Centers   []string  `json:"centers"`
	CreatedAt time.Time `json:"created_at"`
}

// SheetsWorker rebuilds the Google Sheets mirror in the background. Tasks
// go through Redis when a client is configured, otherwise through an
// in-memory channel. Only the Sheets writes are retried.
type SheetsWorker struct {
	source        GuestSource
	sheets        domain.SheetsWriter
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan SyncTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	logger        *zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func NewSheetsWorker(source GuestSource, sheets domain.SheetsWriter, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *SheetsWorker {
	def := DefaultRetryPolicy()
	if retry.MaxRetries == 0 {
		retry.MaxRetries = def.MaxRetries
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = def.InitialDelay
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = def.MaxDelay
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = def.BackoffFactor
	}

	return &SheetsWorker{
		source:        source,
		sheets:        sheets,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan SyncTask, models.WorkerQueueSize),
		redisQueueKey: "diagdesk:sheets:queue",
		deadLetterKey: "diagdesk:sheets:deadletter",
		pollInterval:  2 * time.Second,
		logger:        logging.Component(logger, "sheets_worker"),
		sleep:         sleepCtx,
	}
}

// EnqueueGuestSync schedules a resync of the given centers.
func (w *SheetsWorker) EnqueueGuestSync(ctx context.Context, centers []string) error {
	task := SyncTask{Centers: append([]string(nil), centers...), CreatedAt: time.Now()}

	if w.redis != nil {
		if err := w.pushRedis(ctx, w.redisQueueKey, task); err != nil {
			w.logger.Warn().Err(err).Msg("redis push failed, falling back to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start processes tasks until ctx is done.
func (w *SheetsWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("started")
	defer w.logger.Info().Msg("stopped")

	for {
		if ctx.Err() != nil {
			return
		}
		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, t)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case t := <-w.queue:
			w.processTask(ctx, t)
		case <-time.After(w.pollInterval):
		}
	}
}

func (w *SheetsWorker) processTask(ctx context.Context, task SyncTask) {
	err := w.Sync(ctx, task.Centers)
	metrics.IncSheetsSync(err == nil)
	if err != nil {
		w.logger.Error().Err(err).Strs("centers", task.Centers).Msg("sheets sync failed")
		w.pushDeadLetter(ctx, task)
	}
}

// Sync fetches guests and the investigations payload and rewrites the
// Guests and Summary sheets.
func (w *SheetsWorker) Sync(ctx context.Context, centers []string) error {
	guests, err := w.source.Guests(ctx, centers)
	if err != nil {
		return fmt.Errorf("fetch guests: %w", err)
	}
	if err := w.writeWithRetry(ctx, export.SheetGuests, export.GuestRows(guests)); err != nil {
		return err
	}

	payload, err := w.source.Investigations(ctx, centers)
	if err != nil {
		return fmt.Errorf("fetch investigations: %w", err)
	}
	// The payload is already scoped to centers by the backend, and an admin's
	// centers are the "admin" sentinel rather than center names.
	summary := analytics.Aggregate(payload, analytics.Filter{})
	return w.writeWithRetry(ctx, export.SheetSummary, export.SummaryRows(summary))
}

func (w *SheetsWorker) writeWithRetry(ctx context.Context, sheet string, rows [][]interface{}) error {
	var err error
	for attempt := 1; attempt <= w.retryPolicy.MaxRetries; attempt++ {
		if err = w.sheets.ReplaceSheet(ctx, sheet, rows); err == nil {
			return nil
		}
		if attempt == w.retryPolicy.MaxRetries {
			break
		}
		delay := w.retryPolicy.NextDelay(attempt)
		w.logger.Warn().Err(err).Str("sheet", sheet).Int("attempt", attempt).Dur("retry_in", delay).Msg("sheet write failed")
		if sleepErr := w.sleep(ctx, delay); sleepErr != nil {
			return fmt.Errorf("write %s: %w", sheet, sleepErr)
		}
	}
	return fmt.Errorf("write %s after %d attempts: %w", sheet, w.retryPolicy.MaxRetries, err)
}

func (w *SheetsWorker) tryRedis(ctx context.Context) (SyncTask, bool) {
	if w.redis == nil {
		return SyncTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.logger.Warn().Err(err).Msg("redis BRPOP failed")
		}
		return SyncTask{}, false
	}
	if len(res) != 2 {
		return SyncTask{}, false
	}
	var task SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Warn().Err(err).Msg("decode redis task")
		return SyncTask{}, false
	}
	return task, true
}

func (w *SheetsWorker) pushRedis(ctx context.Context, key string, task SyncTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, key, data).Err()
}

func (w *SheetsWorker) pushDeadLetter(ctx context.Context, task SyncTask) {
	if w.redis == nil {
		return
	}
	if err := w.pushRedis(ctx, w.deadLetterKey, task); err != nil {
		w.logger.Warn().Err(err).Msg("deadletter push failed")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
