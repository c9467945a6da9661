package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"diagdesk/internal/domain"
	"diagdesk/internal/models"

	"github.com/rs/zerolog"
)

// ErrInvalidDraft is returned for a draft that could not be resumed later.
var ErrInvalidDraft = errors.New("invalid dialog draft")

// StateService keeps each chat's open booking or reschedule dialog: the step
// it waits on and the draft of the flow behind it.
type StateService struct {
	stateRepo domain.StateRepository
	logger    *zerolog.Logger
}

func NewStateService(stateRepo domain.StateRepository, logger *zerolog.Logger) *StateService {
	return &StateService{
		stateRepo: stateRepo,
		logger:    logger,
	}
}

// GetUserState returns the chat's dialog, or nil when none is open.
func (s *StateService) GetUserState(ctx context.Context, chatID int64) (*models.UserState, error) {
	state, err := s.stateRepo.GetState(ctx, chatID)
	if err != nil {
		s.logger.Error().Err(err).Int64("chat_id", chatID).Msg("failed to load dialog state")
		return nil, err
	}
	return state, nil
}

// ClearUserState closes the chat's dialog.
func (s *StateService) ClearUserState(ctx context.Context, chatID int64) error {
	return s.stateRepo.ClearState(ctx, chatID)
}

func (s *StateService) CheckRateLimit(ctx context.Context, chatID int64, limit int, window time.Duration) (bool, error) {
	return s.stateRepo.CheckRateLimit(ctx, chatID, limit, window)
}

// SaveDraft parks the chat on step with draft as the flow to resume.
func (s *StateService) SaveDraft(ctx context.Context, chatID int64, step string, draft models.BookingDraft) error {
	switch {
	case draft.Kind != models.DraftKindBooking && draft.Kind != models.DraftKindReschedule:
		return fmt.Errorf("%w: kind %q", ErrInvalidDraft, draft.Kind)
	case draft.GuestCode == "":
		return fmt.Errorf("%w: no guest code", ErrInvalidDraft)
	case draft.Kind == models.DraftKindReschedule && draft.BookingID == "":
		return fmt.Errorf("%w: reschedule without booking id", ErrInvalidDraft)
	case step == "" || step == models.StateMainMenu:
		return fmt.Errorf("%w: step %q", ErrInvalidDraft, step)
	}

	state := &models.UserState{UserID: chatID, CurrentStep: step}
	if err := state.SetDraft(&draft); err != nil {
		return err
	}
	if err := s.stateRepo.SetState(ctx, state); err != nil {
		s.logger.Error().Err(err).Int64("chat_id", chatID).Str("step", step).Msg("failed to save dialog draft")
		return err
	}
	return nil
}
