package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"diagdesk/internal/models"
	"diagdesk/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStateRepository struct {
	mock.Mock
}

func (m *mockStateRepository) GetState(ctx context.Context, chatID int64) (*models.UserState, error) {
	args := m.Called(ctx, chatID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserState), args.Error(1)
}

func (m *mockStateRepository) SetState(ctx context.Context, state *models.UserState) error {
	return m.Called(ctx, state).Error(0)
}

func (m *mockStateRepository) ClearState(ctx context.Context, chatID int64) error {
	return m.Called(ctx, chatID).Error(0)
}

func (m *mockStateRepository) CheckRateLimit(ctx context.Context, chatID int64, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, chatID, limit, window)
	return args.Bool(0), args.Error(1)
}

func slotStepDraft() models.BookingDraft {
	return models.BookingDraft{
		Kind:         models.DraftKindBooking,
		GuestCode:    "G2",
		LocationType: models.LocationHome,
		DoorNo:       "12",
		Address:      "MG Road",
		Pincode:      "560001",
		Age:          34,
		Date:         "2099-01-15",
		Slots:        []string{"09:00 - 10:00", "10:00 - 11:00"},
	}
}

func TestStateService_GetUserState(t *testing.T) {
	mockRepo := new(mockStateRepository)
	logger := zerolog.Nop()
	s := NewStateService(mockRepo, &logger)
	ctx := context.Background()
	chatID := int64(4242)

	t.Run("OpenBookingDialog", func(t *testing.T) {
		stored := &models.UserState{UserID: chatID, CurrentStep: models.StateBookingSlot}
		draft := slotStepDraft()
		require.NoError(t, stored.SetDraft(&draft))
		mockRepo.On("GetState", ctx, chatID).Return(stored, nil).Once()

		state, err := s.GetUserState(ctx, chatID)
		require.NoError(t, err)
		assert.Equal(t, models.StateBookingSlot, state.CurrentStep)
		got, ok := state.Draft()
		require.True(t, ok)
		assert.Equal(t, []string{"09:00 - 10:00", "10:00 - 11:00"}, got.Slots)
	})

	t.Run("NoDialog", func(t *testing.T) {
		mockRepo.On("GetState", ctx, chatID).Return(nil, nil).Once()

		state, err := s.GetUserState(ctx, chatID)
		assert.NoError(t, err)
		assert.Nil(t, state)
	})

	t.Run("RedisDown", func(t *testing.T) {
		mockRepo.On("GetState", ctx, chatID).Return(nil, errors.New("dial tcp: connection refused")).Once()

		state, err := s.GetUserState(ctx, chatID)
		assert.Error(t, err)
		assert.Nil(t, state)
	})
	mockRepo.AssertExpectations(t)
}

func TestStateService_SaveDraft(t *testing.T) {
	mockRepo := new(mockStateRepository)
	logger := zerolog.Nop()
	s := NewStateService(mockRepo, &logger)
	ctx := context.Background()

	t.Run("BookingWaitsForDate", func(t *testing.T) {
		draft := models.BookingDraft{Kind: models.DraftKindBooking, GuestCode: "G1", Pincode: "560001"}
		mockRepo.On("SetState", ctx, mock.MatchedBy(func(state *models.UserState) bool {
			d, ok := state.Draft()
			return ok && state.UserID == 7 && state.CurrentStep == models.StateBookingDate &&
				d.GuestCode == "G1" && d.Pincode == "560001"
		})).Return(nil).Once()

		assert.NoError(t, s.SaveDraft(ctx, 7, models.StateBookingDate, draft))
	})

	t.Run("RescheduleWaitsForPincode", func(t *testing.T) {
		draft := models.BookingDraft{Kind: models.DraftKindReschedule, GuestCode: "G1", BookingID: "B-17"}
		mockRepo.On("SetState", ctx, mock.MatchedBy(func(state *models.UserState) bool {
			d, ok := state.Draft()
			return ok && state.CurrentStep == models.StateReschedulePin && d.BookingID == "B-17"
		})).Return(nil).Once()

		assert.NoError(t, s.SaveDraft(ctx, 7, models.StateReschedulePin, draft))
	})

	t.Run("StoreFailure", func(t *testing.T) {
		mockRepo.On("SetState", ctx, mock.Anything).Return(errors.New("READONLY")).Once()
		assert.Error(t, s.SaveDraft(ctx, 7, models.StateBookingSlot, slotStepDraft()))
	})

	tests := []struct {
		name  string
		step  string
		draft models.BookingDraft
	}{
		{"unknown kind", models.StateBookingAge, models.BookingDraft{Kind: "refund", GuestCode: "G1"}},
		{"no guest", models.StateBookingAge, models.BookingDraft{Kind: models.DraftKindBooking}},
		{"reschedule without booking", models.StateRescheduleDate, models.BookingDraft{Kind: models.DraftKindReschedule, GuestCode: "G1"}},
		{"main menu step", models.StateMainMenu, models.BookingDraft{Kind: models.DraftKindBooking, GuestCode: "G1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, s.SaveDraft(ctx, 7, tt.step, tt.draft), ErrInvalidDraft)
		})
	}
	mockRepo.AssertExpectations(t)
}

func TestStateService_DialogRoundTrip(t *testing.T) {
	logger := zerolog.Nop()
	s := NewStateService(repository.NewMemoryStateRepository(time.Hour), &logger)
	ctx := context.Background()

	require.NoError(t, s.SaveDraft(ctx, 99, models.StateBookingSlot, slotStepDraft()))
	state, err := s.GetUserState(ctx, 99)
	require.NoError(t, err)
	require.NotNil(t, state)
	d, ok := state.Draft()
	require.True(t, ok)
	assert.Equal(t, slotStepDraft(), *d)

	require.NoError(t, s.ClearUserState(ctx, 99))
	state, err = s.GetUserState(ctx, 99)
	require.NoError(t, err)
	if state != nil {
		assert.Empty(t, state.CurrentStep)
	}
}

func TestStateService_CheckRateLimit(t *testing.T) {
	mockRepo := new(mockStateRepository)
	logger := zerolog.Nop()
	s := NewStateService(mockRepo, &logger)
	ctx := context.Background()

	mockRepo.On("CheckRateLimit", ctx, int64(4242), models.RateLimitMessages, time.Duration(models.RateLimitWindow)*time.Second).
		Return(false, nil).Once()
	allowed, err := s.CheckRateLimit(ctx, 4242, models.RateLimitMessages, time.Duration(models.RateLimitWindow)*time.Second)
	assert.NoError(t, err)
	assert.False(t, allowed)
	mockRepo.AssertExpectations(t)
}
