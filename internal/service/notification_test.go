package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"property-ledger-backend/internal/domain"
	"property-ledger-backend/internal/service"
)

func TestNotifier_Notify(t *testing.T) {
	ctx := context.Background()
	event := service.Event{
		Type:       domain.NotificationPaymentApproved,
		Recipients: []int32{20},
		Title:      "Payment approved",
		Message:    "Your payment of 5000.00 has been approved.",
		Attributes: map[string]string{"entry_id": "1"},
	}

	t.Run("Stores and emails", func(t *testing.T) {
		noteRepo := new(MockNotificationRepo)
		userRepo := new(MockUserRepo)
		email := new(MockEmailService)
		n := service.NewNotifier(noteRepo, userRepo, email)

		noteRepo.On("Create", ctx, mock.MatchedBy(func(note *domain.Notification) bool {
			return note.UserID == 20 && note.Attributes["type"] == domain.NotificationPaymentApproved && note.Attributes["entry_id"] == "1"
		})).Return(nil)
		userRepo.On("GetByID", ctx, int32(20)).Return(&domain.User{ID: 20, Email: "payer@example.com", Name: "Pat"}, nil)
		email.On("Send", ctx, "payer@example.com", "Pat", "Payment approved", event.Message).Return(nil)

		require.NoError(t, n.Notify(ctx, event))
		noteRepo.AssertExpectations(t)
		email.AssertExpectations(t)
	})

	t.Run("Email failure is reported", func(t *testing.T) {
		noteRepo := new(MockNotificationRepo)
		userRepo := new(MockUserRepo)
		email := new(MockEmailService)
		n := service.NewNotifier(noteRepo, userRepo, email)

		noteRepo.On("Create", ctx, mock.Anything).Return(nil)
		userRepo.On("GetByID", ctx, int32(20)).Return(&domain.User{ID: 20, Email: "payer@example.com"}, nil)
		email.On("Send", ctx, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("quota exceeded"))

		err := n.Notify(ctx, event)
		assert.ErrorContains(t, err, "quota exceeded")
	})

	t.Run("Missing user skips email", func(t *testing.T) {
		noteRepo := new(MockNotificationRepo)
		userRepo := new(MockUserRepo)
		email := new(MockEmailService)
		n := service.NewNotifier(noteRepo, userRepo, email)

		noteRepo.On("Create", ctx, mock.Anything).Return(nil)
		userRepo.On("GetByID", ctx, int32(20)).Return(nil, domain.Errorf(domain.ErrNotFound, "user 20 does not exist"))

		assert.NoError(t, n.Notify(ctx, event))
		email.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestNotificationService(t *testing.T) {
	ctx := context.Background()
	repo := new(MockNotificationRepo)
	svc := service.NewNotificationService(repo)

	t.Run("GetNotifications pages", func(t *testing.T) {
		notes := []domain.Notification{{ID: 1, Title: "Payment approved"}}
		repo.On("List", ctx, int32(20), int32(10), int32(10)).Return(notes, int32(11), nil)

		res, total, err := svc.GetNotifications(ctx, 20, 2, 10)
		require.NoError(t, err)
		assert.Equal(t, int32(11), total)
		assert.Len(t, res, 1)
	})

	t.Run("GetNotifications defaults", func(t *testing.T) {
		repo.On("List", ctx, int32(21), int32(20), int32(0)).Return([]domain.Notification{}, int32(0), nil)

		_, _, err := svc.GetNotifications(ctx, 21, 0, 0)
		assert.NoError(t, err)
	})

	t.Run("MarkAsRead", func(t *testing.T) {
		repo.On("MarkAsRead", ctx, int32(5), int32(20)).Return(nil)
		assert.NoError(t, svc.MarkAsRead(ctx, 20, 5))
	})
}
