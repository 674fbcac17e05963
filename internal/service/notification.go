package service

import (
	"context"
	"errors"

	"property-ledger-backend/internal/domain"
	"property-ledger-backend/internal/logger"
	"property-ledger-backend/internal/repository"
)

type notificationService struct {
	noteRepo repository.NotificationRepository
}

func NewNotificationService(noteRepo repository.NotificationRepository) NotificationService {
	return &notificationService{noteRepo: noteRepo}
}

func (s *notificationService) GetNotifications(ctx context.Context, userID int32, page, pageSize int32) ([]domain.Notification, int32, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize
	return s.noteRepo.List(ctx, userID, pageSize, offset)
}

func (s *notificationService) MarkAsRead(ctx context.Context, userID, notificationID int32) error {
	return s.noteRepo.MarkAsRead(ctx, notificationID, userID)
}

// notifier stores an in-app notification for every recipient and mirrors
// it by email when the recipient has an address on file.
type notifier struct {
	noteRepo repository.NotificationRepository
	userRepo repository.UserRepository
	emailSvc EmailService
}

func NewNotifier(noteRepo repository.NotificationRepository, userRepo repository.UserRepository, emailSvc EmailService) Notifier {
	return &notifier{noteRepo: noteRepo, userRepo: userRepo, emailSvc: emailSvc}
}

func (n *notifier) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, userID := range event.Recipients {
		attrs := map[string]string{"type": event.Type}
		for k, v := range event.Attributes {
			attrs[k] = v
		}
		note := &domain.Notification{
			UserID:     userID,
			Title:      event.Title,
			Message:    event.Message,
			Attributes: attrs,
		}
		if err := n.noteRepo.Create(ctx, note); err != nil {
			errs = append(errs, err)
			continue
		}

		if n.emailSvc == nil || n.userRepo == nil {
			continue
		}
		user, err := n.userRepo.GetByID(ctx, userID)
		if err != nil {
			logger.WarnContext(ctx, "Notification recipient lookup failed", "userID", userID, "error", err)
			continue
		}
		if user.Email == "" {
			continue
		}
		if err := n.emailSvc.Send(ctx, user.Email, user.Name, event.Title, event.Message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
