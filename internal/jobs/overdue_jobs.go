package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"property-ledger-backend/internal/config"
	"property-ledger-backend/internal/domain"
	"property-ledger-backend/internal/logger"
	"property-ledger-backend/internal/service"
)

// SendOverdueReminders notifies payers and owning agents about rental
// installments that are past due and not yet completed or cancelled.
// An installment is reminded on the day it falls due and then every
// Scheduler.ReminderEveryDays days while it stays open. Entry status is
// never touched.
func (jr *JobRunner) SendOverdueReminders() {
	jr.runWithRecovery("SendOverdueReminders", func() {
		sent, err := jr.sendOverdueReminders(context.Background())
		if err != nil {
			logger.Error("Failed to send overdue reminders", "error", err)
			return
		}
		logger.Info("Sent overdue reminders", "count", sent)
	})
}

func (jr *JobRunner) sendOverdueReminders(ctx context.Context) (int, error) {
	now := jr.now()
	overdue, err := jr.entries.ListOverdue(ctx, now)
	if err != nil {
		return 0, err
	}

	every := jr.reminderInterval()
	sent := 0
	owners := make(map[int32]int32)
	for _, entry := range overdue {
		if days := daysOverdue(*entry.DueDate, now); days%every != 0 {
			logger.Debug("Reminder not due today", "entry_id", entry.ID, "days_overdue", days)
			continue
		}
		ownerID, ok := owners[entry.PropertyID]
		if !ok {
			property, err := jr.properties.GetByID(ctx, entry.PropertyID)
			if err != nil {
				logger.Warn("Skipping overdue entry, property lookup failed", "entry_id", entry.ID, "property_id", entry.PropertyID, "error", err)
				continue
			}
			ownerID = property.OwnerID
			owners[entry.PropertyID] = ownerID
		}

		event := overdueEvent(entry, ownerID)
		if err := jr.notifier.Notify(ctx, event); err != nil {
			logger.Warn("Failed to deliver overdue reminder", "entry_id", entry.ID, "error", err)
			continue
		}
		jr.metrics.OverdueReminders.Inc()
		sent++
		logger.Debug("Sent overdue reminder", "entry_id", entry.ID, "payer_id", entry.PayerID, "due_date", entry.DueDate)
	}
	return sent, nil
}

func (jr *JobRunner) reminderInterval() int {
	if jr.config == nil {
		return config.SchedulerConfig{}.ReminderInterval()
	}
	return jr.config.Scheduler.ReminderInterval()
}

// daysOverdue counts whole UTC calendar days from the due date to now.
func daysOverdue(due, now time.Time) int {
	day := func(t time.Time) time.Time {
		y, m, d := t.UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	return int(day(now).Sub(day(due)).Hours() / 24)
}

func overdueEvent(entry domain.LedgerEntry, ownerID int32) service.Event {
	installment := "an installment"
	if entry.InstallmentNumber != nil {
		installment = fmt.Sprintf("installment %d", *entry.InstallmentNumber)
	}
	due := ""
	if entry.DueDate != nil {
		due = entry.DueDate.UTC().Format("2006-01-02")
	}

	recipients := []int32{entry.PayerID}
	if ownerID != entry.PayerID {
		recipients = append(recipients, ownerID)
	}
	attrs := map[string]string{
		"entry_id":    fmt.Sprintf("%d", entry.ID),
		"property_id": fmt.Sprintf("%d", entry.PropertyID),
		"due_date":    due,
	}
	if entry.AgreementID != nil {
		attrs["agreement_id"] = fmt.Sprintf("%d", *entry.AgreementID)
	}
	return service.Event{
		Type:       domain.NotificationInstallmentOverdue,
		Recipients: recipients,
		Title:      "Installment overdue",
		Message:    fmt.Sprintf("Payment for %s of %s was due on %s and is still %s.", installment, entry.Amount.StringFixed(2), due, strings.ToLower(string(entry.Status))),
		Attributes: attrs,
	}
}
