package domain

type Notification struct {
	ID         int32             `json:"id"`
	UserID     int32             `json:"user_id"`
	Title      string            `json:"title"`
	Message    string            `json:"message"`
	IsRead     bool              `json:"is_read"`
	Attributes map[string]string `json:"attributes"`
	CreatedOn  string            `json:"created_on"`
}

// Notification attribute "type" values.
const (
	NotificationPaymentRecorded    = "PAYMENT_RECORDED"
	NotificationPaymentProcessing  = "PAYMENT_PROCESSING"
	NotificationPaymentApproved    = "PAYMENT_APPROVED"
	NotificationPaymentCancelled   = "PAYMENT_CANCELLED"
	NotificationAgreementApplied   = "AGREEMENT_APPLIED"
	NotificationAgreementApproved  = "AGREEMENT_APPROVED"
	NotificationAgreementRejected  = "AGREEMENT_REJECTED"
	NotificationAgreementCompleted = "AGREEMENT_COMPLETED"
	NotificationAgreementCancelled = "AGREEMENT_CANCELLED"
	NotificationInstallmentOverdue = "INSTALLMENT_OVERDUE"
)
