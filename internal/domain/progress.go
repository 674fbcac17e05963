package domain

import "github.com/shopspring/decimal"

type ProgressLabel string

const (
	ProgressFullyPaid      ProgressLabel = "Fully Paid"
	ProgressNotStarted     ProgressLabel = "Not Started"
	ProgressJustStarted    ProgressLabel = "Just Started"
	ProgressInProgress     ProgressLabel = "In Progress"
	ProgressMoreThanHalf   ProgressLabel = "More than Half"
	ProgressAlmostComplete ProgressLabel = "Almost Complete"
	ProgressCompleted      ProgressLabel = "Completed"
)

// PaymentProgress is derived on every read and never persisted.
type PaymentProgress struct {
	PropertyID     int32           `json:"property_id"`
	PayerID        int32           `json:"payer_id"`
	ReferencePrice decimal.Decimal `json:"reference_price"`
	TotalPaid      decimal.Decimal `json:"total_paid"`
	Remaining      decimal.Decimal `json:"remaining_balance"`
	Percent        decimal.Decimal `json:"progress_percent"`
	Label          ProgressLabel   `json:"progress_label"`
	FullyPaid      bool            `json:"fully_paid"`
}
