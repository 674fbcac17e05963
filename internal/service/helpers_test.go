package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"property-ledger-backend/internal/domain"
	"property-ledger-backend/internal/metrics"
	"property-ledger-backend/internal/repository/memory"
	"property-ledger-backend/internal/service"
)

const (
	salePropertyID int32 = 10
	rentPropertyID int32 = 11
	agentID        int32 = 30
	otherAgentID   int32 = 31
	payerID        int32 = 20
	otherPayerID   int32 = 21
	adminID        int32 = 1
)

var (
	agent      = domain.Actor{ID: agentID, Role: domain.RoleAgent}
	otherAgent = domain.Actor{ID: otherAgentID, Role: domain.RoleAgent}
	payer      = domain.Actor{ID: payerID, Role: domain.RolePayer}
	otherPayer = domain.Actor{ID: otherPayerID, Role: domain.RolePayer}
	admin      = domain.Actor{ID: adminID, Role: domain.RoleAdmin}
)

type fixture struct {
	store      *memory.Store
	notifier   *recordingNotifier
	metrics    *metrics.Metrics
	workflow   service.WorkflowService
	ledger     service.LedgerService
	agreements service.AgreementService
	balance    service.BalanceCalculator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	store.PutProperty(domain.Property{ID: salePropertyID, OwnerID: agentID, Title: "Lakeside flat", Price: decimal.NewFromInt(50000), ListingType: domain.ListingTypeSale})
	store.PutProperty(domain.Property{ID: rentPropertyID, OwnerID: agentID, Title: "Garden studio", Price: decimal.NewFromInt(1200), ListingType: domain.ListingTypeRent})

	n := &recordingNotifier{}
	m := metrics.Nop()
	wf := service.NewWorkflowService(store.Ledger, store.Agreements, store.Properties, n, m)
	return &fixture{
		store:      store,
		notifier:   n,
		metrics:    m,
		workflow:   wf,
		ledger:     service.NewLedgerService(store.Ledger, store.Agreements, store.Properties, wf, n, m),
		agreements: service.NewAgreementService(store.Agreements, store.Properties, wf, n),
		balance:    service.NewBalanceCalculator(store.Ledger, store.Properties, store.Agreements),
	}
}

func (f *fixture) purchase(t *testing.T, amount int64, txn string) *domain.LedgerEntry {
	t.Helper()
	e, err := f.ledger.RecordPayment(context.Background(), payer, service.RecordPaymentRequest{
		PropertyID:    salePropertyID,
		Amount:        decimal.NewFromInt(amount),
		TransactionID: txn,
		PaymentMethod: domain.PaymentMethodBankTransfer,
		PaymentDate:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return e
}

// approve moves an entry through processing to completed as the agent.
func (f *fixture) approve(t *testing.T, entryID int32) *domain.LedgerEntry {
	t.Helper()
	ctx := context.Background()
	_, err := f.workflow.MarkProcessing(ctx, agent, entryID, "")
	require.NoError(t, err)
	e, err := f.workflow.Complete(ctx, agent, entryID, "")
	require.NoError(t, err)
	return e
}

func (f *fixture) rentalAgreement(t *testing.T) *domain.RentalAgreement {
	t.Helper()
	months := int32(12)
	a, err := f.agreements.Apply(context.Background(), payer, rentPropertyID, domain.AgreementTerms{
		AgreedAmount:   decimal.NewFromInt(1200),
		DurationMonths: &months,
		InterestRate:   decimal.NewFromInt(5),
	})
	require.NoError(t, err)
	return a
}

func int32Ptr(v int32) *int32 { return &v }
