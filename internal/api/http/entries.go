package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"property-ledger-backend/internal/domain"
	"property-ledger-backend/internal/service"
	"property-ledger-backend/internal/utils"
)

type recordPaymentRequest struct {
	PropertyID        int32                `json:"property_id"`
	PayerID           int32                `json:"payer_id"`
	AgreementID       *int32               `json:"agreement_id"`
	Amount            string               `json:"amount"`
	TransactionID     string               `json:"transaction_id"`
	PaymentMethod     domain.PaymentMethod `json:"payment_method"`
	PaymentDate       string               `json:"payment_date"` // yyyy-mm-dd
	DueDate           string               `json:"due_date"`
	InstallmentNumber *int32               `json:"installment_number"`
	Notes             string               `json:"notes"`
}

type transitionRequest struct {
	Status domain.EntryStatus `json:"status"`
	Note   string             `json:"note"`
}

type progressResponse struct {
	*domain.PaymentProgress
	Reference   string `json:"reference"`
	AgreementID *int32 `json:"agreement_id,omitempty"`
}

func (s *Server) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())

	var body recordPaymentRequest
	if err := decode(r, &body); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	amount, err := utils.ParseAmount(body.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req := service.RecordPaymentRequest{
		PropertyID:        body.PropertyID,
		PayerID:           body.PayerID,
		AgreementID:       body.AgreementID,
		Amount:            amount,
		TransactionID:     body.TransactionID,
		PaymentMethod:     body.PaymentMethod,
		InstallmentNumber: body.InstallmentNumber,
		Notes:             body.Notes,
	}
	paymentDate, err := parseDay(body.PaymentDate)
	if err != nil {
		badRequest(w, "payment_date: "+err.Error())
		return
	}
	if paymentDate != nil {
		req.PaymentDate = *paymentDate
	}
	if req.DueDate, err = parseDay(body.DueDate); err != nil {
		badRequest(w, "due_date: "+err.Error())
		return
	}

	entry, err := s.services.Ledger.RecordPayment(r.Context(), actor, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		badRequest(w, "invalid entry id")
		return
	}
	entry, err := s.services.Ledger.GetEntry(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleTransitionEntry(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		badRequest(w, "invalid entry id")
		return
	}
	var body transitionRequest
	if err := decode(r, &body); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	status := domain.EntryStatus(strings.ToUpper(string(body.Status)))
	entry, err := s.services.Ledger.TransitionStatus(r.Context(), actor, id, status, body.Note)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleEntryHistory(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		badRequest(w, "invalid entry id")
		return
	}
	history, err := s.services.Ledger.EntryHistory(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transitions": history})
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	propertyID, payerID, ok := propertyAndPayer(w, r)
	if !ok {
		return
	}
	var statuses []domain.EntryStatus
	for _, raw := range r.URL.Query()["status"] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				statuses = append(statuses, domain.EntryStatus(strings.ToUpper(part)))
			}
		}
	}
	entries, err := s.services.Ledger.FindByPropertyAndPayer(r.Context(), actor, propertyID, payerID, statuses...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// handleProgress reports progress against the listing price, or against an
// agreement's contract total when reference=agreement.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := ActorFromContext(ctx)
	propertyID, payerID, ok := propertyAndPayer(w, r)
	if !ok {
		return
	}
	// Visibility follows the entries the progress is computed from.
	if _, err := s.services.Ledger.FindByPropertyAndPayer(ctx, actor, propertyID, payerID, domain.EntryStatusCompleted); err != nil {
		writeError(w, r, err)
		return
	}

	resp := progressResponse{Reference: r.URL.Query().Get("reference")}
	var (
		ref       decimal.Decimal
		fullyPaid bool
		err       error
	)
	switch resp.Reference {
	case "", "listing":
		resp.Reference = "listing"
		ref, err = s.services.Balance.ReferencePriceForProperty(ctx, propertyID)
	case "agreement":
		agreementID, perr := queryInt32(r, "agreement_id", 0)
		if perr != nil || agreementID == 0 {
			badRequest(w, "agreement_id is required when reference=agreement")
			return
		}
		agreement, gerr := s.services.Agreements.Get(ctx, actor, agreementID)
		if gerr != nil {
			writeError(w, r, gerr)
			return
		}
		if agreement.PropertyID != propertyID || agreement.ApplicantID != payerID {
			writeError(w, r, domain.Errorf(domain.ErrInvalidTerms, "agreement %d does not cover property %d for payer %d", agreementID, propertyID, payerID))
			return
		}
		resp.AgreementID = &agreementID
		ref, fullyPaid, err = s.services.Balance.ReferencePriceForAgreement(ctx, agreementID)
	default:
		badRequest(w, "reference must be listing or agreement")
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	progress, err := s.services.Balance.Progress(ctx, propertyID, payerID, ref, fullyPaid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp.PaymentProgress = progress
	writeJSON(w, http.StatusOK, resp)
}

func propertyAndPayer(w http.ResponseWriter, r *http.Request) (int32, int32, bool) {
	propertyID, err := pathID(r, "propertyID")
	if err != nil {
		badRequest(w, "invalid property id")
		return 0, 0, false
	}
	payerID, err := pathID(r, "payerID")
	if err != nil {
		badRequest(w, "invalid payer id")
		return 0, 0, false
	}
	return propertyID, payerID, true
}

// parseDay accepts yyyy-mm-dd or an empty string.
func parseDay(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	date, err := utils.ParseDate(raw)
	if err != nil {
		return nil, err
	}
	t := date.Time()
	return &t, nil
}
