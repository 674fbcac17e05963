package http

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"property-ledger-backend/internal/domain"
	"property-ledger-backend/internal/utils"
)

type applyRequest struct {
	PropertyID     int32  `json:"property_id"`
	AgreedAmount   string `json:"agreed_amount"`
	DurationMonths *int32 `json:"duration_months"`
	InterestRate   string `json:"interest_rate"`
	Discount       string `json:"discount"`
	Notes          string `json:"notes"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	var body applyRequest
	if err := decode(r, &body); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	amount, err := utils.ParseAmount(body.AgreedAmount)
	if err != nil {
		writeError(w, r, domain.Errorf(domain.ErrInvalidTerms, "agreed_amount: %v", err))
		return
	}
	rate, err := optionalDecimal(body.InterestRate)
	if err != nil {
		badRequest(w, "interest_rate: "+err.Error())
		return
	}
	discount, err := optionalDecimal(body.Discount)
	if err != nil {
		badRequest(w, "discount: "+err.Error())
		return
	}

	agreement, err := s.services.Agreements.Apply(r.Context(), actor, body.PropertyID, domain.AgreementTerms{
		AgreedAmount:   amount,
		DurationMonths: body.DurationMonths,
		InterestRate:   rate,
		Discount:       discount,
		Notes:          body.Notes,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, agreement)
}

func (s *Server) handleGetAgreement(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		badRequest(w, "invalid agreement id")
		return
	}
	agreement, err := s.services.Agreements.Get(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, agreement)
}

func (s *Server) handleListAgreements(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	status := domain.AgreementStatus(strings.ToUpper(r.URL.Query().Get("status")))

	var (
		list []domain.RentalAgreement
		err  error
	)
	switch scope := r.URL.Query().Get("scope"); scope {
	case "", "mine":
		list, err = s.services.Agreements.ListMine(r.Context(), actor, status)
	case "managed":
		list, err = s.services.Agreements.ListManaged(r.Context(), actor, status)
	default:
		badRequest(w, "scope must be mine or managed")
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []domain.RentalAgreement{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"agreements": list})
}

func (s *Server) handleAgreementEntries(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		badRequest(w, "invalid agreement id")
		return
	}
	entries, err := s.services.Ledger.ListAgreementEntries(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.agreementAction(w, r, func(actor domain.Actor, id int32, _ string) (*domain.RentalAgreement, error) {
		return s.services.Agreements.Approve(r.Context(), actor, id)
	})
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	s.agreementAction(w, r, func(actor domain.Actor, id int32, reason string) (*domain.RentalAgreement, error) {
		return s.services.Agreements.Reject(r.Context(), actor, id, reason)
	})
}

func (s *Server) handleCompleteAgreement(w http.ResponseWriter, r *http.Request) {
	s.agreementAction(w, r, func(actor domain.Actor, id int32, _ string) (*domain.RentalAgreement, error) {
		return s.services.Agreements.Complete(r.Context(), actor, id)
	})
}

func (s *Server) handleCancelAgreement(w http.ResponseWriter, r *http.Request) {
	s.agreementAction(w, r, func(actor domain.Actor, id int32, reason string) (*domain.RentalAgreement, error) {
		return s.services.Agreements.Cancel(r.Context(), actor, id, reason)
	})
}

func (s *Server) agreementAction(w http.ResponseWriter, r *http.Request, act func(domain.Actor, int32, string) (*domain.RentalAgreement, error)) {
	actor, _ := ActorFromContext(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		badRequest(w, "invalid agreement id")
		return
	}
	var body reasonRequest
	if err := decode(r, &body); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	agreement, err := act(actor, id, body.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, agreement)
}

func optionalDecimal(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}
