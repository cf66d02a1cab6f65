package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Harshitk-cp/verdict/internal/domain"
	"github.com/Harshitk-cp/verdict/internal/prompt"
	"github.com/Harshitk-cp/verdict/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CaseHandler struct {
	svc      *service.DeliberationService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewCaseHandler(svc *service.DeliberationService, logger *zap.Logger) *CaseHandler {
	return &CaseHandler{svc: svc, validate: newValidator(), logger: logger}
}

type openCaseRequest struct {
	EvidenceA string `json:"evidence_a" validate:"max=10000"`
	EvidenceB string `json:"evidence_b" validate:"max=10000"`
	Persona   string `json:"persona" validate:"max=64"`
}

type openCaseResponse struct {
	CaseID    uuid.UUID     `json:"case_id"`
	Verdict   string        `json:"verdict"`
	Reasoning string        `json:"reasoning"`
	Winner    domain.Winner `json:"winner"`
	Persona   string        `json:"persona"`
	CreatedAt time.Time     `json:"created_at"`
}

type submitTurnRequest struct {
	Side    string `json:"side" validate:"required,oneof=A B"`
	Content string `json:"content" validate:"required,max=4000"`
}

type submitTurnResponse struct {
	TurnID         uuid.UUID   `json:"turn_id"`
	Response       string      `json:"response"`
	Side           domain.Side `json:"side"`
	Sequence       int         `json:"sequence"`
	RemainingTurns int         `json:"remaining_turns"`
}

type oracleErrorResponse struct {
	Error        string `json:"error"`
	Code         string `json:"code"`
	Kind         string `json:"kind"`
	TurnAccepted bool   `json:"turn_accepted"`
	Sequence     int    `json:"sequence,omitempty"`
}

type caseResponse struct {
	CaseID         uuid.UUID         `json:"case_id"`
	Persona        string            `json:"persona"`
	Evidence       []domain.Evidence `json:"evidence"`
	Verdict        string            `json:"verdict"`
	Reasoning      string            `json:"reasoning"`
	Winner         domain.Winner     `json:"winner"`
	State          domain.CaseState  `json:"state"`
	RemainingTurns int               `json:"remaining_turns"`
	Turns          []domain.Turn     `json:"turns"`
	CreatedAt      time.Time         `json:"created_at"`
}

func (h *CaseHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req openCaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, validationMessage(err))
		return
	}

	c, err := h.svc.OpenCase(r.Context(), service.OpenCaseInput{
		EvidenceA: req.EvidenceA,
		EvidenceB: req.EvidenceB,
		Persona:   strings.TrimSpace(req.Persona),
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, openCaseResponse{
		CaseID:    c.ID,
		Verdict:   c.Verdict,
		Reasoning: prompt.Reasoning(c.Verdict),
		Winner:    c.Winner,
		Persona:   c.Persona,
		CreatedAt: c.CreatedAt,
	})
}

func (h *CaseHandler) SubmitTurn(w http.ResponseWriter, r *http.Request) {
	id, ok := caseIDParam(w, r)
	if !ok {
		return
	}

	var req submitTurnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}
	req.Side = strings.ToUpper(strings.TrimSpace(req.Side))
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, validationMessage(err))
		return
	}

	res, err := h.svc.SubmitTurn(r.Context(), id, domain.Side(req.Side), req.Content)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, submitTurnResponse{
		TurnID:         res.Turn.ID,
		Response:       res.Response,
		Side:           res.Side,
		Sequence:       res.Turn.Sequence,
		RemainingTurns: res.RemainingTurns,
	})
}

func (h *CaseHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := caseIDParam(w, r)
	if !ok {
		return
	}

	view, err := h.svc.GetCase(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	c := view.Case
	turns := c.Turns
	if turns == nil {
		turns = []domain.Turn{}
	}
	writeJSON(w, http.StatusOK, caseResponse{
		CaseID:         c.ID,
		Persona:        c.Persona,
		Evidence:       c.Evidence(),
		Verdict:        c.Verdict,
		Reasoning:      prompt.Reasoning(c.Verdict),
		Winner:         c.Winner,
		State:          view.State,
		RemainingTurns: view.RemainingTurns,
		Turns:          turns,
		CreatedAt:      c.CreatedAt,
	})
}

func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var oerr *service.OracleError
	switch {
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, CodeValidation, err.Error())
	case errors.Is(err, service.ErrCaseNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, service.ErrCapExceeded):
		writeError(w, http.StatusForbidden, CodeCapExceeded, err.Error())
	case errors.As(err, &oerr):
		resp := oracleErrorResponse{
			Error:        oerr.Error(),
			Code:         CodeOracle,
			Kind:         string(oerr.Kind),
			TurnAccepted: oerr.TurnAccepted,
		}
		if oerr.Turn != nil {
			resp.Sequence = oerr.Turn.Sequence
		}
		writeJSON(w, http.StatusBadGateway, resp)
	default:
		logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}

func caseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "invalid case id")
		return uuid.Nil, false
	}
	return id, true
}
