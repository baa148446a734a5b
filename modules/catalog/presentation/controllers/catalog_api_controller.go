package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/realvista/backend/modules/catalog/domain/contentitem"
	"github.com/realvista/backend/modules/catalog/domain/diff"
	"github.com/realvista/backend/modules/catalog/domain/proposal"
	"github.com/realvista/backend/modules/catalog/presentation/controllers/dtos"
	"github.com/realvista/backend/modules/catalog/services"
	"github.com/realvista/backend/pkg/application"
	"github.com/realvista/backend/pkg/composables"
	"github.com/realvista/backend/pkg/serrors"
	"github.com/realvista/backend/pkg/types"
)

type CatalogAPIController struct {
	app       application.Application
	workflow  *services.WorkflowService
	listing   *services.ListingService
	audit     *services.AuditService
	apiPrefix string
}

func NewCatalogAPIController(app application.Application) application.Controller {
	return &CatalogAPIController{
		app:       app,
		workflow:  app.Service(services.WorkflowService{}).(*services.WorkflowService),
		listing:   app.Service(services.ListingService{}).(*services.ListingService),
		audit:     app.Service(services.AuditService{}).(*services.AuditService),
		apiPrefix: "/catalog",
	}
}

func (c *CatalogAPIController) Key() string {
	return c.apiPrefix
}

func (c *CatalogAPIController) Register(r *mux.Router) {
	api := r.PathPrefix(c.apiPrefix).Subrouter()

	api.HandleFunc("/feed", c.Feed).Methods(http.MethodGet)

	api.HandleFunc("/proposals", c.CreateProposal).Methods(http.MethodPost)
	api.HandleFunc("/proposals/{id}", c.GetProposal).Methods(http.MethodGet)
	api.HandleFunc("/proposals/{id}/payload", c.UpdatePayload).Methods(http.MethodPut)
	api.HandleFunc("/proposals/{id}/diff", c.GetDiff).Methods(http.MethodGet)
	api.HandleFunc("/proposals/{id}/audit", c.GetAuditTrail).Methods(http.MethodGet)
	api.HandleFunc("/proposals/{id}:submit", c.SubmitProposal).Methods(http.MethodPost)
	api.HandleFunc("/proposals/{id}:approve", c.ApproveProposal).Methods(http.MethodPost)
	api.HandleFunc("/proposals/{id}:reject", c.RejectProposal).Methods(http.MethodPost)
	api.HandleFunc("/proposals/{id}:request-changes", c.RequestChanges).Methods(http.MethodPost)
	api.HandleFunc("/proposals/{id}:withdraw", c.WithdrawProposal).Methods(http.MethodPost)
}

type proposalResponse struct {
	ID          uuid.UUID           `json:"id"`
	Kind        string              `json:"kind"`
	TargetID    *uuid.UUID          `json:"target_id,omitempty"`
	SubmitterID uuid.UUID           `json:"submitter_id"`
	ReviewerID  *uuid.UUID          `json:"reviewer_id,omitempty"`
	State       string              `json:"state"`
	Original    contentitem.Payload `json:"original_payload"`
	Proposed    contentitem.Payload `json:"proposed_payload"`
	ReviewNote  *string             `json:"review_note,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	DecidedAt   *time.Time          `json:"decided_at,omitempty"`
}

func toProposalResponse(p *proposal.ChangeProposal) proposalResponse {
	return proposalResponse{
		ID:          p.ID,
		Kind:        string(p.Kind),
		TargetID:    p.TargetID,
		SubmitterID: p.SubmitterID,
		ReviewerID:  p.ReviewerID,
		State:       string(p.State),
		Original:    p.OriginalPayload,
		Proposed:    p.ProposedPayload,
		ReviewNote:  p.ReviewNote,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
		DecidedAt:   p.DecidedAt,
	}
}

type itemResponse struct {
	ID           uuid.UUID           `json:"id"`
	Kind         string              `json:"kind"`
	Payload      contentitem.Payload `json:"payload"`
	PriceDisplay string              `json:"price_display,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

func (c *CatalogAPIController) Feed(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeAPIError(w, http.StatusBadRequest, "VALIDATION", "limit must be an integer")
			return
		}
		limit = parsed
	}

	feed, err := c.listing.List(r.Context(), actor, services.ListParams{
		Kind:   contentitem.Kind(q.Get("kind")),
		Filter: services.ListFilter(q.Get("filter")),
		Search: q.Get("search"),
		Limit:  limit,
		Cursor: q.Get("cursor"),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

func (c *CatalogAPIController) CreateProposal(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var dto dtos.CreateProposalDTO
	if !decodeBody(w, r, &dto) {
		return
	}
	if fields, ok := dto.Ok(); !ok {
		writeFieldErrors(w, fields)
		return
	}

	p, err := c.workflow.CreateDraft(r.Context(), actor, services.CreateDraftParams{
		Kind:            contentitem.Kind(dto.Kind),
		TargetID:        dto.TargetID,
		ProposedPayload: dto.Payload.ToDomain(),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProposalResponse(p))
}

func (c *CatalogAPIController) GetProposal(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := requireActorAndID(w, r)
	if !ok {
		return
	}

	p, err := c.workflow.GetProposal(r.Context(), actor, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProposalResponse(p))
}

func (c *CatalogAPIController) UpdatePayload(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := requireActorAndID(w, r)
	if !ok {
		return
	}
	var dto dtos.UpdatePayloadDTO
	if !decodeBody(w, r, &dto) {
		return
	}
	if fields, ok := dto.Ok(); !ok {
		writeFieldErrors(w, fields)
		return
	}

	p, err := c.workflow.EditDraftPayload(r.Context(), actor, id, dto.Payload.ToDomain())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProposalResponse(p))
}

func (c *CatalogAPIController) GetDiff(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := requireActorAndID(w, r)
	if !ok {
		return
	}

	changes, err := c.workflow.Changes(r.Context(), actor, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	type diffResponse struct {
		ProposalID uuid.UUID          `json:"proposal_id"`
		Changes    []diff.FieldChange `json:"changes"`
	}
	writeJSON(w, http.StatusOK, diffResponse{ProposalID: id, Changes: changes})
}

func (c *CatalogAPIController) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := requireActorAndID(w, r)
	if !ok {
		return
	}

	entries, err := c.audit.Trail(r.Context(), actor, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	type auditEntryResponse struct {
		ActorID   uuid.UUID `json:"actor_id"`
		Action    string    `json:"action"`
		Reason    *string   `json:"reason,omitempty"`
		CreatedAt time.Time `json:"created_at"`
	}
	out := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryResponse{
			ActorID:   e.ActorID,
			Action:    e.Action,
			Reason:    e.Reason,
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func (c *CatalogAPIController) SubmitProposal(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := requireActorAndID(w, r)
	if !ok {
		return
	}

	p, err := c.workflow.Submit(r.Context(), actor, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProposalResponse(p))
}

func (c *CatalogAPIController) ApproveProposal(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := requireActorAndID(w, r)
	if !ok {
		return
	}

	item, err := c.workflow.Approve(r.Context(), actor, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, itemResponse{
		ID:           item.ID,
		Kind:         string(item.Kind),
		Payload:      item.Payload,
		PriceDisplay: item.Payload.DisplayPrice(),
		CreatedAt:    item.CreatedAt,
		UpdatedAt:    item.UpdatedAt,
	})
}

func (c *CatalogAPIController) RejectProposal(w http.ResponseWriter, r *http.Request) {
	c.decide(w, r, c.workflow.Reject)
}

func (c *CatalogAPIController) RequestChanges(w http.ResponseWriter, r *http.Request) {
	c.decide(w, r, c.workflow.RequestChanges)
}

func (c *CatalogAPIController) decide(
	w http.ResponseWriter,
	r *http.Request,
	fn func(ctx context.Context, actor types.Actor, id uuid.UUID, reason string) (*proposal.ChangeProposal, error),
) {
	actor, id, ok := requireActorAndID(w, r)
	if !ok {
		return
	}
	var dto dtos.DecisionDTO
	if !decodeBody(w, r, &dto) {
		return
	}
	if fields, ok := dto.Ok(); !ok {
		writeFieldErrors(w, fields)
		return
	}

	p, err := fn(r.Context(), actor, id, dto.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProposalResponse(p))
}

func (c *CatalogAPIController) WithdrawProposal(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := requireActorAndID(w, r)
	if !ok {
		return
	}
	var dto dtos.WithdrawDTO
	if !decodeBody(w, r, &dto) {
		return
	}
	if fields, ok := dto.Ok(); !ok {
		writeFieldErrors(w, fields)
		return
	}

	p, err := c.workflow.Withdraw(r.Context(), actor, id, services.WithdrawMode(dto.Mode))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if p == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, toProposalResponse(p))
}

func requireActor(w http.ResponseWriter, r *http.Request) (types.Actor, bool) {
	actor, err := composables.UseActor(r.Context())
	if err != nil {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "no identity on request")
		return types.Actor{}, false
	}
	return actor, true
}

func requireActorAndID(w http.ResponseWriter, r *http.Request) (types.Actor, uuid.UUID, bool) {
	actor, ok := requireActor(w, r)
	if !ok {
		return types.Actor{}, uuid.Nil, false
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "VALIDATION", "id must be a UUID")
		return types.Actor{}, uuid.Nil, false
	}
	return actor, id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeAPIError(w, http.StatusBadRequest, "VALIDATION", "malformed JSON body")
		return false
	}
	return true
}

type apiError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeFieldErrors(w http.ResponseWriter, fields map[string]string) {
	writeJSON(w, http.StatusBadRequest, map[string]apiError{"error": {
		Code:    "VALIDATION",
		Message: "request failed validation",
		Fields:  fields,
	}})
}

func writeServiceError(w http.ResponseWriter, err error) {
	var base *serrors.BaseError
	if errors.As(err, &base) {
		writeAPIError(w, serrors.HTTPStatus(err), base.Code, base.Message)
		return
	}
	writeAPIError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]apiError{"error": {Code: code, Message: message}})
}

func writeJSON[T any](w http.ResponseWriter, status int, payload T) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
