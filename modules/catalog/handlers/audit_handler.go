package handlers

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/realvista/backend/modules/catalog/domain/proposal"
	"github.com/realvista/backend/pkg/application"
	"github.com/realvista/backend/pkg/composables"
	"github.com/realvista/backend/pkg/configuration"
)

// AuditEventsHandler writes one audit row per workflow transition. It runs
// outside the workflow transaction, so a lost audit row never blocks a
// decision; failures are logged and dropped.
type AuditEventsHandler struct {
	app    application.Application
	audit  proposal.AuditRepository
	logger *logrus.Logger
}

func RegisterAuditEventHandlers(app application.Application, audit proposal.AuditRepository) {
	handler := &AuditEventsHandler{
		app:    app,
		audit:  audit,
		logger: configuration.Use().Logger(),
	}
	app.EventPublisher().Subscribe(handler.onSubmitted)
	app.EventPublisher().Subscribe(handler.onApproved)
	app.EventPublisher().Subscribe(handler.onRejected)
	app.EventPublisher().Subscribe(handler.onChangesRequested)
	app.EventPublisher().Subscribe(handler.onWithdrawn)
}

func (h *AuditEventsHandler) onSubmitted(event *proposal.SubmittedEvent) {
	h.record(event.Proposal.ID, event.Actor.ID, "submitted", nil)
}

func (h *AuditEventsHandler) onApproved(event *proposal.ApprovedEvent) {
	h.record(event.Proposal.ID, event.Actor.ID, "approved", nil)
}

func (h *AuditEventsHandler) onRejected(event *proposal.RejectedEvent) {
	h.record(event.Proposal.ID, event.Actor.ID, "rejected", &event.Reason)
}

func (h *AuditEventsHandler) onChangesRequested(event *proposal.ChangesRequestedEvent) {
	h.record(event.Proposal.ID, event.Actor.ID, "changes_requested", &event.Reason)
}

func (h *AuditEventsHandler) onWithdrawn(event *proposal.WithdrawnEvent) {
	proposalID, err := uuid.Parse(event.ProposalID)
	if err != nil {
		h.logger.WithError(err).Warn("withdrawn event carries malformed proposal id")
		return
	}
	action := "withdrawn"
	if event.ToDraft {
		action = "withdrawn_to_draft"
	}
	h.record(proposalID, event.Actor.ID, action, nil)
}

func (h *AuditEventsHandler) record(proposalID, actorID uuid.UUID, action string, reason *string) {
	if h.app == nil || h.audit == nil {
		return
	}

	ctx := composables.WithPool(context.Background(), h.app.DB())
	entry := &proposal.AuditEntry{
		ProposalID: proposalID,
		ActorID:    actorID,
		Action:     action,
		Reason:     reason,
	}
	if err := h.audit.Append(ctx, entry); err != nil {
		h.logger.WithError(err).
			WithField("proposal_id", proposalID).
			WithField("action", action).
			Warn("failed to persist proposal audit entry")
	}
}
