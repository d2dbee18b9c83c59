package handler

import (
	id "civreg/pkg/domain"
	dErrors "civreg/pkg/domain-errors"

	"civreg/internal/event/models"
	"civreg/internal/event/service"
)

// CreateEventRequest opens a new event record.
type CreateEventRequest struct {
	Type          string `json:"type"`
	TransactionID string `json:"transactionId"`
}

// ToDomain validates the envelope and maps it to the service request.
func (r CreateEventRequest) ToDomain() (service.CreateRequest, error) {
	if r.TransactionID == "" {
		return service.CreateRequest{}, dErrors.New(dErrors.CodeValidation, "transactionId is required")
	}
	return service.CreateRequest{
		Type:          models.EventType(r.Type),
		TransactionID: id.TransactionID(r.TransactionID),
	}, nil
}

// ActionRequest is the wire envelope for one action submission. The action
// type comes from the URL; the event type inside the body is the caller's
// declared type and must match the stored record.
type ActionRequest struct {
	TransactionID string         `json:"transactionId"`
	EventType     string         `json:"eventType,omitempty"`
	Declaration   map[string]any `json:"declaration,omitempty"`
	Content       map[string]any `json:"content,omitempty"`
	AssignedTo    string         `json:"assignedTo,omitempty"`
}

// ToDomain validates the envelope and maps it to the domain request.
func (r ActionRequest) ToDomain(eventID id.EventID, actionType models.ActionType) (models.ActionRequest, error) {
	if r.TransactionID == "" {
		return models.ActionRequest{}, dErrors.New(dErrors.CodeValidation, "transactionId is required")
	}

	req := models.ActionRequest{
		EventID:       eventID,
		TransactionID: id.TransactionID(r.TransactionID),
		Type:          actionType,
		EventType:     models.EventType(r.EventType),
		Declaration:   models.Declaration(r.Declaration),
		Content:       r.Content,
	}
	if r.AssignedTo != "" {
		assignee, err := id.ParseUserID(r.AssignedTo)
		if err != nil {
			return models.ActionRequest{}, dErrors.New(dErrors.CodeValidation, "assignedTo must be a valid user id")
		}
		req.AssignedTo = &assignee
	}
	return req, nil
}
