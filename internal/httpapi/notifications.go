package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"notifyhub/internal/apperr"
	"notifyhub/internal/history"
	"notifyhub/internal/model"
)

// sendRequest is the wire shape of POST /notifications/send (spec.md §6).
type sendRequest struct {
	Channel           model.Channel          `json:"channel"`
	Recipient         string                 `json:"recipient"`
	Address           string                 `json:"address,omitempty"`
	Subject           string                 `json:"subject,omitempty"`
	Content           string                 `json:"content,omitempty"`
	TemplateName      string                 `json:"templateName,omitempty"`
	TemplateVariables map[string]interface{} `json:"templateVariables,omitempty"`
	Priority          model.Priority         `json:"priority,omitempty"`
	Category          model.TemplateCategory `json:"category,omitempty"`
	ReferenceID       string                 `json:"referenceId,omitempty"`
	ReferenceType     string                 `json:"referenceType,omitempty"`
	MaxRetryAttempts  int                    `json:"maxRetryAttempts,omitempty"`
	CorrelationID     string                 `json:"correlationId,omitempty"`
	NotificationID    string                 `json:"notificationId,omitempty"`
}

type sendResponse struct {
	NotificationID string `json:"notificationId"`
	Status         string `json:"status"`
	CorrelationID  string `json:"correlationId"`
}

func (req sendRequest) toDispatchRequest() model.DispatchRequest {
	notificationID := req.NotificationID
	if notificationID == "" {
		notificationID = uuid.NewString()
	}
	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	priority := req.Priority
	if priority == "" {
		priority = model.PriorityMedium
	}
	maxAttempts := req.MaxRetryAttempts
	if maxAttempts == 0 {
		maxAttempts = 3
	}
	return model.DispatchRequest{
		NotificationID:    notificationID,
		CorrelationID:     correlationID,
		Channel:           req.Channel,
		Recipient:         req.Recipient,
		Address:           req.Address,
		Subject:           req.Subject,
		Content:           req.Content,
		TemplateName:      req.TemplateName,
		TemplateVariables: req.TemplateVariables,
		Priority:          priority,
		Category:          req.Category,
		ReferenceID:       req.ReferenceID,
		ReferenceType:     req.ReferenceType,
		MaxRetryAttempts:  maxAttempts,
	}
}

func (h *handler) send(w http.ResponseWriter, r *http.Request) {
	var body sendRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "malformed request body"))
		return
	}

	dispatchReq := body.toDispatchRequest()
	dispatchErr := h.deps.Dispatcher.Dispatch(r.Context(), dispatchReq)

	rec, lookupErr := h.deps.History.Get(r.Context(), dispatchReq.NotificationID)
	if lookupErr != nil {
		writeError(w, dispatchErr)
		return
	}

	writeJSON(w, http.StatusAccepted, sendResponse{
		NotificationID: rec.NotificationID,
		Status:         string(rec.Status),
		CorrelationID:  rec.CorrelationID,
	})
}

// bulkSendRequest is the wire shape of POST /notifications/send/bulk.
type bulkSendRequest struct {
	Channel           model.Channel          `json:"type"`
	Recipients        []string               `json:"recipients"`
	Subject           string                 `json:"subject,omitempty"`
	Content           string                 `json:"content,omitempty"`
	TemplateName      string                 `json:"templateName,omitempty"`
	TemplateVariables map[string]interface{} `json:"templateVariables,omitempty"`
	Priority          model.Priority         `json:"priority,omitempty"`
}

type bulkOutcome struct {
	Recipient      string `json:"recipient"`
	NotificationID string `json:"notificationId"`
	Status         string `json:"status"`
	Error          string `json:"error,omitempty"`
}

// sendBulk fans bulk requests out to the Dispatcher one recipient at a
// time, so each recipient meets only the Dispatcher's own per-recipient
// rate-limit check; no aggregate per-channel budget check runs before the
// loop. Each outcome carries its History record's status, or CANCELLED
// when the dispatch failed before any record was written.
func (h *handler) sendBulk(w http.ResponseWriter, r *http.Request) {
	var body bulkSendRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "malformed request body"))
		return
	}
	if len(body.Recipients) == 0 {
		writeError(w, apperr.New(apperr.KindValidation, "recipients must be non-empty"))
		return
	}

	priority := body.Priority
	if priority == "" {
		priority = model.PriorityMedium
	}

	outcomes := make([]bulkOutcome, 0, len(body.Recipients))
	for _, recipient := range body.Recipients {
		notificationID := uuid.NewString()
		req := model.DispatchRequest{
			NotificationID:    notificationID,
			CorrelationID:     uuid.NewString(),
			Channel:           body.Channel,
			Recipient:         recipient,
			Subject:           body.Subject,
			Content:           body.Content,
			TemplateName:      body.TemplateName,
			TemplateVariables: body.TemplateVariables,
			Priority:          priority,
			MaxRetryAttempts:  3,
		}

		outcome := bulkOutcome{Recipient: recipient, NotificationID: notificationID}
		if err := h.deps.Dispatcher.Dispatch(r.Context(), req); err != nil {
			outcome.Status = string(model.StatusCancelled)
			outcome.Error = err.Error()
			if rec, getErr := h.deps.History.Get(r.Context(), notificationID); getErr == nil {
				outcome.Status = string(rec.Status)
			}
		} else if rec, err := h.deps.History.Get(r.Context(), notificationID); err == nil {
			outcome.Status = string(rec.Status)
		}
		outcomes = append(outcomes, outcome)
	}

	writeJSON(w, http.StatusAccepted, outcomes)
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := h.deps.History.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handler) listByUser(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]

	page := parseIntOrDefault(r.URL.Query().Get("page"), 1)
	size := parseIntOrDefault(r.URL.Query().Get("size"), 20)
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 200 {
		size = 20
	}
	offset := (page - 1) * size

	filter := history.RecipientFilter{
		Channel: model.Channel(r.URL.Query().Get("type")),
		Status:  model.NotificationStatus(r.URL.Query().Get("status")),
	}

	result, err := h.deps.History.ListByRecipient(r.Context(), userID, filter, offset, size)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func parseIntOrDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
