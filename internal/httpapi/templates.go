package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"notifyhub/internal/apperr"
	"notifyhub/internal/model"
)

type templateRequest struct {
	DisplayName      string                 `json:"displayName"`
	Description      string                 `json:"description,omitempty"`
	Channel          model.Channel          `json:"channel"`
	Category         model.TemplateCategory `json:"category"`
	SubjectTemplate  string                 `json:"subjectTemplate"`
	ContentTemplate  string                 `json:"contentTemplate"`
	HTMLTemplate     string                 `json:"htmlTemplate,omitempty"`
	DefaultPriority  model.Priority         `json:"defaultPriority,omitempty"`
	RateLimitPerHour int                    `json:"rateLimitPerHour,omitempty"`
	UpdatedBy        string                 `json:"updatedBy,omitempty"`
}

func (h *handler) createTemplate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		templateRequest
		TemplateName string `json:"templateName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "malformed request body"))
		return
	}

	t := model.Template{
		TemplateName:     body.TemplateName,
		DisplayName:      body.DisplayName,
		Description:      body.Description,
		Channel:          body.Channel,
		Category:         body.Category,
		SubjectTemplate:  body.SubjectTemplate,
		ContentTemplate:  body.ContentTemplate,
		HTMLTemplate:     body.HTMLTemplate,
		DefaultPriority:  body.DefaultPriority,
		RateLimitPerHour: body.RateLimitPerHour,
		CreatedBy:        body.UpdatedBy,
	}
	created, err := h.deps.Templates.Create(r.Context(), t)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) getTemplate(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	t, err := h.deps.Templates.GetByName(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// updateTemplate creates a new active version of name, per the Template
// Store's append-only versioning model (spec.md §4.B).
func (h *handler) updateTemplate(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	var body templateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "malformed request body"))
		return
	}

	updated, err := h.deps.Templates.CreateNewVersion(r.Context(), name, func(t *model.Template) {
		if body.DisplayName != "" {
			t.DisplayName = body.DisplayName
		}
		if body.Description != "" {
			t.Description = body.Description
		}
		if body.SubjectTemplate != "" {
			t.SubjectTemplate = body.SubjectTemplate
		}
		if body.ContentTemplate != "" {
			t.ContentTemplate = body.ContentTemplate
		}
		if body.HTMLTemplate != "" {
			t.HTMLTemplate = body.HTMLTemplate
		}
		if body.DefaultPriority != "" {
			t.DefaultPriority = body.DefaultPriority
		}
		if body.RateLimitPerHour != 0 {
			t.RateLimitPerHour = body.RateLimitPerHour
		}
		t.UpdatedBy = body.UpdatedBy
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handler) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := h.deps.Templates.SoftDelete(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
