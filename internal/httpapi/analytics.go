package httpapi

import (
	"net/http"
	"time"

	"notifyhub/internal/analytics"
	"notifyhub/internal/apperr"
	"notifyhub/internal/model"
)

func parseRange(r *http.Request) (analytics.TimeRange, error) {
	q := r.URL.Query()
	startStr, endStr := q.Get("startTime"), q.Get("endTime")

	end := time.Now()
	if endStr != "" {
		parsed, err := time.Parse(time.RFC3339, endStr)
		if err != nil {
			return analytics.TimeRange{}, apperr.New(apperr.KindValidation, "endTime must be RFC3339")
		}
		end = parsed
	}

	start := end.Add(-30 * 24 * time.Hour)
	if startStr != "" {
		parsed, err := time.Parse(time.RFC3339, startStr)
		if err != nil {
			return analytics.TimeRange{}, apperr.New(apperr.KindValidation, "startTime must be RFC3339")
		}
		start = parsed
	}

	return analytics.TimeRange{Start: start, End: end}, nil
}

func (h *handler) deliveryRate(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		writeError(w, err)
		return
	}
	channel := model.Channel(r.URL.Query().Get("channel"))
	if channel == "" {
		writeError(w, apperr.New(apperr.KindValidation, "channel is required"))
		return
	}

	result, err := h.deps.Analytics.DeliveryRate(r.Context(), channel, rng)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) engagement(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		writeError(w, err)
		return
	}
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, apperr.New(apperr.KindValidation, "userId is required"))
		return
	}

	result, err := h.deps.Analytics.Engagement(r.Context(), userID, rng)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) channelPerformance(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.deps.Analytics.ChannelPerformance(r.Context(), rng)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
