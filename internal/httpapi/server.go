// Package httpapi implements the inbound synchronous HTTP surface from
// spec.md §6: send/bulk-send, status lookup, per-user history, template
// management, and the analytics endpoints, routed with gorilla/mux the way
// the examples pack's notification-adjacent services do it.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"notifyhub/internal/analytics"
	"notifyhub/internal/dispatcher"
	"notifyhub/internal/history"
	"notifyhub/internal/logging"
	"notifyhub/internal/templatestore"
)

// Deps is everything the HTTP handlers need. Built once by the composition
// root from an *appwire.App.
type Deps struct {
	Dispatcher *dispatcher.Dispatcher
	History    *history.Store
	Templates  *templatestore.Store
	Analytics  *analytics.Aggregator
}

// NewRouter builds the full mux.Router for the notification HTTP API.
func NewRouter(d Deps) http.Handler {
	r := mux.NewRouter()
	r.Use(requestLogger)

	api := r.PathPrefix("/").Subrouter()

	h := &handler{deps: d}

	api.HandleFunc("/notifications/send", h.send).Methods(http.MethodPost)
	api.HandleFunc("/notifications/send/bulk", h.sendBulk).Methods(http.MethodPost)
	api.HandleFunc("/notifications/status/{id}", h.status).Methods(http.MethodGet)
	api.HandleFunc("/users/{userId}/notifications", h.listByUser).Methods(http.MethodGet)

	api.HandleFunc("/notification-templates", h.createTemplate).Methods(http.MethodPost)
	api.HandleFunc("/notification-templates/{name}", h.getTemplate).Methods(http.MethodGet)
	api.HandleFunc("/notification-templates/{name}", h.updateTemplate).Methods(http.MethodPut, http.MethodPatch)
	api.HandleFunc("/notification-templates/{name}", h.deleteTemplate).Methods(http.MethodDelete)

	api.HandleFunc("/notifications/analytics/delivery-rate", h.deliveryRate).Methods(http.MethodGet)
	api.HandleFunc("/notifications/analytics/engagement", h.engagement).Methods(http.MethodGet)
	api.HandleFunc("/notifications/analytics/channel-performance", h.channelPerformance).Methods(http.MethodGet)

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, req)
		logging.Info("httpapi: %s %s %s", req.Method, req.URL.Path, time.Since(start))
	})
}

type handler struct {
	deps Deps
}
