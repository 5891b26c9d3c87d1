package handlers

import (
	"net/http"

	gorillahandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter registers the prediction API, probes and metrics.
func NewRouter(h *PredictHandler, probes healthcheck.Handler, allowedOrigins []string) http.Handler {
	r := mux.NewRouter()
	r.Use(RequestID, Recovery, Instrument)

	r.HandleFunc("/", h.HandleIndex).Methods(http.MethodGet)
	r.HandleFunc("/health", h.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/predict", h.HandlePredict).Methods(http.MethodPost)
	r.HandleFunc("/predict/batch", h.HandleBatch).Methods(http.MethodPost)
	r.HandleFunc("/predict/simple", h.HandleSimple).Methods(http.MethodPost)

	if probes != nil {
		r.HandleFunc("/live", probes.LiveEndpoint).Methods(http.MethodGet)
		r.HandleFunc("/ready", probes.ReadyEndpoint).Methods(http.MethodGet)
	}

	r.Path("/metrics").Handler(promhttp.Handler())

	cors := gorillahandlers.CORS(
		gorillahandlers.AllowedOrigins(allowedOrigins),
		gorillahandlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		gorillahandlers.AllowedHeaders([]string{"Content-Type", requestIDHeader}),
	)
	return Logging(cors(r))
}
