package main

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lightningswap/subswapd/swap"
)

// restServer is the HTTP surface of the broker: create, settle and lookup,
// plus the metrics endpoint. It is a thin layer over the coordinator;
// request-driven state transitions all happen there.
type restServer struct {
	coordinator *swap.Coordinator

	server *http.Server
}

// newRESTServer wires the API routes for the passed coordinator.
func newRESTServer(listenAddr string, c *swap.Coordinator) *restServer {
	s := &restServer{
		coordinator: c,
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/v1/create", s.handleCreate).
		Methods(http.MethodPost)
	router.HandleFunc("/api/v1/settle/{swap_id}", s.handleSettle).
		Methods(http.MethodPost)
	router.HandleFunc("/api/v1/lookup/{swap_id}", s.handleLookup).
		Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.server = &http.Server{
		Addr:    listenAddr,
		Handler: router,
	}

	return s
}

// start begins serving requests. It blocks until the listener fails or the
// server is shut down.
func (s *restServer) start() error {
	restLog.Infof("HTTP API listening on %v", s.server.Addr)

	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}

	return err
}

// stop gracefully shuts the listener down.
func (s *restServer) stop() error {
	return s.server.Close()
}

// createRequest is the JSON body of a create call.
type createRequest struct {
	PubKey      string `json:"pubkey"`
	Value       int64  `json:"value"`
	PaymentHash string `json:"payment_hash"`
}

// errorResponse is the JSON shape of every failure response.
type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *restServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sw, err := s.coordinator.Create(
		r.Context(), req.PubKey, req.Value, req.PaymentHash,
	)
	if err != nil {
		writeCoordinatorError(w, err)
		return
	}

	writeJSON(w, sw)
}

func (s *restServer) handleSettle(w http.ResponseWriter, r *http.Request) {
	preimage := r.URL.Query().Get("preimage")
	if preimage == "" {
		preimage = r.FormValue("preimage")
	}

	sw, err := s.coordinator.Settle(
		r.Context(), mux.Vars(r)["swap_id"], preimage,
	)
	if err != nil {
		writeCoordinatorError(w, err)
		return
	}

	writeJSON(w, sw)
}

func (s *restServer) handleLookup(w http.ResponseWriter, r *http.Request) {
	sw, err := s.coordinator.Lookup(r.Context(), mux.Vars(r)["swap_id"])
	if err != nil {
		writeCoordinatorError(w, err)
		return
	}

	writeJSON(w, sw)
}

// writeCoordinatorError maps a coordinator failure onto the wire: input
// validation errors carry their specific message on a 400, everything else
// surfaces as a 500 without leaking upstream internals.
func writeCoordinatorError(w http.ResponseWriter, err error) {
	switch {
	case swap.IsValidationError(err):
		writeError(w, http.StatusBadRequest, err.Error())

	case err == swap.ErrSwapNotFound:
		writeError(w, http.StatusInternalServerError,
			"transaction not found")

	case err == swap.ErrFeeEstimation,
		err == swap.ErrInsufficientLiquidity,
		err == swap.ErrInvoiceCreation,
		err == swap.ErrInvalidPreimage:

		writeError(w, http.StatusInternalServerError, err.Error())

	default:
		restLog.Errorf("Request failed: %v", err)
		writeError(w, http.StatusInternalServerError,
			"internal server error")
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(&errorResponse{
		Detail: detail,
	}); err != nil {
		restLog.Errorf("Unable to encode error response: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, resp interface{}) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		restLog.Errorf("Unable to encode response: %v", err)
	}
}
