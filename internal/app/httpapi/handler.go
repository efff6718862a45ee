// Package httpapi exposes the negotiation service over HTTP.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/dataspace-foundry/negotiation/internal/app/domain/negotiation"
	"github.com/dataspace-foundry/negotiation/internal/app/metrics"
	"github.com/dataspace-foundry/negotiation/internal/app/services/ecosystem"
	"github.com/dataspace-foundry/negotiation/internal/app/services/exchange"
	apperrors "github.com/dataspace-foundry/negotiation/internal/errors"
	"github.com/dataspace-foundry/negotiation/internal/httputil"
	"github.com/dataspace-foundry/negotiation/internal/middleware"
	"github.com/dataspace-foundry/negotiation/pkg/logger"
)

// Handler serves the bilateral exchange and ecosystem negotiation endpoints.
type Handler struct {
	exchanges    *exchange.Service
	negotiations *ecosystem.Service
	metrics      *metrics.Metrics
	log          *logger.Logger
}

// NewHandler creates the HTTP handler for the negotiation API. A nil metrics
// argument disables transition counters.
func NewHandler(exchanges *exchange.Service, negotiations *ecosystem.Service, m *metrics.Metrics, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	return &Handler{
		exchanges:    exchanges,
		negotiations: negotiations,
		metrics:      m,
		log:          log,
	}
}

// Register mounts the negotiation routes on the router. Ecosystem routes are
// registered before the bilateral "/{id}" routes so their literal prefix
// wins.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/negotiation/ecosystem", h.createEcosystemNegotiation).Methods(http.MethodPost)
	r.HandleFunc("/negotiation/ecosystem/me", h.listEcosystemNegotiations).Methods(http.MethodGet)
	r.HandleFunc("/negotiation/ecosystem/{id}", h.getEcosystemNegotiation).Methods(http.MethodGet)
	r.HandleFunc("/negotiation/ecosystem/{participantId}/{ecosystemId}", h.getEcosystemNegotiationForParticipant).Methods(http.MethodGet)
	r.HandleFunc("/negotiation/ecosystem/{id}", h.negotiateEcosystemNegotiation).Methods(http.MethodPut)
	r.HandleFunc("/negotiation/ecosystem/{id}/accept", h.acceptEcosystemNegotiation).Methods(http.MethodPut)
	r.HandleFunc("/negotiation/ecosystem/{id}/terminate", h.terminateEcosystemNegotiation).Methods(http.MethodPut)

	r.HandleFunc("/negotiation", h.listExchangeConfigurations).Methods(http.MethodGet)
	r.HandleFunc("/negotiation", h.requestExchangeConfiguration).Methods(http.MethodPost)
	r.HandleFunc("/negotiation/{id}", h.getExchangeConfiguration).Methods(http.MethodGet)
	r.HandleFunc("/negotiation/{id}", h.authorizeExchangeConfiguration).Methods(http.MethodPut)
	r.HandleFunc("/negotiation/{id}/negotiate", h.negotiateExchangeConfiguration).Methods(http.MethodPut)
	r.HandleFunc("/negotiation/{id}/accept", h.acceptExchangeConfiguration).Methods(http.MethodPut)
	r.HandleFunc("/negotiation/{id}/sign", h.signExchangeConfiguration).Methods(http.MethodPut)
}

// --- bilateral exchange configurations ---

type requestExchangeBody struct {
	Provider                string `json:"provider"`
	Consumer                string `json:"consumer"`
	ProviderServiceOffering string `json:"providerServiceOffering"`
	ConsumerServiceOffering string `json:"consumerServiceOffering"`
}

func (h *Handler) requestExchangeConfiguration(w http.ResponseWriter, r *http.Request) {
	var body requestExchangeBody
	if !h.decodeJSON(w, r, &body) {
		return
	}

	conf, err := h.exchanges.Request(r.Context(), exchange.RequestParams{
		Provider:                body.Provider,
		Consumer:                body.Consumer,
		ProviderServiceOffering: body.ProviderServiceOffering,
		ConsumerServiceOffering: body.ConsumerServiceOffering,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.transition("bilateral", string(conf.NegotiationStatus))
	httputil.WriteJSON(w, http.StatusOK, conf)
}

func (h *Handler) getExchangeConfiguration(w http.ResponseWriter, r *http.Request) {
	conf, err := h.exchanges.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, conf)
}

func (h *Handler) listExchangeConfigurations(w http.ResponseWriter, r *http.Request) {
	confs, err := h.exchanges.ListForParticipant(r.Context(), middleware.GetParticipantID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, confs)
}

type policyBody struct {
	Policy []negotiation.PolicyRule `json:"policy"`
}

func (h *Handler) authorizeExchangeConfiguration(w http.ResponseWriter, r *http.Request) {
	var body policyBody
	if !h.decodeJSON(w, r, &body) {
		return
	}

	conf, err := h.exchanges.Authorize(r.Context(), middleware.GetParticipantID(r.Context()), mux.Vars(r)["id"], body.Policy)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.transition("bilateral", string(conf.NegotiationStatus))
	httputil.WriteJSON(w, http.StatusOK, conf)
}

func (h *Handler) negotiateExchangeConfiguration(w http.ResponseWriter, r *http.Request) {
	var body policyBody
	if !h.decodeJSON(w, r, &body) {
		return
	}

	conf, err := h.exchanges.Negotiate(r.Context(), middleware.GetParticipantID(r.Context()), mux.Vars(r)["id"], body.Policy)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.transition("bilateral", string(conf.NegotiationStatus))
	httputil.WriteJSON(w, http.StatusOK, conf)
}

func (h *Handler) acceptExchangeConfiguration(w http.ResponseWriter, r *http.Request) {
	conf, err := h.exchanges.AcceptNegotiation(r.Context(), middleware.GetParticipantID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.transition("bilateral", string(conf.NegotiationStatus))
	httputil.WriteJSON(w, http.StatusOK, conf)
}

type signBody struct {
	Signature string `json:"signature"`
}

func (h *Handler) signExchangeConfiguration(w http.ResponseWriter, r *http.Request) {
	var body signBody
	if !h.decodeJSON(w, r, &body) {
		return
	}

	result, err := h.exchanges.Sign(r.Context(), middleware.GetParticipantID(r.Context()), mux.Vars(r)["id"], body.Signature)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.transition("bilateral", string(result.ExchangeConfiguration.NegotiationStatus))
	httputil.WriteJSON(w, http.StatusOK, result)
}

// --- ecosystem negotiations ---

type createNegotiationBody struct {
	Ecosystem   string                             `json:"ecosystem"`
	Participant string                             `json:"participant"`
	Policies    []negotiation.PolicyConfiguration  `json:"policies"`
	Pricings    []negotiation.PricingConfiguration `json:"pricings"`
	Roles       []string                           `json:"roles"`
}

func (h *Handler) createEcosystemNegotiation(w http.ResponseWriter, r *http.Request) {
	var body createNegotiationBody
	if !h.decodeJSON(w, r, &body) {
		return
	}

	nego, err := h.negotiations.CreateNegotiation(r.Context(), middleware.GetParticipantID(r.Context()), ecosystem.CreateParams{
		EcosystemID:   body.Ecosystem,
		ParticipantID: body.Participant,
		Policies:      body.Policies,
		Pricings:      body.Pricings,
		Roles:         body.Roles,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.transition("ecosystem", string(nego.Status))
	httputil.WriteJSON(w, http.StatusCreated, nego)
}

func (h *Handler) listEcosystemNegotiations(w http.ResponseWriter, r *http.Request) {
	views, err := h.negotiations.ListNegotiationsForParticipant(r.Context(), middleware.GetParticipantID(r.Context()), r.URL.Query().Get("populate"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, views)
}

func (h *Handler) getEcosystemNegotiation(w http.ResponseWriter, r *http.Request) {
	view, err := h.negotiations.FindNegotiationByID(r.Context(), mux.Vars(r)["id"], r.URL.Query().Get("populate"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) getEcosystemNegotiationForParticipant(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	view, err := h.negotiations.FindNegotiationForParticipant(r.Context(), vars["participantId"], vars["ecosystemId"], r.URL.Query().Get("populate"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

type negotiateBody struct {
	// Participant switches addressing: when set, the path id is the
	// ecosystem id and the negotiation is resolved from the pair.
	Participant string                             `json:"participant"`
	Policies    []negotiation.PolicyConfiguration  `json:"policies"`
	Pricings    []negotiation.PricingConfiguration `json:"pricings"`
}

func (h *Handler) negotiateEcosystemNegotiation(w http.ResponseWriter, r *http.Request) {
	var body negotiateBody
	if !h.decodeJSON(w, r, &body) {
		return
	}

	id, err := h.resolveNegotiationID(r, mux.Vars(r)["id"], body.Participant)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	nego, err := h.negotiations.NegotiateOnNegotiation(r.Context(), middleware.GetParticipantID(r.Context()), id, body.Policies, body.Pricings)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.transition("ecosystem", string(nego.Status))
	httputil.WriteJSON(w, http.StatusOK, nego)
}

type acceptBody struct {
	// Participant is set when the acceptance should also reconcile the
	// participant's membership in the ecosystem roster and contract.
	Participant string `json:"participant"`
}

func (h *Handler) acceptEcosystemNegotiation(w http.ResponseWriter, r *http.Request) {
	var body acceptBody
	if r.Body != nil && r.ContentLength != 0 {
		if !h.decodeJSON(w, r, &body) {
			return
		}
	}

	actorID := middleware.GetParticipantID(r.Context())
	id := mux.Vars(r)["id"]

	if body.Participant != "" {
		// id is the ecosystem when reconciling a membership.
		nego, err := h.negotiations.AcceptAndReconcile(r.Context(), actorID, id, body.Participant)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.transition("ecosystem", string(nego.Status))
		httputil.WriteJSON(w, http.StatusOK, nego)
		return
	}

	nego, err := h.negotiations.AcceptNegotiation(r.Context(), actorID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.transition("ecosystem", string(nego.Status))
	httputil.WriteJSON(w, http.StatusOK, nego)
}

type terminateBody struct {
	Participant string `json:"participant"`
}

func (h *Handler) terminateEcosystemNegotiation(w http.ResponseWriter, r *http.Request) {
	var body terminateBody
	if r.Body != nil && r.ContentLength != 0 {
		if !h.decodeJSON(w, r, &body) {
			return
		}
	}

	id, err := h.resolveNegotiationID(r, mux.Vars(r)["id"], body.Participant)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	nego, err := h.negotiations.TerminateNegotiation(r.Context(), middleware.GetParticipantID(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.transition("ecosystem", string(nego.Status))
	httputil.WriteJSON(w, http.StatusOK, nego)
}

// --- helpers ---

// resolveNegotiationID treats id as the ecosystem id when the request body
// names a participant, and as the negotiation id otherwise.
func (h *Handler) resolveNegotiationID(r *http.Request, id, participant string) (string, error) {
	if participant == "" {
		return id, nil
	}
	return h.negotiations.ResolveNegotiationID(r.Context(), id, participant)
}

func (h *Handler) transition(flow, status string) {
	if h.metrics != nil {
		h.metrics.RecordTransition(flow, status)
	}
}

func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		h.writeError(w, r, apperrors.InvalidRequest("invalid request body"))
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	serviceErr := apperrors.GetServiceError(err)
	if serviceErr == nil {
		h.log.WithError(err).Error("unhandled error")
		serviceErr = apperrors.Internal("Internal server error", err)
	}
	httputil.WriteErrorResponse(w, r, serviceErr.HTTPStatus, string(serviceErr.Code), serviceErr.Message, serviceErr.Details)
}
