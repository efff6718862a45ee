package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataspace-foundry/negotiation/internal/app"
	ecodomain "github.com/dataspace-foundry/negotiation/internal/app/domain/ecosystem"
	exdomain "github.com/dataspace-foundry/negotiation/internal/app/domain/exchange"
	"github.com/dataspace-foundry/negotiation/internal/app/domain/negotiation"
	"github.com/dataspace-foundry/negotiation/internal/app/domain/offering"
	"github.com/dataspace-foundry/negotiation/internal/app/domain/participant"
	"github.com/dataspace-foundry/negotiation/internal/app/httpapi"
	"github.com/dataspace-foundry/negotiation/internal/app/storage/memory"
	"github.com/dataspace-foundry/negotiation/internal/middleware"
	"github.com/dataspace-foundry/negotiation/pkg/testutil"
)

const jwtSecret = "test-secret"

type testEnv struct {
	server  *httptest.Server
	store   *memory.Store
	gateway *testutil.FakeContractGateway
	eco     *testutil.FakeInjectionGateway
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.New()
	gateway := testutil.NewFakeContractGateway()
	ecoGateway := testutil.NewFakeInjectionGateway()

	application := app.New(app.Options{
		Stores: app.Stores{
			Exchanges:    store,
			Negotiations: store,
			Ecosystems:   store,
			Offerings:    store,
			Participants: store,
		},
		Contracts:      gateway,
		PolicyInjector: gateway,
		EcosystemGW:    ecoGateway,
		CatalogBaseURL: "https://catalog.example.com",
	})

	router := mux.NewRouter()
	auth := middleware.NewAuthMiddleware(jwtSecret, nil, nil)
	router.Use(auth.Handler)
	httpapi.NewHandler(application.Exchanges, application.Ecosystems, application.Metrics, nil).Register(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &testEnv{server: server, store: store, gateway: gateway, eco: ecoGateway}
}

func token(t *testing.T, participantID string) string {
	t.Helper()
	claims := middleware.Claims{
		ParticipantID: participantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   participantID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return signed
}

func (e *testEnv) do(t *testing.T, actor, method, path string, body interface{}) *http.Response {
	t.Helper()
	var payload *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewReader(data)
	} else {
		payload = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.server.URL+path, payload)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token(t, actor))
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}

func TestMissingTokenRejected(t *testing.T) {
	env := newEnv(t)

	resp, err := http.Get(env.server.URL + "/negotiation")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBilateralFlowEndToEnd(t *testing.T) {
	env := newEnv(t)

	// Consumer requests access.
	resp := env.do(t, "consumer-1", http.MethodPost, "/negotiation", map[string]string{
		"provider":                "provider-1",
		"consumer":                "consumer-1",
		"providerServiceOffering": "off-p",
		"consumerServiceOffering": "off-c",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var conf exdomain.Configuration
	decode(t, resp, &conf)
	assert.Equal(t, exdomain.StatusRequested, conf.NegotiationStatus)

	// Duplicate request conflicts.
	resp = env.do(t, "consumer-1", http.MethodPost, "/negotiation", map[string]string{
		"provider":                "provider-1",
		"consumer":                "consumer-1",
		"providerServiceOffering": "off-p",
		"consumerServiceOffering": "off-c",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// Consumer may not authorize.
	resp = env.do(t, "consumer-1", http.MethodPut, "/negotiation/"+conf.ID, map[string]interface{}{"policy": nil})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Provider authorizes with a policy.
	resp = env.do(t, "provider-1", http.MethodPut, "/negotiation/"+conf.ID, map[string]interface{}{
		"policy": []negotiation.PolicyRule{{RuleID: "no-resale"}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &conf)
	assert.Equal(t, exdomain.StatusAuthorized, conf.NegotiationStatus)
	assert.NotEmpty(t, conf.Contract)

	// Consumer counter-offers, provider accepts.
	resp = env.do(t, "consumer-1", http.MethodPut, "/negotiation/"+conf.ID+"/negotiate", map[string]interface{}{
		"policy": []negotiation.PolicyRule{{RuleID: "no-resale-30d"}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, "provider-1", http.MethodPut, "/negotiation/"+conf.ID+"/accept", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &conf)
	assert.Equal(t, exdomain.StatusSignatureReady, conf.NegotiationStatus)

	// Both sign; the second signature completes the contract.
	resp = env.do(t, "provider-1", http.MethodPut, "/negotiation/"+conf.ID+"/sign", map[string]string{"signature": "sig-p"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, "consumer-1", http.MethodPut, "/negotiation/"+conf.ID+"/sign", map[string]string{"signature": "sig-c"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result struct {
		ExchangeConfiguration exdomain.Configuration `json:"exchangeConfiguration"`
	}
	decode(t, resp, &result)
	assert.Equal(t, exdomain.StatusSigned, result.ExchangeConfiguration.NegotiationStatus)
	assert.Len(t, env.gateway.InjectCalls, 1)
}

func TestEcosystemFlowEndToEnd(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	orchestrator, err := env.store.CreateParticipant(ctx, participant.Participant{Name: "Orchestrator"})
	require.NoError(t, err)
	member, err := env.store.CreateParticipant(ctx, participant.Participant{Name: "Member"})
	require.NoError(t, err)
	off, err := env.store.CreateServiceOffering(ctx, offering.ServiceOffering{Name: "Data", ProvidedBy: member.ID})
	require.NoError(t, err)
	eco, err := env.store.CreateEcosystem(ctx, ecodomain.Ecosystem{
		Name: "Eco", Orchestrator: orchestrator.ID, Contract: "contract-eco",
	})
	require.NoError(t, err)

	// Member opens the negotiation.
	resp := env.do(t, member.ID, http.MethodPost, "/negotiation/ecosystem", map[string]interface{}{
		"ecosystem":   eco.ID,
		"participant": member.ID,
		"policies": []negotiation.PolicyConfiguration{{
			ServiceOffering: off.ID,
			Policy:          []negotiation.PolicyRule{{RuleID: "no-resale"}},
		}},
		"roles": []string{"data provider"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var nego negotiation.EcosystemNegotiation
	decode(t, resp, &nego)
	assert.Equal(t, negotiation.StatusRequested, nego.Status)

	// The member may not immediately negotiate again.
	resp = env.do(t, member.ID, http.MethodPut, "/negotiation/ecosystem/"+nego.ID, map[string]interface{}{
		"policies": []negotiation.PolicyConfiguration{{ServiceOffering: off.ID}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Orchestrator counter-offers.
	resp = env.do(t, orchestrator.ID, http.MethodPut, "/negotiation/ecosystem/"+nego.ID, map[string]interface{}{
		"policies": []negotiation.PolicyConfiguration{{
			ServiceOffering: off.ID,
			Policy:          []negotiation.PolicyRule{{RuleID: "share-alike"}},
		}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &nego)
	assert.Equal(t, negotiation.StatusNegotiation, nego.Status)

	// Member accepts with reconciliation into the roster.
	resp = env.do(t, member.ID, http.MethodPut, "/negotiation/ecosystem/"+eco.ID+"/accept", map[string]string{
		"participant": member.ID,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &nego)
	assert.Equal(t, negotiation.StatusAccepted, nego.Status)

	stored, err := env.store.GetEcosystem(ctx, eco.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Member(member.ID))
	assert.Len(t, env.eco.Injections, 1)

	// Read it back populated.
	resp = env.do(t, member.ID, http.MethodGet, "/negotiation/ecosystem/"+member.ID+"/"+eco.ID+"?populate=all", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view struct {
		negotiation.EcosystemNegotiation
		ParticipantDoc *participant.Participant `json:"participantDetails"`
		EcosystemDoc   *ecodomain.Ecosystem     `json:"ecosystemDetails"`
	}
	decode(t, resp, &view)
	require.NotNil(t, view.ParticipantDoc)
	assert.Equal(t, member.ID, view.ParticipantDoc.ID)
	require.NotNil(t, view.EcosystemDoc)

	// Terminate is absorbing.
	resp = env.do(t, orchestrator.ID, http.MethodPut, "/negotiation/ecosystem/"+nego.ID+"/terminate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &nego)
	assert.Equal(t, negotiation.StatusTerminated, nego.Status)

	resp = env.do(t, member.ID, http.MethodPut, "/negotiation/ecosystem/"+nego.ID+"/accept", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestEcosystemRoutesResolveParticipantAddressing(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	orchestrator, err := env.store.CreateParticipant(ctx, participant.Participant{Name: "Orchestrator"})
	require.NoError(t, err)
	member, err := env.store.CreateParticipant(ctx, participant.Participant{Name: "Member"})
	require.NoError(t, err)
	off, err := env.store.CreateServiceOffering(ctx, offering.ServiceOffering{Name: "Data", ProvidedBy: member.ID})
	require.NoError(t, err)
	eco, err := env.store.CreateEcosystem(ctx, ecodomain.Ecosystem{
		Name: "Eco", Orchestrator: orchestrator.ID, Contract: "contract-eco",
	})
	require.NoError(t, err)

	resp := env.do(t, member.ID, http.MethodPost, "/negotiation/ecosystem", map[string]interface{}{
		"ecosystem":   eco.ID,
		"participant": member.ID,
		"policies": []negotiation.PolicyConfiguration{{
			ServiceOffering: off.ID,
			Policy:          []negotiation.PolicyRule{{RuleID: "no-resale"}},
		}},
		"roles": []string{"data provider"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var nego negotiation.EcosystemNegotiation
	decode(t, resp, &nego)

	// Counter-offer addressed by ecosystem id, with the participant named
	// in the body.
	resp = env.do(t, orchestrator.ID, http.MethodPut, "/negotiation/ecosystem/"+eco.ID, map[string]interface{}{
		"participant": member.ID,
		"policies": []negotiation.PolicyConfiguration{{
			ServiceOffering: off.ID,
			Policy:          []negotiation.PolicyRule{{RuleID: "share-alike"}},
		}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &nego)
	assert.Equal(t, negotiation.StatusNegotiation, nego.Status)

	// A pair with no negotiation resolves to nothing.
	resp = env.do(t, orchestrator.ID, http.MethodPut, "/negotiation/ecosystem/"+eco.ID, map[string]interface{}{
		"participant": "stranger",
		"policies":    []negotiation.PolicyConfiguration{},
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	// Terminate resolves from the pair the same way.
	resp = env.do(t, orchestrator.ID, http.MethodPut, "/negotiation/ecosystem/"+eco.ID+"/terminate", map[string]string{
		"participant": member.ID,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &nego)
	assert.Equal(t, negotiation.StatusTerminated, nego.Status)
}

func TestGetUnknownConfigurationReturnsNotFound(t *testing.T) {
	env := newEnv(t)

	resp := env.do(t, "anyone", http.MethodGet, "/negotiation/does-not-exist", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Exchange Configuration not found", body.Error.Message)
}
