// Package contract is the HTTP client for the platform's contract service.
// It covers bilateral contract generation and signing plus policy injection
// on bilateral and ecosystem contracts.
package contract

import (
	"context"
	"fmt"

	"github.com/dataspace-foundry/negotiation/internal/app/domain/negotiation"
	"github.com/dataspace-foundry/negotiation/internal/app/services/ecosystem"
	"github.com/dataspace-foundry/negotiation/internal/app/services/exchange"
	"github.com/dataspace-foundry/negotiation/internal/httputil"
)

// Recorder counts outgoing contract-service calls and their outcome.
type Recorder interface {
	RecordGatewayCall(operation string, err error)
}

// Client talks to the contract service. It implements the gateway interfaces
// of both negotiation state machines.
type Client struct {
	http   *httputil.ServiceClient
	record Recorder
}

var (
	_ exchange.ContractGateway         = (*Client)(nil)
	_ exchange.PolicyInjector          = (*Client)(nil)
	_ ecosystem.PolicyInjectionGateway = (*Client)(nil)
)

// Option configures a Client.
type Option func(*Client)

// WithRecorder instruments every contract-service call.
func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.record = r }
}

// NewClient builds a contract-service client from an authenticated HTTP
// client.
func NewClient(http *httputil.ServiceClient, opts ...Option) *Client {
	c := &Client{http: http}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) observe(operation string, err *error) {
	if c.record != nil {
		c.record.RecordGatewayCall(operation, *err)
	}
}

// GenerateBilateralContract asks the contract service for a new bilateral
// contract between the two parties over the given offering.
func (c *Client) GenerateBilateralContract(ctx context.Context, dataProvider, dataConsumer, serviceOffering string) (_ exchange.Contract, err error) {
	defer c.observe("generate_bilateral_contract", &err)
	payload := map[string]interface{}{
		"contract": map[string]string{
			"dataProvider":    dataProvider,
			"dataConsumer":    dataConsumer,
			"serviceOffering": serviceOffering,
		},
	}

	resp, err := c.http.Post(ctx, "/bilaterals/", payload)
	if err != nil {
		return exchange.Contract{}, fmt.Errorf("generate bilateral contract: %w", err)
	}

	var contract exchange.Contract
	if err := httputil.DecodeResponse(resp, &contract); err != nil {
		return exchange.Contract{}, fmt.Errorf("generate bilateral contract: %w", err)
	}
	return contract, nil
}

// SignBilateralContract submits one party's signature on a bilateral
// contract and returns the contract's resulting state.
func (c *Client) SignBilateralContract(ctx context.Context, contractID string, signature exchange.ContractSignature) (_ exchange.Contract, err error) {
	defer c.observe("sign_bilateral_contract", &err)
	payload := map[string]interface{}{"signature": signature}

	resp, err := c.http.Put(ctx, "/bilaterals/sign/"+contractID, payload)
	if err != nil {
		return exchange.Contract{}, fmt.Errorf("sign bilateral contract: %w", err)
	}

	var contract exchange.Contract
	if err := httputil.DecodeResponse(resp, &contract); err != nil {
		return exchange.Contract{}, fmt.Errorf("sign bilateral contract: %w", err)
	}
	return contract, nil
}

// BatchInjectBilateralPolicies injects the negotiated policy rules into a
// bilateral contract.
func (c *Client) BatchInjectBilateralPolicies(ctx context.Context, contractID string, rules []negotiation.PolicyRule) (err error) {
	defer c.observe("inject_bilateral_policies", &err)
	payload := map[string]interface{}{"policies": rules}

	resp, err := c.http.Put(ctx, "/bilaterals/policies/"+contractID, payload)
	if err != nil {
		return fmt.Errorf("inject bilateral policies: %w", err)
	}
	if err := httputil.DecodeResponse(resp, nil); err != nil {
		return fmt.Errorf("inject bilateral policies: %w", err)
	}
	return nil
}

// BatchInjectOfferingPolicies injects a participant's policies for one
// service offering into an ecosystem contract.
func (c *Client) BatchInjectOfferingPolicies(ctx context.Context, contractID string, injection ecosystem.OfferingInjection) (err error) {
	defer c.observe("inject_offering_policies", &err)
	resp, err := c.http.Put(ctx, "/contracts/policies/offering/"+contractID, injection)
	if err != nil {
		return fmt.Errorf("inject offering policies: %w", err)
	}
	if err := httputil.DecodeResponse(resp, nil); err != nil {
		return fmt.Errorf("inject offering policies: %w", err)
	}
	return nil
}

// DeleteOfferingPolicies removes previously injected policies for one
// (offering, participant) pair from an ecosystem contract.
func (c *Client) DeleteOfferingPolicies(ctx context.Context, contractID, offeringID, participantID string) (err error) {
	defer c.observe("delete_offering_policies", &err)
	resp, err := c.http.Delete(ctx, "/contracts/policies/offering/"+contractID+"/"+offeringID+"/"+participantID)
	if err != nil {
		return fmt.Errorf("delete offering policies: %w", err)
	}
	if err := httputil.DecodeResponse(resp, nil); err != nil {
		return fmt.Errorf("delete offering policies: %w", err)
	}
	return nil
}

// BatchInjectRolesAndObligations injects role and obligation entries into an
// ecosystem contract.
func (c *Client) BatchInjectRolesAndObligations(ctx context.Context, contractID string, entries []ecosystem.RoleObligation) (err error) {
	defer c.observe("inject_roles_obligations", &err)
	payload := map[string]interface{}{"rolesAndObligations": entries}

	resp, err := c.http.Put(ctx, "/contracts/policies/"+contractID, payload)
	if err != nil {
		return fmt.Errorf("inject roles and obligations: %w", err)
	}
	if err := httputil.DecodeResponse(resp, nil); err != nil {
		return fmt.Errorf("inject roles and obligations: %w", err)
	}
	return nil
}
