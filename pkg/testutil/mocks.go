// Package testutil provides common testing utilities and mock implementations.
package testutil

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/dataspace-foundry/negotiation/internal/app/domain/negotiation"
	"github.com/dataspace-foundry/negotiation/internal/app/services/ecosystem"
	"github.com/dataspace-foundry/negotiation/internal/app/services/exchange"
)

// FakeContractGateway is a scriptable in-memory contract service for the
// bilateral flow.
type FakeContractGateway struct {
	mu sync.Mutex

	GenerateErr error
	SignErr     error
	InjectErr   error
	// SignedAfter controls how many signatures a contract needs before its
	// status flips to "signed". Defaults to 2.
	SignedAfter int

	GenerateCalls int
	SignCalls     []exchange.ContractSignature
	InjectCalls   [][]negotiation.PolicyRule

	signatures map[string]int
}

// NewFakeContractGateway returns a gateway that signs contracts after two
// signatures.
func NewFakeContractGateway() *FakeContractGateway {
	return &FakeContractGateway{SignedAfter: 2, signatures: make(map[string]int)}
}

// GenerateBilateralContract returns a fresh pending contract.
func (f *FakeContractGateway) GenerateBilateralContract(ctx context.Context, dataProvider, dataConsumer, serviceOffering string) (exchange.Contract, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.GenerateCalls++
	if f.GenerateErr != nil {
		return exchange.Contract{}, f.GenerateErr
	}
	return exchange.Contract{ID: uuid.NewString(), Status: "pending"}, nil
}

// SignBilateralContract records the signature and flips the contract to
// signed once enough have been collected.
func (f *FakeContractGateway) SignBilateralContract(ctx context.Context, contractID string, signature exchange.ContractSignature) (exchange.Contract, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SignCalls = append(f.SignCalls, signature)
	if f.SignErr != nil {
		return exchange.Contract{}, f.SignErr
	}
	f.signatures[contractID]++
	status := "pending"
	if f.signatures[contractID] >= f.SignedAfter {
		status = "signed"
	}
	return exchange.Contract{ID: contractID, Status: status}, nil
}

// BatchInjectBilateralPolicies records the injected rules.
func (f *FakeContractGateway) BatchInjectBilateralPolicies(ctx context.Context, contractID string, rules []negotiation.PolicyRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.InjectErr != nil {
		return f.InjectErr
	}
	f.InjectCalls = append(f.InjectCalls, rules)
	return nil
}

// FakeInjectionGateway records ecosystem contract policy operations.
type FakeInjectionGateway struct {
	mu sync.Mutex

	InjectErr error
	DeleteErr error
	RolesErr  error
	// FailuresBeforeSuccess makes each distinct operation fail this many
	// times before succeeding, to exercise retry behavior.
	FailuresBeforeSuccess int

	Injections []ecosystem.OfferingInjection
	Deletions  []string
	RoleCalls  [][]ecosystem.RoleObligation

	attempts map[string]int
}

// NewFakeInjectionGateway returns an empty recording gateway.
func NewFakeInjectionGateway() *FakeInjectionGateway {
	return &FakeInjectionGateway{attempts: make(map[string]int)}
}

func (f *FakeInjectionGateway) shouldFail(op string) bool {
	f.attempts[op]++
	return f.attempts[op] <= f.FailuresBeforeSuccess
}

// BatchInjectOfferingPolicies records the injection.
func (f *FakeInjectionGateway) BatchInjectOfferingPolicies(ctx context.Context, contractID string, injection ecosystem.OfferingInjection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.InjectErr != nil {
		return f.InjectErr
	}
	if f.shouldFail("inject:" + injection.ServiceOffering) {
		return errTransient
	}
	f.Injections = append(f.Injections, injection)
	return nil
}

// DeleteOfferingPolicies records the deletion key as
// "contract/offering/participant".
func (f *FakeInjectionGateway) DeleteOfferingPolicies(ctx context.Context, contractID, offeringID, participantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	if f.shouldFail("delete:" + offeringID) {
		return errTransient
	}
	f.Deletions = append(f.Deletions, contractID+"/"+offeringID+"/"+participantID)
	return nil
}

// BatchInjectRolesAndObligations records the entries.
func (f *FakeInjectionGateway) BatchInjectRolesAndObligations(ctx context.Context, contractID string, entries []ecosystem.RoleObligation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RolesErr != nil {
		return f.RolesErr
	}
	f.RoleCalls = append(f.RoleCalls, entries)
	return nil
}

type transientError struct{}

func (transientError) Error() string { return "transient gateway error" }

var errTransient = transientError{}
