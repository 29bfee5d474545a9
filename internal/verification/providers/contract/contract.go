// Package contract holds reusable checks every Provider implementation must
// pass.
package contract

import (
	"context"
	"encoding/json"
	"testing"

	"verigate/internal/verification/providers"
)

// ContractTest defines a test case for provider contract validation
type ContractTest struct {
	Name         string
	Payload      json.RawMessage
	ValidateFunc func(result *providers.Result) error
}

// ContractSuite is a collection of contract tests for a provider
type ContractSuite struct {
	Provider providers.Provider
	Tests    []ContractTest
}

// Run executes all contract tests in the suite
func (s *ContractSuite) Run(t *testing.T) {
	for _, test := range s.Tests {
		t.Run(test.Name, func(t *testing.T) {
			result, err := s.Provider.Verify(context.Background(), test.Payload)
			if err != nil {
				t.Fatalf("provider verify failed: %v", err)
			}

			if result.ProviderID != s.Provider.ID() {
				t.Errorf("expected provider ID %s, got %s", s.Provider.ID(), result.ProviderID)
			}
			if result.Type != s.Provider.Type() {
				t.Errorf("expected type %s, got %s", s.Provider.Type(), result.Type)
			}
			if result.CheckedAt.IsZero() {
				t.Error("CheckedAt not set")
			}
			if !json.Valid(result.Data) {
				t.Errorf("result data is not valid JSON: %s", result.Data)
			}

			if test.ValidateFunc != nil {
				if err := test.ValidateFunc(result); err != nil {
					t.Errorf("custom validation failed: %v", err)
				}
			}
		})
	}
}

// ErrorContractTest validates that provider errors follow the taxonomy
type ErrorContractTest struct {
	Name          string
	Provider      providers.Provider
	Payload       json.RawMessage
	ExpectedError providers.ErrorCategory
}

// Run executes an error contract test
func (ect *ErrorContractTest) Run(t *testing.T) {
	t.Run(ect.Name, func(t *testing.T) {
		_, err := ect.Provider.Verify(context.Background(), ect.Payload)
		if err == nil {
			t.Fatal("expected error but got none")
		}
		if category := providers.GetCategory(err); category != ect.ExpectedError {
			t.Errorf("expected error category %s, got %s", ect.ExpectedError, category)
		}
	})
}
