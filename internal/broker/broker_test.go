package broker

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type stubProvider struct {
	name    string
	schemes []string
}

func (provider stubProvider) Name() string      { return provider.name }
func (provider stubProvider) Schemes() []string { return provider.schemes }

func (provider stubProvider) Open(context.Context, Environment) (DirectorySession, error) {
	return nil, errors.New("not implemented")
}

func TestRegistryLookup(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(stubProvider{name: "rabbitmq"}, stubProvider{name: "amqp10"})
	if diff := cmp.Diff([]string{"amqp10", "rabbitmq"}, registry.Names()); diff != "" {
		t.Fatalf("unexpected names (-want +got):\n%s", diff)
	}

	provider, lookupErr := registry.Lookup("amqp10")
	if lookupErr != nil {
		t.Fatalf("Lookup error: %v", lookupErr)
	}
	if provider.Name() != "amqp10" {
		t.Fatalf("expected amqp10 provider, got %s", provider.Name())
	}

	_, lookupErr = registry.Lookup("weblogic.jndi.WLInitialContextFactory")
	if !errors.Is(lookupErr, ErrUnknownContextFactory) {
		t.Fatalf("expected ErrUnknownContextFactory, got %v", lookupErr)
	}
}

func TestBindingsResolveNames(t *testing.T) {
	t.Parallel()

	bindings := Bindings{
		ConnectionFactories: map[string]FactoryBinding{"done": {ContainerID: "sender"}},
		Destinations:        map[string]string{"q1": "orders.incoming", "self": ""},
	}

	testCases := []struct {
		name            string
		destination     string
		expectedAddress string
		expectNotFound  bool
	}{
		{name: "mapped_address", destination: "q1", expectedAddress: "orders.incoming"},
		{name: "empty_address_maps_to_name", destination: "self", expectedAddress: "self"},
		{name: "unbound_name", destination: "missing", expectNotFound: true},
	}
	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			address, resolveErr := bindings.Destination(testCase.destination)
			if testCase.expectNotFound {
				if !errors.Is(resolveErr, ErrNameNotFound) {
					t.Fatalf("expected ErrNameNotFound, got %v", resolveErr)
				}
				return
			}
			if resolveErr != nil {
				t.Fatalf("Destination error: %v", resolveErr)
			}
			if address != testCase.expectedAddress {
				t.Fatalf("expected %s, got %s", testCase.expectedAddress, address)
			}
		})
	}

	if _, factoryErr := bindings.ConnectionFactory("missing"); !errors.Is(factoryErr, ErrNameNotFound) {
		t.Fatalf("expected ErrNameNotFound for unbound factory, got %v", factoryErr)
	}
}

func TestSessionOptionsValidate(t *testing.T) {
	t.Parallel()

	if err := (SessionOptions{Acknowledge: AutoAcknowledge}).Validate(); err != nil {
		t.Fatalf("expected auto-acknowledge to be valid: %v", err)
	}
	if err := (SessionOptions{Transacted: true, Acknowledge: AutoAcknowledge}).Validate(); !errors.Is(err, ErrTransactedSession) {
		t.Fatalf("expected ErrTransactedSession, got %v", err)
	}
	if err := (SessionOptions{}).Validate(); !errors.Is(err, ErrUnsupportedAcknowledgeMode) {
		t.Fatalf("expected ErrUnsupportedAcknowledgeMode, got %v", err)
	}
}

func TestSupportsScheme(t *testing.T) {
	t.Parallel()

	provider := stubProvider{name: "amqp10", schemes: []string{"amqp", "amqps"}}
	if !SupportsScheme(provider, "AMQPS") {
		t.Fatalf("expected scheme match to ignore case")
	}
	if SupportsScheme(provider, "t3") {
		t.Fatalf("expected t3 to be rejected")
	}
}
