// Package resource defines the discovered-resource model and the discovery
// input stream feeding the orchestration core.
package resource

import (
	"fmt"

	"github.com/google/uuid"
)

// Kind categorizes a discovered resource.
type Kind string

const (
	KindRepository Kind = "repository"
	KindPackage    Kind = "package"
	KindAPI        Kind = "api"
)

// Valid reports whether the kind is one of the known values.
func (k Kind) Valid() bool {
	switch k {
	case KindRepository, KindPackage, KindAPI:
		return true
	}
	return false
}

// Resource is an externally discovered candidate for integration.
// Immutable once created.
type Resource struct {
	ID               string         `json:"id"`
	Kind             Kind           `json:"kind"`
	Locator          string         `json:"locator"`
	DiscoveryContext map[string]any `json:"discovery_context,omitempty"`
}

// New creates a Resource, assigning an ID when the scanner did not.
func New(kind Kind, locator string, discoveryContext map[string]any) (Resource, error) {
	if !kind.Valid() {
		return Resource{}, fmt.Errorf("invalid resource kind: %q", kind)
	}
	if locator == "" {
		return Resource{}, fmt.Errorf("resource locator cannot be empty")
	}
	return Resource{
		ID:               uuid.NewString(),
		Kind:             kind,
		Locator:          locator,
		DiscoveryContext: discoveryContext,
	}, nil
}

// Validate checks a scanner-supplied resource record.
func (r Resource) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("resource ID cannot be empty")
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("invalid resource kind: %q", r.Kind)
	}
	if r.Locator == "" {
		return fmt.Errorf("resource locator cannot be empty")
	}
	return nil
}
