// Package tenant models the school organisations that subscribe to Bursar.
package tenant

import (
	"strings"

	"github.com/xraph/bursar/types"
)

// MetadataEditionCode is the metadata key holding a fallback edition code
// for tenants whose primary edition reference is unset or stale.
const MetadataEditionCode = "edition_code"

type Tenant struct {
	types.Entity
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	EditionID string            `json:"edition_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// EditionCode returns the metadata-embedded edition code, if any.
func (t *Tenant) EditionCode() string {
	if t.Metadata == nil {
		return ""
	}
	return strings.TrimSpace(t.Metadata[MetadataEditionCode])
}
