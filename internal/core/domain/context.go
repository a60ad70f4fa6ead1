package domain

import (
	"fmt"
	"time"
)

// ActionContext is the 6W1H provenance record attached to every
// state-changing call: who acted, what changed, when, where the request came
// from, why, and how (via what mechanism).
type ActionContext struct {
	Who   string    `json:"who"`   // Actor ID (Not Null)
	What  string    `json:"what"`  // Short description of the change
	When  time.Time `json:"when"`  // Time of the action
	Where string    `json:"where"` // Channel/origin, e.g. api, import, scheduler
	Why   string    `json:"why"`   // Business justification
	How   string    `json:"how"`   // Mechanism, e.g. manual, batch, integration
}

// Validate checks the fields that must always be present. What and Where are
// optional narrative; Who, Why and How are the audit minimum.
func (c ActionContext) Validate() error {
	if c.Who == "" {
		return fmt.Errorf("action context missing 'who'")
	}
	if c.Why == "" {
		return fmt.Errorf("action context missing 'why'")
	}
	if c.How == "" {
		return fmt.Errorf("action context missing 'how'")
	}
	return nil
}

// DangerZone captures the explicit override required for sensitive
// operations, e.g. reversing a settled document. The engine refuses
// danger-zone transitions that lack this record.
type DangerZone struct {
	Justification string `json:"justification"`
	ApprovedBy    string `json:"approvedBy"`
}

// Validate ensures both the justification and the approver are present.
func (d *DangerZone) Validate() error {
	if d == nil {
		return fmt.Errorf("danger zone override record is required")
	}
	if d.Justification == "" {
		return fmt.Errorf("danger zone override missing justification")
	}
	if d.ApprovedBy == "" {
		return fmt.Errorf("danger zone override missing approver")
	}
	return nil
}
