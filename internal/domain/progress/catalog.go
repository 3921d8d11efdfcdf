package progress

import (
	"fmt"
)

// CatalogEntry maps a human-readable skill name to its stable identifier.
type CatalogEntry struct {
	Name    string `yaml:"name" json:"name"`
	SkillID string `yaml:"skillId" json:"skillId"`
}

// Catalog is the ordered, read-only list of trainable skills.
type Catalog struct {
	entries []CatalogEntry
}

// NewCatalog validates entries and keeps their order. Skill IDs must be
// unique.
func NewCatalog(entries []CatalogEntry) (*Catalog, error) {
	seen := make(map[string]struct{}, len(entries))
	out := make([]CatalogEntry, 0, len(entries))
	for i, e := range entries {
		if err := ValidateSkillID(e.SkillID); err != nil {
			return nil, fmt.Errorf("catalog entry %d (%q): %w", i, e.Name, err)
		}
		if _, dup := seen[e.SkillID]; dup {
			return nil, fmt.Errorf("catalog entry %d: duplicate skill ID %q", i, e.SkillID)
		}
		seen[e.SkillID] = struct{}{}
		if e.Name == "" {
			e.Name = e.SkillID
		}
		out = append(out, e)
	}
	return &Catalog{entries: out}, nil
}

// MustCatalog is NewCatalog for static tables.
func MustCatalog(entries []CatalogEntry) *Catalog {
	c, err := NewCatalog(entries)
	if err != nil {
		panic(err)
	}
	return c
}

// Len returns the number of skills.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Entries returns a copy of the entries in catalog order.
func (c *Catalog) Entries() []CatalogEntry {
	out := make([]CatalogEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// SkillIDs returns the skill identifiers in catalog order.
func (c *Catalog) SkillIDs() []string {
	ids := make([]string, len(c.entries))
	for i, e := range c.entries {
		ids[i] = e.SkillID
	}
	return ids
}

// Lookup finds a skill by name or ID.
func (c *Catalog) Lookup(nameOrID string) (CatalogEntry, bool) {
	for _, e := range c.entries {
		if e.SkillID == nameOrID || e.Name == nameOrID {
			return e, true
		}
	}
	return CatalogEntry{}, false
}

// DefaultCatalog is the built-in clinical skills catalog.
func DefaultCatalog() *Catalog {
	return MustCatalog([]CatalogEntry{
		{Name: "Hand Hygiene", SkillID: "hand-hygiene"},
		{Name: "Vital Signs Assessment", SkillID: "vital-signs"},
		{Name: "Blood Pressure Measurement", SkillID: "blood-pressure"},
		{Name: "Personal Protective Equipment", SkillID: "ppe"},
		{Name: "Aseptic Technique", SkillID: "aseptic-technique"},
		{Name: "Wound Dressing", SkillID: "wound-dressing"},
		{Name: "Intramuscular Injection", SkillID: "im-injection"},
		{Name: "Subcutaneous Injection", SkillID: "subcut-injection"},
		{Name: "IV Cannulation", SkillID: "iv-cannulation"},
		{Name: "Venepuncture", SkillID: "venepuncture"},
		{Name: "Urinary Catheterisation", SkillID: "urinary-catheter"},
		{Name: "Nasogastric Tube Insertion", SkillID: "ng-tube"},
		{Name: "Oxygen Therapy", SkillID: "oxygen-therapy"},
		{Name: "Basic Life Support", SkillID: "basic-life-support"},
		{Name: "Patient Handover", SkillID: "patient-handover"},
		{Name: "Medication Administration", SkillID: "medication-administration"},
		{Name: "Blood Glucose Monitoring", SkillID: "blood-glucose"},
		{Name: "Pain Assessment", SkillID: "pain-assessment"},
		{Name: "Fluid Balance Charting", SkillID: "fluid-balance"},
		{Name: "Pressure Area Care", SkillID: "pressure-area-care"},
		{Name: "Patient Positioning", SkillID: "patient-positioning"},
		{Name: "Breaking Bad News", SkillID: "breaking-bad-news"},
		{Name: "Informed Consent", SkillID: "informed-consent"},
	})
}
