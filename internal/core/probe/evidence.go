// Package probe provides evidence-based discovery of what the connected
// PostgreSQL server can do. It gathers findings about the server, its
// extensions and the session's privileges with confidence scoring,
// enabling an operating mode recommendation.
package probe

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"
)

// Category classifies types of evidence
type Category string

const (
	CategoryServer    Category = "server"
	CategoryExtension Category = "extension"
	CategoryPrivilege Category = "privilege"
	CategorySchema    Category = "schema"
)

// Evidence represents a single piece of discovered knowledge
type Evidence struct {
	ID         string         `json:"id"`
	Category   Category       `json:"category"`
	Property   string         `json:"property"`
	Value      any            `json:"value"`
	Confidence float64        `json:"confidence"` // 0.0-1.0
	Source     string         `json:"source"`     // e.g., "pg_settings", "pg_catalog"
	Method     string         `json:"method"`     // e.g., "postgis_lib_version()"
	Timestamp  time.Time      `json:"timestamp"`
	Raw        map[string]any `json:"raw,omitempty"` // Additional raw data
}

// NewEvidence creates evidence with auto-generated ID
func NewEvidence(cat Category, prop string, value any, conf float64, source, method string) Evidence {
	e := Evidence{
		Category:   cat,
		Property:   prop,
		Value:      value,
		Confidence: conf,
		Source:     source,
		Method:     method,
		Timestamp:  time.Now(),
	}
	e.ID = e.generateID()
	return e
}

// WithRaw adds raw data to evidence and returns it (for chaining)
func (e Evidence) WithRaw(raw map[string]any) Evidence {
	e.Raw = raw
	return e
}

func (e *Evidence) generateID() string {
	data := fmt.Sprintf("%s:%s:%v:%s:%d", e.Category, e.Property, e.Value, e.Source, e.Timestamp.UnixNano())
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:8])
}

// EvidenceSet aggregates multiple pieces of evidence
type EvidenceSet struct {
	items []Evidence
}

// NewEvidenceSet creates an empty evidence set
func NewEvidenceSet() *EvidenceSet {
	return &EvidenceSet{}
}

// Add appends a single piece of evidence
func (es *EvidenceSet) Add(e Evidence) {
	es.items = append(es.items, e)
}

// AddAll appends multiple pieces of evidence
func (es *EvidenceSet) AddAll(items []Evidence) {
	es.items = append(es.items, items...)
}

// All returns all evidence
func (es *EvidenceSet) All() []Evidence {
	return es.items
}

// Count returns the number of evidence items
func (es *EvidenceSet) Count() int {
	return len(es.items)
}

// ByCategory returns evidence filtered by category
func (es *EvidenceSet) ByCategory(cat Category) []Evidence {
	var result []Evidence
	for _, e := range es.items {
		if e.Category == cat {
			result = append(result, e)
		}
	}
	return result
}

// BestValue returns the highest-confidence value for a property
func (es *EvidenceSet) BestValue(cat Category, prop string) (any, float64, bool) {
	var best Evidence
	var found bool

	for _, e := range es.items {
		if e.Category == cat && e.Property == prop {
			if !found || e.Confidence > best.Confidence {
				best = e
				found = true
			}
		}
	}

	if !found {
		return nil, 0, false
	}
	return best.Value, best.Confidence, true
}

// HasProperty returns true if any evidence exists for the property
func (es *EvidenceSet) HasProperty(cat Category, prop string) bool {
	for _, e := range es.items {
		if e.Category == cat && e.Property == prop {
			return true
		}
	}
	return false
}

// AggregateConfidence combines evidence for the same property
// Uses: max(confidences) + diminishing bonus for corroboration
func (es *EvidenceSet) AggregateConfidence(cat Category, prop string) float64 {
	var confidences []float64
	for _, e := range es.items {
		if e.Category == cat && e.Property == prop {
			confidences = append(confidences, e.Confidence)
		}
	}

	if len(confidences) == 0 {
		return 0
	}

	// Sort descending
	sort.Sort(sort.Reverse(sort.Float64Slice(confidences)))

	// Start with max, add diminishing bonus for corroboration
	result := confidences[0]
	for i := 1; i < len(confidences); i++ {
		// Each additional source adds 10% of its confidence, decaying
		bonus := confidences[i] * 0.1 / float64(i)
		result += bonus
	}

	// Cap at 0.99 (never claim absolute certainty)
	if result > 0.99 {
		result = 0.99
	}

	return result
}

// Summary returns the best value per category/property
func (es *EvidenceSet) Summary() map[string]map[string]any {
	best := make(map[string]Evidence)
	for _, e := range es.items {
		key := string(e.Category) + "/" + e.Property
		if cur, ok := best[key]; !ok || e.Confidence > cur.Confidence {
			best[key] = e
		}
	}

	result := make(map[string]map[string]any)
	for _, e := range best {
		catKey := string(e.Category)
		if result[catKey] == nil {
			result[catKey] = make(map[string]any)
		}
		result[catKey][e.Property] = e.Value
	}
	return result
}
