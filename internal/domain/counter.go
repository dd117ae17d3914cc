package domain

// Counter is a named, sequence-backed counter with its catalog metadata
// and current value.
type Counter struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Value       int64  `json:"value"`
}
