// Package shadow compares two audit outputs of the same feed as sets, either
// two sessions produced in-process or two exported discrepancy reports.
package shadow

// Fingerprint identifies one discrepancy independently of record order and ids.
type Fingerprint struct {
	Key          string `json:"key"`
	Kind         string `json:"kind"`
	CSVValue     string `json:"csv_value"`
	ShopifyValue string `json:"shopify_value"`
}

func (f Fingerprint) String() string {
	return f.Key + "/" + f.Kind + " csv=" + f.CSVValue + " shopify=" + f.ShopifyValue
}

// ComparisonResult is the top-level output of a shadow comparison.
type ComparisonResult struct {
	Sections []SectionComparison `json:"sections"`
	AllMatch bool                `json:"all_match"`
	Summary  string              `json:"summary"`
}

// SectionComparison records the set difference for one output section.
type SectionComparison struct {
	Section   string   `json:"section"`
	Left      int      `json:"left"`
	Right     int      `json:"right"`
	Match     bool     `json:"match"`
	LeftOnly  []string `json:"left_only,omitempty"`
	RightOnly []string `json:"right_only,omitempty"`
}
