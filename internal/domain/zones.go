package domain

import "time"

// Zone documents come in two shapes stored in the same collection: zone
// definitions carrying a name plus allowed risk levels, and a single
// document of Type "riskLevels" listing the known risk levels in ascending
// severity.
type Zone struct {
	ID                string    `json:"id,omitempty"`
	Zone              string    `json:"zone,omitempty"`
	AllowedRiskLevels []string  `json:"allowedRiskLevels,omitempty"`
	Type              string    `json:"type,omitempty"`
	LastUpdated       time.Time `json:"lastUpdated"`
	Levels            []string  `json:"levels,omitempty"`
}

// ZoneTypeRiskLevels marks the document holding the ordered risk level list.
const ZoneTypeRiskLevels = "riskLevels"

// RiskIndex returns the position of a risk level within the ordered list,
// or -1 when the level is unknown. Higher index means higher risk.
func RiskIndex(levels []string, level string) int {
	for i, l := range levels {
		if l == level {
			return i
		}
	}
	return -1
}
