// Package crisis classifies inbound messages for suicide/self-harm risk and
// renders the safety responses shown when risk is found.
package crisis

import (
	"fmt"
	"strings"
)

// RiskLevel is an ordered severity: none < low < moderate < high < imminent.
type RiskLevel string

const (
	RiskNone     RiskLevel = "none"
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
	RiskImminent RiskLevel = "imminent"
)

var severity = map[RiskLevel]int{
	RiskNone:     0,
	RiskLow:      1,
	RiskModerate: 2,
	RiskHigh:     3,
	RiskImminent: 4,
}

// ParseRiskLevel accepts the five canonical levels, case-insensitively.
func ParseRiskLevel(raw string) (RiskLevel, error) {
	level := RiskLevel(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := severity[level]; !ok {
		return "", fmt.Errorf("crisis: unknown risk level %q", raw)
	}
	return level, nil
}

// Severity returns the rank of the level, or -1 when the level is unknown.
func (r RiskLevel) Severity() int {
	if s, ok := severity[r]; ok {
		return s
	}
	return -1
}

// AtLeast reports whether r is as severe as other.
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	return r.Severity() >= other.Severity() && r.Severity() >= 0
}

// Valid reports whether r is one of the canonical levels.
func (r RiskLevel) Valid() bool {
	return r.Severity() >= 0
}

// RequiresScreening is the single source of truth for the screening gate.
func RequiresScreening(level RiskLevel) bool {
	return level.AtLeast(RiskModerate)
}

// Source records which detector produced an assessment.
type Source string

const (
	SourceModel   Source = "model"
	SourceKeyword Source = "keyword"
	SourceDefault Source = "safe_default"
)

// Assessment is the per-message risk classification. It is never persisted on its own.
type Assessment struct {
	RiskLevel          RiskLevel `json:"riskLevel"`
	RequiresScreening  bool      `json:"requiresScreening"`
	Reasoning          string    `json:"reasoning"`
	DetectedIndicators []string  `json:"detectedIndicators"`
	Source             Source    `json:"-"`
}

// normalized enforces RequiresScreening == RiskLevel >= moderate.
func (a Assessment) normalized() Assessment {
	a.RequiresScreening = RequiresScreening(a.RiskLevel)
	if a.DetectedIndicators == nil {
		a.DetectedIndicators = []string{}
	}
	return a
}

// SafeDefault is used when no classification could be produced at all; it
// assumes screening is required rather than assuming no risk.
func SafeDefault() Assessment {
	return Assessment{
		RiskLevel:          RiskModerate,
		RequiresScreening:  true,
		Reasoning:          "risk could not be classified; defaulting to screening",
		DetectedIndicators: []string{},
		Source:             SourceDefault,
	}
}
