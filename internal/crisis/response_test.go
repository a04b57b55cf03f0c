package crisis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildResponse_ImminentIncludesEmergencyGuidance(t *testing.T) {
	got := BuildResponse(DetectKeywords("I've been thinking about ending it all tonight, I have the pills ready"))

	assert.Contains(t, got, "call 911")
	assert.Contains(t, got, "988")
	assert.Contains(t, got, "741741")
	assert.Contains(t, got, "few short questions")
}

func TestBuildResponse_LevelsDiffer(t *testing.T) {
	moderate := BuildResponse(Assessment{RiskLevel: RiskModerate}.normalized())
	high := BuildResponse(Assessment{RiskLevel: RiskHigh}.normalized())
	none := BuildResponse(Assessment{RiskLevel: RiskNone}.normalized())

	assert.NotEqual(t, moderate, high)
	assert.NotContains(t, moderate, "911")
	assert.Contains(t, high, "911")
	assert.NotContains(t, none, "few short questions")
	assert.Equal(t, high, BuildResponse(Assessment{RiskLevel: RiskHigh}.normalized()))
}

func TestBuildVerdictResponse(t *testing.T) {
	got := BuildVerdictResponse(RiskHigh, "  Please contact the 988 Lifeline today.  ")

	assert.Contains(t, got, "Please contact the 988 Lifeline today.\n\nSupport available now:")
	assert.Contains(t, got, "Text HOME to 741741")
}
