package crisis

import (
	"fmt"
	"strings"
)

// Resource is a crisis support service surfaced to the user.
type Resource struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
	Detail  string `json:"detail"`
}

var (
	resourceEmergency = Resource{Name: "Emergency services", Contact: "Call 911", Detail: "If you are in immediate danger or have already harmed yourself."}
	resourceLifeline  = Resource{Name: "988 Suicide & Crisis Lifeline", Contact: "Call or text 988", Detail: "Free, confidential, 24/7 support in the US."}
	resourceTextLine  = Resource{Name: "Crisis Text Line", Contact: "Text HOME to 741741", Detail: "Text with a trained crisis counselor, 24/7."}
	resourceERVisit   = Resource{Name: "Nearest emergency room", Contact: "Go now or ask someone to take you", Detail: "Emergency departments can keep you safe right now."}
)

// ResourcesFor lists the resources appropriate to a risk level, most urgent first.
func ResourcesFor(level RiskLevel) []Resource {
	switch level {
	case RiskImminent:
		return []Resource{resourceEmergency, resourceLifeline, resourceERVisit, resourceTextLine}
	case RiskHigh:
		return []Resource{resourceLifeline, resourceTextLine, resourceEmergency}
	case RiskModerate:
		return []Resource{resourceLifeline, resourceTextLine}
	default:
		return []Resource{resourceLifeline}
	}
}

// BuildResponse renders the safety message shown in place of a generated reply.
// It is a pure function of the assessment.
func BuildResponse(a Assessment) string {
	var b strings.Builder
	switch a.RiskLevel {
	case RiskImminent:
		b.WriteString("I'm really concerned about your safety right now, and I'm glad you told me. ")
		b.WriteString("Please call 911 or go to your nearest emergency room now. If you can, move away from anything you could use to hurt yourself and ask someone to stay with you.")
	case RiskHigh:
		b.WriteString("Thank you for trusting me with something this painful. What you're describing sounds serious, and you deserve support right now. ")
		b.WriteString("Please reach out to the 988 Suicide & Crisis Lifeline today; do not wait for things to get worse.")
	case RiskModerate:
		b.WriteString("It sounds like you're carrying a lot right now, and I'm glad you said something. ")
		b.WriteString("You don't have to go through this alone; talking with a crisis counselor can help.")
	default:
		b.WriteString("I'm here to listen. If things ever start to feel unmanageable, support is available any time.")
	}
	writeResources(&b, ResourcesFor(a.RiskLevel))
	if RequiresScreening(a.RiskLevel) {
		b.WriteString("\n\nI'd like to ask you a few short questions so I can understand how you're doing and make sure you get the right support.")
	}
	return b.String()
}

// BuildVerdictResponse renders the reply shown when a screening completes, in
// place of a model-generated message.
func BuildVerdictResponse(level RiskLevel, recommendation string) string {
	var b strings.Builder
	b.WriteString("Thank you for answering those questions honestly. ")
	b.WriteString(strings.TrimSpace(recommendation))
	writeResources(&b, ResourcesFor(level))
	return b.String()
}

func writeResources(b *strings.Builder, resources []Resource) {
	if len(resources) == 0 {
		return
	}
	b.WriteString("\n\nSupport available now:")
	for _, r := range resources {
		fmt.Fprintf(b, "\n- %s: %s. %s", r.Name, r.Contact, r.Detail)
	}
}
