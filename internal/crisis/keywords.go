package crisis

import (
	"regexp"
	"strings"
)

type keywordTier struct {
	level    RiskLevel
	reason   string
	patterns []*regexp.Regexp
}

// Tiers are ordered most severe first; the first tier with any match wins.
var keywordTiers = []keywordTier{
	{
		level:  RiskImminent,
		reason: "keyword fallback: stated intent with a timeframe, means at hand or finality language",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(?:end|ending|kill|killing)\s+(?:it all|my life|my own life|myself)\b[^.!?]{0,40}\b(?:tonight|today|right now|this weekend|tomorrow)\b`),
			regexp.MustCompile(`(?i)\b(?:take|taking)\s+(?:my life|my own life)\b[^.!?]{0,40}\b(?:tonight|today|right now|this weekend|tomorrow)\b`),
			regexp.MustCompile(`(?i)\b(?:tonight|today|right now)\b[^.!?]{0,40}\b(?:end|ending|kill|killing)\s+(?:it all|my life|myself)\b`),
			regexp.MustCompile(`(?i)\b(?:have|got)\s+(?:the|my)\s+(?:pills|gun|rope|razor|blade)s?\s+ready\b`),
			regexp.MustCompile(`(?i)\b(?:pills|gun|rope)\s+(?:are|is)\s+(?:ready|loaded)\b`),
			regexp.MustCompile(`(?i)\bgoing to (?:kill myself|end my life|end it all)\b`),
			regexp.MustCompile(`(?i)\b(?:wrote|written|writing)\s+(?:my|a)\s+(?:suicide|goodbye)\s+note\b`),
			regexp.MustCompile(`(?i)\bwon't be (?:here|alive|around) (?:tomorrow|much longer|anymore)\b`),
			regexp.MustCompile(`(?i)\b(?:this is|saying) my (?:final |last )?goodbye\b`),
			regexp.MustCompile(`(?i)\bgoodbye forever\b`),
		},
	},
	{
		level:  RiskHigh,
		reason: "keyword fallback: explicit suicide or method vocabulary, or a stated plan",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bkill(?:ing)? myself\b`),
			regexp.MustCompile(`(?i)\bsuicid(?:e|al)\b`),
			regexp.MustCompile(`(?i)\b(?:end|ending|take|taking) my (?:own )?life\b`),
			regexp.MustCompile(`(?i)\b(?:end|ending) it all\b`),
			regexp.MustCompile(`(?i)\boverdos(?:e|ing)\b`),
			regexp.MustCompile(`(?i)\bhang(?:ing)? myself\b`),
			regexp.MustCompile(`(?i)\bslit(?:ting)? my wrists?\b`),
			regexp.MustCompile(`(?i)\bjump(?:ing)? off (?:a|the) (?:bridge|building|roof)\b`),
			regexp.MustCompile(`(?i)\b(?:have|made|making) a plan to (?:die|end it|kill myself)\b`),
			regexp.MustCompile(`(?i)\bstockpil(?:e|ing) (?:pills|medication|meds)\b`),
		},
	},
	{
		level:  RiskModerate,
		reason: "keyword fallback: passive ideation or hopelessness framing",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bwant(?:ed)? to die\b`),
			regexp.MustCompile(`(?i)\bwish (?:i was|i were|i could be) dead\b`),
			regexp.MustCompile(`(?i)\bbetter off (?:dead|without me)\b`),
			regexp.MustCompile(`(?i)\bno (?:reason|point) (?:to|in) (?:live|living|go on|going on)\b`),
			regexp.MustCompile(`(?i)\bnothing to live for\b`),
			regexp.MustCompile(`(?i)\b(?:can't|cannot) go on\b`),
			regexp.MustCompile(`(?i)\bdon't want to (?:be here|exist|wake up)(?: anymore)?\b`),
			regexp.MustCompile(`(?i)\bwhat's the point of (?:living|anything|life)\b`),
			regexp.MustCompile(`(?i)\bburden (?:to|on) everyone\b`),
			regexp.MustCompile(`(?i)\bhopeless\b`),
		},
	},
}

var apostrophes = strings.NewReplacer("’", "'", "‘", "'", "`", "'")

// DetectKeywords is the deterministic fallback detector. It makes no external
// calls and holds no state, so identical input always yields an identical result.
func DetectKeywords(message string) Assessment {
	text := apostrophes.Replace(strings.TrimSpace(message))
	if text == "" {
		return noRisk("empty message")
	}

	for _, tier := range keywordTiers {
		indicators := matchTier(tier, text)
		if len(indicators) == 0 {
			continue
		}
		return Assessment{
			RiskLevel:          tier.level,
			Reasoning:          tier.reason,
			DetectedIndicators: indicators,
			Source:             SourceKeyword,
		}.normalized()
	}
	return noRisk("keyword fallback: no crisis indicators matched")
}

func matchTier(tier keywordTier, text string) []string {
	var indicators []string
	seen := make(map[string]struct{})
	for _, pattern := range tier.patterns {
		for _, match := range pattern.FindAllString(text, -1) {
			phrase := strings.ToLower(strings.TrimSpace(match))
			if _, dup := seen[phrase]; dup {
				continue
			}
			seen[phrase] = struct{}{}
			indicators = append(indicators, phrase)
		}
	}
	return indicators
}

func noRisk(reason string) Assessment {
	return Assessment{
		RiskLevel: RiskNone,
		Reasoning: reason,
		Source:    SourceKeyword,
	}.normalized()
}
