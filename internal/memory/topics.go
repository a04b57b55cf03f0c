package memory

import (
	"regexp"
	"strings"
)

const defaultTopic = "general"

type topicRule struct {
	topic   string
	pattern *regexp.Regexp
}

var topicRules = []topicRule{
	{"anxiety", regexp.MustCompile(`(?i)\b(?:anxi\w*|worr\w*|panic\w*|nervous\w*|fear\w*)\b`)},
	{"depression", regexp.MustCompile(`(?i)\b(?:depress\w*|sad\w*|hopeless\w*|empty|down|low mood)\b`)},
	{"stress", regexp.MustCompile(`(?i)\b(?:stress\w*|overwhelm\w*|pressure|burn(?:ed|t)? ?out|tense)\b`)},
	{"sleep", regexp.MustCompile(`(?i)\b(?:sleep\w*|insomnia|tired|exhausted|nightmares?|awake)\b`)},
	{"relationships", regexp.MustCompile(`(?i)\b(?:partner|boyfriend|girlfriend|husband|wife|friends?|family|parents?|mom|dad|relationships?|breakup|lonely|loneliness)\b`)},
	{"work", regexp.MustCompile(`(?i)\b(?:work\w*|job|boss|career|coworkers?|colleagues?|office|deadlines?|school|exams?)\b`)},
	{"coping", regexp.MustCompile(`(?i)\b(?:cop(?:e|ing)|strateg\w*|journal\w*|exercise|breathing|self-care|routine)\b`)},
	{"mindfulness", regexp.MustCompile(`(?i)\b(?:mindful\w*|meditat\w*|grounding|present moment|body scan)\b`)},
}

// TagTopics returns the categories mentioned across the messages in a fixed
// category order, or ["general"] when none match.
func TagTopics(messages []Message) []string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	text := b.String()

	var topics []string
	for _, rule := range topicRules {
		if rule.pattern.MatchString(text) {
			topics = append(topics, rule.topic)
		}
	}
	if len(topics) == 0 {
		return []string{defaultTopic}
	}
	return topics
}
