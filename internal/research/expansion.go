package research

import (
	"regexp"
	"strings"
)

type topicExpansion struct {
	topic   string
	pattern *regexp.Regexp
	queries []string
}

var topicExpansions = []topicExpansion{
	{
		topic:   "anxiety",
		pattern: regexp.MustCompile(`(?i)\b(?:anxi\w*|worr\w*|panic\w*|nervous\w*|on edge|racing thoughts|mind (?:races|racing|won't stop))\b`),
		queries: []string{
			"cognitive behavioral therapy for generalized anxiety disorder",
			"worry and rumination interventions",
			"mindfulness-based interventions for anxiety",
		},
	},
	{
		topic:   "depression",
		pattern: regexp.MustCompile(`(?i)\b(?:depress\w*|sadness|hopeless\w*|low mood|feel(?:ing)? empty|unmotivated|anhedonia)\b`),
		queries: []string{
			"behavioral activation for depression",
			"cognitive therapy for major depressive disorder",
			"exercise as a treatment for depressive symptoms",
		},
	},
	{
		topic:   "sleep",
		pattern: regexp.MustCompile(`(?i)\b(?:sleep\w*|insomnia|awake at night|nightmares?|exhausted)\b`),
		queries: []string{
			"cognitive behavioral therapy for insomnia CBT-I",
			"sleep hygiene and stimulus control interventions",
			"pre-sleep worry and cognitive arousal in insomnia",
		},
	},
	{
		topic:   "trauma",
		pattern: regexp.MustCompile(`(?i)\b(?:trauma\w*|ptsd|flashbacks?|abuse[sd]?|assault\w*)\b`),
		queries: []string{
			"trauma-focused cognitive behavioral therapy for PTSD",
			"prolonged exposure and EMDR for posttraumatic stress",
		},
	},
	{
		topic:   "ocd",
		pattern: regexp.MustCompile(`(?i)\b(?:ocd|obsess\w*|compuls\w*|intrusive thoughts?)\b`),
		queries: []string{
			"exposure and response prevention for obsessive-compulsive disorder",
			"managing intrusive thoughts",
		},
	},
	{
		topic:   "eating",
		pattern: regexp.MustCompile(`(?i)\b(?:eating disorders?|anorexi\w*|bulimi\w*|binge\w*|purg\w*|body image)\b`),
		queries: []string{
			"cognitive behavioral therapy for eating disorders",
			"binge eating disorder interventions",
		},
	},
	{
		topic:   "stress",
		pattern: regexp.MustCompile(`(?i)\b(?:stress\w*|overwhelm\w*|burn(?:ed|t)? ?out|cop(?:e|ing)|under pressure)\b`),
		queries: []string{
			"stress management interventions",
			"coping skills training for psychological distress",
			"mindfulness-based stress reduction",
		},
	},
}

// ExpandQuery returns the message followed by clinically phrased queries for every
// topic it mentions, deduplicated case-insensitively in first-seen order.
func ExpandQuery(message string) []string {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil
	}
	queries := []string{message}
	seen := map[string]struct{}{strings.ToLower(message): {}}
	for _, expansion := range topicExpansions {
		if !expansion.pattern.MatchString(message) {
			continue
		}
		for _, q := range expansion.queries {
			key := strings.ToLower(q)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			queries = append(queries, q)
		}
	}
	return queries
}

// MatchedTopics lists the expansion topics a message mentions.
func MatchedTopics(message string) []string {
	var topics []string
	for _, expansion := range topicExpansions {
		if expansion.pattern.MatchString(message) {
			topics = append(topics, expansion.topic)
		}
	}
	return topics
}
