package research

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	weightSimilarity  = 0.40
	weightKeyword     = 0.20
	weightCitations   = 0.20
	weightRecency     = 0.10
	weightArticleType = 0.10

	citationCeiling = 5000
)

var (
	citationPattern = regexp.MustCompile(`(?i)CITATION COUNT:\s*(\d+)`)
	wordPattern     = regexp.MustCompile(`[a-z0-9']+`)
	rctPattern      = regexp.MustCompile(`\b(?:randomi[sz]ed controlled trial|rct)s?\b`)
)

// ArticleType is the study design inferred from a paper's content.
type ArticleType string

const (
	ArticleMetaAnalysis     ArticleType = "meta-analysis"
	ArticleSystematicReview ArticleType = "systematic review"
	ArticleRCT              ArticleType = "randomized controlled trial"
	ArticleReview           ArticleType = "review"
	ArticleOther            ArticleType = "study"
)

var articleTypeScores = map[ArticleType]float64{
	ArticleMetaAnalysis:     1.0,
	ArticleSystematicReview: 0.9,
	ArticleRCT:              0.8,
	ArticleReview:           0.6,
	ArticleOther:            0.5,
}

// ClassifyArticle picks the strongest design mentioned in content.
func ClassifyArticle(content string) ArticleType {
	text := strings.ToLower(content)
	switch {
	case strings.Contains(text, "meta-analysis") || strings.Contains(text, "meta analysis"):
		return ArticleMetaAnalysis
	case strings.Contains(text, "systematic review"):
		return ArticleSystematicReview
	case rctPattern.MatchString(text):
		return ArticleRCT
	case strings.Contains(text, "review"):
		return ArticleReview
	default:
		return ArticleOther
	}
}

// CitationCount reads the "CITATION COUNT: N" marker, 0 when absent.
func CitationCount(content string) int {
	m := citationPattern.FindStringSubmatch(content)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

func citationScore(citations int) float64 {
	if citations <= 0 {
		return 0
	}
	return math.Min(math.Log(float64(citations)+1)/math.Log(citationCeiling), 1)
}

func recencyScore(year int) float64 {
	switch {
	case year >= 2020:
		return 1.0
	case year >= 2015:
		return 0.7
	case year >= 2010:
		return 0.4
	default:
		return 0.2
	}
}

// queryTerms returns the distinct lowercased words longer than three characters.
func queryTerms(query string) []string {
	var terms []string
	seen := make(map[string]struct{})
	for _, word := range wordPattern.FindAllString(strings.ToLower(query), -1) {
		word = strings.Trim(word, "'")
		if len(word) <= 3 {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		terms = append(terms, word)
	}
	return terms
}

// KeywordScore is the fraction of query terms found literally in the paper.
func KeywordScore(query string, p Paper) float64 {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return 0
	}
	haystack := strings.ToLower(p.Title + " " + p.Content + " " + p.Summary)
	hits := 0
	for _, term := range terms {
		if strings.Contains(haystack, term) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}

// Score fills the keyword, citation and quality fields of sp for query.
func Score(query string, sp ScoredPaper) ScoredPaper {
	sp.KeywordScore = KeywordScore(query, sp.Paper)
	sp.CitationCount = CitationCount(sp.Content)
	sp.QualityScore = weightSimilarity*sp.Similarity +
		weightKeyword*sp.KeywordScore +
		weightCitations*citationScore(sp.CitationCount) +
		weightRecency*recencyScore(sp.Year) +
		weightArticleType*articleTypeScores[ClassifyArticle(sp.Content)]
	return sp
}

// Rank scores every candidate and orders them by quality, highest first, with
// ties broken by paper id so the order never depends on input order.
func Rank(query string, candidates []ScoredPaper) []ScoredPaper {
	ranked := make([]ScoredPaper, len(candidates))
	for i, c := range candidates {
		ranked[i] = Score(query, c)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].QualityScore != ranked[j].QualityScore {
			return ranked[i].QualityScore > ranked[j].QualityScore
		}
		return ranked[i].ID < ranked[j].ID
	})
	return ranked
}
