package research

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	contextInstruction = "The following peer-reviewed research may help ground your reply. When you draw on a paper, cite it inline in (Author, Year) style. Do not invent findings that are not stated below."
	blockSeparator     = "\n\n---\n\n"
	excerptLimit       = 400
)

// Citation renders "Authors (Year)".
func Citation(p Paper) string {
	authors := strings.TrimSpace(p.Authors)
	if authors == "" {
		authors = "Unknown authors"
	}
	year := "n.d."
	if p.Year > 0 {
		year = strconv.Itoa(p.Year)
	}
	return fmt.Sprintf("%s (%s)", authors, year)
}

// FormatContext renders ranked papers as labelled blocks behind the citation
// instruction. An empty input yields "".
func FormatContext(papers []ScoredPaper) string {
	if len(papers) == 0 {
		return ""
	}
	blocks := make([]string, 0, len(papers))
	for i, p := range papers {
		blocks = append(blocks, formatPaper(i+1, p))
	}
	return contextInstruction + "\n\n" + strings.Join(blocks, blockSeparator)
}

func formatPaper(n int, p ScoredPaper) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[Research %d] %s\n", n, strings.TrimSpace(p.Title))
	fmt.Fprintf(&b, "Citation: %s\n", Citation(p.Paper))
	fmt.Fprintf(&b, "Evidence quality: %s", ClassifyArticle(p.Content))
	if p.CitationCount > 0 {
		fmt.Fprintf(&b, ", cited %d times", p.CitationCount)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Relevance: %d%%\n", int(math.Round(p.Similarity*100)))
	if summary := strings.TrimSpace(p.Summary); summary != "" {
		fmt.Fprintf(&b, "Summary: %s", summary)
	} else {
		fmt.Fprintf(&b, "Excerpt: %s", excerpt(p.Content))
	}
	if url := strings.TrimSpace(p.SourceURL); url != "" {
		fmt.Fprintf(&b, "\nSource: %s", url)
	}
	return b.String()
}

func excerpt(content string) string {
	text := strings.TrimSpace(citationPattern.ReplaceAllString(content, ""))
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= excerptLimit {
		return text
	}
	return strings.TrimSpace(string(runes[:excerptLimit])) + "..."
}
