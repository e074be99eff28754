package compress

import (
	"sort"
	"strings"

	"github.com/liliang-cn/memex/pkg/tokenize"
)

const (
	maxBullets   = 5
	maxBulletLen = 80

	firstLastBonus  = 2.0
	digitBonus      = 1.0
	keywordWeight   = 2.0
	maxCodeExcerpts = 2
	maxListExcerpts = 1
	maxParaExcerpts = 3
	maxParaLen      = 300
)

// importantKeywords flag sentences and paragraphs worth keeping verbatim.
var importantKeywords = []string{
	"error", "bug", "fix", "important", "critical", "must", "never",
	"always", "warning", "security", "performance", "deprecated", "breaking",
}

// Summarize scores each sentence by domain-term density, position, digit
// presence and important-keyword mentions, then selects top sentences in
// document order until the character budget is reached.
func Summarize(content string, budget int) string {
	sentences := splitSentences(content)
	if len(sentences) == 0 {
		return truncate(strings.TrimSpace(content), budget)
	}

	domain := domainTerms(content)
	type scored struct {
		index int
		text  string
		score float64
	}
	ranked := make([]scored, len(sentences))
	for i, s := range sentences {
		ranked[i] = scored{index: i, text: s, score: scoreSentence(s, i, len(sentences), domain)}
	}

	// Stable selection: by descending score, ties toward earlier sentences.
	order := make([]int, len(ranked))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := ranked[order[i]], ranked[order[j]]
		if a.score != b.score {
			return a.score > b.score
		}
		return a.index < b.index
	})

	picked := make([]bool, len(sentences))
	used := 0
	for _, idx := range order {
		s := ranked[idx].text
		if used+len(s) > budget && used > 0 {
			continue
		}
		if len(s) > budget {
			continue
		}
		picked[idx] = true
		used += len(s) + 1
	}

	var out []string
	for i, ok := range picked {
		if ok {
			out = append(out, sentences[i])
		}
	}
	if len(out) == 0 {
		return truncate(sentences[0], budget)
	}
	return strings.Join(out, " ")
}

func scoreSentence(s string, index, total int, domain map[string]bool) float64 {
	score := 0.0
	for _, tok := range tokenize.Words(tokenize.Unigrams(s)) {
		if domain[tok] {
			score++
		}
	}
	if index == 0 || index == total-1 {
		score += firstLastBonus
	}
	if strings.ContainsAny(s, "0123456789") {
		score += digitBonus
	}
	lower := strings.ToLower(s)
	for _, kw := range importantKeywords {
		if strings.Contains(lower, kw) {
			score += keywordWeight
		}
	}
	return score
}

// domainTerms are the non-stopword tokens appearing at least twice in the
// document; they stand in for domain vocabulary without a language model.
func domainTerms(content string) map[string]bool {
	freq := make(map[string]int)
	for _, tok := range tokenize.Words(tokenize.Unigrams(content)) {
		freq[tok]++
	}
	out := make(map[string]bool)
	for tok, n := range freq {
		if n >= 2 {
			out[tok] = true
		}
	}
	return out
}

func splitSentences(text string) []string {
	var out []string
	var sb strings.Builder
	flush := func() {
		s := strings.TrimSpace(sb.String())
		if s != "" {
			out = append(out, s)
		}
		sb.Reset()
	}
	for _, r := range text {
		switch r {
		case '.', '!', '?', '\n':
			sb.WriteRune(r)
			flush()
		default:
			sb.WriteRune(r)
		}
	}
	flush()
	return out
}

// ExtractExcerpts keeps up to 2 fenced code blocks, 1 bullet list, then
// paragraphs containing important keywords.
func ExtractExcerpts(content string) []string {
	var excerpts []string

	codeBlocks := fencedBlocks(content)
	if len(codeBlocks) > maxCodeExcerpts {
		codeBlocks = codeBlocks[:maxCodeExcerpts]
	}
	excerpts = append(excerpts, codeBlocks...)

	lists := bulletLists(content)
	if len(lists) > maxListExcerpts {
		lists = lists[:maxListExcerpts]
	}
	excerpts = append(excerpts, lists...)

	paras := 0
	for _, para := range strings.Split(content, "\n\n") {
		if paras == maxParaExcerpts {
			break
		}
		para = strings.TrimSpace(para)
		if para == "" || strings.HasPrefix(para, "```") || strings.HasPrefix(para, "- ") {
			continue
		}
		lower := strings.ToLower(para)
		for _, kw := range importantKeywords {
			if strings.Contains(lower, kw) {
				excerpts = append(excerpts, truncate(para, maxParaLen))
				paras++
				break
			}
		}
	}
	return excerpts
}

func fencedBlocks(content string) []string {
	var blocks []string
	lines := strings.Split(content, "\n")
	var block []string
	inside := false
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			if inside {
				block = append(block, line)
				blocks = append(blocks, strings.Join(block, "\n"))
				block = nil
				inside = false
			} else {
				inside = true
				block = []string{line}
			}
			continue
		}
		if inside {
			block = append(block, line)
		}
	}
	return blocks
}

func bulletLists(content string) []string {
	var lists []string
	var current []string
	flush := func() {
		if len(current) >= 2 {
			lists = append(lists, strings.Join(current, "\n"))
		}
		current = nil
	}
	for _, line := range strings.Split(content, "\n") {
		t := strings.TrimSpace(line)
		if strings.HasPrefix(t, "- ") || strings.HasPrefix(t, "* ") {
			current = append(current, t)
		} else {
			flush()
		}
	}
	flush()
	return lists
}

// compressedContent is what replaces a Tier-2 memory's content field:
// the summary followed by the retained excerpts.
func compressedContent(summary string, excerpts []string) string {
	parts := append([]string{summary}, excerpts...)
	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}

// Bullets reduces a summary to at most maxBullets lines of maxLen chars
// each.
func Bullets(summary string, maxBullets, maxLen int) string {
	sentences := splitSentences(summary)
	if len(sentences) > maxBullets {
		sentences = sentences[:maxBullets]
	}
	var out []string
	for _, s := range sentences {
		s = strings.TrimPrefix(strings.TrimPrefix(s, "- "), "* ")
		out = append(out, "- "+truncate(s, maxLen-2))
	}
	return strings.Join(out, "\n")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
