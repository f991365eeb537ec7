package summarizer

import (
	"context"
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"

	"docfinder/internal/domain"
	"docfinder/internal/textutil"
)

const (
	maxTextLength = 4000
	clipLength    = 2000
)

// ErrNoText is returned when there is nothing to summarize.
var ErrNoText = errors.New("no document text to summarize")

// Local is an offline summarize backend. It extracts keywords by term
// frequency and picks the highest scoring sentences, boosting terms that
// appear in the query.
type Local struct {
	maxSentences int
	maxKeywords  int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewLocal creates a frequency-based keyword and summary generator.
func NewLocal(maxSentences, maxKeywords int) *Local {
	if maxSentences <= 0 {
		maxSentences = 3
	}
	if maxKeywords <= 0 {
		maxKeywords = 5
	}
	return &Local{
		maxSentences: maxSentences,
		maxKeywords:  maxKeywords,
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`),
		stopwords:    defaultStopwords(),
	}
}

// Summarize returns keywords and a short summary for the request text.
func (s *Local) Summarize(ctx context.Context, req domain.SummaryRequest) (domain.Summary, error) {
	if err := ctx.Err(); err != nil {
		return domain.Summary{}, err
	}
	text := clip(strings.TrimSpace(req.Text))
	if text == "" {
		return domain.Summary{}, ErrNoText
	}
	query := toTokenSet(s.tokens(req.Query))
	freq := s.frequencies(text, query)
	return domain.Summary{
		Keywords: strings.Join(s.keywords(freq), ", "),
		Text:     s.summary(text, freq, query),
	}, nil
}

// clip keeps the head and tail of long texts.
func clip(text string) string {
	runes := []rune(text)
	if len(runes) <= maxTextLength {
		return text
	}
	return string(runes[:clipLength]) + "\n...\n" + string(runes[len(runes)-clipLength:])
}

// frequencies returns normalized term weights with query terms doubled.
func (s *Local) frequencies(text string, query map[string]struct{}) map[string]float64 {
	freq := map[string]float64{}
	for _, tok := range s.tokens(text) {
		if _, ok := s.stopwords[tok]; ok {
			continue
		}
		freq[tok]++
	}
	for tok := range freq {
		if _, ok := query[tok]; ok {
			freq[tok] *= 2
		}
	}
	maxF := 0.0
	for _, v := range freq {
		if v > maxF {
			maxF = v
		}
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}
	return freq
}

func (s *Local) keywords(freq map[string]float64) []string {
	terms := make([]string, 0, len(freq))
	for term := range freq {
		if len([]rune(term)) < 2 {
			continue
		}
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > s.maxKeywords {
		terms = terms[:s.maxKeywords]
	}
	return terms
}

func (s *Local) summary(text string, freq map[string]float64, query map[string]struct{}) string {
	var sentences []string
	for _, sent := range textutil.Sentences(text) {
		if strings.TrimSpace(sent) != "" {
			sentences = append(sentences, sent)
		}
	}
	if len(sentences) == 0 {
		return text
	}
	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(sentences))
	for i, sent := range sentences {
		toks := s.tokens(sent)
		sscore := 0.0
		for _, tok := range toks {
			sscore += freq[tok]
		}
		// Normalize by sentence length to avoid bias
		if l := float64(len(toks)); l > 0 {
			sscore /= math.Sqrt(l)
		}
		sscore += overlapOchiai(query, toks)
		scores[i] = pair{i, sscore}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	n := s.maxSentences
	if n > len(scores) {
		n = len(scores)
	}
	// Keep original order among selected
	selected := make([]int, n)
	for i := 0; i < n; i++ {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, 0, n)
	for _, idx := range selected {
		out = append(out, strings.TrimSpace(sentences[idx]))
	}
	return strings.Join(out, " ")
}

func (s *Local) tokens(text string) []string {
	return s.tokenPattern.FindAllString(strings.ToLower(text), -1)
}

func toTokenSet(tokens []string) map[string]struct{} {
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// overlapOchiai is |A∩B| / sqrt(|A||B|) over distinct tokens.
func overlapOchiai(qset map[string]struct{}, tokens []string) float64 {
	seen := toTokenSet(tokens)
	if len(qset) == 0 || len(seen) == 0 {
		return 0
	}
	inter := 0
	for t := range seen {
		if _, ok := qset[t]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(qset))*float64(len(seen)))
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"및", "등", "또는", "그리고", "하는", "있는", "있다", "한다", "위한", "대한", "통해", "이", "그", "저", "수", "것",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
