// Package feature derives the regression features from raw answer bodies.
package feature

import (
	"regexp"
	"strings"

	"github.com/empirical-se/expertise-cli/internal/config"
	"github.com/empirical-se/expertise-cli/internal/model"
)

var (
	reWord   = regexp.MustCompile(`\w+`)
	reTag    = regexp.MustCompile(`<[^>]*>`)
	reCode   = regexp.MustCompile(`(?s)<code>(.*?)</code>`)
	reImage  = regexp.MustCompile(`<img[\s>]`)
	reAnchor = regexp.MustCompile(`<a\s[^>]*href="([^"]*)"`)

	// Structural markers that turn a short answer into a summary:
	// HTML lists and headings, or markdown-style bullets at line start.
	reStructure = regexp.MustCompile(`(?im)<(ul|ol|li|h[1-6])[\s>]|^\s*[-*+]\s+\S`)
)

// Extract derives the feature vector for one answer. Pure and
// order-independent: each answer is processed with no cross-answer state.
func Extract(ans model.Answer, cfg config.FeatureConfig) model.AnswerFeatures {
	body := ans.Body

	words := countWords(body)

	return model.AnswerFeatures{
		AnswerID:  ans.ID,
		OwnerID:   ans.OwnerID,
		Length:    bucketLength(body, words, cfg),
		HasCode:   hasCodeBlock(body, cfg.MinCodeLines),
		HasImage:  reImage.MatchString(body),
		HasRef:    hasExternalRef(body),
		WordCount: words,
		Preferred: ans.Score > 0 || ans.Accepted,
	}
}

// ExtractAll groups feature vectors by the author's shape. Answers whose
// author has no entry in the shape map are skipped.
func ExtractAll(answers []model.Answer, shapes map[int]model.Shape, cfg config.FeatureConfig) map[model.Shape][]model.AnswerFeatures {
	byShape := make(map[model.Shape][]model.AnswerFeatures, len(model.Shapes))
	for _, ans := range answers {
		s, ok := shapes[ans.OwnerID]
		if !ok {
			continue
		}
		byShape[s] = append(byShape[s], Extract(ans, cfg))
	}
	return byShape
}

// countWords counts words in the markup-stripped body.
func countWords(body string) int {
	stripped := reTag.ReplaceAllString(body, " ")
	return len(reWord.FindAllStringIndex(stripped, -1))
}

// hasCodeBlock reports whether any <code> block spans at least minLines
// lines. Inline snippets on a single line do not count as code.
func hasCodeBlock(body string, minLines int) bool {
	for _, m := range reCode.FindAllStringSubmatch(body, -1) {
		if len(strings.Split(m[1], "\n")) >= minLines {
			return true
		}
	}
	return false
}

// hasExternalRef reports whether the body links out to a resource that is
// not Stack Overflow itself. Relative links and same-site links are not
// references.
func hasExternalRef(body string) bool {
	for _, m := range reAnchor.FindAllStringSubmatch(body, -1) {
		href := m[1]
		if href == "" || strings.HasPrefix(href, "#") {
			continue
		}
		if strings.HasPrefix(href, "/") && !strings.HasPrefix(href, "//") {
			continue
		}
		if isStackOverflowLink(href) {
			continue
		}
		return true
	}
	return false
}

func isStackOverflowLink(href string) bool {
	for _, prefix := range []string{"https://stackoverflow.com", "http://stackoverflow.com", "//stackoverflow.com"} {
		if strings.HasPrefix(href, prefix) {
			return true
		}
	}
	return false
}

// bucketLength assigns the categorical length feature. A body under the
// short threshold with structural elements reads as a summary rather than
// a merely short answer.
func bucketLength(body string, words int, cfg config.FeatureConfig) model.LengthBucket {
	switch {
	case words > cfg.LongMinWords:
		return model.LengthLong
	case words < cfg.ShortMaxWords:
		if reStructure.MatchString(body) {
			return model.LengthSummary
		}
		return model.LengthShort
	default:
		return model.LengthMedium
	}
}
