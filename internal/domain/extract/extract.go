// Package extract pulls named entities and topic tags out of free text.
//
// Extraction is heuristic and best-effort. Callers go through Safe, which
// turns a misbehaving extractor into an empty Result instead of a failure.
package extract

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/okian/civicwatch/internal/domain/model"
)

// Result is what an Extractor found in a piece of text.
type Result struct {
	Entities []model.Entity
	Tags     []string
}

// Extractor is the pluggable extraction strategy used by source adapters.
type Extractor interface {
	Extract(text string) Result
}

// Func adapts a plain function to the Extractor interface.
type Func func(text string) Result

// Extract implements Extractor.
func (f Func) Extract(text string) Result { return f(text) }

// Safe runs x over text and degrades to an empty Result on panic or nil x.
// The returned error is informational; the Result is always usable.
func Safe(x Extractor, text string) (res Result, err error) {
	if x == nil {
		return Result{}, nil
	}
	defer func() {
		if r := recover(); r != nil {
			res = Result{}
			err = fmt.Errorf("%w: %v", ErrExtract, r)
		}
	}()
	return x.Extract(text), nil
}

// DefaultVocabulary maps universal tags to the keywords that imply them.
var DefaultVocabulary = map[string][]string{
	"rezoning":    {"rezoning", "rezone", "zoning change", "zoning amendment"},
	"planning":    {"planning"},
	"hearing":     {"public hearing"},
	"budget":      {"budget", "appropriation", "levy"},
	"housing":     {"housing", "affordable units", "dwelling"},
	"demolition":  {"demolition", "demolish"},
	"variance":    {"variance"},
	"subdivision": {"subdivision", "plat"},
	"contract":    {"contract award", "procurement", "bid"},
}

var (
	caseNumberRe = regexp.MustCompile(`\b[A-Z]{1,5}-\d{2,4}-\d{1,6}\b`)
	addressRe    = regexp.MustCompile(`\b\d{1,6}\s+(?:[A-Z][a-zA-Z]*\s+){1,3}(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Drive|Dr|Lane|Ln|Way|Court|Ct|Place|Pl|Parkway|Pkwy)\b\.?`)
	orgRe        = regexp.MustCompile(`\b(?:(?:[A-Z][a-z]+|of|and)\s+){0,4}(?:Commission|Council|Board|Department|Committee|Authority|District|Agency|Corporation|Corp|LLC|Inc)\b\.?`)
	personRe     = regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Dr|Mayor|Councilmember|Councilman|Councilwoman|Commissioner|Supervisor|Alderman|Applicant:?)\.?\s+([A-Z][a-z]+(?:\s+[A-Z]\.)?(?:\s+[A-Z][a-z]+)?)`)
)

// Heuristic is the regex and keyword based extractor shared by all adapters.
type Heuristic struct {
	vocab map[string][]string
}

// NewHeuristic returns a Heuristic using DefaultVocabulary unless overridden.
func NewHeuristic(opts ...Option) *Heuristic {
	h := &Heuristic{vocab: DefaultVocabulary}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Extract implements Extractor.
func (h *Heuristic) Extract(text string) Result {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}
	}
	var res Result
	seen := make(map[model.Entity]struct{})
	add := func(name string, kind model.EntityKind) {
		name = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(name), "."))
		if name == "" {
			return
		}
		ent := model.Entity{Name: name, Kind: kind}
		if _, ok := seen[ent]; ok {
			return
		}
		seen[ent] = struct{}{}
		res.Entities = append(res.Entities, ent)
	}

	for _, m := range caseNumberRe.FindAllString(text, -1) {
		add(m, model.EntityCaseNumber)
	}
	for _, m := range addressRe.FindAllString(text, -1) {
		add(m, model.EntityAddress)
	}
	for _, m := range orgRe.FindAllString(text, -1) {
		add(trimLeadingFiller(m), model.EntityOrganization)
	}
	for _, m := range personRe.FindAllStringSubmatch(text, -1) {
		add(m[1], model.EntityPerson)
	}

	res.Tags = MatchKeywords(text, h.vocab)
	return res
}

// MatchKeywords returns every tag in vocab with at least one keyword
// occurring in text as a whole word, compared case-insensitively. Plural and
// past-tense endings still match; a keyword inside another word does not.
func MatchKeywords(text string, vocab map[string][]string) []string {
	if len(vocab) == 0 || text == "" {
		return nil
	}
	lc := strings.ToLower(text)
	var tags []string
	for tag, words := range vocab {
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" && keywordPattern(w).MatchString(lc) {
				tags = append(tags, tag)
				break
			}
		}
	}
	return model.NormalizeTags(tags)
}

// compiled keyword patterns, keyed by lowercased keyword
var keywordPatterns sync.Map

func keywordPattern(w string) *regexp.Regexp {
	if re, ok := keywordPatterns.Load(w); ok {
		return re.(*regexp.Regexp)
	}
	fields := strings.Fields(w)
	for i, f := range fields {
		fields[i] = regexp.QuoteMeta(f)
	}
	expr := strings.Join(fields, `\s+`)
	if isWordByte(w[0]) {
		expr = `\b` + expr
	}
	if isWordByte(w[len(w)-1]) {
		expr += `(?:s|es|d|ed|ing)?\b`
	}
	re, _ := keywordPatterns.LoadOrStore(w, regexp.MustCompile(expr))
	return re.(*regexp.Regexp)
}

func isWordByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

// the org pattern may swallow a lowercase connector at the start
func trimLeadingFiller(s string) string {
	for _, p := range []string{"of ", "and "} {
		s = strings.TrimPrefix(s, p)
	}
	return s
}
