package gnomebot

import (
	"cmp"
	"context"
	"github.com/lmittmann/tint"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

// ClassifierStep names the stage of the classifier that produced a result
type ClassifierStep string

const (
	StepNegativePhrase ClassifierStep = "negative_phrase"
	StepWholeText      ClassifierStep = "whole_text"
	StepWindow         ClassifierStep = "window"
	StepWord           ClassifierStep = "word"
	StepStaticPhrase   ClassifierStep = "static_phrase"
	StepStaticWord     ClassifierStep = "static_word"
	StepNone           ClassifierStep = "none"
)

// minWordLength is the shortest word reported as a non-animal word, and
// the shortest word looked up on its own.
const minWordLength = 3

// minWindowWordLength is the shortest word allowed in a multi-word window
const minWindowWordLength = 2

var negativePhrases = []string{
	"not an animal",
	"isn't an animal",
	"is not an animal",
	"no animal",
}

// ClassificationResult is the classifier's verdict on one message
type ClassificationResult struct {
	IsAnimal bool `json:"is_animal"`

	// AnimalName is the lowercase text that was recognized as an animal.
	// Empty when IsAnimal is false.
	AnimalName string `json:"animal_name,omitempty"`

	// NonAnimalWords holds the remaining words of at least three characters
	NonAnimalWords []string `json:"non_animal_words"`

	Step ClassifierStep `json:"step"`
}

// AnimalLookup checks an external source for whether a term names an animal
type AnimalLookup interface {
	IsAnimal(ctx context.Context, term string) (bool, error)
}

type keywordPattern struct {
	keyword string
	re      *regexp.Regexp
}

// Classifier decides whether free text names an animal. Checks run in a
// fixed order and the first hit wins: negative phrases, the whole text,
// two- then three-word windows, single words, then the built-in keyword
// list (phrases longest first, then single words as whole words).
type Classifier struct {
	lookup      AnimalLookup
	keywordSet  map[string]struct{}
	phrases     []string
	singleWords []keywordPattern
	logger      *slog.Logger
	metrics     *Metrics
}

// NewClassifier returns a Classifier backed by the given lookup, which
// may be nil to rely on the built-in keyword list alone.
func NewClassifier(lookup AnimalLookup, logger *slog.Logger, metrics *Metrics) *Classifier {
	return newClassifierWithKeywords(lookup, animalKeywords, logger, metrics)
}

func newClassifierWithKeywords(
	lookup AnimalLookup,
	keywords []string,
	logger *slog.Logger,
	metrics *Metrics,
) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Classifier{
		lookup:     lookup,
		keywordSet: make(map[string]struct{}, len(keywords)),
		logger:     logger,
		metrics:    metrics,
	}
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		c.keywordSet[kw] = struct{}{}
		if strings.Contains(kw, " ") {
			c.phrases = append(c.phrases, kw)
			continue
		}
		c.singleWords = append(
			c.singleWords,
			keywordPattern{
				keyword: kw,
				re:      regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`),
			},
		)
	}
	slices.SortStableFunc(
		c.phrases, func(a, b string) int {
			return cmp.Compare(utf8.RuneCountInString(b), utf8.RuneCountInString(a))
		},
	)
	return c
}

// Classify runs the classifier over the given message content.
func (c *Classifier) Classify(ctx context.Context, content string) ClassificationResult {
	result := c.classify(ctx, content)
	if result.NonAnimalWords == nil {
		result.NonAnimalWords = []string{}
	}
	c.metrics.classifierVerdict(result)
	contextLoggerOr(ctx, c.logger).DebugContext(
		ctx,
		"classified message",
		"is_animal", result.IsAnimal,
		"animal_name", result.AnimalName,
		"step", result.Step,
	)
	return result
}

func (c *Classifier) classify(ctx context.Context, content string) ClassificationResult {
	lowerContent := strings.ToLower(content)
	words := strings.Fields(lowerContent)

	for _, phrase := range negativePhrases {
		if strings.Contains(lowerContent, phrase) {
			return ClassificationResult{
				NonAnimalWords: longWords(words),
				Step:           StepNegativePhrase,
			}
		}
	}

	if utf8.RuneCountInString(content) >= minWordLength && c.searchAnimal(ctx, lowerContent) {
		return ClassificationResult{
			IsAnimal:       true,
			AnimalName:     lowerContent,
			NonAnimalWords: []string{},
			Step:           StepWholeText,
		}
	}

	for _, window := range wordWindows(words) {
		if !c.searchAnimal(ctx, strings.Join(window, " ")) {
			continue
		}
		return ClassificationResult{
			IsAnimal:       true,
			AnimalName:     strings.Join(window, " "),
			NonAnimalWords: longWords(without(words, window...)),
			Step:           StepWindow,
		}
	}

	for _, word := range words {
		if utf8.RuneCountInString(word) < minWordLength {
			continue
		}
		if c.searchAnimal(ctx, word) {
			return ClassificationResult{
				IsAnimal:       true,
				AnimalName:     word,
				NonAnimalWords: longWords(without(words, word)),
				Step:           StepWord,
			}
		}
	}

	for _, phrase := range c.phrases {
		phraseWords := strings.Split(phrase, " ")
		if strings.Contains(lowerContent, phrase) || containsAll(lowerContent, phraseWords) {
			return ClassificationResult{
				IsAnimal:       true,
				AnimalName:     phrase,
				NonAnimalWords: longWords(without(words, phraseWords...)),
				Step:           StepStaticPhrase,
			}
		}
	}

	for _, p := range c.singleWords {
		if p.re.MatchString(lowerContent) {
			return ClassificationResult{
				IsAnimal:       true,
				AnimalName:     p.keyword,
				NonAnimalWords: longWords(without(words, p.keyword)),
				Step:           StepStaticWord,
			}
		}
	}

	return ClassificationResult{
		NonAnimalWords: longWords(words),
		Step:           StepNone,
	}
}

// searchAnimal reports whether term is a known keyword, or failing that,
// whether the external lookup recognizes it. Lookup errors count as a miss.
func (c *Classifier) searchAnimal(ctx context.Context, term string) bool {
	term = strings.ToLower(term)
	if _, ok := c.keywordSet[term]; ok {
		return true
	}
	if c.lookup == nil {
		return false
	}
	found, err := c.lookup.IsAnimal(ctx, term)
	if err != nil {
		contextLoggerOr(ctx, c.logger).WarnContext(
			ctx,
			"animal lookup failed",
			"term", term,
			tint.Err(err),
		)
		return false
	}
	return found
}

// wordWindows returns every run of two adjacent words, then every run of
// three, each ordered by starting position. Windows containing a word
// shorter than two characters are skipped.
func wordWindows(words []string) [][]string {
	var windows [][]string
	for size := 2; size <= 3; size++ {
		for i := 0; i+size <= len(words); i++ {
			window := words[i : i+size]
			if slices.ContainsFunc(
				window, func(w string) bool {
					return utf8.RuneCountInString(w) < minWindowWordLength
				},
			) {
				continue
			}
			windows = append(windows, window)
		}
	}
	return windows
}

// longWords filters words down to those with at least three characters
func longWords(words []string) []string {
	rv := []string{}
	for _, w := range words {
		if utf8.RuneCountInString(w) >= minWordLength {
			rv = append(rv, w)
		}
	}
	return rv
}

// without returns the words not present in exclude
func without(words []string, exclude ...string) []string {
	var rv []string
	for _, w := range words {
		if !slices.Contains(exclude, w) {
			rv = append(rv, w)
		}
	}
	return rv
}

func containsAll(s string, substrings []string) bool {
	for _, sub := range substrings {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
