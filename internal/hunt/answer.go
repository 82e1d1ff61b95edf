package hunt

import (
	"regexp"
	"strings"
)

// Result is the outcome of classifying one guess.
type Result struct {
	Classification Classification
	Feedback       string  // eureka feedback, empty otherwise
	Eureka         *Eureka // the rule that matched, nil otherwise
}

// Normalize uppercases text and strips all whitespace. The same
// normalization is applied to guesses and canonical answers before
// comparison.
func Normalize(text string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', '\v', '\f':
			return -1
		}
		return r
	}, strings.ToUpper(text))
}

// Classify evaluates a guess against a puzzle's canonical answer, optional
// answer regex, and eureka rules, in that order. It is pure: identical
// inputs always produce identical results. Invalid authored regexes behave
// as if they matched nothing.
func Classify(text string, p Puzzle, defaultFeedback string) Result {
	guess := Normalize(text)

	if guess == Normalize(p.Answer) {
		return Result{Classification: ClassCorrect}
	}
	if p.AnswerRegex != "" && fullMatch(p.AnswerRegex, guess) {
		return Result{Classification: ClassCorrect}
	}

	for i := range p.Eurekas {
		e := p.Eurekas[i]
		// Spaces in authored eureka patterns are insignificant, mirroring
		// guess normalization.
		if fullMatch(strings.ReplaceAll(e.Regex, " ", ""), guess) {
			return Result{
				Classification: ClassEureka,
				Feedback:       e.FeedbackOr(defaultFeedback),
				Eureka:         &p.Eurekas[i],
			}
		}
	}

	return Result{Classification: ClassWrong}
}

// fullMatch reports whether pattern matches the whole input,
// case-insensitively. A pattern that fails to compile matches nothing;
// that is an authoring error, not a runtime one.
func fullMatch(pattern, input string) bool {
	re, err := regexp.Compile(`(?i)\A(?:` + pattern + `)\z`)
	if err != nil {
		return false
	}
	return re.MatchString(input)
}
