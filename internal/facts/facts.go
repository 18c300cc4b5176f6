// Package facts normalizes raw quiz and form submissions into the answer
// record consumed by the category scorer.
package facts

import (
	"strconv"

	"github.com/rimborsami/rimborsami/internal/domain"
)

// NormalizeQuiz restricts answers to the question ids in known and drops
// empty values. Values are kept verbatim: matching is exact.
func NormalizeQuiz(answers map[string]string, known domain.QuestionSet) domain.Answers {
	out := make(domain.Answers, len(answers))
	for q, v := range answers {
		if v == "" || !known.Has(q) {
			continue
		}
		out[q] = v
	}
	return out
}

// NormalizeForm renders form values (strings, booleans, numbers) to their
// canonical string form, then applies NormalizeQuiz. Values of any other
// type are dropped.
func NormalizeForm(form map[string]any, known domain.QuestionSet) domain.Answers {
	raw := make(map[string]string, len(form))
	for q, v := range form {
		if s, ok := stringify(v); ok {
			raw[q] = s
		}
	}
	return NormalizeQuiz(raw, known)
}

// Dropped returns how many submitted entries NormalizeQuiz discarded.
func Dropped(submitted int, normalized domain.Answers) int {
	if n := submitted - len(normalized); n > 0 {
		return n
	}
	return 0
}

func stringify(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float64:
		// JSON numbers decode as float64; whole numbers render without decimals.
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return "", false
	}
}
