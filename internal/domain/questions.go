package domain

// QuestionSet maps each quiz question id to the category whose rules own it.
// It is derived from the loaded rule table.
type QuestionSet map[string]Category

// Has reports whether the question id is known.
func (q QuestionSet) Has(questionID string) bool {
	_, ok := q[questionID]
	return ok
}
