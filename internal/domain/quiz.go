package domain

import "fmt"

// Validate checks the structural preconditions for gating a comment with q.
func (q Quiz) Validate() error {
	if len(q.Questions) == 0 {
		return fmt.Errorf("%w: no questions", ErrInvalidQuiz)
	}
	seen := make(map[int]struct{}, len(q.Questions))
	for i, question := range q.Questions {
		if _, dup := seen[question.ID]; dup {
			return fmt.Errorf("%w: question %d reuses id %d", ErrInvalidQuiz, i, question.ID)
		}
		seen[question.ID] = struct{}{}
		if len(question.Options) < 2 {
			return fmt.Errorf("%w: question %d has %d options", ErrInvalidQuiz, i, len(question.Options))
		}
		if question.CorrectOptionIndex < 0 || question.CorrectOptionIndex >= len(question.Options) {
			return fmt.Errorf("%w: question %d correct option %d out of range", ErrInvalidQuiz, i, question.CorrectOptionIndex)
		}
	}
	return nil
}

// Matches reports whether answers select the correct option of every question, in order.
func (q Quiz) Matches(answers []int) bool {
	if len(answers) != len(q.Questions) {
		return false
	}
	for i, question := range q.Questions {
		if answers[i] != question.CorrectOptionIndex {
			return false
		}
	}
	return true
}

// Clone returns a copy that shares no slices with q.
func (q Quiz) Clone() Quiz {
	out := Quiz{Questions: make([]Question, len(q.Questions))}
	for i, question := range q.Questions {
		question.Options = append([]string(nil), question.Options...)
		out.Questions[i] = question
	}
	return out
}

// FallbackQuiz is served whenever quiz generation is unavailable or malformed.
func FallbackQuiz() Quiz {
	return Quiz{
		Questions: []Question{
			{ID: 1, Text: "What is the main topic?", Options: []string{"A", "B", "C", "D"}, CorrectOptionIndex: 0},
			{ID: 2, Text: "Who is the author?", Options: []string{"Me", "You", "AI", "Nobody"}, CorrectOptionIndex: 2},
			{ID: 3, Text: "Is this a demo?", Options: []string{"Yes", "No", "Maybe", "Unknown"}, CorrectOptionIndex: 0},
		},
	}
}
