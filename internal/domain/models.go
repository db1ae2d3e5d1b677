package domain

import "time"

// Question models a multiple-choice question with exactly one correct option.
type Question struct {
	ID                 int      `json:"id"`
	Text               string   `json:"text"`
	Options            []string `json:"options"`
	CorrectOptionIndex int      `json:"correctOptionIndex"`
}

// Quiz is an ordered collection of questions. Answers are matched by position.
type Quiz struct {
	Questions []Question `json:"questions"`
}

// Session binds one withheld comment to its quiz and solve status.
type Session struct {
	Comment     string    `json:"comment"`
	ArticleText string    `json:"articleText"`
	Quiz        Quiz      `json:"quiz"`
	Attempts    int       `json:"attempts"`
	Solved      bool      `json:"solved"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Expired reports whether the session outlived ttl. A non-positive ttl never expires.
func (s Session) Expired(ttl time.Duration, now time.Time) bool {
	if ttl <= 0 || s.CreatedAt.IsZero() {
		return false
	}
	return !now.Before(s.CreatedAt.Add(ttl))
}

// Clone returns a copy that shares no slices with s.
func (s Session) Clone() Session {
	out := s
	out.Quiz = s.Quiz.Clone()
	return out
}

// Verdict is the outcome of a toxicity classification.
type Verdict struct {
	Toxic  bool   `json:"isToxic"`
	Reason string `json:"reason"`
}

// VerifyResult summarizes one verification call.
type VerifyResult struct {
	Success  bool
	Comment  string
	Attempts int
	// Released is set only on the call that moved the session to solved.
	Released bool
}

// SubmitStatus is the outcome of a submission.
type SubmitStatus string

const (
	StatusPosted  SubmitStatus = "posted"
	StatusBlocked SubmitStatus = "blocked"
)

// SubmitResult is returned by the gate service for a new comment.
type SubmitResult struct {
	Status  SubmitStatus
	Message string
	Reason  string
	QuizID  string
	Quiz    Quiz
}

// PublishedComment is a comment released to the public feed.
type PublishedComment struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	PublishedAt time.Time `json:"publishedAt"`
}

// FeedEventType distinguishes feed messages.
type FeedEventType string

const (
	// FeedSnapshot carries the recent history, newest first.
	FeedSnapshot FeedEventType = "snapshot"
	// FeedComment carries a single newly published comment.
	FeedComment FeedEventType = "comment"
)

// FeedEvent is delivered to feed subscribers.
type FeedEvent struct {
	Type     FeedEventType
	Comments []PublishedComment
}
