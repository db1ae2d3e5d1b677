package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"friction-gate/internal/domain"
	"friction-gate/internal/moderation"
	"github.com/google/uuid"
)

const postedMessage = "Comment posted successfully!"

// Classifier decides whether a comment needs friction.
type Classifier interface {
	Classify(ctx context.Context, text string) (domain.Verdict, error)
}

// QuizGenerator builds a comprehension quiz for an article.
type QuizGenerator interface {
	Generate(ctx context.Context, articleText string) (domain.Quiz, error)
}

// Feed receives comments once they are allowed through and serves them to readers.
type Feed interface {
	Publish(text string) domain.PublishedComment
	Recent(limit int) []domain.PublishedComment
	Subscribe() (<-chan domain.FeedEvent, func())
}

// Options tunes the gate service. Zero values select defaults.
type Options struct {
	ClassifyTimeout time.Duration
	GenerateTimeout time.Duration
	// Fallback classifies when the primary classifier fails or is absent.
	Fallback Classifier
	// NewID mints session ids; defaults to random UUIDv4.
	NewID func() string
}

// GateService orchestrates submissions and verifications around the Gate.
type GateService struct {
	gate       *Gate
	classifier Classifier
	generator  QuizGenerator
	feed       Feed
	opts       Options
}

// NewGateService wires the gate with its collaborators. classifier, generator
// and feed may be nil: the keyword fallback, the fallback quiz and no
// publication are used respectively.
func NewGateService(gate *Gate, classifier Classifier, generator QuizGenerator, feed Feed, opts Options) *GateService {
	if opts.ClassifyTimeout <= 0 {
		opts.ClassifyTimeout = 10 * time.Second
	}
	if opts.GenerateTimeout <= 0 {
		opts.GenerateTimeout = 20 * time.Second
	}
	if opts.Fallback == nil {
		opts.Fallback = moderation.NewKeywordClassifier()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &GateService{
		gate:       gate,
		classifier: classifier,
		generator:  generator,
		feed:       feed,
		opts:       opts,
	}
}

// Submit posts a harmless comment immediately or withholds a toxic one behind a quiz.
func (s *GateService) Submit(ctx context.Context, comment, articleText string) (domain.SubmitResult, error) {
	if strings.TrimSpace(comment) == "" || strings.TrimSpace(articleText) == "" {
		return domain.SubmitResult{}, fmt.Errorf("%w: missing comment or article text", domain.ErrInvalidRequest)
	}

	verdict := s.classify(ctx, comment)
	if !verdict.Toxic {
		s.publish(comment)
		return domain.SubmitResult{Status: domain.StatusPosted, Message: postedMessage}, nil
	}

	quiz := s.generate(ctx, articleText)
	id := s.opts.NewID()
	if err := s.gate.Create(ctx, id, comment, articleText, quiz); err != nil {
		log.Printf("create gate session failed: %v", err)
		return domain.SubmitResult{}, fmt.Errorf("create gate session: %w", err)
	}
	log.Printf("comment withheld behind gate session %s (%d questions)", id, len(quiz.Questions))

	return domain.SubmitResult{
		Status: domain.StatusBlocked,
		Reason: verdict.Reason,
		QuizID: id,
		Quiz:   quiz,
	}, nil
}

// SubmitAnswers verifies answers for a gate session. Unknown and malformed ids
// are reported as invalid requests.
func (s *GateService) SubmitAnswers(ctx context.Context, quizID string, answers []int) (domain.VerifyResult, error) {
	if !validSessionID(quizID) {
		return domain.VerifyResult{}, fmt.Errorf("%w: invalid quiz id", domain.ErrInvalidRequest)
	}
	if answers == nil {
		return domain.VerifyResult{}, fmt.Errorf("%w: missing answers", domain.ErrInvalidRequest)
	}

	result, err := s.gate.Verify(ctx, quizID, answers)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return domain.VerifyResult{}, fmt.Errorf("%w: invalid quiz id", domain.ErrInvalidRequest)
	}
	if err != nil {
		return domain.VerifyResult{}, err
	}
	if result.Released {
		s.publish(result.Comment)
	}
	return result, nil
}

// Reveal returns the comment of a solved session.
func (s *GateService) Reveal(ctx context.Context, quizID string) (string, error) {
	if !validSessionID(quizID) {
		return "", domain.ErrAccessDenied
	}
	return s.gate.Reveal(ctx, quizID)
}

// Comments lists up to limit published comments, newest first.
func (s *GateService) Comments(limit int) []domain.PublishedComment {
	if s.feed == nil {
		return []domain.PublishedComment{}
	}
	return s.feed.Recent(limit)
}

// Subscribe streams the comment feed. The caller must invoke cancel.
func (s *GateService) Subscribe() (<-chan domain.FeedEvent, func(), error) {
	if s.feed == nil {
		return nil, nil, domain.ErrFeedUnavailable
	}
	ch, cancel := s.feed.Subscribe()
	return ch, cancel, nil
}

func (s *GateService) classify(ctx context.Context, comment string) domain.Verdict {
	if s.classifier != nil {
		cctx, cancel := context.WithTimeout(ctx, s.opts.ClassifyTimeout)
		verdict, err := s.classifier.Classify(cctx, comment)
		cancel()
		if err == nil {
			return verdict
		}
		log.Printf("classifier unavailable, using keyword fallback: %v", err)
	}
	verdict, err := s.opts.Fallback.Classify(ctx, comment)
	if err != nil {
		log.Printf("fallback classifier failed: %v", err)
		return domain.Verdict{}
	}
	return verdict
}

func (s *GateService) generate(ctx context.Context, articleText string) domain.Quiz {
	if s.generator == nil {
		return domain.FallbackQuiz()
	}
	gctx, cancel := context.WithTimeout(ctx, s.opts.GenerateTimeout)
	defer cancel()

	quiz, err := s.generator.Generate(gctx, articleText)
	if err != nil {
		log.Printf("quiz generation unavailable, using fallback quiz: %v", err)
		return domain.FallbackQuiz()
	}
	if err := quiz.Validate(); err != nil {
		log.Printf("generated quiz rejected, using fallback quiz: %v", err)
		return domain.FallbackQuiz()
	}
	return quiz
}

func (s *GateService) publish(text string) {
	if s.feed == nil {
		return
	}
	s.feed.Publish(text)
}

func validSessionID(id string) bool {
	if id == "" {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
