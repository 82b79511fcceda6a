package generation

import (
	"strings"

	"github.com/google/uuid"
)

// TaskKind names a generation task. It also namespaces rate-limit keys.
type TaskKind string

// Supported tasks.
const (
	TaskQuestionSet        TaskKind = "question-set"
	TaskConceptExplanation TaskKind = "concept-explanation"
)

// QuestionSetParams are the inputs for a question/answer set.
type QuestionSetParams struct {
	Role       string `json:"role" validate:"required,max=200"`
	Experience string `json:"experience" validate:"required,max=50"`
	Topics     string `json:"topicsToFocus" validate:"required,max=1000"`
	Count      int    `json:"numberOfQuestions" validate:"required,gte=1,lte=20"`
}

// ConceptParams are the inputs for a concept explanation.
type ConceptParams struct {
	Question string `json:"question" validate:"required,max=2000"`
}

// Request is one generation call. It is immutable once constructed; the
// parameter accessors return copies.
type Request struct {
	id          uuid.UUID
	kind        TaskKind
	identity    string
	questionSet QuestionSetParams
	concept     ConceptParams
}

// NewQuestionSetRequest builds a question-set request with whitespace
// trimmed from every text field.
func NewQuestionSetRequest(identity string, p QuestionSetParams) Request {
	p.Role = strings.TrimSpace(p.Role)
	p.Experience = strings.TrimSpace(p.Experience)
	p.Topics = strings.TrimSpace(p.Topics)
	return Request{
		id:          uuid.New(),
		kind:        TaskQuestionSet,
		identity:    strings.TrimSpace(identity),
		questionSet: p,
	}
}

// NewConceptRequest builds a concept-explanation request.
func NewConceptRequest(identity string, p ConceptParams) Request {
	p.Question = strings.TrimSpace(p.Question)
	return Request{
		id:       uuid.New(),
		kind:     TaskConceptExplanation,
		identity: strings.TrimSpace(identity),
		concept:  p,
	}
}

func (r Request) ID() uuid.UUID    { return r.id }
func (r Request) Kind() TaskKind   { return r.kind }
func (r Request) Identity() string { return r.identity }

// QuestionSet returns the question-set parameters; ok is false for other
// task kinds.
func (r Request) QuestionSet() (QuestionSetParams, bool) {
	return r.questionSet, r.kind == TaskQuestionSet
}

// Concept returns the concept parameters; ok is false for other task kinds.
func (r Request) Concept() (ConceptParams, bool) {
	return r.concept, r.kind == TaskConceptExplanation
}

// QuestionAnswer is one element of a generated question set.
type QuestionAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Explanation is a generated concept explanation.
type Explanation struct {
	Title       string `json:"title"`
	Explanation string `json:"explanation"`
}

// ProviderResult is the raw text a provider produced for one attempt.
type ProviderResult struct {
	Provider string
	Model    string
	Text     string
}

// NormalizedResult is the structured value returned to callers, tagged with
// the provider and model that produced it. Data is []QuestionAnswer for
// question sets and Explanation for concept explanations.
type NormalizedResult struct {
	Data     any
	Provider string
	Model    string
}
