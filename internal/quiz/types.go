package quiz

import (
	"encoding/json"
	"time"
)

// QuestionType identifies how a question is presented and graded.
type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	FillInBlank    QuestionType = "fill_in_blank"
	OrderWords     QuestionType = "order_words"
	TrueFalse      QuestionType = "true_false"
	Matching       QuestionType = "matching"
)

// Valid reports whether t is a known question type.
func (t QuestionType) Valid() bool {
	switch t {
	case MultipleChoice, FillInBlank, OrderWords, TrueFalse, Matching:
		return true
	}
	return false
}

// Question is immutable for the lifetime of a session.
type Question struct {
	ID      string          `json:"id"`
	UnitID  string          `json:"unit_id"`
	Type    QuestionType    `json:"type"`
	Content json.RawMessage `json:"content"`
	Order   int             `json:"order"`
}

// Answer is the graded response to one presentation of a question.
type Answer struct {
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Mode selects where questions come from and how results are persisted.
type Mode string

const (
	ModeUnit   Mode = "unit"
	ModeFinal  Mode = "final"
	ModeReview Mode = "review"
)

// Phase is the controller's state machine phase.
type Phase int

const (
	PhaseIdle               Phase = iota // Not started
	PhaseTesting                         // First pass through the queue
	PhaseMistakeReview                   // Retrying requeued questions
	PhaseSuccessCelebration              // First pass had no mistakes
	PhaseCompleting                      // Queue exhausted, waiting for Complete
	PhaseFinalizing                      // Completion request in flight
	PhaseResults                         // Result available
	PhasePostResult                      // Interstitial after the results
	PhaseBlocked                         // Out of hearts
	PhaseClosed                          // Terminal
)

var phaseNames = map[Phase]string{
	PhaseIdle:               "idle",
	PhaseTesting:            "testing",
	PhaseMistakeReview:      "mistake_review",
	PhaseSuccessCelebration: "success_celebration",
	PhaseCompleting:         "completing",
	PhaseFinalizing:         "finalizing",
	PhaseResults:            "results",
	PhasePostResult:         "post_result",
	PhaseBlocked:            "blocked",
	PhaseClosed:             "closed",
}

func (p Phase) String() string {
	if s, ok := phaseNames[p]; ok {
		return s
	}
	return "unknown"
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// answering reports whether questions are being presented in this phase.
func (p Phase) answering() bool {
	return p == PhaseTesting || p == PhaseMistakeReview
}

// Status reports an expected outcome that is not an error.
type Status int

const (
	StatusOK        Status = iota
	StatusBlocked          // Out of hearts; the action was not applied
	StatusBusy             // Another call for this session is in flight
	StatusDuplicate        // Completion already in flight or done
	StatusDiscarded        // The session was closed while the call was in flight
)

var statusNames = map[Status]string{
	StatusOK:        "ok",
	StatusBlocked:   "blocked",
	StatusBusy:      "busy",
	StatusDuplicate: "duplicate",
	StatusDiscarded: "discarded",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown"
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Attempt is what a Strategy hands the controller at start. A fresh attempt
// only sets ID and Questions. A resumed attempt also sets the queue state.
type Attempt struct {
	ID        string
	Questions []Question
	StartedAt time.Time

	// Hearts is the user's balance when the attempt was fetched.
	Hearts int

	// Resumed state. Questions is the full queue, requeued tail included.
	Resumed        bool
	Cursor         int
	FirstPassCount int
	Failed         []string
	Answers        map[string]Answer

	// Blocked marks an attempt that ran out of hearts on the question
	// under the cursor.
	Blocked bool
}

// Grade is the backend's verdict on one submission.
type Grade struct {
	Correct bool

	// Hearts is the balance after grading. When HeartCharged is false it
	// is the balance before the heart for a wrong answer is taken.
	Hearts int

	// HeartCharged reports that the backend already took the heart for a
	// wrong answer together with recording it.
	HeartCharged bool

	// CorrectAnswer is shown after an incorrect submission. May be empty.
	CorrectAnswer string
}

// Result is the outcome of a completed attempt.
type Result struct {
	Score              float64 `json:"score"`
	CorrectAnswers     int     `json:"correct_answers"`
	TotalQuestions     int     `json:"total_questions"`
	Passed             bool    `json:"passed"`
	ExperienceGained   int     `json:"experience_gained"`
	TimeElapsedSeconds int     `json:"time_elapsed_seconds"`

	// Mode extras.
	ZapsAwarded         int  `json:"zaps_awarded,omitempty"`
	CertificateEligible bool `json:"certificate_eligible,omitempty"`
}

// Checkpoint is the resumable progress sent to the backend.
type Checkpoint struct {
	Queue          []string
	Cursor         int
	FirstPassCount int
	Failed         []string
	Answers        map[string]Answer
	Blocked        bool
}

// SubmitOutcome describes what a submission changed.
type SubmitOutcome struct {
	Status        Status `json:"status"`
	Correct       bool   `json:"correct"`
	CorrectAnswer string `json:"correct_answer,omitempty"`
	Hearts        int    `json:"hearts"`
	Requeued      bool   `json:"requeued"`
	StreakReached bool   `json:"streak_reached"`
	View          View   `json:"view"`
}

// Outcome is the result of a transition that carries no extra data.
type Outcome struct {
	Status Status `json:"status"`
	View   View   `json:"view"`
}

// CompleteOutcome carries the final result.
type CompleteOutcome struct {
	Status Status  `json:"status"`
	Result *Result `json:"result,omitempty"`
	View   View    `json:"view"`
}

// View is a read-only snapshot for the presentation layer.
type View struct {
	AttemptID string `json:"attempt_id"`
	Mode      Mode   `json:"mode"`
	Phase     Phase  `json:"phase"`

	// Question is the question under the cursor while answering.
	Question *Question `json:"question,omitempty"`
	// Answer is the graded answer to the current presentation, if any.
	Answer *Answer `json:"answer,omitempty"`

	Position       int `json:"position"`
	QueueLength    int `json:"queue_length"`
	FirstPassCount int `json:"first_pass_count"`
	FailedCount    int `json:"failed_count"`
	Hearts         int `json:"hearts"`

	Streak             int  `json:"streak"`
	StreakPending      bool `json:"streak_pending"`
	ReviewIntroPending bool `json:"review_intro_pending"`
	Submitting         bool `json:"submitting"`

	// CanAdvance is true when Advance would be accepted.
	CanAdvance bool `json:"can_advance"`

	Result *Result `json:"result,omitempty"`
}
