package quiz

type QuestionType string

const (
	TypeMultipleChoice QuestionType = "multiple_choice"
	TypeTrueFalse      QuestionType = "true_false"
	TypeDropdown       QuestionType = "dropdown"
	TypeStarRating     QuestionType = "star_rating"
	TypeImageChoice    QuestionType = "image_choice"
	TypeImageRating    QuestionType = "image_rating"

	TypeMultiSelect QuestionType = "multi_select"
	TypeLikertScale QuestionType = "likert_scale"
	TypeMatrix      QuestionType = "matrix"

	TypeMatching QuestionType = "matching"

	TypeShortAnswer QuestionType = "short_answer"
	TypeLongAnswer  QuestionType = "long_answer"

	TypeFileUpload  QuestionType = "file_upload"
	TypeVoiceRecord QuestionType = "voice_record"
)

// Family groups question types that are evaluated by the same rule.
type Family int

const (
	FamilyUnknown Family = iota
	FamilySingleSelect
	FamilyMultiSelect
	FamilyMatching
	FamilyText
	FamilyUpload
)

var families = map[QuestionType]Family{
	TypeMultipleChoice: FamilySingleSelect,
	TypeTrueFalse:      FamilySingleSelect,
	TypeDropdown:       FamilySingleSelect,
	TypeStarRating:     FamilySingleSelect,
	TypeImageChoice:    FamilySingleSelect,
	TypeImageRating:    FamilySingleSelect,
	TypeMultiSelect:    FamilyMultiSelect,
	TypeLikertScale:    FamilyMultiSelect,
	TypeMatrix:         FamilyMultiSelect,
	TypeMatching:       FamilyMatching,
	TypeShortAnswer:    FamilyText,
	TypeLongAnswer:     FamilyText,
	TypeFileUpload:     FamilyUpload,
	TypeVoiceRecord:    FamilyUpload,
}

func (t QuestionType) Family() Family { return families[t] }

func (t QuestionType) Valid() bool { return t.Family() != FamilyUnknown }

// HasChoices reports whether questions of this family are answered by picking choices.
func (f Family) HasChoices() bool {
	return f == FamilySingleSelect || f == FamilyMultiSelect || f == FamilyMatching
}

// Manual reports whether answers of this family wait for a human grade.
func (f Family) Manual() bool { return f == FamilyText || f == FamilyUpload }

func (f Family) String() string {
	switch f {
	case FamilySingleSelect:
		return "single_select"
	case FamilyMultiSelect:
		return "multi_select"
	case FamilyMatching:
		return "matching"
	case FamilyText:
		return "text"
	case FamilyUpload:
		return "upload"
	default:
		return "unknown"
	}
}

type Difficulty string

const (
	Beginner     Difficulty = "beginner"
	Intermediate Difficulty = "intermediate"
	Advanced     Difficulty = "advanced"
)

type Choice struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
	MatchKey  string `json:"match_key,omitempty"`
}

type Question struct {
	ID           string       `json:"id"`
	QuizID       string       `json:"quiz_id"`
	Type         QuestionType `json:"type"`
	Text         string       `json:"text"`
	Points       int          `json:"points"`
	TimeLimitSec int          `json:"time_limit_sec"`
	Order        int          `json:"order"`
	Difficulty   Difficulty   `json:"difficulty,omitempty"`
	Choices      []Choice     `json:"choices,omitempty"`
}

type Quiz struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	IsPlacementTest bool    `json:"is_placement_test"`
	PassThreshold   float64 `json:"pass_threshold"` // percentage; <= 0 means the configured default
	TimeLimitSec    int     `json:"time_limit_sec"` // whole-attempt budget; 0 means none
	CreatedAt       int64   `json:"created_at,omitempty"`
}

// Definition is a quiz with its questions in delivery order and their choices loaded.
type Definition struct {
	Quiz      Quiz
	Questions []Question
}

func (d *Definition) TotalPoints() int {
	total := 0
	for _, q := range d.Questions {
		total += q.Points
	}
	return total
}

// QuestionIDs returns the ordered question ids.
func (d *Definition) QuestionIDs() []string {
	ids := make([]string, len(d.Questions))
	for i, q := range d.Questions {
		ids[i] = q.ID
	}
	return ids
}

// Question returns the question with id and its position, or false.
func (d *Definition) Question(id string) (Question, int, bool) {
	for i, q := range d.Questions {
		if q.ID == id {
			return q, i, true
		}
	}
	return Question{}, -1, false
}
