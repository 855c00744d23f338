package ai

import (
	"time"

	"github.com/google/uuid"

	"github.com/lexiprep/lexiprep/internal/quota"
)

// EnhanceVocabRequest asks the model to enrich a vocabulary entry.
type EnhanceVocabRequest struct {
	Word    string `json:"word" validate:"required,min=1,max=100"`
	Meaning string `json:"meaning" validate:"required,min=1,max=500"`
	Context string `json:"context,omitempty" validate:"max=1000"`
}

// VocabEnhancement is the model's enrichment of a vocabulary entry.
type VocabEnhancement struct {
	EnhancedMeaning     string   `json:"enhancedMeaning"`
	ExampleSentences    []string `json:"exampleSentences"`
	SuggestedDifficulty string   `json:"suggestedDifficulty"`
	SuggestedTopicTags  []string `json:"suggestedTopicTags"`
	MemoryTip           string   `json:"memoryTip"`
	Synonyms            []string `json:"synonyms"`
	TokensUsed          int      `json:"-"`
}

// PracticeFeedbackRequest asks for an evaluation of a user's answer.
type PracticeFeedbackRequest struct {
	Word         string     `json:"word" validate:"required,min=1,max=100"`
	Meaning      string     `json:"meaning" validate:"required,min=1,max=500"`
	UserAnswer   string     `json:"userAnswer" validate:"required,min=1,max=1000"`
	PracticeType string     `json:"practiceType" validate:"required,oneof=definition usage synonym"`
	VocabularyID *uuid.UUID `json:"vocabularyId,omitempty"`
}

// PracticeFeedback is the model's evaluation of one practice answer.
type PracticeFeedback struct {
	IsCorrect     bool     `json:"isCorrect"`
	Rating        int      `json:"rating"`
	Feedback      string   `json:"feedback"`
	Suggestions   []string `json:"suggestions"`
	Encouragement string   `json:"encouragement"`
	TokensUsed    int      `json:"-"`
}

// SuggestionsRequest asks for new words to study next.
type SuggestionsRequest struct {
	KnownWords []string `json:"knownWords" validate:"required,min=1,max=50,dive,min=1,max=100"`
	Topic      string   `json:"topic,omitempty" validate:"max=100"`
	Count      int      `json:"count,omitempty" validate:"min=0,max=20"`
}

// WordSuggestion is one recommended word with the reason it was picked.
type WordSuggestion struct {
	Word   string `json:"word"`
	Reason string `json:"reason"`
}

// SuggestionsResult bundles the recommended words.
type SuggestionsResult struct {
	Suggestions []WordSuggestion `json:"suggestions"`
	TokensUsed  int              `json:"-"`
}

// QuotaView is the quota metadata attached to every gated response.
type QuotaView struct {
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
	Tier      string    `json:"tier"`
}

func quotaView(d quota.Decision) QuotaView {
	return QuotaView{
		Remaining: d.Remaining,
		ResetAt:   d.ResetAt,
		Tier:      string(d.Tier),
	}
}
