package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const defaultSuggestionCount = 5

// Service builds prompts, calls the model and parses its JSON answers.
type Service struct {
	client Client
}

func NewService(client Client) *Service {
	return &Service{client: client}
}

// EnhanceVocabulary enriches a word with examples, tags and a memory tip.
func (s *Service) EnhanceVocabulary(ctx context.Context, req EnhanceVocabRequest) (*VocabEnhancement, error) {
	prompt := buildEnhancePrompt(req)

	res, err := s.client.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generating vocabulary enhancement: %w", err)
	}

	var out VocabEnhancement
	if err := parseModelJSON(res.Text, &out); err != nil {
		return nil, fmt.Errorf("parsing vocabulary enhancement: %w", err)
	}
	out.TokensUsed = res.TokensUsed
	return &out, nil
}

// PracticeFeedback evaluates a user's practice answer.
func (s *Service) PracticeFeedback(ctx context.Context, req PracticeFeedbackRequest) (*PracticeFeedback, error) {
	prompt := buildFeedbackPrompt(req)

	res, err := s.client.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generating practice feedback: %w", err)
	}

	var out PracticeFeedback
	if err := parseModelJSON(res.Text, &out); err != nil {
		return nil, fmt.Errorf("parsing practice feedback: %w", err)
	}
	if out.Rating < 1 {
		out.Rating = 1
	}
	if out.Rating > 5 {
		out.Rating = 5
	}
	out.TokensUsed = res.TokensUsed
	return &out, nil
}

// Suggestions recommends new words based on what the user already knows.
func (s *Service) Suggestions(ctx context.Context, req SuggestionsRequest) (*SuggestionsResult, error) {
	if req.Count <= 0 {
		req.Count = defaultSuggestionCount
	}
	prompt := buildSuggestionsPrompt(req)

	res, err := s.client.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generating word suggestions: %w", err)
	}

	var out SuggestionsResult
	if err := parseModelJSON(res.Text, &out); err != nil {
		return nil, fmt.Errorf("parsing word suggestions: %w", err)
	}
	if len(out.Suggestions) > req.Count {
		out.Suggestions = out.Suggestions[:req.Count]
	}
	out.TokensUsed = res.TokensUsed
	return &out, nil
}

func buildEnhancePrompt(req EnhanceVocabRequest) string {
	var sb strings.Builder
	sb.WriteString("You are an English vocabulary tutor. Enhance the following word entry.\n\n")
	fmt.Fprintf(&sb, "Word: %s\nMeaning: %s\n", req.Word, req.Meaning)
	if req.Context != "" {
		fmt.Fprintf(&sb, "Context: %s\n", req.Context)
	}
	sb.WriteString(`
Respond with JSON only, no markdown, matching exactly:
{
  "enhancedMeaning": "clear and precise definition",
  "exampleSentences": ["three example sentences"],
  "suggestedDifficulty": "easy|medium|hard",
  "suggestedTopicTags": ["up to three topic tags"],
  "memoryTip": "a short mnemonic",
  "synonyms": ["up to five synonyms"]
}`)
	return sb.String()
}

func buildFeedbackPrompt(req PracticeFeedbackRequest) string {
	var sb strings.Builder
	sb.WriteString("You are an English vocabulary tutor. Evaluate a learner's practice answer.\n\n")
	fmt.Fprintf(&sb, "Word: %s\nCorrect meaning: %s\nPractice type: %s\nLearner's answer: %s\n",
		req.Word, req.Meaning, req.PracticeType, req.UserAnswer)
	sb.WriteString(`
Respond with JSON only, no markdown, matching exactly:
{
  "isCorrect": true or false,
  "rating": 1 to 5,
  "feedback": "specific feedback on the answer",
  "suggestions": ["how to improve"],
  "encouragement": "a short encouraging note"
}`)
	return sb.String()
}

func buildSuggestionsPrompt(req SuggestionsRequest) string {
	var sb strings.Builder
	sb.WriteString("You are an English vocabulary tutor. Suggest new words for a learner to study next.\n\n")
	fmt.Fprintf(&sb, "Words the learner already knows: %s\n", strings.Join(req.KnownWords, ", "))
	if req.Topic != "" {
		fmt.Fprintf(&sb, "Preferred topic: %s\n", req.Topic)
	}
	fmt.Fprintf(&sb, "Number of suggestions: %d\n", req.Count)
	sb.WriteString(`
Respond with JSON only, no markdown, matching exactly:
{
  "suggestions": [
    {"word": "suggested word", "reason": "why it fits this learner"}
  ]
}`)
	return sb.String()
}

// parseModelJSON decodes a model answer, tolerating markdown code fences
// that some models wrap around JSON despite instructions.
func parseModelJSON(text string, v any) error {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("model did not return valid JSON: %w", err)
	}
	return nil
}
