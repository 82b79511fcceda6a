package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/phrazzld/prep-api/internal/generation"
)

// GenerateQuestionsRequest is the body of POST /api/ai/generate-questions.
type GenerateQuestionsRequest struct {
	Role              string     `json:"role"`
	Experience        flexString `json:"experience"`
	TopicsToFocus     flexString `json:"topicsToFocus"`
	NumberOfQuestions flexInt    `json:"numberOfQuestions"`
}

// Params converts the body to service parameters.
func (r GenerateQuestionsRequest) Params() generation.QuestionSetParams {
	return generation.QuestionSetParams{
		Role:       r.Role,
		Experience: string(r.Experience),
		Topics:     string(r.TopicsToFocus),
		Count:      int(r.NumberOfQuestions),
	}
}

// GenerateExplanationRequest is the body of POST /api/ai/generate-explanation.
type GenerateExplanationRequest struct {
	Question string `json:"question"`
}

// Params converts the body to service parameters.
func (r GenerateExplanationRequest) Params() generation.ConceptParams {
	return generation.ConceptParams{Question: r.Question}
}

// flexString accepts a JSON string, number, or array of strings. Clients
// send experience as "3" or 3 and topics as "Go, SQL" or ["Go","SQL"].
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*s = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	case len(data) > 0 && data[0] == '[':
		var v []string
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("expected a list of strings: %w", err)
		}
		*s = flexString(strings.Join(v, ", "))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected a string or number: %w", err)
	}
	*s = flexString(n.String())
	return nil
}

// flexInt accepts a JSON integer or a string holding one.
type flexInt int

func (i *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*i = 0
		return nil
	}

	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("expected an integer, got %s", data)
	}
	*i = flexInt(n)
	return nil
}
