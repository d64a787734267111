package quizrunner

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
)

// jsonQuestion accepts both record shapes found in question files:
// a correct answer plus three wrong ones, or four choices plus an answer key.
type jsonQuestion struct {
	Question string   `json:"question"`
	Correct  string   `json:"correct"`
	Wrong    []string `json:"wrong"`
	Options  []string `json:"options"`
	Answer   string   `json:"answer"`
}

// JSONSource reads a JSON array of questions from a file or URL
type JSONSource struct{}

// Load reads and normalizes the questions at ref
func (JSONSource) Load(ctx context.Context, ref string) ([]QuestionRecord, error) {
	body, err := openReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var raw []jsonQuestion
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", ref, err)
	}

	records := make([]QuestionRecord, 0, len(raw))
	for i, q := range raw {
		if len(q.Options) > 0 {
			rec, err := recordFromChoices(q.Question, q.Options, q.Answer)
			if err != nil {
				log.Printf("Skipping record %d of %s: %v", i+1, ref, err)
				continue
			}
			records = append(records, rec)
			continue
		}
		records = append(records, QuestionRecord{Question: q.Question, Correct: q.Correct, Wrong: q.Wrong})
	}

	VerboseLog("Loaded %d raw questions from %s", len(records), ref)
	return cleanRecords(ref, records), nil
}
