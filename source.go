package quizrunner

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
)

// QuestionSource loads question records from a reference such as a file path or URL
type QuestionSource interface {
	Load(ctx context.Context, ref string) ([]QuestionRecord, error)
}

// SourceFunc adapts a plain function to QuestionSource
type SourceFunc func(ctx context.Context, ref string) ([]QuestionRecord, error)

// Load calls f
func (f SourceFunc) Load(ctx context.Context, ref string) ([]QuestionRecord, error) {
	return f(ctx, ref)
}

// SourceRouter picks a source based on the shape of the reference:
//
//	openai:<topic>?n=10&difficulty=easy   generated questions
//	sqlite:<bank>                         stored question bank
//	*.xlsx, or a URL with format=xlsx     spreadsheet
//	*.json                                JSON file or URL
type SourceRouter struct {
	JSON   QuestionSource
	XLSX   QuestionSource
	Bank   QuestionSource
	OpenAI QuestionSource
}

// Load dispatches ref to the matching source
func (sr *SourceRouter) Load(ctx context.Context, ref string) ([]QuestionRecord, error) {
	src, rest := sr.route(ref)
	if src == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSource, ref)
	}
	return src.Load(ctx, rest)
}

func (sr *SourceRouter) route(ref string) (QuestionSource, string) {
	if rest, ok := strings.CutPrefix(ref, "openai:"); ok {
		return sr.OpenAI, rest
	}
	if rest, ok := strings.CutPrefix(ref, "sqlite:"); ok {
		return sr.Bank, rest
	}

	lower := strings.ToLower(ref)
	path, query, _ := strings.Cut(lower, "?")
	switch {
	case strings.HasSuffix(path, ".xlsx"), strings.Contains(query, "format=xlsx"):
		return sr.XLSX, ref
	case strings.HasSuffix(path, ".json"):
		return sr.JSON, ref
	}
	return nil, ref
}

// openReference opens a local file or fetches an http(s) URL
func openReference(ctx context.Context, ref string) (io.ReadCloser, error) {
	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		f, err := os.Open(ref)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", ref, err)
		}
		return f, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", ref, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", ref, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to fetch %s: status %s", ref, resp.Status)
	}
	return resp.Body, nil
}

// cleanRecords trims fields, drops malformed rows and repeated question texts
func cleanRecords(ref string, records []QuestionRecord) []QuestionRecord {
	seen := make(map[string]bool, len(records))
	clean := make([]QuestionRecord, 0, len(records))
	for i, rec := range records {
		rec.Question = strings.TrimSpace(rec.Question)
		rec.Correct = strings.TrimSpace(rec.Correct)
		wrong := make([]string, len(rec.Wrong))
		for j, w := range rec.Wrong {
			wrong[j] = strings.TrimSpace(w)
		}
		rec.Wrong = wrong

		if err := rec.Validate(); err != nil {
			log.Printf("Skipping record %d of %s: %v", i+1, ref, err)
			continue
		}
		key := strings.ToLower(rec.Question)
		if seen[key] {
			VerboseLog("Skipping duplicate question %q in %s", rec.Question, ref)
			continue
		}
		seen[key] = true
		clean = append(clean, rec)
	}
	return clean
}

// recordFromChoices builds a record from four lettered choices and an answer key.
// The key is either a letter A-D or the text of the correct choice.
func recordFromChoices(question string, choices []string, answer string) (QuestionRecord, error) {
	if len(choices) != OptionsPerQuestion {
		return QuestionRecord{}, fmt.Errorf("expected %d choices, got %d", OptionsPerQuestion, len(choices))
	}
	answer = strings.TrimSpace(answer)

	correct := -1
	if len(answer) == 1 {
		if k := strings.Index("ABCD", strings.ToUpper(answer)); k >= 0 {
			correct = k
		}
	}
	if correct < 0 {
		for i, c := range choices {
			if strings.TrimSpace(c) == answer {
				correct = i
				break
			}
		}
	}
	if correct < 0 {
		return QuestionRecord{}, fmt.Errorf("answer key %q does not match any choice", answer)
	}

	rec := QuestionRecord{Question: question, Correct: choices[correct]}
	for i, c := range choices {
		if i != correct {
			rec.Wrong = append(rec.Wrong, c)
		}
	}
	return rec, nil
}

// BankSource loads questions from a bank stored in the sqlite database
type BankSource struct {
	db *DB
}

// NewBankSource creates a source reading from db
func NewBankSource(db *DB) *BankSource {
	return &BankSource{db: db}
}

// Load returns the questions of the bank named ref
func (bs *BankSource) Load(ctx context.Context, ref string) ([]QuestionRecord, error) {
	rows, err := bs.db.GetQuestions(ctx, ref)
	if err != nil {
		return nil, err
	}
	records := make([]QuestionRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.Record())
	}
	return cleanRecords("sqlite:"+ref, records), nil
}
