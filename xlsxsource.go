package quizrunner

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXSource reads questions from the first sheet of a spreadsheet.
//
// The header row names the columns. Two layouts are understood:
// Question, Correct, Wrong_1, Wrong_2, Wrong_3; or Question, A, B, C, D, Answer.
type XLSXSource struct{}

// Load reads and normalizes the questions at ref
func (XLSXSource) Load(ctx context.Context, ref string) ([]QuestionRecord, error) {
	body, err := openReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	f, err := excelize.OpenReader(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read spreadsheet %s: %w", ref, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("spreadsheet %s has no sheets", ref)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read rows of %s: %w", ref, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	cols := headerColumns(rows[0])
	if _, ok := cols["question"]; !ok {
		return nil, fmt.Errorf("spreadsheet %s has no Question column", ref)
	}

	records := make([]QuestionRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		cell := func(name string) string {
			idx, ok := cols[name]
			if !ok || idx >= len(row) {
				return ""
			}
			return row[idx]
		}

		if _, ok := cols["correct"]; ok {
			records = append(records, QuestionRecord{
				Question: cell("question"),
				Correct:  cell("correct"),
				Wrong:    []string{cell("wrong_1"), cell("wrong_2"), cell("wrong_3")},
			})
			continue
		}

		rec, err := recordFromChoices(cell("question"), []string{cell("a"), cell("b"), cell("c"), cell("d")}, cell("answer"))
		if err != nil {
			// Rows are numbered as in the spreadsheet, header is row 1
			log.Printf("Skipping row %d of %s: %v", i+2, ref, err)
			continue
		}
		records = append(records, rec)
	}

	VerboseLog("Loaded %d raw questions from %s", len(records), ref)
	return cleanRecords(ref, records), nil
}

// headerColumns maps normalized header names to column indices.
// "Wrong 1", "wrong_1" and "Option_A" style spellings are folded together.
func headerColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		name = strings.ReplaceAll(name, " ", "_")
		name = strings.TrimPrefix(name, "option_")
		cols[name] = i
	}
	return cols
}
