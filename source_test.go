package quizrunner

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

const sampleJSON = `[
  {"question": "Capital of France?", "correct": "Paris", "wrong": ["Lyon", "Nice", "Lille"]},
  {"question": "2 + 2?", "options": ["3", "4", "5", "22"], "answer": "B"},
  {"question": "Largest planet?", "options": ["Mars", "Venus", "Jupiter", "Earth"], "answer": "Jupiter"},
  {"question": "  capital of france?  ", "correct": "Paris", "wrong": ["Lyon", "Nice", "Lille"]},
  {"question": "Broken", "correct": "yes", "wrong": ["no"]},
  {"question": "Bad key", "options": ["a", "b", "c", "d"], "answer": "E"}
]`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestJSONSource(t *testing.T) {
	path := writeFile(t, "questions.json", sampleJSON)

	records, err := JSONSource{}.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(records) != 3 {
		t.Fatalf("Expected 3 usable records, got %d: %+v", len(records), records)
	}
	if records[1].Correct != "4" {
		t.Errorf("Letter answer key: expected correct 4, got %q", records[1].Correct)
	}
	if records[2].Correct != "Jupiter" {
		t.Errorf("Text answer key: expected correct Jupiter, got %q", records[2].Correct)
	}
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			t.Errorf("Invalid record %+v: %v", rec, err)
		}
	}
}

func TestJSONSourceErrors(t *testing.T) {
	ctx := context.Background()

	if _, err := (JSONSource{}).Load(ctx, filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected an error for a missing file")
	}

	path := writeFile(t, "broken.json", `{"question": "not an array"}`)
	if _, err := (JSONSource{}).Load(ctx, path); err == nil {
		t.Error("Expected an error for malformed JSON")
	}
}

func TestJSONSourceOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/questions.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sampleJSON))
	}))
	defer srv.Close()

	records, err := JSONSource{}.Load(context.Background(), srv.URL+"/questions.json")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("Expected 3 records, got %d", len(records))
	}

	if _, err := (JSONSource{}).Load(context.Background(), srv.URL+"/gone.json"); err == nil {
		t.Error("Expected an error for a 404 response")
	}
}

func writeXLSX(t *testing.T, rows [][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatal(err)
		}
	}

	path := filepath.Join(t.TempDir(), "questions.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs failed: %v", err)
	}
	return path
}

func TestXLSXSourceCorrectWrongLayout(t *testing.T) {
	path := writeXLSX(t, [][]interface{}{
		{"Question", "Correct", "Wrong_1", "Wrong_2", "Wrong_3"},
		{"Capital of Italy?", "Rome", "Milan", "Turin", "Naples"},
		{"Boiling point of water in C?", 100, 90, 80, 110},
		{"Missing answers", "x", "", "", ""},
	})

	records, err := XLSXSource{}.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d: %+v", len(records), records)
	}
	if records[0].Correct != "Rome" || records[0].Wrong[2] != "Naples" {
		t.Errorf("Unexpected first record: %+v", records[0])
	}
	if records[1].Correct != "100" {
		t.Errorf("Numeric cells should be read as text, got %q", records[1].Correct)
	}
}

func TestXLSXSourceChoicesLayout(t *testing.T) {
	path := writeXLSX(t, [][]interface{}{
		{"Question", "Option A", "Option B", "Option C", "Option D", "Answer"},
		{"Which is a prime?", "4", "6", "7", "9", "C"},
		{"Which is blue?", "Sky", "Grass", "Blood", "Snow", "Sky"},
	})

	records, err := XLSXSource{}.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].Correct != "7" {
		t.Errorf("Expected correct 7, got %q", records[0].Correct)
	}
	if records[1].Correct != "Sky" {
		t.Errorf("Expected correct Sky, got %q", records[1].Correct)
	}
}

func TestXLSXSourceWithoutQuestionColumn(t *testing.T) {
	path := writeXLSX(t, [][]interface{}{
		{"Prompt", "Correct"},
		{"a", "b"},
	})
	if _, err := (XLSXSource{}).Load(context.Background(), path); err == nil {
		t.Error("Expected an error for a sheet without a Question column")
	}
}

func TestHeaderColumns(t *testing.T) {
	cols := headerColumns([]string{" Question ", "Wrong 1", "wrong_2", "Option_A", "ANSWER"})

	want := map[string]int{"question": 0, "wrong_1": 1, "wrong_2": 2, "a": 3, "answer": 4}
	for name, idx := range want {
		got, ok := cols[name]
		if !ok || got != idx {
			t.Errorf("Column %q: expected %d, got %d (present=%v)", name, idx, got, ok)
		}
	}
}

func TestSourceRouter(t *testing.T) {
	var gotRef string
	stub := func(kind string) QuestionSource {
		return SourceFunc(func(ctx context.Context, ref string) ([]QuestionRecord, error) {
			gotRef = kind + "|" + ref
			return testRecords(1), nil
		})
	}
	router := &SourceRouter{
		JSON:   stub("json"),
		XLSX:   stub("xlsx"),
		Bank:   stub("bank"),
		OpenAI: stub("openai"),
	}

	tests := []struct {
		ref  string
		want string
	}{
		{"questions.json", "json|questions.json"},
		{"https://example.com/q.JSON", "json|https://example.com/q.JSON"},
		{"data/questions.xlsx", "xlsx|data/questions.xlsx"},
		{"https://docs.example.com/export?id=1&format=xlsx", "xlsx|https://docs.example.com/export?id=1&format=xlsx"},
		{"sqlite:capitals", "bank|capitals"},
		{"openai:Roman history?n=5", "openai|Roman history?n=5"},
	}

	for _, tt := range tests {
		gotRef = ""
		if _, err := router.Load(context.Background(), tt.ref); err != nil {
			t.Errorf("Load(%q) failed: %v", tt.ref, err)
			continue
		}
		if gotRef != tt.want {
			t.Errorf("Load(%q): expected %q, got %q", tt.ref, tt.want, gotRef)
		}
	}

	if _, err := router.Load(context.Background(), "questions.csv"); !errors.Is(err, ErrUnsupportedSource) {
		t.Errorf("Expected ErrUnsupportedSource, got %v", err)
	}

	withoutBank := &SourceRouter{JSON: stub("json")}
	if _, err := withoutBank.Load(context.Background(), "sqlite:capitals"); !errors.Is(err, ErrUnsupportedSource) {
		t.Errorf("Expected ErrUnsupportedSource when no bank is configured, got %v", err)
	}
}

func TestRecordFromChoices(t *testing.T) {
	choices := []string{"red", "green", "blue", "yellow"}

	tests := []struct {
		answer  string
		correct string
		wantErr bool
	}{
		{"A", "red", false},
		{"d", "yellow", false},
		{" C ", "blue", false},
		{"green", "green", false},
		{"E", "", true},
		{"purple", "", true},
	}

	for _, tt := range tests {
		rec, err := recordFromChoices("Pick a color", choices, tt.answer)
		if (err != nil) != tt.wantErr {
			t.Errorf("answer %q: error = %v, wantErr %v", tt.answer, err, tt.wantErr)
			continue
		}
		if tt.wantErr {
			continue
		}
		if rec.Correct != tt.correct {
			t.Errorf("answer %q: expected correct %q, got %q", tt.answer, tt.correct, rec.Correct)
		}
		if len(rec.Wrong) != 3 {
			t.Errorf("answer %q: expected 3 wrong options, got %v", tt.answer, rec.Wrong)
		}
	}

	if _, err := recordFromChoices("q", choices[:3], "A"); err == nil {
		t.Error("Expected an error for three choices")
	}
}

func TestCleanRecords(t *testing.T) {
	records := []QuestionRecord{
		{Question: "  Q1 ", Correct: " a ", Wrong: []string{"b ", " c", "d"}},
		{Question: "q1", Correct: "x", Wrong: []string{"y", "z", "w"}},
		{Question: "Q2", Correct: "a", Wrong: []string{"a", "c", "d"}},
		{Question: "Q3", Correct: "a", Wrong: []string{"b", "c", "d"}},
	}

	clean := cleanRecords("test", records)
	if len(clean) != 2 {
		t.Fatalf("Expected 2 records, got %d: %+v", len(clean), clean)
	}
	if clean[0].Question != "Q1" || clean[0].Correct != "a" || clean[0].Wrong[0] != "b" {
		t.Errorf("Fields were not trimmed: %+v", clean[0])
	}
	if clean[1].Question != "Q3" {
		t.Errorf("Expected Q3 second, got %q", clean[1].Question)
	}
	if records[0].Wrong[0] != "b " {
		t.Error("cleanRecords must not modify its input")
	}
}
