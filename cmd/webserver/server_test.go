package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"quizrunner"
	"quizrunner/config"

	"github.com/gin-gonic/gin"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func noShuffle(n int, swap func(i, j int)) {}

type jsonRecord struct {
	Question string   `json:"question"`
	Correct  string   `json:"correct"`
	Wrong    []string `json:"wrong"`
}

func writeQuestions(t *testing.T, n int) string {
	t.Helper()
	records := make([]jsonRecord, n)
	for i := range records {
		records[i] = jsonRecord{
			Question: fmt.Sprintf("Question %d", i),
			Correct:  fmt.Sprintf("right %d", i),
			Wrong:    []string{fmt.Sprintf("wrong %d a", i), fmt.Sprintf("wrong %d b", i), fmt.Sprintf("wrong %d c", i)},
		}
	}
	data, err := json.Marshal(records)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "questions.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

type testEnv struct {
	srv    *httptest.Server
	client *http.Client
	store  *quizrunner.MemoryStore
}

func newTestEnv(t *testing.T, numQuestions int) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Quiz.DefaultSource = writeQuestions(t, numQuestions)
	cfg.Quiz.Sources = []config.QuizSource{
		{Name: "Default", Ref: cfg.Quiz.DefaultSource},
		{Name: "Empty", Ref: writeEmptyQuestions(t)},
	}

	store := quizrunner.NewMemoryStore(time.Hour)
	sources := &quizrunner.SourceRouter{JSON: quizrunner.JSONSource{}}
	runner := quizrunner.NewRunner(store, sources, quizrunner.WithShuffle(noShuffle))

	server, err := NewServer(cfg, runner)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	srv := httptest.NewServer(server.Routes())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &testEnv{srv: srv, client: &http.Client{Jar: jar}, store: store}
}

func writeEmptyQuestions(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "empty.json")
	if err := os.WriteFile(path, []byte("[]"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// do sends a request, follows redirects and returns the final path and body
func (e *testEnv) do(t *testing.T, method, path string, form url.Values) (string, string) {
	t.Helper()

	var resp *http.Response
	var err error
	if method == http.MethodPost {
		resp, err = e.client.PostForm(e.srv.URL+path, form)
	} else {
		resp, err = e.client.Get(e.srv.URL + path)
	}
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("%s %s: expected 200, got %d: %s", method, path, resp.StatusCode, body)
	}
	return resp.Request.URL.Path, string(body)
}

func answer(index int, option, nav string) url.Values {
	return url.Values{
		"index":  {fmt.Sprint(index)},
		"answer": {option},
		"nav":    {nav},
	}
}

func TestHomePage(t *testing.T) {
	env := newTestEnv(t, 2)

	path, body := env.do(t, http.MethodGet, "/", nil)
	if path != "/" {
		t.Errorf("Expected /, got %s", path)
	}
	for _, want := range []string{"Start exam", "Start practice", "Default", "Empty"} {
		if !strings.Contains(body, want) {
			t.Errorf("Home page is missing %q", want)
		}
	}

	resp, err := env.client.Get(env.srv.URL + "/nowhere")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for an unknown path, got %d", resp.StatusCode)
	}
}

func TestExamFlow(t *testing.T) {
	env := newTestEnv(t, 3)

	path, body := env.do(t, http.MethodPost, "/start/exam", url.Values{"source": {"Default"}})
	if path != "/question" {
		t.Fatalf("Expected /question after start, got %s", path)
	}
	if !strings.Contains(body, "Question 1 of 3") || !strings.Contains(body, "Question 0") {
		t.Errorf("Unexpected first question page: %s", body)
	}

	env.do(t, http.MethodPost, "/question", answer(0, "right 0", "next"))
	env.do(t, http.MethodPost, "/question", answer(1, "right 1", "next"))
	path, body = env.do(t, http.MethodPost, "/question", answer(2, "wrong 2 a", "next"))

	if path != "/result" {
		t.Fatalf("Expected /result after the last question, got %s", path)
	}
	if !strings.Contains(body, "2 out of 3 correct") {
		t.Errorf("Expected score 2/3 on the result page: %s", body)
	}
	if !strings.Contains(body, "Questions from") || !strings.Contains(body, "questions.json") {
		t.Errorf("Expected the question source on the result page: %s", body)
	}
	if env.store.Size() != 0 {
		t.Errorf("Finished quiz should be reclaimed, size %d", env.store.Size())
	}

	// The result stays visible from the cookie snapshot
	path, body = env.do(t, http.MethodGet, "/result", nil)
	if path != "/result" || !strings.Contains(body, "2 out of 3 correct") {
		t.Errorf("Expected the kept result, got %s: %s", path, body)
	}

	// With the quiz gone, the question page sends the user home
	path, _ = env.do(t, http.MethodGet, "/question", nil)
	if path != "/" {
		t.Errorf("Expected redirect home, got %s", path)
	}
}

func TestPracticeFlow(t *testing.T) {
	env := newTestEnv(t, 2)

	env.do(t, http.MethodPost, "/start/practice", nil)

	_, body := env.do(t, http.MethodPost, "/question", answer(0, "wrong 0 b", ""))
	if !strings.Contains(body, "Wrong.") {
		t.Errorf("Expected wrong feedback: %s", body)
	}
	if !strings.Contains(body, "status-wrong") {
		t.Errorf("Expected progress marked wrong: %s", body)
	}

	_, body = env.do(t, http.MethodPost, "/question", answer(0, "", "next"))
	if !strings.Contains(body, "Question 2 of 2") {
		t.Errorf("Expected second question: %s", body)
	}

	path, body := env.do(t, http.MethodPost, "/question", answer(1, "right 1", "next"))
	if path != "/question" {
		t.Errorf("Practice completion is shown on /question, got %s", path)
	}
	if !strings.Contains(body, "Practice complete") || !strings.Contains(body, "all 2 questions") {
		t.Errorf("Expected the done page: %s", body)
	}
	if strings.Contains(body, "out of") {
		t.Errorf("Practice completion must not show a score: %s", body)
	}

	// The acknowledgment stays reachable from the cookie snapshot
	path, body = env.do(t, http.MethodGet, "/result", nil)
	if path != "/result" || !strings.Contains(body, "Practice complete") {
		t.Errorf("Expected the done page on /result, got %s: %s", path, body)
	}
}

func TestResultHiddenMidQuiz(t *testing.T) {
	for _, mode := range []string{"exam", "practice"} {
		t.Run(mode, func(t *testing.T) {
			env := newTestEnv(t, 2)
			_, body := env.do(t, http.MethodPost, "/start/"+mode, nil)
			if strings.Contains(body, `href="/result"`) {
				t.Errorf("The question page must not link to a running score: %s", body)
			}

			env.do(t, http.MethodPost, "/question", answer(0, "right 0", "next"))
			path, body := env.do(t, http.MethodGet, "/result", nil)
			if path != "/question" || strings.Contains(body, "out of") {
				t.Errorf("Expected to stay on the quiz without a score, got %s", path)
			}
			if env.store.Size() != 1 {
				t.Errorf("A running quiz must be kept, size %d", env.store.Size())
			}
		})
	}
}

func TestSessionCookieSecureFlag(t *testing.T) {
	for _, secure := range []bool{false, true} {
		t.Run(fmt.Sprint("secure=", secure), func(t *testing.T) {
			cfg := config.Default()
			cfg.Server.SecureCookies = secure
			cfg.Quiz.DefaultSource = writeQuestions(t, 1)

			sources := &quizrunner.SourceRouter{JSON: quizrunner.JSONSource{}}
			runner := quizrunner.NewRunner(quizrunner.NewMemoryStore(time.Hour), sources, quizrunner.WithShuffle(noShuffle))
			server, err := NewServer(cfg, runner)
			if err != nil {
				t.Fatal(err)
			}

			rec := httptest.NewRecorder()
			server.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/start/exam", nil))

			var found bool
			for _, c := range rec.Result().Cookies() {
				if c.Name != sessionName {
					continue
				}
				found = true
				if c.Secure != secure {
					t.Errorf("Expected Secure=%v, got %v", secure, c.Secure)
				}
				if !c.HttpOnly {
					t.Error("Expected an HttpOnly session cookie")
				}
			}
			if !found {
				t.Fatalf("No session cookie set: %v", rec.Header())
			}
		})
	}
}

func TestNavigation(t *testing.T) {
	env := newTestEnv(t, 3)
	env.do(t, http.MethodPost, "/start/exam", nil)

	_, body := env.do(t, http.MethodGet, "/goto/5", nil)
	if !strings.Contains(body, "Question 3 of 3") {
		t.Errorf("Expected jump clamped to the last question: %s", body)
	}

	_, body = env.do(t, http.MethodPost, "/question", answer(2, "", "back"))
	if !strings.Contains(body, "Question 2 of 3") {
		t.Errorf("Expected back to question 2: %s", body)
	}

	path, _ := env.do(t, http.MethodPost, "/question", answer(1, "right 1", "home"))
	if path != "/" {
		t.Errorf("Expected home, got %s", path)
	}

	_, body = env.do(t, http.MethodGet, "/question", nil)
	if !strings.Contains(body, "Question 2 of 3") || !strings.Contains(body, `value="right 1" checked`) {
		t.Errorf("Expected the saved answer after returning: %s", body)
	}
}

func TestTamperedInput(t *testing.T) {
	env := newTestEnv(t, 2)
	env.do(t, http.MethodPost, "/start/exam", nil)

	cases := []url.Values{
		{"index": {"abc"}, "answer": {"right 0"}, "nav": {"next"}},
		answer(9, "right 0", "next"),
		answer(0, "forged option", "next"),
		answer(0, "", "sideways"),
	}
	for _, form := range cases {
		path, body := env.do(t, http.MethodPost, "/question", form)
		if path != "/question" || !strings.Contains(body, "Question 1 of 2") {
			t.Errorf("Form %v: expected to stay on question 1, got %s", form, path)
		}
	}

	path, body := env.do(t, http.MethodGet, "/goto/x", nil)
	if path != "/question" || !strings.Contains(body, "Question 1 of 2") {
		t.Errorf("Bad jump target should be ignored, got %s", path)
	}
}

func TestStartErrors(t *testing.T) {
	env := newTestEnv(t, 2)

	path, body := env.do(t, http.MethodPost, "/start/marathon", nil)
	if path != "/" || !strings.Contains(body, "Unknown quiz mode") {
		t.Errorf("Expected unknown mode error on home, got %s: %s", path, body)
	}

	path, body = env.do(t, http.MethodPost, "/start/exam", url.Values{"source": {"Empty"}})
	if path != "/" || !strings.Contains(body, "no questions") {
		t.Errorf("Expected empty bank error on home, got %s: %s", path, body)
	}

	// Flashes are shown once
	_, body = env.do(t, http.MethodGet, "/", nil)
	if strings.Contains(body, "no questions") {
		t.Error("Flash message shown twice")
	}
}

func TestRestartReplacesQuiz(t *testing.T) {
	env := newTestEnv(t, 2)

	env.do(t, http.MethodPost, "/start/exam", nil)
	env.do(t, http.MethodPost, "/start/practice", nil)

	if env.store.Size() != 1 {
		t.Errorf("Expected the first quiz to be dropped, size %d", env.store.Size())
	}
}

func TestNoSessionRedirectsHome(t *testing.T) {
	env := newTestEnv(t, 2)

	for _, path := range []string{"/question", "/result", "/goto/1"} {
		got, _ := env.do(t, http.MethodGet, path, nil)
		if got != "/" {
			t.Errorf("%s without a quiz: expected redirect home, got %s", path, got)
		}
	}
}
