package main

import (
	"embed"
	"encoding/gob"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strconv"
	"strings"

	"quizrunner"
	"quizrunner/config"

	"github.com/gorilla/sessions"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	sessionName = "quiz-session"
	keyHandle   = "handle"
	keySnapshot = "snapshot"
)

type Server struct {
	runner    *quizrunner.Runner
	store     sessions.Store
	templates map[string]*template.Template
	cfg       *config.Config
}

func init() {
	gob.Register(quizrunner.Result{})
}

// NewServer parses the page templates and sets up the cookie store
func NewServer(cfg *config.Config, runner *quizrunner.Runner) (*Server, error) {
	store := sessions.NewCookieStore([]byte(cfg.Server.SessionSecret))
	store.Options.HttpOnly = true
	store.Options.SameSite = http.SameSiteLaxMode
	store.Options.Secure = cfg.Server.SecureCookies
	store.MaxAge(int(cfg.Store.TTL.Seconds()))

	funcMap := template.FuncMap{
		"add": func(a, b int) int {
			return a + b
		},
		"letter": func(i int) string {
			return string(rune('A' + i))
		},
		"deref": func(b *bool) bool {
			return b != nil && *b
		},
		"percent": func(score, total int) float64 {
			if total == 0 {
				return 0
			}
			return float64(score) / float64(total) * 100
		},
	}

	templates := make(map[string]*template.Template)
	for _, name := range []string{"home", "question", "done", "result"} {
		tmpl, err := template.New(name).Funcs(funcMap).ParseFS(templateFS, "templates/base.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		templates[name] = tmpl
	}

	return &Server{
		runner:    runner,
		store:     store,
		templates: templates,
		cfg:       cfg,
	}, nil
}

// Routes returns the handler serving the HTML pages and the JSON API
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome)
	mux.HandleFunc("/start/", s.handleStart)
	mux.HandleFunc("/question", s.handleQuestion)
	mux.HandleFunc("/goto/", s.handleGoto)
	mux.HandleFunc("/result", s.handleResult)
	mux.Handle("/api/", newAPIRouter(s.runner, s.cfg))
	return recoverer(mux)
}

// recoverer keeps a panic in one request from taking the server down
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("Panic recovered on %s: %v", r.URL.Path, err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	session, _ := s.store.Get(r, sessionName)
	flashes := session.Flashes()
	if len(flashes) > 0 {
		s.saveSession(w, r, session)
	}

	s.render(w, "home", map[string]interface{}{
		"Sources": s.cfg.Quiz.Sources,
		"Errors":  flashes,
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	session, _ := s.store.Get(r, sessionName)

	mode, err := quizrunner.ParseMode(strings.TrimPrefix(r.URL.Path, "/start/"))
	if err != nil {
		s.flashAndGoHome(w, r, session, "Unknown quiz mode")
		return
	}

	// Starting over replaces whatever quiz this browser had
	if old, ok := session.Values[keyHandle].(string); ok {
		if err := s.runner.Abandon(r.Context(), old); err != nil {
			log.Printf("Failed to drop previous quiz %s: %v", old, err)
		}
	}
	delete(session.Values, keyHandle)
	delete(session.Values, keySnapshot)

	ref := s.cfg.SourceRef(r.FormValue("source"))
	handle, err := s.runner.Start(r.Context(), mode, ref)
	if err != nil {
		log.Printf("Failed to start quiz from %s: %v", ref, err)
		if errors.Is(err, quizrunner.ErrNoQuestions) {
			s.flashAndGoHome(w, r, session, "Cannot start: the question bank has no questions")
			return
		}
		s.flashAndGoHome(w, r, session, "Cannot start: the questions could not be loaded")
		return
	}

	session.Values[keyHandle] = handle
	s.saveSession(w, r, session)
	http.Redirect(w, r, "/question", http.StatusSeeOther)
}

func (s *Server) handleQuestion(w http.ResponseWriter, r *http.Request) {
	session, _ := s.store.Get(r, sessionName)
	handle, _ := session.Values[keyHandle].(string)

	switch r.Method {
	case http.MethodGet:
		s.showQuestion(w, r, session, handle)
	case http.MethodPost:
		s.answerQuestion(w, r, handle)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) showQuestion(w http.ResponseWriter, r *http.Request, session *sessions.Session, handle string) {
	view, err := s.runner.CurrentView(r.Context(), handle)
	if err != nil {
		s.handleRunnerError(w, r, err)
		return
	}

	if view.Complete {
		if view.Mode == quizrunner.ModeExam {
			http.Redirect(w, r, "/result", http.StatusSeeOther)
			return
		}

		result, err := s.runner.Result(r.Context(), handle)
		if err != nil {
			s.handleRunnerError(w, r, err)
			return
		}
		s.keepSnapshot(w, r, session, result)
		s.render(w, "done", map[string]interface{}{
			"Total":  result.Total,
			"Source": result.Source,
		})
		return
	}

	s.render(w, "question", map[string]interface{}{
		"View": view,
	})
}

func (s *Server) answerQuestion(w http.ResponseWriter, r *http.Request, handle string) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	index, err := strconv.Atoi(r.FormValue("index"))
	if err != nil {
		http.Redirect(w, r, "/question", http.StatusSeeOther)
		return
	}

	nav := r.FormValue("nav")
	dir := quizrunner.Direction(nav)
	if nav == "home" {
		dir = quizrunner.DirectionNone
	}

	err = s.runner.SubmitAndNavigate(r.Context(), handle, index, r.FormValue("answer"), dir)
	if err != nil {
		s.handleRunnerError(w, r, err)
		return
	}

	if nav == "home" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/question", http.StatusSeeOther)
}

func (s *Server) handleGoto(w http.ResponseWriter, r *http.Request) {
	session, _ := s.store.Get(r, sessionName)
	handle, _ := session.Values[keyHandle].(string)

	target, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/goto/"))
	if err != nil {
		http.Redirect(w, r, "/question", http.StatusSeeOther)
		return
	}

	if err := s.runner.Jump(r.Context(), handle, target); err != nil {
		s.handleRunnerError(w, r, err)
		return
	}
	http.Redirect(w, r, "/question", http.StatusSeeOther)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	session, _ := s.store.Get(r, sessionName)
	handle, _ := session.Values[keyHandle].(string)

	result, err := s.runner.Result(r.Context(), handle)
	switch {
	case errors.Is(err, quizrunner.ErrSessionExpired):
		// The quiz is gone; show the snapshot kept in the cookie, if any
		snapshot, ok := session.Values[keySnapshot].(quizrunner.Result)
		if !ok {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		result = &snapshot
	case err != nil:
		s.handleRunnerError(w, r, err)
		return
	case !result.Complete:
		// No score is shown while the quiz is running
		http.Redirect(w, r, "/question", http.StatusSeeOther)
		return
	default:
		s.keepSnapshot(w, r, session, result)
	}

	// Practice quizzes are acknowledged without a score
	if result.Mode == quizrunner.ModePractice {
		s.render(w, "done", map[string]interface{}{
			"Total":  result.Total,
			"Source": result.Source,
		})
		return
	}

	s.render(w, "result", map[string]interface{}{
		"Result": result,
	})
}

// handleRunnerError turns state machine errors into redirects. Nothing a single quiz
// does should surface as a server error except store failures.
func (s *Server) handleRunnerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, quizrunner.ErrSessionExpired):
		http.Redirect(w, r, "/", http.StatusSeeOther)
	case errors.Is(err, quizrunner.ErrQuizComplete),
		errors.Is(err, quizrunner.ErrIndexOutOfRange),
		errors.Is(err, quizrunner.ErrInvalidOption),
		errors.Is(err, quizrunner.ErrInvalidDirection):
		quizrunner.VerboseLog("Rejected request on %s: %v", r.URL.Path, err)
		http.Redirect(w, r, "/question", http.StatusSeeOther)
	default:
		log.Printf("Quiz error on %s: %v", r.URL.Path, err)
		http.Error(w, "Quiz error", http.StatusInternalServerError)
	}
}

// keepSnapshot stores the final result in the cookie and forgets the reclaimed handle
func (s *Server) keepSnapshot(w http.ResponseWriter, r *http.Request, session *sessions.Session, result *quizrunner.Result) {
	session.Values[keySnapshot] = *result
	delete(session.Values, keyHandle)
	s.saveSession(w, r, session)
}

func (s *Server) flashAndGoHome(w http.ResponseWriter, r *http.Request, session *sessions.Session, msg string) {
	session.AddFlash(msg)
	s.saveSession(w, r, session)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) saveSession(w http.ResponseWriter, r *http.Request, session *sessions.Session) {
	if err := session.Save(r, w); err != nil {
		log.Printf("Session save error: %v", err)
	}
}

func (s *Server) render(w http.ResponseWriter, name string, data map[string]interface{}) {
	err := s.templates[name].ExecuteTemplate(w, "base.html", data)
	if err != nil {
		log.Printf("Template error in %s: %v", name, err)
		http.Error(w, "Template error", http.StatusInternalServerError)
	}
}
