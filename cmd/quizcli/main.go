package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"quizrunner"
	"quizrunner/config"
	"quizrunner/internal/app"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to a YAML config file")
		source     = flag.String("source", "", "Question source reference (default: configured default source)")
		mode       = flag.String("mode", "practice", "Quiz mode (exam or practice)")
		verbose    = flag.Bool("verbose", false, "Enable verbose debugging output")
	)

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	// A terminal run never outlives the process, so keep sessions in memory
	cfg.Store.Backend = "memory"
	cfg.Verbose = cfg.Verbose || *verbose

	quizMode, err := quizrunner.ParseMode(*mode)
	if err != nil {
		log.Fatal(err)
	}

	ref := *source
	if ref == "" {
		ref = cfg.Quiz.DefaultSource
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	fmt.Printf("🎯 Loading %s quiz from %s\n", quizMode, ref)
	handle, err := a.Runner.Start(ctx, quizMode, ref)
	if err != nil {
		log.Fatalf("Failed to start quiz: %v", err)
	}

	if err := playQuiz(ctx, a.Runner, handle, os.Stdin, os.Stdout); err != nil {
		log.Fatalf("Quiz aborted: %v", err)
	}
}

// playQuiz drives one quiz from a line-oriented terminal. Commands:
//
//	A-D     answer the current question and move on
//	n, p    next or previous question without answering
//	g <n>   jump to question n
//	q       quit
func playQuiz(ctx context.Context, runner *quizrunner.Runner, handle string, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)

	for {
		view, err := runner.CurrentView(ctx, handle)
		if err != nil {
			return err
		}
		if view.Complete {
			break
		}

		printQuestion(out, view)
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())

		err = handleInput(ctx, runner, handle, view, input, out)
		if errors.Is(err, errQuit) {
			return runner.Abandon(ctx, handle)
		}
		if err != nil {
			if errors.Is(err, quizrunner.ErrSessionExpired) {
				return err
			}
			fmt.Fprintf(out, "⚠️  %v\n", err)
		}
		fmt.Fprintln(out)
	}

	result, err := runner.Result(ctx, handle)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "🎉 Quiz completed!")
	if result.Mode == quizrunner.ModeExam {
		percentage := float64(result.Score) / float64(result.Total) * 100
		fmt.Fprintf(out, "🏆 Score: %d/%d (%.1f%%)\n", result.Score, result.Total, percentage)
	} else {
		fmt.Fprintf(out, "📚 You worked through all %d questions.\n", result.Total)
	}
	return nil
}

var errQuit = errors.New("quit")

func handleInput(ctx context.Context, runner *quizrunner.Runner, handle string, view *quizrunner.View, input string, out io.Writer) error {
	// Option letters win over commands, so no command may be a single letter A-D
	if len(input) == 1 {
		if choice := strings.Index("ABCD", strings.ToUpper(input)); choice >= 0 && choice < len(view.Options) {
			return answer(ctx, runner, handle, view, view.Options[choice], out)
		}
	}

	cmd, arg, _ := strings.Cut(input, " ")
	switch strings.ToLower(cmd) {
	case "q":
		return errQuit
	case "n":
		return runner.SubmitAndNavigate(ctx, handle, view.Index, "", quizrunner.DirectionNext)
	case "p":
		return runner.SubmitAndNavigate(ctx, handle, view.Index, "", quizrunner.DirectionBack)
	case "g":
		n, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil {
			return fmt.Errorf("usage: g <question number>")
		}
		return runner.Jump(ctx, handle, n-1)
	}
	return fmt.Errorf("please enter A, B, C or D (or n, p, g <n>, q)")
}

func answer(ctx context.Context, runner *quizrunner.Runner, handle string, view *quizrunner.View, selected string, out io.Writer) error {
	if err := runner.SubmitAndNavigate(ctx, handle, view.Index, selected, quizrunner.DirectionNone); err != nil {
		return err
	}

	if view.Mode == quizrunner.ModePractice {
		answered, err := runner.CurrentView(ctx, handle)
		if err != nil {
			return err
		}
		if answered.Correct != nil && *answered.Correct {
			fmt.Fprintln(out, "✅ Correct!")
		} else {
			fmt.Fprintln(out, "❌ Incorrect.")
		}
	}
	return runner.SubmitAndNavigate(ctx, handle, view.Index, "", quizrunner.DirectionNext)
}

func printQuestion(out io.Writer, view *quizrunner.View) {
	var progress strings.Builder
	for _, status := range view.Statuses {
		switch status {
		case quizrunner.StatusCorrect:
			progress.WriteString("✓")
		case quizrunner.StatusWrong:
			progress.WriteString("✗")
		case quizrunner.StatusAnswered:
			progress.WriteString("●")
		default:
			progress.WriteString("·")
		}
	}

	fmt.Fprintf(out, "[%s]\n", progress.String())
	fmt.Fprintf(out, "Question %d/%d:\n", view.Number, view.Total)
	fmt.Fprintf(out, "%s\n\n", view.Question)

	letters := []string{"A", "B", "C", "D"}
	for i, option := range view.Options {
		marker := " "
		if option == view.Selected {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s) %s\n", marker, letters[i], option)
	}
	fmt.Fprintln(out)
}
