package quizrunner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LLMLogger writes a transcript of one question generation run to its own file
type LLMLogger struct {
	file *os.File
	mu   sync.Mutex
}

// NewLLMLogger creates <dir>/<timestamp>-<topic>.log and writes the request header
func NewLLMLogger(dir string, req GenerationRequest) (*LLMLogger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	name := fmt.Sprintf("%s-%s.log", time.Now().Format("20060102-150405"), slug(req.Topic))
	file, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	logger := &LLMLogger{file: file}

	logger.Logf("=== Question Generation Log ===\n")
	logger.Logf("Topic: %s\n", req.Topic)
	logger.Logf("Number of Questions: %d\n", req.NumQuestions)
	if req.Difficulty != "" {
		logger.Logf("Difficulty: %s\n", req.Difficulty)
	}
	logger.Logf("Started: %s\n", time.Now().Format(time.RFC3339))
	logger.Logf("========================\n\n")

	return logger, nil
}

// Logf writes a formatted log entry with timestamp. A nil logger discards everything.
func (ll *LLMLogger) Logf(format string, args ...interface{}) {
	if ll == nil {
		return
	}
	ll.mu.Lock()
	defer ll.mu.Unlock()
	ll.write(format, args...)
}

func (ll *LLMLogger) write(format string, args ...interface{}) {
	if ll.file == nil {
		return
	}
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Fprintf(ll.file, "[%s] %s", timestamp, fmt.Sprintf(format, args...))
	ll.file.Sync()
}

// LogLLMRequest logs the prompt sent to the model
func (ll *LLMLogger) LogLLMRequest(prompt string) {
	ll.Logf("=== LLM REQUEST ===\n")
	ll.Logf("Prompt:\n%s\n", prompt)
	ll.Logf("===================\n\n")
}

// LogLLMResponse logs the raw tool arguments returned by the model
func (ll *LLMLogger) LogLLMResponse(response string) {
	ll.Logf("=== LLM RESPONSE ===\n")
	ll.Logf("Response:\n%s\n", response)
	ll.Logf("====================\n\n")
}

// Close closes the log file
func (ll *LLMLogger) Close() error {
	if ll == nil {
		return nil
	}
	ll.mu.Lock()
	defer ll.mu.Unlock()

	if ll.file == nil {
		return nil
	}
	ll.write("=== Generation Complete ===\n")
	ll.write("Completed: %s\n", time.Now().Format(time.RFC3339))
	err := ll.file.Close()
	ll.file = nil
	return err
}

func slug(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case sb.Len() > 0 && !strings.HasSuffix(sb.String(), "-"):
			sb.WriteByte('-')
		}
	}
	out := strings.TrimSuffix(sb.String(), "-")
	if out == "" {
		return "quiz"
	}
	if len(out) > 40 {
		out = out[:40]
	}
	return out
}
