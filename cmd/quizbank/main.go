package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"quizrunner"
	"quizrunner/config"
	"quizrunner/internal/app"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to a YAML config file")
		bank       = flag.String("bank", "", "Name of the question bank to import into")
		from       = flag.String("from", "", "Source reference to import (xlsx, json or openai:<topic>)")
		list       = flag.Bool("list", false, "List stored question banks")
		export     = flag.String("export", "", "Print the questions of this bank as JSON")
		verbose    = flag.Bool("verbose", false, "Enable verbose output")
	)

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg.Store.Backend = "sqlite"
	cfg.Verbose = cfg.Verbose || *verbose

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	switch {
	case *list:
		err = listBanks(ctx, a.DB)
	case *export != "":
		err = exportBank(ctx, a.DB, *export)
	case *bank != "" && *from != "":
		err = importBank(ctx, a, *bank, *from)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func listBanks(ctx context.Context, db *quizrunner.DB) error {
	banks, err := db.GetBanks(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("📚 Found %d question banks\n", len(banks))
	for _, b := range banks {
		fmt.Printf("  - %s (%d questions, start with sqlite:%s)\n", b.Name, b.NumQuestions, b.Name)
	}
	return nil
}

func exportBank(ctx context.Context, db *quizrunner.DB, bank string) error {
	questions, err := db.GetQuestions(ctx, bank)
	if err != nil {
		return err
	}

	records := make([]quizrunner.QuestionRecord, 0, len(questions))
	for _, q := range questions {
		records = append(records, q.Record())
	}

	output, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal bank: %w", err)
	}
	fmt.Println(string(output))
	return nil
}

// importBank loads from through the same sources the quiz server uses, so a
// spreadsheet or a generated quiz can be frozen into a reusable bank.
func importBank(ctx context.Context, a *app.App, bank, from string) error {
	fmt.Printf("⏳ Loading questions from %s\n", from)

	records, err := a.Sources.Load(ctx, from)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", from, err)
	}
	if len(records) == 0 {
		return quizrunner.ErrNoQuestions
	}

	if err := a.DB.ReplaceBank(ctx, bank, records); err != nil {
		return err
	}

	fmt.Printf("✅ Stored %d questions in bank %q\n", len(records), bank)
	return nil
}
