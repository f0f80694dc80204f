// Command runscope evaluates recorded robot-simulation runs against
// scenario policies and produces diagnoses, charts, and spoken briefings.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/halcyon-robotics/runscope/api/diagnosis"
	"github.com/halcyon-robotics/runscope/internal/audit"
	"github.com/halcyon-robotics/runscope/internal/engine/compare"
	"github.com/halcyon-robotics/runscope/internal/engine/diagnose"
	"github.com/halcyon-robotics/runscope/internal/engine/policy"
	"github.com/halcyon-robotics/runscope/internal/engine/score"
	"github.com/halcyon-robotics/runscope/internal/engine/summarize"
	"github.com/halcyon-robotics/runscope/internal/render"
	"github.com/halcyon-robotics/runscope/internal/replay"
	"github.com/halcyon-robotics/runscope/internal/server"
	"github.com/halcyon-robotics/runscope/internal/tooling/validation"
	"github.com/halcyon-robotics/runscope/providers/diagnosis/anthropic"
	"github.com/halcyon-robotics/runscope/providers/diagnosis/gemini"
	"github.com/halcyon-robotics/runscope/providers/speech/polly"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		return
	}

	switch os.Args[1] {
	case "score":
		if err := runScore(os.Args[2:]); err != nil {
			fail(err)
		}
	case "compare":
		if err := runCompare(os.Args[2:]); err != nil {
			fail(err)
		}
	case "diagnose":
		if err := runDiagnose(os.Args[2:]); err != nil {
			fail(err)
		}
	case "render":
		if err := runRender(os.Args[2:]); err != nil {
			fail(err)
		}
	case "brief":
		if err := runBrief(os.Args[2:]); err != nil {
			fail(err)
		}
	case "serve":
		if err := runServe(os.Args[2:]); err != nil {
			fail(err)
		}
	case "validate-contracts":
		fixtureRoot := filepath.Join("test", "contract", "fixtures")
		if len(os.Args) >= 3 {
			fixtureRoot = os.Args[2]
		}
		summary, err := validation.ValidateDiagnosisFixtures(fixtureRoot)
		if err != nil {
			fail(err)
		}
		fmt.Println(validation.RenderSummary(summary))
		if summary.Failed > 0 {
			os.Exit(1)
		}
	default:
		printUsage()
		os.Exit(2)
	}
}

func runScore(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: runscope score <runs_dir> <run_label> [scenario] [variant]")
	}
	library, err := replay.LoadDir(args[0])
	if err != nil {
		return err
	}
	record, ok := library.Get(args[1])
	if !ok {
		return fmt.Errorf("unknown run: %s", args[1])
	}
	scenarioKey := argAt(args, 2, policy.DefaultKey)
	variant := policy.Variant(argAt(args, 3, string(policy.VariantThreshold)))
	result := score.ScoreWithPolicy(record, policy.LookupVariant(scenarioKey, variant))
	return printJSON(result)
}

func runCompare(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: runscope compare <runs_dir> <primary> <other> [scenario]")
	}
	library, err := replay.LoadDir(args[0])
	if err != nil {
		return err
	}
	primary, ok := library.Get(args[1])
	if !ok {
		return fmt.Errorf("unknown run: %s", args[1])
	}
	other, ok := library.Get(args[2])
	if !ok {
		return fmt.Errorf("unknown run: %s", args[2])
	}
	scenarioKey := argAt(args, 3, policy.DefaultKey)
	delta, err := compare.Compare(
		score.Score(primary, scenarioKey),
		score.Score(other, scenarioKey),
		primary, other,
	)
	if err != nil {
		return err
	}
	return printJSON(delta)
}

func runDiagnose(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: runscope diagnose <runs_dir> <run_label> [scenario] [compare_label]")
	}
	library, err := replay.LoadDir(args[0])
	if err != nil {
		return err
	}
	record, ok := library.Get(args[1])
	if !ok {
		return fmt.Errorf("unknown run: %s", args[1])
	}
	request := diagnosis.Request{
		ScenarioKey: argAt(args, 2, policy.DefaultKey),
		RunSummary:  summarize.Summarize(record),
	}
	if compareLabel := argAt(args, 3, ""); compareLabel != "" {
		compareRecord, ok := library.Get(compareLabel)
		if !ok {
			return fmt.Errorf("unknown run: %s", compareLabel)
		}
		compareSummary := summarize.Summarize(compareRecord)
		request.CompareSummary = &compareSummary
	}

	var result diagnosis.Result
	if generator, err := resolveGenerator(); err == nil {
		result, err = generator.Diagnose(context.Background(), request)
		if err == nil {
			return printJSON(result)
		}
		// Model-path conditions are reported once, then the rule-based
		// strategy takes over; a verdict still reaches the operator.
		fmt.Fprintf(os.Stderr, "model diagnosis unavailable (%v); falling back to rules\n", err)
	}
	result, err = (diagnose.RuleBased{}).Diagnose(context.Background(), request)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runRender(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: runscope render <runs_dir> <run_label> <out.html> [other_label]")
	}
	library, err := replay.LoadDir(args[0])
	if err != nil {
		return err
	}
	record, ok := library.Get(args[1])
	if !ok {
		return fmt.Errorf("unknown run: %s", args[1])
	}
	out, err := os.Create(args[2])
	if err != nil {
		return err
	}
	defer out.Close()

	if otherLabel := argAt(args, 3, ""); otherLabel != "" {
		other, ok := library.Get(otherLabel)
		if !ok {
			return fmt.Errorf("unknown run: %s", otherLabel)
		}
		return render.Trajectory(out, record, other)
	}
	return render.Trajectory(out, record)
}

func runBrief(args []string) error {
	if len(args) < 4 {
		return fmt.Errorf("usage: runscope brief <runs_dir> <run_label> <scenario> <out.mp3>")
	}
	library, err := replay.LoadDir(args[0])
	if err != nil {
		return err
	}
	record, ok := library.Get(args[1])
	if !ok {
		return fmt.Errorf("unknown run: %s", args[1])
	}
	request := diagnosis.Request{
		ScenarioKey: args[2],
		RunSummary:  summarize.Summarize(record),
	}
	result, err := (diagnose.RuleBased{}).Diagnose(context.Background(), request)
	if err != nil {
		return err
	}
	audio, err := polly.NewFromEnv().SynthesizeBriefing(context.Background(), result)
	if err != nil {
		return err
	}
	return os.WriteFile(args[3], audio, 0o644)
}

func runServe(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: runscope serve <runs_dir> [addr]")
	}
	library, err := replay.LoadDir(args[0])
	if err != nil {
		return err
	}
	addr := argAt(args, 1, ":8080")
	logger := log.New(os.Stderr, "runscope: ", log.LstdFlags)

	srv := &server.Server{
		Library: library,
		Rules:   diagnose.RuleBased{},
		Logger:  logger,
	}
	if model, err := resolveGenerator(); err == nil {
		srv.Model = model
	}
	if dbPath := os.Getenv("RUNSCOPE_AUDIT_DB"); dbPath != "" {
		store, err := audit.Open(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
		srv.Audit = store
	}

	logger.Printf("serving %d runs on %s", len(library.Runs()), addr)
	return http.ListenAndServe(addr, srv.Handler())
}

// resolveGenerator picks the model-backed provider from configuration.
// An unset provider is an error the callers translate into rule-based
// operation.
func resolveGenerator() (diagnose.Generator, error) {
	switch os.Getenv("RUNSCOPE_DIAGNOSIS_PROVIDER") {
	case "anthropic":
		transport, err := anthropic.NewAdapterFromEnv()
		if err != nil {
			return nil, err
		}
		return diagnose.NewModelBacked(transport)
	case "gemini":
		transport, err := gemini.NewAdapterFromEnv()
		if err != nil {
			return nil, err
		}
		return diagnose.NewModelBacked(transport)
	case "":
		return nil, fmt.Errorf("RUNSCOPE_DIAGNOSIS_PROVIDER is not set")
	default:
		return nil, fmt.Errorf("unknown diagnosis provider %q", os.Getenv("RUNSCOPE_DIAGNOSIS_PROVIDER"))
	}
}

func argAt(args []string, index int, fallback string) string {
	if index < len(args) {
		return args[index]
	}
	return fallback
}

func printJSON(payload any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "runscope: %v\n", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Println(`runscope <command>

commands:
  score              score <runs_dir> <run_label> [scenario] [variant]
  compare            compare <runs_dir> <primary> <other> [scenario]
  diagnose           diagnose <runs_dir> <run_label> [scenario] [compare_label]
  render             render <runs_dir> <run_label> <out.html> [other_label]
  brief              brief <runs_dir> <run_label> <scenario> <out.mp3>
  serve              serve <runs_dir> [addr]
  validate-contracts validate-contracts [fixtures_root]`)
}
