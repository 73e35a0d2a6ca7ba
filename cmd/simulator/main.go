// Interactive simulator for the Kite risk pipeline. Runs the full
// score / verify / escalate loop against a throwaway local database, with
// challenge answers read from the terminal. All credentials are the fixed
// simulation placeholders; nothing real is verified.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/opensource-finance/kite/internal/cache"
	"github.com/opensource-finance/kite/internal/domain"
	"github.com/opensource-finance/kite/internal/geo"
	"github.com/opensource-finance/kite/internal/repository"
	"github.com/opensource-finance/kite/internal/session"
	"github.com/opensource-finance/kite/internal/velocity"
	"github.com/opensource-finance/kite/internal/verify"
)

func main() {
	accountID := flag.String("account", "sim-account", "Account ID for the session")
	flag.Parse()

	// Keep the terminal clean; structured logs go to stderr on warnings only
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	dbPath := filepath.Join(os.TempDir(), fmt.Sprintf("kite-sim-%d.db", os.Getpid()))
	defer os.Remove(dbPath)

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: dbPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open session database: %v\n", err)
		os.Exit(1)
	}
	defer repo.Close()

	c := cache.NewLRUCache(1000)
	defer c.Close()

	resolver, err := geo.NewResolver()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build location resolver: %v\n", err)
		os.Exit(1)
	}

	verifier := verify.New(domain.SimCredentials())
	vel := velocity.NewService(repo, c)
	orchestrator := session.New(repo, c, nil, nil, resolver, verifier, vel)

	in := bufio.NewReader(os.Stdin)
	ctx := context.Background()

	fmt.Println("\n=== KITE TRANSACTION SIMULATOR ===")

	for {
		fmt.Println("\n--- New Transaction ---")

		sub := &session.Submission{
			AccountID: *accountID,
			Amount:    promptAmount(in),
			Responder: &stdinResponder{in: in},
		}

		// Low-value submissions skip the location and merchant prompts
		if sub.Amount >= session.AutoApproveBelow {
			sub.Location = promptLine(in, "Enter location (City, Region/Country): ")
			sub.Merchant = promptMerchant(in)
		}

		result, err := orchestrator.Process(ctx, sub)
		if errors.Is(err, session.ErrAccountHalted) {
			fmt.Println("\nAccount is halted. No further transactions accepted.")
			break
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "processing failed: %v\n", err)
			break
		}

		printResult(result)

		if result.Halted {
			break
		}

		again := strings.ToLower(promptLine(in, "\nAnalyze another transaction? (yes/no): "))
		if again != "yes" {
			break
		}
	}

	printSummary(ctx, orchestrator, *accountID)
}

// promptAmount loops until a positive decimal amount is entered. Bad input
// re-prompts; it never ends the session.
func promptAmount(in *bufio.Reader) float64 {
	for {
		raw := promptLine(in, "Enter amount ($): ")
		amount, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			fmt.Println("Invalid input. Enter a number.")
			continue
		}
		if amount <= 0 {
			fmt.Println("Amount must be positive.")
			continue
		}
		return amount
	}
}

// promptMerchant shows the category menu. An unrecognized choice degrades to
// Other rather than re-prompting.
func promptMerchant(in *bufio.Reader) domain.MerchantCategory {
	fmt.Println("\nMerchant Type:")
	for _, cat := range domain.MerchantCategories() {
		fmt.Printf("%d) %s\n", int(cat), cat.Label())
	}

	raw := promptLine(in, "Choose (1-7): ")
	n, err := strconv.Atoi(raw)
	if err != nil || !domain.MerchantCategory(n).Valid() {
		fmt.Println("Unrecognized choice, using Other.")
		return domain.MerchantOther
	}
	return domain.MerchantCategory(n)
}

func promptLine(in *bufio.Reader, prompt string) string {
	fmt.Print(prompt)
	line, _ := in.ReadString('\n')
	return strings.TrimSpace(line)
}

// stdinResponder answers verification challenges from the terminal. The
// state machine does all comparison; this only collects raw input.
type stdinResponder struct {
	in        *bufio.Reader
	announced bool
}

func (r *stdinResponder) Respond(ctx context.Context, field domain.ChallengeField) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if !r.announced {
		fmt.Println("\nVerification required for this transaction.")
		r.announced = true
	}

	switch field {
	case domain.FieldSurname:
		return promptLine(r.in, "Enter your last name: "), nil
	case domain.FieldDateOfBirth:
		return promptLine(r.in, "Enter your date of birth (YYYY-MM-DD): "), nil
	case domain.FieldSecurityCode:
		return promptLine(r.in, "Enter your 3-digit security code: "), nil
	case domain.FieldPIN:
		return promptLine(r.in, "Enter your 4-digit PIN: "), nil
	case domain.FieldFactorChoice:
		fmt.Println("\nChoose one verification option:")
		fmt.Println("1) Last Name")
		fmt.Println("2) Date of Birth")
		fmt.Println("3) Security Code")
		return promptLine(r.in, "Select (1-3): "), nil
	default:
		return "", fmt.Errorf("unknown challenge field %q", field)
	}
}

func printResult(result *session.Result) {
	fmt.Println("\n=== ASSESSMENT RESULT ===")
	fmt.Printf("Risk Score: %.2f\n", result.Assessment.Score)
	if result.Assessment.Decision == domain.DecisionDeclined {
		fmt.Println("Decision:   DECLINED (Failed Verification)")
	} else {
		fmt.Printf("Decision:   %s\n", result.Assessment.Decision)
	}

	fmt.Println("\nReasons:")
	for _, reason := range result.Assessment.Reasons {
		fmt.Printf(" * %s\n", reason)
	}

	for _, msg := range result.Messages {
		fmt.Println("\n" + msg)
	}
}

func printSummary(ctx context.Context, orchestrator *session.Orchestrator, accountID string) {
	summary, err := orchestrator.Summarize(ctx, accountID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build summary: %v\n", err)
		return
	}

	fmt.Println("\n=========== SESSION SUMMARY ===========")
	for i, r := range summary.Records {
		fmt.Printf("%d. Risk = %.2f  %s\n", i+1, r.Score, r.Decision)
	}
	fmt.Println("=======================================")

	if summary.FinalStatus.Terminal() {
		fmt.Printf("FINAL STATUS: %s\n", summary.FinalStatus)
	} else {
		fmt.Println("FINAL STATUS: ACTIVE")
	}

	if summary.Profile != nil {
		fmt.Println("\n====== SPENDING PATTERN SUMMARY ======")
		fmt.Printf("Average Spend:           $%.2f\n", summary.Profile.AvgAmount)
		fmt.Printf("Common Merchant Type:    %s\n", summary.Profile.DominantMerchant)
		fmt.Printf("Usual Transaction Hour:  Around %d:00\n", int(summary.Profile.AvgHour))
		fmt.Printf("Main Region Used:        %s\n", strings.ToUpper(summary.Profile.DominantRegion))
		fmt.Println("======================================")
	}
}
