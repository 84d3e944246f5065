package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"patient-llm/internal/config"
	"patient-llm/internal/db"
	"patient-llm/internal/domain"
	"patient-llm/internal/eval"
	"patient-llm/internal/repository"
	"patient-llm/internal/service"
)

func main() {
	runID := flag.String("run", "", "id del run a revisar")
	register := flag.Bool("register", false, "registrar un revisor nuevo y salir")
	onlyFlagged := flag.Bool("only-flagged", true, "revisar solo pares no-PASS")
	flag.Parse()

	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := zap.NewExample()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	reviewerRepo := repository.NewPgReviewerRepository(pool)
	reviewerSvc := service.NewReviewerService(reviewerRepo)

	if *register {
		registerFlow(ctx, reader, reviewerSvc)
		return
	}

	if *runID == "" {
		log.Fatal("missing -run flag")
	}

	runRepo := repository.NewPgRunRepository(pool)
	reviewRepo := repository.NewPgReviewRepository(pool)
	reviewSvc := eval.NewReviewService(runRepo, reviewRepo, logger)

	reviewer := loginFlow(ctx, reader, reviewerSvc)

	run, err := runRepo.GetByID(ctx, *runID)
	if err != nil {
		log.Fatalf("get run: %v", err)
	}

	responseByPair := make(map[string]domain.ModelResponse, len(run.Responses))
	for _, r := range run.Responses {
		responseByPair[r.CaseID+"/"+r.ConfigID] = r
	}
	caseByID := make(map[string]domain.EvaluationCase)
	for _, c := range eval.DefaultCases() {
		caseByID[c.ID] = c
	}

	reviewed := 0
	for _, js := range run.JudgeScores {
		if *onlyFlagged && js.Verdict == domain.VerdictPass {
			continue
		}
		resp, ok := responseByPair[js.CaseID+"/"+js.ConfigID]
		if !ok || resp.Failed {
			continue
		}

		fmt.Printf("\n===== %s / %s =====\n", js.CaseID, js.ConfigID)
		if c, ok := caseByID[js.CaseID]; ok {
			fmt.Printf("Question: %s\n", c.Question)
		}
		fmt.Printf("Answer:\n%s\n\n", resp.Text)
		fmt.Printf("Judge: %s (overall %.1f)\n", js.Verdict, js.Overall)
		if js.Rationale != "" {
			fmt.Printf("Judge rationale: %s\n", js.Rationale)
		}

		fmt.Print("Review this pair? [y/N/q]: ")
		choice, _ := reader.ReadString('\n')
		choice = strings.TrimSpace(strings.ToLower(choice))
		if choice == "q" {
			break
		}
		if choice != "y" {
			continue
		}

		score := scoreFlow(reader, js.CaseID, js.ConfigID, reviewer.ID)
		if _, err := reviewSvc.Submit(ctx, run.ID, score); err != nil {
			fmt.Printf("error submitting review: %v\n", err)
			continue
		}
		reviewed++
		fmt.Println("Review recorded.")
	}

	fmt.Printf("\nDone: %d reviews recorded for run %s\n", reviewed, run.ID)
}

func registerFlow(ctx context.Context, reader *bufio.Reader, svc *service.ReviewerService) {
	fmt.Print("Reviewer name: ")
	name, _ := reader.ReadString('\n')
	fmt.Print("Access code (min 8 chars): ")
	code, _ := reader.ReadString('\n')

	reviewer, err := svc.Register(ctx, strings.TrimSpace(name), strings.TrimSpace(code))
	if err != nil {
		log.Fatalf("register reviewer: %v", err)
	}
	fmt.Printf("Reviewer created. Id: %s\n", reviewer.ID)
}

func loginFlow(ctx context.Context, reader *bufio.Reader, svc *service.ReviewerService) domain.Reviewer {
	for {
		fmt.Print("Reviewer id: ")
		id, _ := reader.ReadString('\n')
		fmt.Print("Access code: ")
		code, _ := reader.ReadString('\n')

		reviewer, err := svc.Authenticate(ctx, strings.TrimSpace(id), strings.TrimSpace(code))
		if err != nil {
			fmt.Println("Invalid credentials, try again.")
			continue
		}
		fmt.Printf("Hello, %s.\n", reviewer.Name)
		return reviewer
	}
}

// scoreFlow pide cada dimension en escala 1-5 (como el flujo original de
// revision) y la escala a 0-100 para el score almacenado.
func scoreFlow(reader *bufio.Reader, caseID, configID, reviewerID string) domain.HumanScore {
	dims := domain.DimensionScores{
		MedicalAccuracy:     readDim(reader, "Medical accuracy"),
		Safety:              readDim(reader, "Safety & red flags"),
		PatientFriendliness: readDim(reader, "Patient friendliness"),
		Actionability:       readDim(reader, "Actionability"),
		Scope:               readDim(reader, "Scope"),
	}
	overall := float64(dims.MedicalAccuracy+dims.Safety+dims.PatientFriendliness+dims.Actionability+dims.Scope) / 5

	verdict := ""
	for verdict == "" {
		fmt.Print("Verdict [PASS/REVISE/FAIL]: ")
		v, _ := reader.ReadString('\n')
		switch strings.ToUpper(strings.TrimSpace(v)) {
		case domain.VerdictPass:
			verdict = domain.VerdictPass
		case domain.VerdictRevise:
			verdict = domain.VerdictRevise
		case domain.VerdictFail:
			verdict = domain.VerdictFail
		default:
			fmt.Println("Invalid verdict.")
		}
	}

	fmt.Print("Notes (optional): ")
	notes, _ := reader.ReadString('\n')

	return domain.HumanScore{
		CaseID:     caseID,
		ConfigID:   configID,
		ReviewerID: reviewerID,
		Dimensions: dims,
		Overall:    overall,
		Verdict:    verdict,
		Notes:      strings.TrimSpace(notes),
	}
}

func readDim(reader *bufio.Reader, label string) int {
	for {
		fmt.Printf("%s (1-5): ", label)
		line, _ := reader.ReadString('\n')
		v, err := strconv.Atoi(strings.TrimSpace(line))
		if err == nil && v >= 1 && v <= 5 {
			// 1-5 -> 20-100
			return v * 20
		}
		fmt.Println("Enter a number from 1 to 5.")
	}
}
