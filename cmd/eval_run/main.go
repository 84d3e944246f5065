package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"patient-llm/internal/config"
	"patient-llm/internal/db"
	"patient-llm/internal/domain"
	"patient-llm/internal/email"
	"patient-llm/internal/eval"
	"patient-llm/internal/llm"
	"patient-llm/internal/repository"
	"patient-llm/internal/retrieval"
	"patient-llm/internal/safety"
	"patient-llm/internal/service"
)

func main() {
	casesPath := flag.String("cases", "", "archivo JSON con casos extra (se suman al set curado)")
	configsPath := flag.String("configs", "", "archivo JSON con configuraciones de modelo a comparar")
	sendEmail := flag.Bool("email", false, "enviar el reporte por correo al terminar")
	flag.Parse()

	ctx := context.Background()

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

	cases := eval.DefaultCases()
	if *casesPath != "" {
		extra, err := eval.LoadCases(*casesPath)
		if err != nil {
			log.Fatalf("load cases: %v", err)
		}
		cases = append(cases, extra...)
	}

	configs := []domain.ModelConfig{
		{
			ID:          "default",
			Model:       cfg.LLMModel,
			Temperature: cfg.GenTemperature,
			MaxTokens:   cfg.GenMaxTokens,
		},
	}
	if *configsPath != "" {
		loaded, err := loadConfigs(*configsPath)
		if err != nil {
			log.Fatalf("load configs: %v", err)
		}
		configs = loaded
	}

	chunkRepo := repository.NewPgChunkRepository(pool)
	runRepo := repository.NewPgRunRepository(pool)
	llmClient := llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.EmbeddingModel, nil)

	rules := safety.DefaultRules()
	if cfg.RedFlagRulesPath != "" {
		loaded, err := safety.LoadRules(cfg.RedFlagRulesPath)
		if err != nil {
			log.Fatalf("red flag rules: %v", err)
		}
		rules = loaded
	}
	detector := safety.NewDetector(rules)

	retriever := retrieval.NewPgRetriever(llmClient, chunkRepo, logger)
	promptBuilder := service.NewPromptBuilder(cfg.PromptCharBudget, cfg.ChunkCharBudget, cfg.HistoryWindow)
	responder := eval.NewPipelineResponder(llmClient, retriever, detector, promptBuilder, cfg.RetrievalTopK, logger)

	judge := eval.NewJudge(
		llmClient,
		cfg.JudgeModel,
		cfg.JudgeTemperature,
		cfg.JudgeWeights,
		cfg.PassThreshold,
		cfg.ReviseThreshold,
		cfg.SafetyFloor,
	)

	runner := eval.NewRunner(
		responder,
		judge,
		cfg.EvalConcurrency,
		time.Duration(cfg.EvalRunTimeoutSecs)*time.Second,
		logger,
	)

	logger.Info("starting evaluation run",
		zap.Int("cases", len(cases)),
		zap.Int("configs", len(configs)))

	run := runner.Run(ctx, cases, configs)

	if err := runRepo.Save(ctx, run); err != nil {
		logger.Error("save run failed", zap.Error(err))
	}

	report := eval.RenderReport(run, cases)
	fmt.Println(report)

	if *sendEmail {
		sender := email.Sender(email.NewDisabledSender("email sender not configured"))
		if cfg.SMTPHost != "" {
			smtpSender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
			if err == nil {
				sender = smtpSender
			}
		}
		if err := sender.SendRunReport(ctx, cfg.ReportEmailTo, run.ID, report); err != nil {
			logger.Warn("report email failed", zap.Error(err))
		}
	}

	// El run termino: los pares fallidos estan en el reporte, no en el
	// exit code. Solo fallas de arranque salen distinto de cero.
}

func loadConfigs(path string) ([]domain.ModelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read configs file: %w", err)
	}
	var configs []domain.ModelConfig
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("parse configs file: %w", err)
	}
	for i, c := range configs {
		if c.ID == "" || c.Model == "" {
			return nil, fmt.Errorf("config %d incomplete: id=%q", i, c.ID)
		}
	}
	return configs, nil
}
