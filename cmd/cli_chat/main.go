package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"patient-llm/internal/config"
	"patient-llm/internal/db"
	"patient-llm/internal/llm"
	"patient-llm/internal/patient"
	"patient-llm/internal/repository"
	"patient-llm/internal/retrieval"
	"patient-llm/internal/safety"
	"patient-llm/internal/service"
)

func main() {
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

	sessionRepo := repository.NewPgSessionRepository(pool)
	messageRepo := repository.NewPgMessageRepository(pool)
	chunkRepo := repository.NewPgChunkRepository(pool)

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
	memorySvc := service.NewMemoryService(sessionRepo, messageRepo, logger)

	var patientLookup service.PatientContextLookup
	if client := patient.NewClient(cfg.PatientContextURL); client != nil {
		patientLookup = client
	}

	chatSvc := service.NewChatService(
		llmClient,
		retriever,
		detector,
		promptBuilder,
		memorySvc,
		patientLookup,
		service.GenerationPolicy{
			MaxRetries:  cfg.GenMaxRetries,
			CallTimeout: time.Duration(cfg.GenCallTimeoutSecs) * time.Second,
			BackoffBase: time.Duration(cfg.GenBackoffBaseMillis) * time.Millisecond,
			Temperature: cfg.GenTemperature,
			MaxTokens:   cfg.GenMaxTokens,
			Model:       cfg.LLMModel,
		},
		cfg.RetrievalTopK,
		logger,
	)

	fmt.Println("===== Patient Chat =====")
	fmt.Print("Patient id (enter for a new one): ")
	patientID, _ := reader.ReadString('\n')
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		patientID = uuid.NewString()
		fmt.Printf("Using patient id %s\n", patientID)
	}

	sessionID := uuid.NewString()
	fmt.Printf("Session %s\n", sessionID)
	fmt.Println("---- Chat mode (type 'exit' to quit) ----")

	for {
		fmt.Print("You > ")
		text, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if strings.EqualFold(text, "exit") || strings.EqualFold(text, "salir") {
			fmt.Println("Bye.")
			return
		}

		result, err := chatSvc.HandleTurn(ctx, sessionID, patientID, text)
		if err != nil {
			fmt.Printf("error processing turn: %v\n", err)
			continue
		}
		fmt.Printf("Assistant > %s\n", result.Answer.Content)
		if result.RedFlag {
			fmt.Println("[red flag raised this turn]")
		}
	}
}
