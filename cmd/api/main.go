package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"patient-llm/internal/config"
	"patient-llm/internal/db"
	"patient-llm/internal/eval"
	apihttp "patient-llm/internal/http"
	"patient-llm/internal/llm"
	"patient-llm/internal/patient"
	"patient-llm/internal/repository"
	"patient-llm/internal/retrieval"
	"patient-llm/internal/safety"
	"patient-llm/internal/service"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	sessionRepo := repository.NewPgSessionRepository(pool)
	messageRepo := repository.NewPgMessageRepository(pool)
	chunkRepo := repository.NewPgChunkRepository(pool)
	runRepo := repository.NewPgRunRepository(pool)
	reviewRepo := repository.NewPgReviewRepository(pool)
	reviewerRepo := repository.NewPgReviewerRepository(pool)

	llmClient := llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.EmbeddingModel, nil)

	rules := safety.DefaultRules()
	if cfg.RedFlagRulesPath != "" {
		loaded, err := safety.LoadRules(cfg.RedFlagRulesPath)
		if err != nil {
			logger.Fatal("red flag rules", zap.Error(err))
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

	var chatLimiter service.ChatRateLimiter
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, chat rate limit disabled", zap.Error(err))
		} else {
			chatLimiter = service.NewRedisChatRateLimiter(
				redisClient,
				time.Duration(cfg.ChatRateWindow)*time.Second,
				cfg.ChatRateMax,
			)
		}
		cancel()
	}

	jwtSvc := service.NewJWTService(cfg.JWTSecret, time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute)
	if cfg.JWTSecret == "" {
		logger.Warn("jwt secret not configured")
	}
	reviewerSvc := service.NewReviewerService(reviewerRepo)
	reviewSvc := eval.NewReviewService(runRepo, reviewRepo, logger)

	chatHandler := apihttp.NewChatHandler(logger, sessionRepo, memorySvc, chatSvc, chatLimiter)
	reviewHandler := apihttp.NewReviewHandler(logger, reviewerSvc, jwtSvc, reviewSvc, runRepo, eval.DefaultCases())
	router := apihttp.NewRouter(logger, jwtSvc, chatHandler, reviewHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
