package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/saccoledger/backend/docs"
	"github.com/saccoledger/backend/internal/database"
	"github.com/saccoledger/backend/internal/handlers"
	mW "github.com/saccoledger/backend/internal/middleware"
	"github.com/saccoledger/backend/internal/models"
	"github.com/saccoledger/backend/internal/services"
	"github.com/saccoledger/backend/internal/vault"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title SACCO Ledger Backend API
// @version 1.0
// @description Multi-tenant cooperative banking ledger API
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env
	viper.ReadInConfig()        // read .env file

	// Set environment variable prefix
	viper.SetEnvPrefix("")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("vault.master_key", "VAULT_MASTER_KEY")
	viper.BindEnv("vault.salt", "VAULT_SALT")
	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("receipt.secret_key", "RECEIPT_SECRET_KEY")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "SACCO Ledger Backend API"
	docs.SwaggerInfo.Description = "Multi-tenant cooperative banking ledger API"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	fieldVault, err := vault.New(
		viper.GetString("vault.master_key"),
		[]byte(viper.GetString("vault.salt")))
	if err != nil {
		log.Fatalf("Failed to initialize field vault: %v", err)
	}

	ledgerService := services.NewLedgerService(db)
	authService := services.NewAuthService(db, redisClient, fieldVault)
	withdrawalService := services.NewWithdrawalService(db, redisClient)
	loanService := services.NewLoanService(db)
	poolService := services.NewPoolService(db)
	receiptService := services.NewReceiptService(db, redisClient)
	receiptHandler := handlers.NewReceiptHandler(receiptService)
	settlementService := services.NewSettlementService(redisClient)
	bankService := services.NewBankService()
	voiceService := services.NewVoiceEnquiryService(db)
	defer voiceService.Close()

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// Static file server for society logos
	r.Handle("/static/tenant-logos/*", http.StripPrefix("/static/tenant-logos/",
		mW.TenantLogoServer("./static/tenant-logos")))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)
		r.Get("/banks", bankService.GetAllBanks)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.Auth(redisClient))

			r.Get("/auth/profile", authService.GetProfile)
			r.Get("/accounts/balance-enquiry", ledgerService.BalanceEnquiry)

			// Withdrawal workflow
			r.Post("/withdrawals", withdrawalService.RequestWithdrawal)
			r.Get("/withdrawals", withdrawalService.ListWithdrawals)
			r.Get("/withdrawals/{requestId}", withdrawalService.GetWithdrawal)

			// Loan enquiries and repayment
			r.Get("/loans/{loanId}", loanService.GetLoan)
			r.Post("/loans/{loanId}/repay", loanService.RepayLoan)

			// Contribution pools
			r.Get("/pools/{poolId}", poolService.GetPool)
			r.Post("/pools/{poolId}/contributions", poolService.AddContribution)
			r.Get("/pools/{poolId}/share-out/preview", poolService.PreviewShareOut)

			// QR receipts
			r.Post("/receipts/generate", receiptHandler.GenerateReceipt)
			r.Post("/receipts/verify", receiptHandler.VerifyReceipt)

			// Voice enquiries
			r.Post("/enquiries/voice-transcribe", voiceService.TranscribeEnquiry)

			// Treasurer-only operations
			r.Group(func(r chi.Router) {
				r.Use(mW.RequireRole(models.RoleTreasurer))

				r.Post("/withdrawals/{requestId}/approve", withdrawalService.ApproveWithdrawal)
				r.Post("/withdrawals/{requestId}/reject", withdrawalService.RejectWithdrawal)

				r.Post("/loans/disburse", loanService.DisburseLoan)
				r.Post("/loans/{loanId}/post-interest", loanService.PostInterest)

				r.Post("/pools", poolService.CreatePool)
				r.Post("/pools/{poolId}/profit", poolService.RecordProfit)
				r.Post("/pools/{poolId}/share-out", poolService.ExecuteShareOut)

				r.Post("/settlement/export", settlementService.DrainSettlementQueue)
				r.Post("/settlement/status", settlementService.SettlementStatus)
			})
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
