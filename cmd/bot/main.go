package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/chatquery/chatquery/internal/config"
	"github.com/chatquery/chatquery/internal/domain"
	"github.com/chatquery/chatquery/internal/handlers"
	"github.com/chatquery/chatquery/internal/schema"
	"github.com/chatquery/chatquery/internal/services"
)

func main() {
	// Initialize configuration
	cfg := config.NewConfig()

	// Initialize database service
	dbService, err := services.NewDatabaseService(cfg.GetDatabaseURL())
	if err != nil {
		log.Fatalf("Failed to initialize database service: %v", err)
	}
	defer dbService.Close()

	// Credential, identity and audit stores: Postgres when a database is
	// configured, in-memory otherwise.
	var (
		credentials domain.CredentialStore
		identities  domain.IdentityStore
		audit       domain.AuditStore
	)
	if cfg.GetDatabaseURL() != "" {
		log.Println("Connected to PostgreSQL")
		credentials = services.NewPGCredentialStore(dbService)
		identities = services.NewPGIdentityStore(dbService)
		audit = services.NewPGAuditStore(dbService)
	} else {
		log.Println("DATABASE_URL not set, using in-memory stores; DB queries will be disabled")
		credentials = services.NewMemoryCredentialStore()
		identities = services.NewMemoryIdentityStore()
		audit = services.NewMemoryAuditStore()
	}

	// Initialize WhatsApp service
	whatsappService, err := services.NewWhatsAppService(cfg.GetWhatsAppStorePath())
	if err != nil {
		log.Fatalf("Failed to initialize WhatsApp service: %v", err)
	}

	log.Println("WhatsApp bot running")

	// Session manager owns the auth state machine
	sessionManager := services.NewSessionManager(
		credentials, identities, whatsappService,
		cfg.GetLinkBaseURL(), cfg.GetLinkTTL(), cfg.GetSessionIdleTimeout(),
	)

	// Intent extraction via Gemini
	if cfg.GetGeminiAPIKey() == "" {
		log.Println("WARNING: GEMINI_API_KEY is empty, extraction requests will fail")
	}
	descriptor := schema.Default()
	extractor := services.NewExtractor(
		services.NewGeminiGenerator(cfg.GetGeminiAPIKey()),
		descriptor,
		cfg.GetConfidenceThreshold(),
		cfg.GetAIRetries(),
		cfg.GetAITimeout(),
	)

	builder := services.NewQueryBuilder(descriptor)
	executor := services.NewExecutor(dbService)

	// Initialize handlers
	botHandler := handlers.NewBotHandler(sessionManager, extractor, builder, executor, audit, whatsappService)
	verifyHandler := handlers.NewVerifyHandler(sessionManager)
	messageHandler := handlers.NewMessageHandler(whatsappService, cfg)

	// Setup WhatsApp event handler for listening to user chats
	whatsappService.AddEventHandler(botHandler.HandleMessage)

	if cfg.GetAPIKey() == "" {
		log.Println("WARNING: API_KEY is empty, REST endpoint will reject requests")
	}

	http.HandleFunc("/auth/verify", verifyHandler.Verify)
	http.HandleFunc("/api/send-message", messageHandler.SendMessage)

	go func() {
		log.Printf("HTTP server listening on %s", cfg.GetHTTPAddr())
		if err := http.ListenAndServe(cfg.GetHTTPAddr(), nil); err != nil {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	whatsappService.Disconnect()
	log.Println("Shutdown")
}
