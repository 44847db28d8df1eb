package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/gatekeeper/internal/ai"
	"github.com/kozaktomas/gatekeeper/internal/approval"
	"github.com/kozaktomas/gatekeeper/internal/config"
	"github.com/kozaktomas/gatekeeper/internal/database/postgres"
	"github.com/kozaktomas/gatekeeper/internal/encoder"
	"github.com/kozaktomas/gatekeeper/internal/messaging"
	"github.com/kozaktomas/gatekeeper/internal/web"
	"github.com/spf13/cobra"
)

const (
	// Pricing per 1M tokens
	openaiInputPrice  = 0.40
	openaiOutputPrice = 1.60
	geminiInputPrice  = 0.30
	geminiOutputPrice = 2.50
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gate server",
	Long: `Start the Gatekeeper web server.
The server accepts camera frames for recognition, runs the visitor
approval conversation, and receives WhatsApp webhook callbacks.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// buildProvider picks the LLM provider from config. OpenAI is the default.
func buildProvider(ctx context.Context, cfg *config.Config) (ai.Provider, error) {
	switch cfg.AI.Provider {
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, errors.New("GEMINI_API_KEY environment variable is required for the gemini provider")
		}
		return ai.NewGeminiProvider(ctx, cfg.Gemini.APIKey,
			ai.RequestPricing{Input: geminiInputPrice, Output: geminiOutputPrice})
	case "openai":
		if cfg.OpenAI.Token == "" {
			return nil, errors.New("OPENAI_TOKEN environment variable is required for the openai provider")
		}
		return ai.NewOpenAIProvider(cfg.OpenAI.Token,
			ai.RequestPricing{Input: openaiInputPrice, Output: openaiOutputPrice}), nil
	default:
		return nil, fmt.Errorf("unknown AI provider: %s (use 'openai' or 'gemini')", cfg.AI.Provider)
	}
}

// initIdentityHNSW builds the in-memory HNSW index over enrolled encodings.
// Failure is not fatal; matching falls back to scanning the full gallery.
func initIdentityHNSW(ctx context.Context, identityRepo *postgres.IdentityRepository, cutoff int) {
	fmt.Printf("Building in-memory HNSW index for identity matching...\n")
	if err := identityRepo.EnableHNSW(ctx, cutoff); err != nil {
		fmt.Printf("Warning: Failed to build HNSW index: %v\n", err)
		fmt.Printf("Identity matching will scan the full gallery (slower)\n")
	}
}

func resolveServeHostPort(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("port") {
		cfg.Web.Port = mustGetInt(cmd, "port")
	}
	if cmd.Flags().Changed("host") {
		cfg.Web.Host = mustGetString(cmd, "host")
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	if cfg.Twilio.AccountSID == "" || cfg.Twilio.AuthToken == "" {
		return errors.New("TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN environment variables are required")
	}

	fmt.Printf("Connecting to PostgreSQL database...\n")
	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	identityRepo := postgres.NewIdentityRepository(pool)
	attendanceRepo := postgres.NewAttendanceRepository(pool)
	visitorRepo := postgres.NewVisitorRepository(pool)
	ctx := context.Background()

	initIdentityHNSW(ctx, identityRepo, cfg.Gate.HNSWCutoff)

	provider, err := buildProvider(ctx, cfg)
	if err != nil {
		return err
	}
	fmt.Printf("Using %s for visitor conversations\n", provider.Name())

	sender := messaging.NewTwilio(
		cfg.Twilio.AccountSID,
		cfg.Twilio.AuthToken,
		cfg.Twilio.WhatsAppNumber,
		cfg.Twilio.PublicURL,
	)
	hub := approval.NewCorrelationHub(sender)
	workflow := approval.NewWorkflow(
		approval.NewSessionStore(),
		hub,
		provider,
		identityRepo,
		attendanceRepo,
		visitorRepo,
		cfg.Twilio.ApproverNumber,
		cfg.Gate.SessionTTL(),
	)

	resolveServeHostPort(cmd, cfg)

	server := web.NewServer(cfg, web.Deps{
		Detector:   encoder.NewClient(cfg.Encoder.URL, cfg.Gate.EncodingDim),
		Identities: identityRepo,
		Attendance: attendanceRepo,
		Visitors:   visitorRepo,
		Workflow:   workflow,
		Hub:        hub,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Gatekeeper on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
