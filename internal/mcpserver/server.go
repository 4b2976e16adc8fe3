package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
	"golang.org/x/time/rate"

	"github.com/apresai/podcaster/internal/assembly"
	"github.com/apresai/podcaster/internal/audio"
	"github.com/apresai/podcaster/internal/cleanup"
	"github.com/apresai/podcaster/internal/config"
	"github.com/apresai/podcaster/internal/llm"
	"github.com/apresai/podcaster/internal/pipeline"
	"github.com/apresai/podcaster/internal/runner"
	"github.com/apresai/podcaster/internal/status"
	"github.com/apresai/podcaster/internal/tts"
	"github.com/apresai/podcaster/internal/voice"
	"github.com/apresai/podcaster/internal/webhook"
)

// Server is the APIFacade (§4.10): an MCP server exposing submission,
// status, derived-resource, configuration, and health operations over the
// orchestrator wired in New.
type Server struct {
	cfg      config.Config
	mcp      *server.MCPServer
	handlers *Handlers
	log      *slog.Logger
}

// New creates and configures the MCP server. Secrets are loaded
// asynchronously so the HTTP listener can come up before Secrets Manager
// responds; generation requests that land before secrets finish loading
// will simply fail their first LLM/TTS call and the caller can resubmit.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	otelaws.AppendMiddlewares(&awsCfg.APIOptions)

	if cfg.SecretPrefix != "" {
		go func() {
			if err := config.LoadSecrets(ctx, awsCfg, cfg.SecretPrefix, logger); err != nil {
				logger.Warn("failed to load secrets, falling back to env vars", "error", err)
			}
		}()
	}

	ddbClient := dynamodb.NewFromConfig(awsCfg)

	var taskStore status.Store
	if cfg.TableName != "" {
		taskStore = status.NewDynamoStore(ddbClient, cfg.TableName)
	} else {
		taskStore = status.NewMemStore()
	}
	authStore := NewStore(ddbClient, cfg.TableName)

	var uploader pipeline.Uploader
	if cfg.S3Bucket != "" {
		s3Client := s3.NewFromConfig(awsCfg)
		uploader = NewStorage(s3Client, cfg.S3Bucket, cfg.CDNBaseURL)
	} else {
		logger.Warn("S3_BUCKET not set: completed episodes will reference local filesystem paths")
	}

	ttsProvider, err := tts.NewGoogleProvider("", "", "", tts.ProviderConfig{})
	if err != nil {
		return nil, fmt.Errorf("init google tts provider: %w", err)
	}

	cachePath := cfg.OutputRoot + "/voice_cache.json"
	voices := voice.New(ttsProvider, cachePath, cfg.VoiceCacheTTL)
	if err := voices.Ensure(ctx); err != nil {
		logger.Warn("voice catalog refresh failed at startup, will retry lazily", "error", err)
	}

	ttsLimiter := rate.NewLimiter(rate.Limit(cfg.TTSWorkers), cfg.TTSWorkers)
	audioAssembler := audio.New(ttsProvider, assembly.NewFFmpegAssembler(), cfg.TTSWorkers, ttsLimiter)
	llmLimiter := rate.NewLimiter(rate.Limit(cfg.LLMWorkers), cfg.LLMWorkers)
	llmClient := llm.NewAnthropicClient("haiku", "", llmLimiter)
	cleanupMgr := cleanup.New(cleanup.Policy(cfg.CleanupDefaultPolicy))
	webhookNotifier := webhook.New(logger)

	pl := pipeline.New(pipeline.Deps{
		LLM:            llmClient,
		Voices:         voices,
		Audio:          audioAssembler,
		Store:          taskStore,
		Webhook:        webhookNotifier,
		Cleanup:        cleanupMgr,
		Uploader:       uploader,
		Logger:         logger,
		OutputRoot:     cfg.OutputRoot,
		LLMConcurrency: cfg.LLMWorkers,
	})

	taskRunner := runner.New(cfg.TaskWorkers, logger)
	taskMgr := NewTaskManager(taskStore, taskRunner, pl, logger, ctx)

	handlers := NewHandlers(taskMgr, taskStore, authStore, taskRunner, cleanupMgr, cfg, logger)

	mcpServer := server.NewMCPServer(
		"podcaster",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	tools := ToolDefs()
	mcpServer.AddTool(tools[0], handlers.HandleSubmitPodcast)
	mcpServer.AddTool(tools[1], handlers.HandleGetTaskStatus)
	mcpServer.AddTool(tools[2], handlers.HandleListTasks)
	mcpServer.AddTool(tools[3], handlers.HandleCancelTask)
	mcpServer.AddTool(tools[4], handlers.HandleDeleteTask)
	mcpServer.AddTool(tools[5], handlers.HandleGetTaskResource)
	mcpServer.AddTool(tools[6], handlers.HandleApplyCleanup)
	mcpServer.AddTool(tools[7], handlers.HandleGetConfig)
	mcpServer.AddTool(tools[8], handlers.HandleHealth)

	return &Server{cfg: cfg, mcp: mcpServer, handlers: handlers, log: logger}, nil
}

// Start runs the HTTP MCP server, mounted at /mcp.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.log.Info("starting MCP server", "addr", addr)

	authStore := s.handlers.authStore

	mcpHandler := server.NewStreamableHTTPServer(s.mcp,
		server.WithStateLess(true),
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				return WithAuthResult(ctx, AuthResult{Authenticated: false})
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == authHeader {
				return WithAuthResult(ctx, AuthResult{Authenticated: false, Error: fmt.Errorf("invalid authorization format, expected: Bearer <api-key>")})
			}

			info, err := authStore.ValidateAPIKey(ctx, authHeader)
			if err != nil {
				s.log.WarnContext(ctx, "API key validation failed", "error", err)
				return WithAuthResult(ctx, AuthResult{Authenticated: false, Error: err})
			}

			return WithAuthResult(ctx, AuthResult{
				Authenticated: true,
				UserID:        info.UserID,
				Role:          info.Role,
				KeyID:         info.KeyID,
			})
		}),
	)

	mux := http.NewServeMux()
	// Register both /mcp and /mcp/: some clients POST with a trailing slash
	// and Go's ServeMux won't match a bare pattern against that.
	mux.Handle("/mcp", mcpHandler)
	mux.Handle("/mcp/", mcpHandler)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.Info("http request", "method", r.Method, "path", r.URL.Path)
		if r.Method == http.MethodPost && r.Header.Get("Content-Type") == "" {
			r.Header.Set("Content-Type", "application/json")
		}
		mux.ServeHTTP(w, r)
	})

	httpSrv := &http.Server{Addr: addr, Handler: handler}
	return httpSrv.ListenAndServe()
}
