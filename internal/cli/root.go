package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/apresai/podcaster/internal/assembly"
	"github.com/apresai/podcaster/internal/audio"
	"github.com/apresai/podcaster/internal/cleanup"
	"github.com/apresai/podcaster/internal/config"
	"github.com/apresai/podcaster/internal/llm"
	"github.com/apresai/podcaster/internal/pipeline"
	"github.com/apresai/podcaster/internal/progress"
	"github.com/apresai/podcaster/internal/status"
	"github.com/apresai/podcaster/internal/tts"
	"github.com/apresai/podcaster/internal/voice"
	"github.com/apresai/podcaster/internal/webhook"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "podcaster",
	Short: "Convert written content into podcast-style audio conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		flagTUI = true
		return runGenerate(cmd, args)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("podcaster %s\n", Version)
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a podcast episode from written sources",
	RunE:  runGenerate,
}

var listVoicesCmd = &cobra.Command{
	Use:   "list-voices",
	Short: "List available voices in the Google Cloud TTS catalog",
	RunE:  runListVoices,
}

var (
	flagSourceURLs       []string
	flagSourcePDF        string
	flagProminentPersons []string
	flagDesiredLength    string
	flagOutlinePrompt    string
	flagDialoguePrompt   string
	flagHostName         string
	flagHostGender       string
	flagWebhookURL       string
	flagVerbose          bool
	flagTUI              bool
	flagModel            string
	flagOutputRoot       string
)

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(listVoicesCmd)
	generateCmd.Flags().StringArrayVarP(&flagSourceURLs, "source-url", "u", nil, "A source URL or YouTube link (repeatable)")
	generateCmd.Flags().StringVarP(&flagSourcePDF, "source-pdf", "p", "", "Path to a source PDF")
	generateCmd.Flags().StringArrayVar(&flagProminentPersons, "person", nil, "A person known to appear prominently in the sources (repeatable)")
	generateCmd.Flags().StringVarP(&flagDesiredLength, "length", "l", "", "Desired episode length, e.g. \"15 minutes\"")
	generateCmd.Flags().StringVar(&flagOutlinePrompt, "outline-prompt", "", "Custom instructions for outline generation")
	generateCmd.Flags().StringVar(&flagDialoguePrompt, "dialogue-prompt", "", "Custom instructions for dialogue generation")
	generateCmd.Flags().StringVar(&flagHostName, "host-name", "", "Invented name for the host persona")
	generateCmd.Flags().StringVar(&flagHostGender, "host-gender", "", "Host gender: male, female, or neutral")
	generateCmd.Flags().StringVar(&flagWebhookURL, "webhook-url", "", "URL to notify on terminal state")
	generateCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable detailed logging instead of a progress bar")
	generateCmd.Flags().BoolVarP(&flagTUI, "tui", "t", false, "Interactive setup wizard for generation options")
	generateCmd.Flags().StringVarP(&flagModel, "model", "m", "haiku", "Script generation model: haiku or sonnet")
	generateCmd.Flags().StringVar(&flagOutputRoot, "output-root", "./output", "Directory episodes and intermediate artifacts are written under")
}

func Execute() error {
	return rootCmd.Execute()
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if flagTUI {
		if err := runInteractiveSetup(); err != nil {
			return err
		}
	}

	req := status.Request{
		SourceURLs:       flagSourceURLs,
		SourcePDFPath:    flagSourcePDF,
		ProminentPersons: flagProminentPersons,
		DesiredLength:    flagDesiredLength,
		OutlinePrompt:    flagOutlinePrompt,
		DialoguePrompt:   flagDialoguePrompt,
		HostInventedName: flagHostName,
		HostGender:       flagHostGender,
		WebhookURL:       flagWebhookURL,
	}
	if err := req.Validate(); err != nil {
		return err
	}

	validModels := map[string]bool{"haiku": true, "sonnet": true}
	if !validModels[flagModel] {
		return fmt.Errorf("invalid model %q: must be haiku or sonnet", flagModel)
	}
	if flagHostGender != "" {
		valid := map[string]bool{"male": true, "female": true, "neutral": true}
		if !valid[flagHostGender] {
			return fmt.Errorf("invalid host-gender %q: must be male, female, or neutral", flagHostGender)
		}
	}

	if err := checkAPIKeys(); err != nil {
		return err
	}
	if err := checkFFmpeg(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logLevel := slog.LevelWarn
	if flagVerbose {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	pl, store, err := buildLocalPipeline(ctx, logger)
	if err != nil {
		return err
	}

	taskID, err := status.NewTaskID()
	if err != nil {
		return fmt.Errorf("generate task id: %w", err)
	}
	if _, err := store.Create(ctx, taskID, req); err != nil {
		return fmt.Errorf("create task record: %w", err)
	}

	var renderer *progress.BarRenderer
	if !flagVerbose {
		renderer = progress.NewBarRenderer(os.Stdout)
		defer renderer.Finish()
	}

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- pl.Run(ctx, taskID, req)
	}()

	return pollTask(ctx, store, taskID, renderer, runErrCh)
}

// pollTask watches the StatusStore record for taskID until it reaches a
// terminal state, forwarding progress to renderer (when non-nil) and
// returning the pipeline's terminal error, if any.
func pollTask(ctx context.Context, store status.Store, taskID string, renderer *progress.BarRenderer, runErrCh chan error) error {
	start := time.Now()
	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ts, err := store.Get(ctx, taskID)
			if err != nil {
				continue
			}
			ev := progress.Event{
				Stage:   string(ts.Status),
				Message: ts.StatusDescription,
				Percent: float64(ts.ProgressPercentage) / 100,
				Elapsed: time.Since(start),
			}
			if ts.Status.IsTerminal() {
				ev.Done = true
				if ts.ErrorDetails != nil {
					ev.Error = fmt.Errorf("%s: %s", ts.ErrorDetails.Title, ts.ErrorDetails.Detail)
				}
				if ts.ResultEpisode != nil {
					ev.OutputFile = ts.ResultEpisode.AudioFilepath
				}
				if renderer != nil {
					renderer.Handle(ev)
				}
				return <-runErrCh
			}
			if renderer != nil {
				renderer.Handle(ev)
			}
		case err := <-runErrCh:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// buildLocalPipeline wires a single-process Pipeline for CLI use: an
// in-memory StatusStore (no DynamoDB), Google Cloud TTS, and no S3
// uploader, since the CLI leaves the final episode on the local filesystem.
func buildLocalPipeline(ctx context.Context, logger *slog.Logger) (*pipeline.Pipeline, status.Store, error) {
	store := status.NewMemStore()

	ttsProvider, err := tts.NewGoogleProvider("", "", "", tts.ProviderConfig{})
	if err != nil {
		return nil, nil, fmt.Errorf("init google tts provider: %w", err)
	}

	cachePath := flagOutputRoot + "/voice_cache.json"
	voices := voice.New(ttsProvider, cachePath, config.DefaultConfig().VoiceCacheTTL)
	if err := voices.Ensure(ctx); err != nil {
		logger.Warn("voice catalog refresh failed, will retry lazily", "error", err)
	}

	audioAssembler := audio.New(ttsProvider, assembly.NewFFmpegAssembler(), 4, rate.NewLimiter(rate.Limit(4), 4))
	llmClient := llm.NewAnthropicClient(flagModel, "", rate.NewLimiter(rate.Limit(4), 4))
	cleanupMgr := cleanup.New(cleanup.PolicyManual)
	webhookNotifier := webhook.New(logger)

	pl := pipeline.New(pipeline.Deps{
		LLM:            llmClient,
		Voices:         voices,
		Audio:          audioAssembler,
		Store:          store,
		Webhook:        webhookNotifier,
		Cleanup:        cleanupMgr,
		Uploader:       nil,
		Logger:         logger,
		OutputRoot:     flagOutputRoot,
		LLMConcurrency: 4,
	})

	return pl, store, nil
}

func runListVoices(cmd *cobra.Command, args []string) error {
	voices, err := tts.AvailableVoices("google")
	if err != nil {
		return err
	}

	fmt.Println("\nAvailable voices:")
	fmt.Printf("  %-28s %-12s %-8s %s\n", "ID", "NAME", "GENDER", "DESCRIPTION")
	for _, v := range voices {
		def := ""
		if v.DefaultFor != "" {
			def = fmt.Sprintf(" (default %s)", v.DefaultFor)
		}
		fmt.Printf("  %-28s %-12s %-8s %s%s\n", v.ID, v.Name, v.Gender, v.Description, def)
	}
	fmt.Println()
	return nil
}

func checkAPIKeys() error {
	var missing []string
	switch flagModel {
	case "haiku", "sonnet":
		if os.Getenv("ANTHROPIC_API_KEY") == "" {
			missing = append(missing, "ANTHROPIC_API_KEY")
		}
	}
	// Google Cloud TTS authenticates via Application Default Credentials,
	// not an API key env var.
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}
	return nil
}

func checkFFmpeg() error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("ffmpeg not found in PATH: install it before generating audio")
	}
	return nil
}
