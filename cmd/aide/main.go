// Package main is the entry point for aide, an editor-oriented LLM chat
// client with streaming output and tool-assisted project access.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	anthropicadapter "github.com/yukin371/aide/internal/adapters/anthropic"
	openaiadapter "github.com/yukin371/aide/internal/adapters/openai"
	aideconfig "github.com/yukin371/aide/internal/config"
	"github.com/yukin371/aide/internal/core"
	"github.com/yukin371/aide/internal/editor"
	"github.com/yukin371/aide/internal/orchestrator"
	"github.com/yukin371/aide/internal/session"
	"github.com/yukin371/aide/internal/storage"
	"github.com/yukin371/aide/internal/tools"
	"github.com/yukin371/aide/pkg/logger"
)

// version is set by build flags during release
var version = "dev"

var (
	verbose   bool
	modelFlag string
	resumeID  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "aide",
	Short: "Editor-oriented LLM chat client",
	Long: `aide is an LLM chat client built for working inside a code project.

It streams model output token by token, lets the model call project tools
(read, write, search) and keeps the conversation within a token budget.`,
	Version: version,
}

// chatCmd starts an interactive chat session
var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Start a chat session",
	Long:  "Start an interactive chat session. If a message is provided, it is processed once and the program exits.",
	Args:  cobra.ArbitraryArgs,
	RunE:  runChat,
}

// sessionsCmd lists persisted sessions
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List saved sessions",
	RunE:  runSessions,
}

// versionCmd prints version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("aide version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	chatCmd.Flags().StringVarP(&modelFlag, "model", "m", "", "override the configured model")
	chatCmd.Flags().StringVar(&resumeID, "resume", "", "resume a saved session by id")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*aideconfig.Config, error) {
	cfg, err := aideconfig.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	if verbose {
		logger.SetLevel(logger.DEBUG)
	} else {
		switch cfg.Logging.Level {
		case "debug":
			logger.SetLevel(logger.DEBUG)
		case "warn":
			logger.SetLevel(logger.WARN)
		case "error":
			logger.SetLevel(logger.ERROR)
		default:
			logger.SetLevel(logger.INFO)
		}
	}
	return cfg, nil
}

// newProvider selects the wire format once, at configuration time.
func newProvider(cfg *aideconfig.Config) (core.Provider, error) {
	model := cfg.LLM.Model
	if modelFlag != "" {
		model = modelFlag
	}

	switch cfg.LLM.Provider {
	case "openai":
		provider := openaiadapter.NewProvider(cfg.LLM.APIKey, model)
		if cfg.LLM.BaseURL != "" {
			provider.SetBaseURL(cfg.LLM.BaseURL)
		}
		return provider, nil
	case "anthropic":
		provider := anthropicadapter.NewProvider(cfg.LLM.APIKey, model)
		if cfg.LLM.BaseURL != "" {
			provider.SetBaseURL(cfg.LLM.BaseURL)
		}
		return provider, nil
	default:
		return nil, &core.ConfigurationError{Reason: "unsupported provider: " + cfg.LLM.Provider}
	}
}

func openStorage(cfg *aideconfig.Config) (session.Storage, error) {
	if cfg.Session.DatabasePath == "" {
		return nil, nil
	}
	return storage.NewSQLiteStore(cfg.Session.DatabasePath)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	provider, err := newProvider(cfg)
	if err != nil {
		return err
	}

	projectRoot := cfg.Tools.ProjectRoot
	if projectRoot == "" {
		projectRoot, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}
	}

	workspace, err := editor.NewWorkspace(projectRoot)
	if err != nil {
		return fmt.Errorf("open workspace: %w", err)
	}

	registry := tools.NewRegistry()
	if err := tools.RegisterBuiltins(registry, workspace); err != nil {
		return fmt.Errorf("register tools: %w", err)
	}
	if cfg.Tools.PolicyPath != "" {
		policy, err := tools.LoadPolicy(cfg.Tools.PolicyPath)
		if err != nil {
			return fmt.Errorf("load tool policy: %w", err)
		}
		registry.SetPolicy(policy)
	}

	store, err := openStorage(cfg)
	if err != nil {
		return fmt.Errorf("open session storage: %w", err)
	}
	if store != nil {
		defer store.Close()
	}
	sessions := session.NewManager(store)

	transcript := core.NewTranscript()
	var sess *session.Session

	ctx := context.Background()
	if resumeID != "" {
		var messages []core.Message
		sess, messages, err = sessions.Resume(ctx, resumeID)
		if err != nil {
			return err
		}
		for _, msg := range messages {
			transcript.Append(msg)
		}
		logger.Info("resumed session %s (%d messages)", sess.ID, len(messages))
	} else if store != nil {
		sess, err = sessions.Create(ctx, "", provider.GetModel())
		if err != nil {
			return err
		}
		logger.Info("session %s", sess.ID)
	}

	// Tools run sequentially within a turn, so one pending record is enough.
	var toolStarted time.Time
	var toolDetail string

	listener := orchestrator.Listener{
		OnDelta: func(text string) {
			fmt.Print(text)
		},
		OnModelInfo: func(model string) {
			logger.Debug("responding model: %s", model)
		},
		OnToolStart: func(name, detail string) {
			toolStarted = time.Now()
			toolDetail = detail
			if detail != "" {
				fmt.Printf("\n[%s %s]\n", name, detail)
			} else {
				fmt.Printf("\n[%s]\n", name)
			}
		},
		OnToolEnd: func(name, result string) {
			if sess == nil {
				return
			}
			exec := &session.ToolExecution{
				SessionID: sess.ID,
				Tool:      name,
				Detail:    toolDetail,
				Result:    result,
				Duration:  time.Since(toolStarted),
			}
			if err := sessions.RecordTool(ctx, exec); err != nil {
				logger.Warn("failed to record tool execution: %v", err)
			}
		},
		OnFinal: func(string) {
			fmt.Println()
		},
	}

	orch := orchestrator.New(provider, transcript, registry, workspace, listener, orchestrator.Options{
		SystemPrompt:  cfg.LLM.SystemPrompt,
		TokenBudget:   cfg.Context.TokenBudget,
		MaxToolRounds: cfg.Context.MaxToolRounds,
		MaxTokens:     cfg.LLM.MaxTokens,
		Temperature:   cfg.LLM.Temperature,
	}, logger.Default())

	saveSession := func() {
		if sess == nil {
			return
		}
		if err := sessions.Save(ctx, sess, transcript); err != nil {
			logger.Warn("failed to save session: %v", err)
		}
	}

	if len(args) > 0 {
		turnCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()
		if err := orch.Submit(turnCtx, strings.Join(args, " ")); err != nil {
			return err
		}
		saveSession()
		return nil
	}

	fmt.Println("Interactive chat (type 'quit' or 'exit' to leave)")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "quit" || input == "exit" {
			break
		}
		if input == "" {
			continue
		}

		turnCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		if err := orch.Submit(turnCtx, input); err != nil {
			fmt.Fprintf(os.Stderr, "\nerror: %v\n", err)
		}
		cancel()
		saveSession()
	}

	return scanner.Err()
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStorage(cfg)
	if err != nil {
		return fmt.Errorf("open session storage: %w", err)
	}
	if store == nil {
		fmt.Println("session persistence is disabled (set session.database_path)")
		return nil
	}
	defer store.Close()

	sessions, err := session.NewManager(store).List(context.Background())
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("no saved sessions")
		return nil
	}

	for _, sess := range sessions {
		fmt.Printf("%s  %-30s  %s  %s\n",
			sess.ID, sess.Name, sess.Model, sess.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}
