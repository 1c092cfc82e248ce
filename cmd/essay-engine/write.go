// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/essay-engine/internal/draft"
	"github.com/pdiddy/essay-engine/internal/essay"
	"github.com/pdiddy/essay-engine/internal/llm"
	"github.com/pdiddy/essay-engine/internal/search"
	"github.com/pdiddy/essay-engine/internal/secrets"
	"github.com/pdiddy/essay-engine/internal/session"
	"github.com/pdiddy/essay-engine/pkg/types"
)

var writeCmd = &cobra.Command{
	Use:   "write [task]",
	Short: "Write an essay on a topic",
	Long: `Write plans, researches, drafts, and revises a five-paragraph essay on the
given task. The run stops once the revision counter passes --max-revisions;
--max-revisions 1 produces a single draft with no critique.

The final essay is written to <output-dir>/<session-id>.md with YAML
frontmatter and printed to stdout.`,
	RunE: runWrite,
}

func init() {
	writeCmd.Flags().String("task", "", "essay topic (or pass it as arguments)")
	writeCmd.Flags().Int("max-revisions", 2, "revision limit; generate runs until revision_number exceeds it")
	writeCmd.Flags().Int("revision-number", 1, "starting revision counter")
	addPipelineFlags(writeCmd)

	rootCmd.AddCommand(writeCmd)
}

// addPipelineFlags registers the flags shared by write and resume.
func addPipelineFlags(cmd *cobra.Command) {
	cmd.Flags().String("model", "", "Claude model identifier")
	cmd.Flags().Int("max-tokens", 0, "completion length limit (default 4096)")
	cmd.Flags().Bool("tracing", false, "log every LLM call with size and latency")
	cmd.Flags().String("project", "", "project name attached to traced calls")
	cmd.Flags().String("backend", "", "search backend: tavily, semantic_scholar, openalex, or arxiv")
	cmd.Flags().Int("max-queries", 0, "search queries per research stage (default 3)")
	cmd.Flags().Int("max-results", 0, "snippets per search query (default 2)")
	cmd.Flags().Int("concurrency", 0, "queries searched in parallel (default 1)")
	cmd.Flags().String("store", "", "checkpoint store: sqlite or memory")
	cmd.Flags().String("sessions-dir", "", "directory holding sessions.db (default sessions)")
	cmd.Flags().String("output-dir", "", "directory for finished essays (default output/essays)")
	cmd.Flags().Bool("stream", false, "print each stage's output to stderr as it completes")
	cmd.Flags().Bool("json", false, "print the final session as JSON instead of the essay")
}

func runWrite(cmd *cobra.Command, args []string) error {
	task, _ := cmd.Flags().GetString("task")
	if task == "" {
		task = strings.Join(args, " ")
	}
	if strings.TrimSpace(task) == "" {
		return fmt.Errorf("provide an essay task with --task or as arguments")
	}
	maxRevisions, _ := cmd.Flags().GetInt("max-revisions")
	revisionNumber, _ := cmd.Flags().GetInt("revision-number")

	return runPipeline(cmd, func(ctx context.Context, w *essay.Writer) (*types.EssaySession, error) {
		return w.Write(ctx, types.SessionInput{
			Task:           task,
			MaxRevisions:   maxRevisions,
			RevisionNumber: revisionNumber,
		})
	})
}

// runPipeline builds the writer from config, runs fn under an interrupt-aware
// context, and reports the finished session.
func runPipeline(cmd *cobra.Command, fn func(context.Context, *essay.Writer) (*types.EssaySession, error)) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	store, err := session.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	w, err := newWriter(cmd, cfg, store)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s, err := fn(ctx, w)
	if err != nil {
		if s != nil && cfg.Store.Driver != session.DriverMemory {
			fmt.Fprintf(os.Stderr, "session %s stopped at stage %s; continue with: essay-engine resume %s\n", s.ID, s.Stage, s.ID)
		}
		return err
	}
	return reportSession(cmd, cfg, s)
}

func newWriter(cmd *cobra.Command, cfg types.WriterConfig, store session.Store) (*essay.Writer, error) {
	if cfg.AI.APIKey == "" {
		return nil, fmt.Errorf("no Anthropic API key: add .secrets/%s, ANTHROPIC_API_KEY in .env, or ai.api_key in config", secrets.AnthropicAPIKey)
	}
	client := llm.NewClaudeClient(llm.Options{
		APIKey:         cfg.AI.APIKey,
		Model:          cfg.AI.Model,
		MaxTokens:      cfg.AI.MaxTokens,
		MaxRetries:     cfg.AI.MaxRetries,
		TracingEnabled: cfg.AI.TracingEnabled,
		ProjectName:    cfg.AI.ProjectName,
		Client:         &http.Client{Timeout: cfg.AI.Timeout},
		Logger:         logger,
	})

	searcher, err := search.New(cfg.Search, logger)
	if err != nil {
		return nil, err
	}

	opts := []essay.Option{
		essay.WithStore(store),
		essay.WithLogger(logger),
		essay.WithProgress(os.Stderr),
		essay.WithSearchLimits(cfg.Search.MaxQueries, cfg.Search.MaxResults, cfg.Search.Concurrency),
	}
	if stream, _ := cmd.Flags().GetBool("stream"); stream {
		opts = append(opts, essay.WithObserver(printEvent))
	}
	return essay.New(client, searcher, opts...), nil
}

// printEvent writes the output of one stage to stderr.
func printEvent(ev essay.Event) {
	fmt.Fprintf(os.Stderr, "\n== %s (revision %d) ==\n", ev.Stage, ev.RevisionNumber)
	switch {
	case ev.Plan != "":
		fmt.Fprintln(os.Stderr, ev.Plan)
	case ev.Draft != "":
		fmt.Fprintln(os.Stderr, ev.Draft)
	case ev.Critique != "":
		fmt.Fprintln(os.Stderr, ev.Critique)
	default:
		fmt.Fprintf(os.Stderr, "%d new snippets\n", len(ev.NewContent))
		for _, c := range ev.NewContent {
			if len(c) > 100 {
				c = c[:97] + "..."
			}
			fmt.Fprintf(os.Stderr, "  - %s\n", c)
		}
	}
}

// reportSession saves the essay file and prints the result.
func reportSession(cmd *cobra.Command, cfg types.WriterConfig, s *types.EssaySession) error {
	if s.Draft != "" {
		path, err := draft.WriteEssay(cfg.OutputDir, s)
		if err != nil {
			return err
		}
		logger.Info("essay written", zap.String("session", s.ID), zap.String("path", path))
		fmt.Fprintf(os.Stderr, "Essay saved to %s (session %s)\n", path, s.ID)
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return session.ExportJSON(os.Stdout, s)
	}
	fmt.Println(s.Draft)
	return nil
}
