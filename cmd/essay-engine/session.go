// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/essay-engine/internal/draft"
	"github.com/pdiddy/essay-engine/internal/session"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect and manage saved essay sessions",
	Long: `Session lists, shows, exports, and deletes the checkpoints kept in the
session store. Use "essay-engine resume <id>" to continue an unfinished one.`,
}

// --- list subcommand ---

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved sessions, most recent first",
	Args:  cobra.NoArgs,
	RunE:  runSessionList,
}

func runSessionList(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := store.List(context.Background())
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}

	if len(list) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-36s  %-17s  %-8s  %-8s  %-16s  %s\n",
		"ID", "Stage", "Revision", "Snippets", "Updated", "Task")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 120))
	for _, s := range list {
		task := s.Task
		if len(task) > 30 {
			task = task[:27] + "..."
		}
		fmt.Fprintf(os.Stdout, "%-36s  %-17s  %3d/%-4d  %-8d  %-16s  %s\n",
			s.ID, s.Stage, s.RevisionNumber, s.MaxRevisions, s.Snippets,
			s.UpdatedAt.Local().Format("2006-01-02 15:04"), task)
	}
	fmt.Fprintf(os.Stdout, "\n%d sessions\n", len(list))
	return nil
}

// --- show subcommand ---

var sessionShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print a session's state and latest draft",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionShow,
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	s, err := store.Load(context.Background(), args[0])
	if err != nil {
		return err
	}

	meta := draft.Meta(s)
	fmt.Printf("Session:    %s\n", s.ID)
	fmt.Printf("Task:       %s\n", s.Task)
	fmt.Printf("Stage:      %s\n", s.Stage)
	fmt.Printf("Revision:   %d of %d\n", s.RevisionNumber, s.MaxRevisions)
	fmt.Printf("Snippets:   %d\n", meta.Sources)
	fmt.Printf("Paragraphs: %d\n", meta.Paragraphs)
	fmt.Printf("Updated:    %s\n", s.UpdatedAt.Local().Format("2006-01-02 15:04:05"))

	printSection(os.Stdout, "Plan", s.Plan)
	printSection(os.Stdout, "Critique", s.Critique)
	printSection(os.Stdout, "Draft", s.Draft)
	return nil
}

func printSection(w io.Writer, title, body string) {
	if body == "" {
		return
	}
	fmt.Fprintf(w, "\n--- %s ---\n%s\n", title, strings.TrimSpace(body))
}

// --- export subcommand ---

var sessionExportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Export the full session record as YAML or JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionExport,
}

func runSessionExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	outPath, _ := cmd.Flags().GetString("output")

	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	s, err := store.Load(context.Background(), args[0])
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("creating %s: %w", outPath, err)
		}
		defer f.Close()
		out = f
	}

	switch format {
	case "yaml", "":
		err = session.ExportYAML(out, s)
	case "json":
		err = session.ExportJSON(out, s)
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}
	if err != nil {
		return err
	}
	if outPath != "" {
		fmt.Fprintf(os.Stderr, "Exported to %s\n", outPath)
	}
	return nil
}

// --- delete subcommand ---

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>...",
	Short: "Delete saved sessions",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSessionDelete,
}

func runSessionDelete(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	for _, id := range args {
		if err := store.Delete(context.Background(), id); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", id)
	}
	return nil
}

// --- shared helpers ---

func openStore(cmd *cobra.Command) (session.Manager, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.Store.Driver == session.DriverMemory {
		return nil, fmt.Errorf("the memory store does not outlive a run; use --store sqlite")
	}
	return session.Open(cfg.Store)
}

func init() {
	// Shared flags on the parent command, inherited by subcommands.
	sessionCmd.PersistentFlags().String("store", "", "checkpoint store: sqlite")
	sessionCmd.PersistentFlags().String("sessions-dir", "", "directory holding sessions.db (default sessions)")

	sessionListCmd.Flags().Bool("json", false, "output the list as JSON")

	sessionExportCmd.Flags().String("format", "yaml", "export format: yaml or json")
	sessionExportCmd.Flags().StringP("output", "o", "", "write to a file instead of stdout")

	// Wire subcommands.
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionExportCmd)
	sessionCmd.AddCommand(sessionDeleteCmd)

	rootCmd.AddCommand(sessionCmd)
}
