// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/pdiddy/essay-engine/internal/essay"
	"github.com/pdiddy/essay-engine/pkg/types"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <session-id>",
	Short: "Continue an interrupted essay from its last checkpoint",
	Long: `Resume loads the checkpoint for a session and continues from the stage it
stopped at. Completed stages are not repeated. A finished session is reported
as-is.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	addPipelineFlags(resumeCmd)
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	id := args[0]
	return runPipeline(cmd, func(ctx context.Context, w *essay.Writer) (*types.EssaySession, error) {
		return w.Resume(ctx, id)
	})
}
