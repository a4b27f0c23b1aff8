package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/ashureev/anti-todo/internal/prompt"
	"github.com/spf13/cobra"
)

var promptsFile string

// promptsCmd renders the prompt set for a sample task so template edits can
// be checked without calling any provider.
var promptsCmd = &cobra.Command{
	Use:   "prompts [task]",
	Short: "Render the prompt templates for a sample task",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task := "Study for final exam"
		if len(args) == 1 {
			task = args[0]
		}
		set, err := loadPrompts(promptsFile)
		if err != nil {
			return err
		}
		return renderPrompts(cmd.OutOrStdout(), set, task)
	},
}

func init() {
	promptsCmd.Flags().StringVar(&promptsFile, "file", "", "prompt YAML file (default: embedded set)")
}

func renderPrompts(w io.Writer, set *prompt.Set, task string) error {
	data := prompt.Data{Task: task, Steps: []string{"Step 1", "Step 2", "Step 3"}}
	for _, kind := range []prompt.Kind{prompt.KindConvert, prompt.KindSteps, prompt.KindStory} {
		primary, err := set.Render(kind, data)
		if err != nil {
			return err
		}
		fallback, err := set.RenderFallback(kind, data)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "== %s\n-- primary\n%s\n-- fallback\n%s\n", kind, strings.TrimSpace(primary), strings.TrimSpace(fallback))
		if system := set.System(kind); system != "" {
			fmt.Fprintf(w, "-- system\n%s\n", strings.TrimSpace(system))
		}
	}
	return nil
}
