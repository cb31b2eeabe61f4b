package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	tea "charm.land/bubbletea/v2"
	"github.com/spf13/cobra"

	"github.com/abhisek/lingua/internal/app"
	"github.com/abhisek/lingua/internal/screens/practice"
	"github.com/abhisek/lingua/internal/session"
)

var practiceCmd = &cobra.Command{
	Use:   "practice",
	Short: "Run a practice session in the terminal",
	Long: "Runs one learner session in the terminal. Type an answer and press Enter,\n" +
		"or pick an option with the arrow keys. :skip skips a typed question, :q or Esc ends the session.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		a, err := app.New(cmd.Context(), cfg, app.Options{Log: log})
		if err != nil {
			return err
		}
		defer a.Close()

		user, _ := cmd.Flags().GetString("user")
		module, _ := cmd.Flags().GetString("module")
		target, _ := cmd.Flags().GetString("target")
		source, _ := cmd.Flags().GetString("source")

		return runPractice(cmd.Context(), a, session.StartParams{
			UserID:         user,
			ModuleID:       module,
			TargetLanguage: target,
			SourceLanguage: source,
		}, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	user := os.Getenv("USER")
	if user == "" {
		user = "learner"
	}
	practiceCmd.Flags().StringP("user", "u", user, "Learner id")
	practiceCmd.Flags().StringP("module", "m", "", "Module id (see `lingua modules`)")
	practiceCmd.Flags().StringP("target", "t", "", "Language being learned, e.g. fr")
	practiceCmd.Flags().StringP("source", "s", "en", "Learner's own language")
	_ = practiceCmd.MarkFlagRequired("module")
	_ = practiceCmd.MarkFlagRequired("target")
}

// runPractice runs the practice screen on in and out until the session ends.
func runPractice(ctx context.Context, a *app.App, p session.StartParams, in io.Reader, out io.Writer) error {
	screen := practice.New(ctx, a.Sessions, a.Stats, p)
	prog := tea.NewProgram(screen,
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
	)
	if _, err := prog.Run(); err != nil {
		return fmt.Errorf("practice: %w", err)
	}
	return screen.Err()
}
