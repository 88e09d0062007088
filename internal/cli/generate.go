package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"moodquiz-service/internal/app"
	"moodquiz-service/internal/config"
	"moodquiz-service/internal/domain"
	"moodquiz-service/internal/llm"
	"moodquiz-service/internal/pkg/logger"
)

// NewGenerateCmd generates questions for a text file and prints them as YAML.
// Nothing is stored.
func NewGenerateCmd(configPath *string) *cobra.Command {
	var difficulty string
	cmd := &cobra.Command{
		Use:   "generate <file>",
		Short: "Generate quiz questions from a text file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Log.Mode)
			if err != nil {
				return err
			}
			defer log.Sync()

			text, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			d, err := domain.ParseDifficulty(difficulty)
			if err != nil {
				return err
			}

			llmCfg := cfg.ToLLM()
			provider, err := llm.NewProvider(cmd.Context(), llmCfg, log)
			if err != nil {
				return err
			}
			svc := app.NewQuizService(nil, nil, nil, provider, generationOptions(llmCfg), log)
			specs, err := svc.Generate(cmd.Context(), string(text), d)
			if err != nil {
				return err
			}

			out, err := yaml.Marshal(specs)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), string(out))
			return err
		},
	}
	cmd.Flags().StringVar(&difficulty, "difficulty", "medium", "easy, medium or hard")
	return cmd
}

func generationOptions(cfg llm.Config) app.GenerationOptions {
	return app.GenerationOptions{MaxTokens: cfg.MaxTokens, Temperature: cfg.Temperature, Timeout: cfg.Timeout}
}
