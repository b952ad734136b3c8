package cli

import (
	"context"
	"fmt"
	"log"
	"os"

	"quiz-proctor-service/internal/config"
	"quiz-proctor-service/internal/domain"
	"quiz-proctor-service/internal/infra/postgres"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewSeedCmd loads a YAML question bank into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed topics, questions and options from a YAML question bank",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath, file)
		},
	}
	cmd.Flags().StringVar(&file, "file", "config/questions.yaml", "path to YAML question bank")
	return cmd
}

func runSeed(ctx context.Context, configPath, file string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	bank, err := loadBank(file)
	if err != nil {
		return err
	}

	db := postgres.OpenBun(cfg.Postgres.URL)
	defer db.Close()

	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}
	if err := postgres.NewSeeder(db).Seed(ctx, bank); err != nil {
		return err
	}
	log.Printf("seeded %d topics from %s", len(bank.Topics), file)
	return nil
}

func loadBank(path string) (domain.QuestionBank, error) {
	var bank domain.QuestionBank
	data, err := os.ReadFile(path)
	if err != nil {
		return bank, err
	}
	if err := yaml.Unmarshal(data, &bank); err != nil {
		return bank, fmt.Errorf("parse question bank %s: %w", path, err)
	}
	return bank, nil
}
