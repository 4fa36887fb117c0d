package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/spf13/cobra"

	"github.com/nestora/nestora/db"
	"github.com/nestora/nestora/internal/config"
	"github.com/nestora/nestora/internal/inventory"
	"github.com/nestora/nestora/internal/knowledge"
	"github.com/nestora/nestora/internal/log"
)

var (
	indexKnowledgeFile string
	indexInventoryFile string
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Seed knowledge snippets and inventory units",
	Long: `Reads JSON files and upserts their contents into the vector
indexes. Embeddings are computed at index time; re-running with the same
ids updates in place.

Knowledge file: array of {id, topic, content}.
Inventory file: array of {id, title, community, city, beds,
property_type, price_aed, size_sqft, description, available}.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runIndex(cmd.Context())
	},
}

func init() {
	indexCmd.Flags().StringVar(&indexKnowledgeFile, "knowledge", "", "path to knowledge snippets JSON")
	indexCmd.Flags().StringVar(&indexInventoryFile, "inventory", "", "path to inventory units JSON")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(ctx context.Context) error {
	if indexKnowledgeFile == "" && indexInventoryFile == "" {
		return errors.New("nothing to index: pass --knowledge and/or --inventory")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{})
	slog.SetDefault(logger)

	if err := db.RunMigrations(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	pool, err := newDBPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return errors.New("initializing genkit")
	}
	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}

	if indexKnowledgeFile != "" {
		store := knowledge.New(knowledge.NewPGQueries(pool), embedder, logger)
		n, err := indexKnowledge(ctx, store, indexKnowledgeFile)
		if err != nil {
			return fmt.Errorf("indexing knowledge: %w", err)
		}
		logger.Info("knowledge snippets indexed", "count", n, "file", indexKnowledgeFile)
	}

	if indexInventoryFile != "" {
		store := inventory.New(inventory.NewPGQueries(pool), embedder, logger)
		n, err := indexInventory(ctx, store, indexInventoryFile)
		if err != nil {
			return fmt.Errorf("indexing inventory: %w", err)
		}
		logger.Info("inventory units indexed", "count", n, "file", indexInventoryFile)
	}

	return nil
}

func indexKnowledge(ctx context.Context, store *knowledge.Store, path string) (int, error) {
	var snippets []knowledge.Snippet
	if err := readJSONFile(path, &snippets); err != nil {
		return 0, err
	}
	for i, s := range snippets {
		if s.ID == "" || s.Content == "" {
			return i, fmt.Errorf("snippet %d: id and content are required", i)
		}
		if err := store.Add(ctx, s); err != nil {
			return i, fmt.Errorf("snippet %q: %w", s.ID, err)
		}
	}
	return len(snippets), nil
}

func indexInventory(ctx context.Context, store *inventory.Store, path string) (int, error) {
	var units []inventory.Unit
	if err := readJSONFile(path, &units); err != nil {
		return 0, err
	}
	for i, u := range units {
		if u.ID == "" || u.Title == "" {
			return i, fmt.Errorf("unit %d: id and title are required", i)
		}
		if err := store.Add(ctx, u); err != nil {
			return i, fmt.Errorf("unit %q: %w", u.ID, err)
		}
	}
	return len(units), nil
}

func readJSONFile(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}
