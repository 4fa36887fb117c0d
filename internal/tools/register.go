package tools

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// Config carries registry construction parameters.
type Config struct {
	// Timeout bounds each tool execution.
	Timeout time.Duration

	// ScoreThreshold is the qualification cutoff used by the scoring
	// and persistence tools.
	ScoreThreshold int
}

// BuildRegistry constructs the closed registry with all six tools.
// The tool set is fixed here; nothing registers tools later.
func BuildRegistry(cfg Config, knowledgeStore KnowledgeSearcher, inventoryStore InventorySearcher, leadStore LeadPersister, logger *slog.Logger) (*Registry, error) {
	if knowledgeStore == nil || inventoryStore == nil || leadStore == nil {
		return nil, fmt.Errorf("BuildRegistry: all stores are required")
	}

	registry := NewRegistry(cfg.Timeout, logger)

	builders := []func() (*Tool, error){
		func() (*Tool, error) { return NewKnowledgeSearch(knowledgeStore) },
		func() (*Tool, error) { return NewInventorySearch(inventoryStore) },
		NewNormalizeBudget,
		NewGeoMatch,
		func() (*Tool, error) { return NewLeadScore(cfg.ScoreThreshold) },
		func() (*Tool, error) { return NewPersistQualification(leadStore, cfg.ScoreThreshold) },
	}
	for _, build := range builders {
		tool, err := build()
		if err != nil {
			return nil, err
		}
		if err := registry.Add(tool); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

// RegisterWithGenkit defines each registry tool in Genkit so the model
// sees its name, description and input schema. Generation runs with
// returned tool requests, so these definitions advertise the tools; the
// orchestrator owns execution and the handlers here never run in normal
// operation.
func RegisterWithGenkit(g *genkit.Genkit, registry *Registry) []ai.ToolRef {
	refs := make([]ai.ToolRef, 0, len(registry.order))
	for _, name := range registry.order {
		tool := registry.tools[name]
		refs = append(refs, defineShim(g, tool))
	}
	return refs
}

func defineShim(g *genkit.Genkit, tool *Tool) ai.ToolRef {
	switch tool.name {
	case "knowledge_search":
		return genkit.DefineTool(g, tool.name, tool.description,
			func(_ *ai.ToolContext, _ KnowledgeSearchInput) (string, error) {
				return "", errOrchestratorOwned(tool.name)
			})
	case "inventory_search":
		return genkit.DefineTool(g, tool.name, tool.description,
			func(_ *ai.ToolContext, _ InventorySearchInput) (string, error) {
				return "", errOrchestratorOwned(tool.name)
			})
	case "normalize_budget":
		return genkit.DefineTool(g, tool.name, tool.description,
			func(_ *ai.ToolContext, _ NormalizeBudgetInput) (string, error) {
				return "", errOrchestratorOwned(tool.name)
			})
	case "geo_match":
		return genkit.DefineTool(g, tool.name, tool.description,
			func(_ *ai.ToolContext, _ GeoMatchInput) (string, error) {
				return "", errOrchestratorOwned(tool.name)
			})
	case "lead_score":
		return genkit.DefineTool(g, tool.name, tool.description,
			func(_ *ai.ToolContext, _ LeadScoreInput) (string, error) {
				return "", errOrchestratorOwned(tool.name)
			})
	case "persist_qualification":
		return genkit.DefineTool(g, tool.name, tool.description,
			func(_ *ai.ToolContext, _ PersistQualificationInput) (string, error) {
				return "", errOrchestratorOwned(tool.name)
			})
	default:
		panic(fmt.Sprintf("tools: no genkit shim for %q", tool.name))
	}
}

func errOrchestratorOwned(name string) error {
	return fmt.Errorf("tool %q is executed by the turn orchestrator", name)
}
