package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"github.com/nestora/nestora/internal/inventory"
	"github.com/nestora/nestora/internal/knowledge"
	"github.com/nestora/nestora/internal/lead"
	"github.com/nestora/nestora/internal/log"
	"github.com/nestora/nestora/internal/qualify"
	"github.com/nestora/nestora/internal/session"
)

func strPtr(s string) *string { return &s }

type fakeKnowledge struct {
	results  []knowledge.Result
	lastTopK int
}

func (f *fakeKnowledge) Search(_ context.Context, _ string, topK int) ([]knowledge.Result, error) {
	f.lastTopK = topK
	return f.results, nil
}

type fakeInventory struct {
	matches    []inventory.Match
	lastFilter inventory.Filter
}

func (f *fakeInventory) Search(_ context.Context, _ string, filter inventory.Filter) ([]inventory.Match, error) {
	f.lastFilter = filter
	return f.matches, nil
}

type fakeLeads struct {
	rows   map[string]int64
	nextID int64
	last   lead.Lead
}

func (f *fakeLeads) Persist(_ context.Context, l lead.Lead) (int64, error) {
	if f.rows == nil {
		f.rows = make(map[string]int64)
		f.nextID = 1
	}
	if id, ok := f.rows[l.ExternalKey]; ok {
		f.last = l
		return id, nil
	}
	id := f.nextID
	f.nextID++
	f.rows[l.ExternalKey] = id
	f.last = l
	return id, nil
}

func buildTestRegistry(t *testing.T, kn *fakeKnowledge, inv *fakeInventory, leads *fakeLeads) *Registry {
	t.Helper()
	r, err := BuildRegistry(Config{ScoreThreshold: 60}, kn, inv, leads, log.NewNop())
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}
	return r
}

func TestBuildRegistryHasAllTools(t *testing.T) {
	r := buildTestRegistry(t, &fakeKnowledge{}, &fakeInventory{}, &fakeLeads{})

	want := []string{
		"knowledge_search", "inventory_search", "normalize_budget",
		"geo_match", "lead_score", "persist_qualification",
	}
	got := r.Names()
	if len(got) != len(want) {
		t.Fatalf("tool count = %d, want %d", len(got), len(want))
	}
	for i, name := range want {
		if got[i] != name {
			t.Errorf("tool[%d] = %q, want %q", i, got[i], name)
		}
	}
	for _, name := range want {
		if r.Lookup(name).InputSchema() == nil {
			t.Errorf("tool %q has no input schema", name)
		}
	}
}

func TestNormalizeBudgetTool(t *testing.T) {
	r := buildTestRegistry(t, &fakeKnowledge{}, &fakeInventory{}, &fakeLeads{})
	ctx := context.Background()
	sess := &session.Session{}

	out, err := r.Execute(ctx, sess, "normalize_budget",
		json.RawMessage(`{"text":"between 1.2M and 1.8M AED"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	result := out.Result.(NormalizeBudgetResult)
	if !result.Parsed || result.Min != 1_200_000 || result.Max != 1_800_000 {
		t.Errorf("result = %+v", result)
	}
	if out.Patch.BudgetMin == nil || *out.Patch.BudgetMin != 1_200_000 {
		t.Errorf("patch = %+v, want budget fields", out.Patch)
	}

	// Unparseable input is an answer for the model, not a failure.
	out, err = r.Execute(ctx, sess, "normalize_budget", json.RawMessage(`{"text":"no idea yet"}`))
	if err != nil {
		t.Fatalf("Execute unparseable: %v", err)
	}
	result = out.Result.(NormalizeBudgetResult)
	if result.Parsed || result.Reason == "" {
		t.Errorf("unparseable result = %+v", result)
	}
	if !out.Patch.IsZero() {
		t.Errorf("unparseable input patched the session: %+v", out.Patch)
	}
}

func TestGeoMatchTool(t *testing.T) {
	r := buildTestRegistry(t, &fakeKnowledge{}, &fakeInventory{}, &fakeLeads{})
	ctx := context.Background()
	sess := &session.Session{}

	out, err := r.Execute(ctx, sess, "geo_match", json.RawMessage(`{"text":"somewhere near the marina"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	result := out.Result.(GeoMatchResult)
	if !result.Matched || result.Area != "Dubai Marina" {
		t.Errorf("result = %+v", result)
	}
	if len(out.Patch.Areas) != 1 || out.Patch.Areas[0] != "Dubai Marina" {
		t.Errorf("patch = %+v", out.Patch)
	}

	out, err = r.Execute(ctx, sess, "geo_match", json.RawMessage(`{"text":"the moon"}`))
	if err != nil {
		t.Fatalf("Execute no-match: %v", err)
	}
	if out.Result.(GeoMatchResult).Matched {
		t.Error("matched an unknown location")
	}
}

func TestInventorySearchToolPatchesAndCaches(t *testing.T) {
	inv := &fakeInventory{matches: []inventory.Match{
		{Unit: inventory.Unit{ID: "u1", Title: "2BR Marina View", Community: "Dubai Marina", Beds: 2, PriceAED: 1_450_000}, Score: 0.91},
	}}
	r := buildTestRegistry(t, &fakeKnowledge{}, inv, &fakeLeads{})

	out, err := r.Execute(context.Background(), &session.Session{}, "inventory_search",
		json.RawMessage(`{"areas":["Dubai Marina"],"beds":2,"budget_max":1600000}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if inv.lastFilter.Beds == nil || *inv.lastFilter.Beds != 2 {
		t.Errorf("filter = %+v", inv.lastFilter)
	}
	if len(out.Matches) != 1 || out.Matches[0].UnitID != "u1" {
		t.Errorf("cached matches = %+v", out.Matches)
	}
	if out.Patch.Beds == nil || len(out.Patch.Areas) != 1 || out.Patch.BudgetMax == nil {
		t.Errorf("patch = %+v", out.Patch)
	}
}

func TestKnowledgeSearchTool(t *testing.T) {
	kn := &fakeKnowledge{results: []knowledge.Result{
		{Snippet: knowledge.Snippet{Topic: "fees", Content: "DLD transfer fee is 4%."}, Similarity: 0.9},
	}}
	r := buildTestRegistry(t, kn, &fakeInventory{}, &fakeLeads{})

	out, err := r.Execute(context.Background(), &session.Session{}, "knowledge_search",
		json.RawMessage(`{"query":"transfer fees"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// The result count is fixed; the model cannot widen it.
	if kn.lastTopK != knowledge.DefaultTopK {
		t.Errorf("topK = %d, want %d", kn.lastTopK, knowledge.DefaultTopK)
	}
	snippets := out.Result.(map[string]any)["snippets"].([]KnowledgeSearchResult)
	if len(snippets) != 1 || snippets[0].Topic != "fees" {
		t.Errorf("snippets = %+v", snippets)
	}
}

func TestLeadScoreToolUsesSessionState(t *testing.T) {
	r := buildTestRegistry(t, &fakeKnowledge{}, &fakeInventory{}, &fakeLeads{})

	beds := 2
	sess := &session.Session{
		Collected: session.CollectedData{
			Beds:  &beds,
			Email: strPtr("a@b.com"),
		},
		LastMatches: []qualify.Match{{UnitID: "u1", Score: 0.9, Price: 1_000_000}},
	}

	out, err := r.Execute(context.Background(), sess, "lead_score", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	result := out.Result.(qualify.Result)
	if result.Score <= 0 {
		t.Errorf("score = %d, want > 0 from session state", result.Score)
	}
	if len(result.MissingInfo) == 0 {
		t.Error("sparse profile should report missing info")
	}
	if out.Qualification == nil || out.Qualification.Score != result.Score {
		t.Errorf("output qualification = %+v, want score %d", out.Qualification, result.Score)
	}
}

func TestPersistQualificationTool(t *testing.T) {
	leads := &fakeLeads{}
	r := buildTestRegistry(t, &fakeKnowledge{}, &fakeInventory{}, leads)
	ctx := context.Background()

	sess := &session.Session{ID: uuid.New()}

	// Without contact details persistence is refused.
	_, err := r.Execute(ctx, sess, "persist_qualification", json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("persisted without contact details")
	}

	sess.Collected.Email = strPtr("buyer@example.com")
	out, err := r.Execute(ctx, sess, "persist_qualification", json.RawMessage(`{"name":"Sara"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	result := out.Result.(PersistQualificationResult)
	if result.LeadID == 0 || out.LeadID != result.LeadID {
		t.Errorf("result = %+v, output lead id = %d", result, out.LeadID)
	}
	if leads.last.Name != "Sara" || leads.last.Email != "buyer@example.com" {
		t.Errorf("persisted lead = %+v", leads.last)
	}
	if out.Qualification == nil {
		t.Error("persisted qualification missing from output")
	}

	// Same session persists to the same lead row.
	out2, err := r.Execute(ctx, sess, "persist_qualification", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if out2.LeadID != out.LeadID {
		t.Errorf("lead id changed: %d != %d", out2.LeadID, out.LeadID)
	}
}
