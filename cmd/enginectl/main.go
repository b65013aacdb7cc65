// Command enginectl wires the whole memory engine together and runs a
// handful of scenario walkthroughs against it, the way the teacher's
// cmd/api and cmd/worker wire a container and then drive it, just against a
// one-shot run instead of a long-lived server loop.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"memoryengine/internal/blocks"
	"memoryengine/internal/cache"
	"memoryengine/internal/config"
	"memoryengine/internal/decision"
	"memoryengine/internal/domain"
	"memoryengine/internal/extractor"
	"memoryengine/internal/graph"
	"memoryengine/internal/memoryengine"
	"memoryengine/internal/observability"
	"memoryengine/internal/retrieval"
	"memoryengine/internal/testsupport"
	"memoryengine/internal/vector"
)

const demoOrg = "org-demo"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Default()

	logger, err := observability.NewLogger(string(cfg.Environment))
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init:", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	engine := wire(cfg, logger)

	if err := runIngestionScenario(ctx, engine, logger); err != nil {
		logger.Error("ingestion scenario failed", zap.Error(err))
	}
	if err := runHybridSearchScenario(ctx, engine, logger); err != nil {
		logger.Error("hybrid search scenario failed", zap.Error(err))
	}
	if err := runGraphReasoningScenario(ctx, engine, logger); err != nil {
		logger.Error("graph reasoning scenario failed", zap.Error(err))
	}
	if err := runBlockRewriteScenario(ctx, engine, logger); err != nil {
		logger.Error("block rewrite scenario failed", zap.Error(err))
	}
}

// wiredEngine bundles every component main needs to hand to the scenario
// runners below.
type wiredEngine struct {
	memory    *memoryengine.Engine
	retrieval *retrieval.Engine
	graph     *graph.Engine
	extractor *extractor.Extractor
	decision  *decision.Engine
	blocks    *blocks.Manager
	rewriter  *blocks.Rewriter
	collector *observability.Collector
	now       func() time.Time
}

// wire builds every component from cfg, following the teacher's
// config-load-then-construct-container shape (cmd/api/main.go,
// cmd/worker/main.go) but returning a plain struct instead of a DI
// container, since this binary has no HTTP/worker lifecycle to hold open.
// Storage and the LLM client default to in-memory/offline implementations:
// a live deployment would swap in internal/storage/postgres.Store and
// internal/llm.GenAIClient here, gated on cfg.Storage/cfg.LLM being
// populated with real credentials.
func wire(cfg *config.Config, logger *zap.Logger) *wiredEngine {
	now := time.Now

	collector := observability.NewCollector("enginectl")

	l1 := cache.NewL1(1000)
	memCache := cache.New(l1, nil, cfg.Cache.DefaultTTL, collector)

	memories := testsupport.NewInMemoryRepository[domain.Memory](now)
	blockRepo := testsupport.NewInMemoryRepository[domain.Block](now)

	vectorStore := vector.NewMemStore(cfg.Vector.Dimension, vector.Metric(cfg.Vector.Metric))

	llmClient := newDemoLLM(cfg.Embedder.Dimension)

	graphEngine := graph.New(now)

	memEngine := memoryengine.New(memories, memCache, vectorStore, llmClient, graphEngine, collector, now, memoryengine.Config{
		ImportanceWeights:            memoryengine.ImportanceWeights(cfg.Engine.ImportanceWeights),
		PromoteOperationalToTactical: memoryengine.PromoteThreshold(cfg.Engine.PromoteOperationalToTactical),
		PromoteTacticalToStrategic:   memoryengine.PromoteThreshold(cfg.Engine.PromoteTacticalToStrategic),
		AutoRewriteThreshold:         cfg.Engine.AutoRewriteThreshold,
		DuplicateJaccardThreshold:    cfg.Engine.DuplicateJaccardThreshold,
		AutoResolveConfidence:        cfg.Engine.AutoResolveConfidence,
	})

	retrievalEngine := retrieval.New(memories, vectorStore, graphEngine, retrieval.Config{
		Weights: retrieval.FusionWeights(cfg.Retrieval.FusionWeights),
	}, now)

	extract := extractor.New(llmClient, extractor.Config{})
	decide := decision.New(llmClient, decision.Config{})

	blockManager := blocks.NewManager(blockRepo, cfg.Engine.AutoRewriteThreshold, now)
	rewriter := blocks.NewRewriter(llmClient)

	logger.Info("engine wired", zap.String("org", demoOrg))

	return &wiredEngine{
		memory:    memEngine,
		retrieval: retrievalEngine,
		graph:     graphEngine,
		extractor: extract,
		decision:  decide,
		blocks:    blockManager,
		rewriter:  rewriter,
		collector: collector,
		now:       now,
	}
}

// runIngestionScenario extracts facts from a short conversation, plans and
// applies decisions for them, then runs a text search and logs its hits
// (spec §8 S1).
func runIngestionScenario(ctx context.Context, e *wiredEngine, logger *zap.Logger) error {
	logger.Info("--- scenario: ingestion ---")

	messages := []domain.Message{
		{ID: "msg-1", OrgID: demoOrg, Role: domain.RoleUser, Text: "I love espresso and I live in Berlin"},
	}

	facts, err := e.extractor.Extract(ctx, messages)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	logger.Info("facts extracted", zap.Int("count", len(facts)))

	decisions, err := e.decision.Plan(ctx, facts, nil)
	if err != nil {
		return fmt.Errorf("plan: %w", err)
	}

	applied := 0
	for _, d := range decisions {
		if err := e.memory.ApplyDecision(ctx, demoOrg, domain.GlobalScope(), d); err != nil {
			logger.Warn("decision apply failed", zap.Error(err))
			continue
		}
		applied++
	}
	logger.Info("decisions applied", zap.Int("count", applied))

	results, err := e.retrieval.Search(ctx, memoryengine.MemoryQuery{
		OrgID: demoOrg,
		Text:  "coffee preference",
		Limit: 5,
	})
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	for _, r := range results {
		logger.Info("search hit", zap.String("content", r.Memory.Content), zap.Float64("score", r.Score))
	}
	return nil
}

// runHybridSearchScenario seeds three memories (two about apples, one about
// Berlin) and logs the ranking that fusing the text+vector legs produces
// (spec §8 S3).
func runHybridSearchScenario(ctx context.Context, e *wiredEngine, logger *zap.Logger) error {
	logger.Info("--- scenario: hybrid search ---")

	seed := func(id, content string, vec []float32) error {
		_, err := e.memory.AddMemory(ctx, domain.HierarchicalMemory{
			Memory: domain.Memory{ID: id, OrgID: demoOrg, Content: content, Importance: 0.5, Type: domain.MemorySemantic, Embedding: vec},
			Scope:  domain.GlobalScope(),
			Level:  domain.LevelOperational,
		})
		return err
	}

	appleVec := hashEmbed("apple fruit", 768)
	berlinVec := hashEmbed("berlin city", 768)

	if err := seed("hyb-1", "apple is a fruit", appleVec); err != nil {
		return err
	}
	if err := seed("hyb-2", "berlin is a city", berlinVec); err != nil {
		return err
	}
	if err := seed("hyb-3", "fruits include apples and pears", appleVec); err != nil {
		return err
	}

	results, err := e.retrieval.Search(ctx, memoryengine.MemoryQuery{
		OrgID:  demoOrg,
		Text:   "apple",
		Vector: appleVec,
		Limit:  5,
	})
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	for i, r := range results {
		logger.Info("hybrid rank", zap.Int("rank", i), zap.String("id", r.Memory.ID), zap.Float64("score", r.Score))
	}
	return nil
}

// runGraphReasoningScenario builds a three-node chain (apple -is_a-> fruit
// -related_to-> healthy) and runs deductive reasoning from apple to healthy,
// expecting a single length-2 path (spec §8 S4).
func runGraphReasoningScenario(ctx context.Context, e *wiredEngine, logger *zap.Logger) error {
	logger.Info("--- scenario: graph reasoning ---")

	nodes := []struct {
		id      string
		content string
	}{
		{"apple", "apple"},
		{"fruit", "fruit"},
		{"healthy", "healthy"},
	}
	for _, n := range nodes {
		if _, err := e.graph.AddNode(ctx, domain.Memory{ID: n.id, OrgID: demoOrg, Content: n.content}, "concept"); err != nil {
			return fmt.Errorf("add node %s: %w", n.id, err)
		}
	}
	if _, err := e.graph.AddEdge(ctx, demoOrg, "apple", "fruit", domain.RelationIsA, 1.0); err != nil {
		return fmt.Errorf("add edge apple->fruit: %w", err)
	}
	if _, err := e.graph.AddEdge(ctx, demoOrg, "fruit", "healthy", domain.RelationRelatedTo, 0.9); err != nil {
		return fmt.Errorf("add edge fruit->healthy: %w", err)
	}

	paths, err := e.graph.ReasonRelationships(ctx, demoOrg, "apple", "healthy", graph.ReasoningDeductive)
	if err != nil {
		return fmt.Errorf("reason: %w", err)
	}
	for _, p := range paths {
		logger.Info("reasoning path", zap.Strings("nodes", p.NodeIDs), zap.Float64("confidence", p.Confidence))
	}
	return nil
}

// runBlockRewriteScenario walks through spec §8 S2 literally: a human block
// with limit=100 and an initial value of "A" is appended 120 characters of
// "B". AppendToBlock auto-fits the result to at most Limit with
// PreserveRecent rather than rejecting the append, flagging NeedsRewrite in
// the same step; a subsequent explicit rewrite pass then compresses the
// block further to 80% of its limit, as S2 expects.
func runBlockRewriteScenario(ctx context.Context, e *wiredEngine, logger *zap.Logger) error {
	logger.Info("--- scenario: block rewrite ---")

	block := domain.Block{
		ID:    "block-human-1",
		OrgID: demoOrg,
		Label: "human",
		Value: "A",
		Limit: 100,
	}
	if err := e.blocks.CreateValidated(ctx, block); err != nil {
		return fmt.Errorf("create block: %w", err)
	}

	updated, err := e.blocks.AppendToBlock(ctx, demoOrg, block.ID, strings.Repeat("B", 120))
	if err != nil {
		return fmt.Errorf("append: %w", err)
	}
	block = updated
	logger.Info("block appended", zap.Int("length", len([]rune(block.Value))), zap.Bool("needs_rewrite", block.Metadata.NeedsRewrite))

	if block.Metadata.NeedsRewrite {
		result, err := e.rewriter.Rewrite(ctx, blocks.PreserveRecent, block.Value, int(0.8*float64(block.Limit)), "", "")
		if err != nil {
			return fmt.Errorf("rewrite: %w", err)
		}
		logger.Info("block rewritten", zap.Int("new_length", len([]rune(result.Content))), zap.Float64("quality", result.QualityScore))
	}
	return nil
}
