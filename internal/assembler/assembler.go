// Package assembler builds the tiered context bundle a scene draft is
// conditioned on. Tier 1 is identity (characters and in-scope rules) and is
// never truncated. Tier 2 is recent raw scene text. Tier 3 is semantic
// recall from episodic memory.
package assembler

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"loreweaver/internal/config"
	"loreweaver/internal/episodic"
	"loreweaver/internal/store"
)

type Request struct {
	ProjectID        string
	ActiveCharacters []store.Character
	Location         string
	SceneIntent      string

	// IntentVec enables Tier 3 recall. Nil skips it, which the planning
	// phase uses: planning sees identity and recency only.
	IntentVec []float32
}

type Bundle struct {
	Tier1    string
	Tier2    string
	Tier3    string
	Manifest Manifest
}

// Manifest records which sequence indexes made it into each tier and which
// were dropped by budget truncation. Tier 1 is never truncated, so its
// budget pressure is reported instead: Tier1Overrun means the identity
// tier alone exceeds its reservation and the cast or rule set needs
// trimming upstream.
type Manifest struct {
	RuleIDs       []string
	Tier1Tokens   int
	Tier1Overrun  bool
	Tier2Included []int
	Tier2Dropped  []int
	Tier3Included []int
	Tier3Dropped  []int
}

type Assembler struct {
	structured store.Store
	episodic   episodic.Store
	cfg        config.ContextConfig
}

func New(structured store.Store, ep episodic.Store, cfg config.ContextConfig) *Assembler {
	return &Assembler{structured: structured, episodic: ep, cfg: cfg}
}

func (a *Assembler) Assemble(ctx context.Context, req Request) (*Bundle, error) {
	var (
		rules   []store.WorldRule
		nextSeq int
		recent  []store.Scene
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		all, err := a.structured.ListWorldRules(gctx, req.ProjectID, true)
		if err != nil {
			return fmt.Errorf("listing world rules: %w", err)
		}
		maxSeq, err := a.structured.MaxSequenceIndex(gctx, req.ProjectID)
		if err != nil {
			return fmt.Errorf("reading sequence index: %w", err)
		}
		rules, nextSeq = all, maxSeq+1
		return nil
	})
	g.Go(func() error {
		scenes, err := a.structured.RecentScenes(gctx, req.ProjectID, a.cfg.RecentScenes)
		if err != nil {
			return fmt.Errorf("listing recent scenes: %w", err)
		}
		recent = scenes
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("assembling context: %w", err)
	}

	bundle := &Bundle{}

	inScope := rules[:0:0]
	for _, rule := range rules {
		if store.RuleInScope(rule, req.Location, nextSeq) {
			inScope = append(inScope, rule)
			bundle.Manifest.RuleIDs = append(bundle.Manifest.RuleIDs, rule.ID)
		}
	}
	bundle.Tier1 = renderTier1(req.ActiveCharacters, inScope)
	bundle.Manifest.Tier1Tokens = estimateTokens(bundle.Tier1)
	bundle.Manifest.Tier1Overrun = a.cfg.Tier1Budget > 0 && bundle.Manifest.Tier1Tokens > a.cfg.Tier1Budget

	bundle.Tier2, bundle.Manifest.Tier2Included, bundle.Manifest.Tier2Dropped =
		renderTier2(recent, a.cfg.Tier2Budget)

	if req.IntentVec != nil {
		matches, err := a.episodic.Search(ctx, req.ProjectID, req.IntentVec,
			a.cfg.EpisodicTopK, bundle.Manifest.Tier2Included)
		if err != nil {
			return nil, fmt.Errorf("assembling context: searching episodic memory: %w", err)
		}
		bundle.Tier3, bundle.Manifest.Tier3Included, bundle.Manifest.Tier3Dropped =
			renderTier3(matches, a.cfg.Tier3Budget)
	}

	return bundle, nil
}

// Render joins the populated tiers into the prompt context block.
func (b *Bundle) Render() string {
	out := b.Tier1
	if b.Tier2 != "" {
		out += "\n\n" + b.Tier2
	}
	if b.Tier3 != "" {
		out += "\n\n" + b.Tier3
	}
	return out
}

// estimateTokens approximates the tokenizer at four characters per token.
// Budgets are soft; only whole items are dropped.
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}
