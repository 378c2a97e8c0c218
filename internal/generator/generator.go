// Package generator turns a free-text description of a landing page into a
// block layout by asking a text-generation model, and refines marketing
// copy with the same model.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/time/rate"

	"github.com/shopboost/shopboost/internal/store"
)

const (
	DefaultLayoutModel = "gemini-3-pro-preview"
	DefaultRefineModel = "gemini-3-flash-preview"

	// DefaultInstruction is used by Refine when the caller gives none.
	DefaultInstruction = "make it more persuasive and focused on conversion"
)

// ErrNoLayout means the model produced nothing usable. Callers keep their
// current blocks.
var ErrNoLayout = errors.New("no layout generated")

// BlockDraft is a generated block before it is given an id.
type BlockDraft struct {
	Type    store.BlockType
	Content store.Content
}

// Request is one call to a Model.
type Request struct {
	Model  string
	Prompt string
	// Layout asks for a JSON array of {type, content} restricted to Allowed.
	Layout  bool
	Allowed []store.BlockType
}

// Model is a text-generation backend.
type Model interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Layouter is what sessions need from a Generator.
type Layouter interface {
	GenerateLayout(ctx context.Context, prompt string) ([]BlockDraft, error)
}

type Generator struct {
	model       Model
	limiter     *rate.Limiter
	policy      *bluemonday.Policy
	logger      *slog.Logger
	layoutModel string
	refineModel string
}

var _ Layouter = (*Generator)(nil)

type Option func(*Generator)

// WithRate limits model calls to perMinute per minute. Zero means no limit.
func WithRate(perMinute int) Option {
	return func(g *Generator) {
		if perMinute > 0 {
			g.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
		}
	}
}

func WithModels(layout, refine string) Option {
	return func(g *Generator) {
		if layout != "" {
			g.layoutModel = layout
		}
		if refine != "" {
			g.refineModel = refine
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) { g.logger = logger }
}

func New(model Model, opts ...Option) *Generator {
	g := &Generator{
		model:       model,
		limiter:     rate.NewLimiter(rate.Inf, 1),
		policy:      bluemonday.StrictPolicy(),
		logger:      slog.Default(),
		layoutModel: DefaultLayoutModel,
		refineModel: DefaultRefineModel,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GenerateLayout asks the model for a layout matching prompt. Any failure,
// including output with no valid block, returns an error wrapping
// ErrNoLayout.
func (g *Generator) GenerateLayout(ctx context.Context, prompt string) ([]BlockDraft, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, fmt.Errorf("%w: empty prompt", ErrNoLayout)
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoLayout, err)
	}

	start := time.Now()
	text, err := g.model.Generate(ctx, Request{
		Model:   g.layoutModel,
		Prompt:  layoutPrompt(prompt),
		Layout:  true,
		Allowed: store.BlockTypes,
	})
	if err != nil {
		g.logger.Warn("layout generation failed", "model", g.layoutModel, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrNoLayout, err)
	}

	drafts, err := g.parse(text)
	if err != nil {
		g.logger.Warn("unusable layout output", "model", g.layoutModel, "error", err)
		return nil, err
	}
	g.logger.Info("layout generated", "model", g.layoutModel, "blocks", len(drafts), "duration", time.Since(start))
	return drafts, nil
}

func layoutPrompt(prompt string) string {
	tags := make([]string, len(store.BlockTypes))
	for i, t := range store.BlockTypes {
		tags[i] = string(t)
	}
	return fmt.Sprintf(`Create a high-converting Shopify landing page layout for: %q.
Return a JSON array of blocks. Each block has "type" and "content".
Allowed types: %s.
Content fields: title, subtitle, buttonText, description, items (list of strings).`,
		prompt, strings.Join(tags, ", "))
}

type rawBlock struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

func (g *Generator) parse(text string) ([]BlockDraft, error) {
	var raws []rawBlock
	if err := json.Unmarshal([]byte(stripFence(text)), &raws); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoLayout, err)
	}

	drafts := make([]BlockDraft, 0, len(raws))
	for i, r := range raws {
		t, ok := store.ParseBlockType(r.Type)
		if !ok {
			g.logger.Warn("dropping generated block", "index", i, "type", r.Type, "reason", "unknown type")
			continue
		}
		c, err := store.DecodeContent(t, g.sanitize(r.Content))
		if err != nil {
			g.logger.Warn("dropping generated block", "index", i, "type", t, "reason", err)
			continue
		}
		drafts = append(drafts, BlockDraft{Type: t, Content: c})
	}

	if len(drafts) == 0 {
		return nil, fmt.Errorf("%w: no valid blocks in output", ErrNoLayout)
	}
	return drafts, nil
}

// stripFence removes a surrounding ``` or ```json fence some models add
// despite being asked for raw JSON.
func stripFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// sanitize strips markup from every string in a content object. Values it
// cannot read are passed through for DecodeContent to reject.
func (g *Generator) sanitize(raw json.RawMessage) []byte {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	out, err := json.Marshal(g.clean(v))
	if err != nil {
		return raw
	}
	return out
}

// strip removes markup but keeps entities readable.
func (g *Generator) strip(s string) string {
	return strings.TrimSpace(html.UnescapeString(g.policy.Sanitize(s)))
}

func (g *Generator) clean(v any) any {
	switch x := v.(type) {
	case string:
		return g.strip(x)
	case []any:
		for i := range x {
			x[i] = g.clean(x[i])
		}
		return x
	case map[string]any:
		for k := range x {
			x[k] = g.clean(x[k])
		}
		return x
	default:
		return v
	}
}

// Refine rewrites text following instruction. It never fails: on any model
// error or empty output the original text is returned.
func (g *Generator) Refine(ctx context.Context, text, instruction string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	if strings.TrimSpace(instruction) == "" {
		instruction = DefaultInstruction
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return text
	}

	out, err := g.model.Generate(ctx, Request{
		Model:  g.refineModel,
		Prompt: fmt.Sprintf("Refine the following marketing copy for a Shopify landing page. Instruction: %s. Copy: %q. Return only the refined text.", instruction, text),
	})
	if err != nil {
		g.logger.Warn("refine failed", "model", g.refineModel, "error", err)
		return text
	}

	out = g.strip(out)
	if out == "" {
		return text
	}
	return out
}
