package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopboost/shopboost/internal/config"
	"github.com/shopboost/shopboost/internal/generator"
	"github.com/shopboost/shopboost/internal/session"
	"github.com/shopboost/shopboost/internal/shopify"
	"github.com/shopboost/shopboost/internal/store"
)

var errNoAPIKey = errors.New("no Gemini API key. Set SHOPBOOST_GEMINI_API_KEY or gemini.api_key in the config file")

// withStore opens the configured store, executes the function, and handles cleanup.
func withStore(fn func(context.Context, store.Store) error) error {
	ctx := context.Background()
	s, err := store.Open(ctx, cfg.GetString(config.KeyDBDriver), cfg.GetString(config.KeyDBDSN), store.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	return fn(ctx, s)
}

// withSession loads an existing page into an editing session, runs fn and
// saves the result before closing.
func withSession(id string, fn func(context.Context, store.Store, *session.Session) error) error {
	return withStore(func(ctx context.Context, s store.Store) error {
		if _, err := s.GetPage(ctx, id); err != nil {
			return pageNotFound(id, err)
		}
		sess, err := session.Load(ctx, s, id, session.WithLogger(logger))
		if err != nil {
			return err
		}
		defer sess.Close()

		if err := fn(ctx, s, sess); err != nil {
			return err
		}
		if err := sess.Flush(ctx); err != nil {
			return fmt.Errorf("failed to save page: %w", err)
		}
		return nil
	})
}

// newGenerator builds the Gemini-backed generator. It returns errNoAPIKey
// when no key is configured.
func newGenerator(ctx context.Context) (*generator.Generator, error) {
	key := cfg.GetString(config.KeyGeminiAPIKey)
	if key == "" {
		return nil, errNoAPIKey
	}
	model, err := generator.NewGemini(ctx, key)
	if err != nil {
		return nil, err
	}
	return generator.New(model,
		generator.WithModels(cfg.GetString(config.KeyLayoutModel), cfg.GetString(config.KeyRefineModel)),
		generator.WithRate(cfg.GetInt(config.KeyGeminiRate)),
		generator.WithLogger(logger),
	), nil
}

func newProductSource() *shopify.Client {
	return shopify.New(
		shopify.WithTimeout(cfg.GetDuration(config.KeyShopifyTimeout)),
		shopify.WithLogger(logger),
	)
}

// retryHint adds the try-again advice for failed external calls.
func retryHint(err error) error {
	if errors.Is(err, generator.ErrNoLayout) || errors.Is(err, shopify.ErrFetch) {
		return fmt.Errorf("%w\nPlease check your input and try again", err)
	}
	return err
}

func pageNotFound(id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("page '%s' not found", id)
	}
	return fmt.Errorf("failed to get page: %w", err)
}
