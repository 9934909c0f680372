package matcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/docuflow/docuflow/internal/interfaces"
	"github.com/docuflow/docuflow/internal/storage/cache"
)

// ReindexSignatures refreshes cache's embedding for every template whose
// Store.SignatureVersion has moved past what cache holds. Driven by serve's
// signature_reindex_cron schedule rather than Match's own request path, so a
// template edit's embedding cost lands on a background tick instead of the
// next document that happens to match it. A nil embedder makes this a no-op:
// there is no semantic signature to warm without one.
func ReindexSignatures(ctx context.Context, store interfaces.Store, sigCache *cache.SignatureCache, embedder interfaces.EmbedderClient, logger arbor.ILogger) error {
	if embedder == nil {
		return nil
	}

	templates, err := store.ListTemplates(ctx)
	if err != nil {
		return fmt.Errorf("failed to list templates for signature reindex: %w", err)
	}

	refreshed := 0
	for _, tmpl := range templates {
		fieldNames := make([]string, 0, len(tmpl.Fields))
		for _, f := range tmpl.Fields {
			fieldNames = append(fieldNames, f.Name)
		}

		if _, _, ok := sigCache.Get(tmpl.ID, tmpl.SignatureVersion); ok {
			continue
		}

		vec, err := embedder.Embed(ctx, strings.Join(fieldNames, " "))
		if err != nil {
			logger.Warn().Err(err).Str("template_id", tmpl.ID).Msg("signature reindex: embedding failed; leaving cache stale")
			continue
		}
		if err := sigCache.Put(tmpl.ID, tmpl.SignatureVersion, fieldNames, vec); err != nil {
			logger.Warn().Err(err).Str("template_id", tmpl.ID).Msg("signature reindex: cache write failed")
			continue
		}
		refreshed++
	}

	if refreshed > 0 {
		logger.Info().Int("refreshed", refreshed).Int("total", len(templates)).Msg("signature reindex complete")
	}
	return nil
}
