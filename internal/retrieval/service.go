package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/docuflow/docuflow/internal/interfaces"
	"github.com/docuflow/docuflow/internal/models"
	"github.com/docuflow/docuflow/internal/storage/cache"
)

// ErrQueryTimeout marks a query that exceeded its deadline with no cached
// result to fall back on, per §5's "never a partial uncached answer" rule
// and §7's cancellation policy.
var ErrQueryTimeout = errors.New("query deadline exceeded")

// QueryCache is the narrow capability Service depends on; satisfied by
// internal/storage/cache.QueryCache.
type QueryCache interface {
	Get(cacheKey string) (*models.QueryCacheEntry, bool)
	Put(cacheKey string, entry models.QueryCacheEntry) error
}

var _ QueryCache = (*cache.QueryCache)(nil)

// Service implements interfaces.QueryService, combining QueryPlanner +
// RetrievalEngine behind a single Ask call and the plan-keyed response
// cache (§4.8 step 7 / §4.9 step 7). The cache lookup spans both
// components' outputs, so it lives here rather than inside either one.
type Service struct {
	planner           interfaces.QueryPlanner
	engine            interfaces.RetrievalEngine
	cache             QueryCache
	defaultDeadlineMS int
	logger            arbor.ILogger
}

// NewService constructs a Service. cache may be nil, in which case every
// call bypasses the cache entirely (useful for tests that want deterministic
// LLM-refinement behavior on every call).
var _ interfaces.QueryService = (*Service)(nil)

func NewService(planner interfaces.QueryPlanner, engine interfaces.RetrievalEngine, queryCache QueryCache, defaultDeadlineMS int, logger arbor.ILogger) *Service {
	return &Service{planner: planner, engine: engine, cache: queryCache, defaultDeadlineMS: defaultDeadlineMS, logger: logger}
}

// Ask runs the cache-check/plan/retrieve flow described across §4.8 step 7
// and §4.9 step 7.
func (s *Service) Ask(ctx context.Context, req models.QueryRequest) (models.QueryResponse, error) {
	normalized := strings.Join(strings.Fields(strings.TrimSpace(req.Query)), " ")
	cacheKey := models.Plan{}.CacheKey(normalized, filterSetHash(req))

	if s.cache != nil {
		if entry, ok := s.cache.Get(cacheKey); ok {
			response := entry.Response
			response.PlanDiagnostics.CacheHit = true
			return response, nil
		}
	}

	deadlineMS := req.DeadlineMS
	if deadlineMS <= 0 {
		deadlineMS = s.defaultDeadlineMS
	}
	if deadlineMS <= 0 {
		deadlineMS = 5000
	}
	deadlineCtx, cancel := context.WithTimeout(ctx, time.Duration(deadlineMS)*time.Millisecond)
	defer cancel()

	plan, err := s.planner.Plan(deadlineCtx, req)
	if err != nil {
		if errors.Is(deadlineCtx.Err(), context.DeadlineExceeded) {
			return models.QueryResponse{}, fmt.Errorf("%w: planning did not complete in time", ErrQueryTimeout)
		}
		return models.QueryResponse{}, fmt.Errorf("query planning failed: %w", err)
	}

	response, err := s.engine.Retrieve(deadlineCtx, plan, req)
	if err != nil {
		if errors.Is(deadlineCtx.Err(), context.DeadlineExceeded) {
			return models.QueryResponse{}, fmt.Errorf("%w: retrieval did not complete in time", ErrQueryTimeout)
		}
		return models.QueryResponse{}, fmt.Errorf("retrieval failed: %w", err)
	}

	if s.cache != nil {
		entry := models.QueryCacheEntry{Plan: plan, Response: response, CreatedAt: time.Now()}
		if err := s.cache.Put(cacheKey, entry); err != nil {
			s.logger.Warn().Err(err).Str("cache_key", cacheKey).Msg("failed to write query cache entry")
		}
	}

	return response, nil
}

// filterSetHash derives the (filter_set_hash) half of the plan cache key
// from the caller's explicit filters and template pin, sorted so key order
// in the request never affects the hash.
func filterSetHash(req models.QueryRequest) string {
	keys := make([]string, 0, len(req.Filters))
	for k := range req.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	if req.TemplateID != nil {
		sb.WriteString("template=" + *req.TemplateID + ";")
	}
	for _, k := range keys {
		sb.WriteString(k + "=" + req.Filters[k] + ";")
	}

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}
