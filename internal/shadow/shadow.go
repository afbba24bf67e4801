package shadow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soldalen/heatpumpctl/internal/errors"
	"github.com/soldalen/heatpumpctl/internal/logger"
	"github.com/soldalen/heatpumpctl/internal/source"
	"github.com/soldalen/heatpumpctl/internal/store"
)

type knownEntry struct {
	canonical string
	hash      string
}

// Store tracks the last confirmed canonical value per configuration
// feature and emits changelog entries only for real changes. It owns all
// shadow-state mutation. Both the metrics and the config-check cadence
// feed observations in, so the known map is mutex-guarded.
type Store struct {
	mu    sync.Mutex
	repo  store.Store
	known map[string]knownEntry
}

// New loads the persisted shadow state so a restart does not replay
// "first observation" entries for features that are already known.
func New(repo store.Store) (*Store, error) {
	errFactory := errors.New()

	records, err := repo.LoadShadowState(context.Background())
	if err != nil {
		return nil, errFactory.Wrap(ErrLoadState, err)
	}

	known := make(map[string]knownEntry, len(records))
	for _, rec := range records {
		known[rec.Key] = knownEntry{canonical: rec.CanonicalValue, hash: rec.Hash}
	}

	logger.Debug().Int("features", len(known)).Msg("Shadow state loaded")

	return &Store{repo: repo, known: known}, nil
}

// Observe canonicalizes the feature value and compares it against the last
// confirmed state. Returns whether a real change was recorded. An equal
// value refreshes last_confirmed_at only, proving the poll is alive
// without generating changelog noise.
func (s *Store) Observe(ctx context.Context, feature source.Feature, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	errFactory := errors.New()

	canonical, err := Canonicalize(feature.Value)
	if err != nil {
		return false, errFactory.Wrap(ErrCanonicalize, err)
	}
	hash := Hash(canonical)

	existing, ok := s.known[feature.Key]
	if ok && existing.hash == hash {
		if err := s.repo.TouchShadowState(ctx, feature.Key, now); err != nil {
			return false, errFactory.Wrap(ErrPersist, err)
		}
		return false, nil
	}

	rec := store.ShadowRecord{
		Key:             feature.Key,
		CanonicalValue:  canonical,
		Hash:            hash,
		LastConfirmedAt: now,
		UpdatedAt:       now,
	}
	if err := s.repo.UpsertShadowState(ctx, rec); err != nil {
		return false, errFactory.Wrap(ErrPersist, err)
	}

	entry := store.ChangelogEntry{
		ID:        uuid.NewString(),
		Timestamp: now,
		Source:    "system",
		Category:  feature.Category,
		Item:      feature.Key,
		NewValue:  canonical,
	}
	if ok {
		old := existing.canonical
		entry.OldValue = &old
		entry.Description = fmt.Sprintf("%s changed", feature.Key)
	} else {
		entry.Description = fmt.Sprintf("%s observed for the first time", feature.Key)
	}

	if err := s.repo.AppendChangelog(ctx, entry); err != nil {
		return false, errFactory.Wrap(ErrPersist, err)
	}

	s.known[feature.Key] = knownEntry{canonical: canonical, hash: hash}

	if ok {
		logger.Info().Str("item", feature.Key).Msg("Configuration changed")
	} else {
		logger.Info().Str("item", feature.Key).Msg("Configuration feature discovered")
	}

	return true, nil
}

// ObserveAll runs Observe over every feature of a snapshot and returns the
// number of real changes. The first persistence error aborts, since change
// detection must not keep running on inconsistent state.
func (s *Store) ObserveAll(ctx context.Context, features []source.Feature, now time.Time) (int, error) {
	changed := 0
	for _, f := range features {
		ch, err := s.Observe(ctx, f, now)
		if err != nil {
			return changed, err
		}
		if ch {
			changed++
		}
	}

	return changed, nil
}
