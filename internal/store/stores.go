package store

import (
	"fmt"
	"math/rand"
	"sort"
)

// DatasetPaths locates the three physical databases backing a dataset.
// Raw and annotation files are per-dataset; the taxonomy is shared.
type DatasetPaths struct {
	Raw        string
	Annotation string
	Taxonomy   string
}

// Stores bundles the three stores of one dataset
type Stores struct {
	Raw        *Store
	Annotation *Store
	Taxonomy   *Store
}

// OpenStores opens the three stores for a dataset. Any store that fails
// to open closes the ones already opened.
func OpenStores(paths DatasetPaths, opts *OpenOptions) (*Stores, error) {
	raw, err := OpenWithOptions(paths.Raw, KindRaw, opts)
	if err != nil {
		return nil, fmt.Errorf("raw store: %w", err)
	}

	annotation, err := OpenWithOptions(paths.Annotation, KindAnnotation, opts)
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("annotation store: %w", err)
	}

	taxonomy, err := OpenWithOptions(paths.Taxonomy, KindTaxonomy, opts)
	if err != nil {
		raw.Close()
		annotation.Close()
		return nil, fmt.Errorf("taxonomy store: %w", err)
	}

	return &Stores{Raw: raw, Annotation: annotation, Taxonomy: taxonomy}, nil
}

// Close closes all three stores, returning the first error
func (ss *Stores) Close() error {
	var firstErr error
	for _, s := range []*Store{ss.Raw, ss.Annotation, ss.Taxonomy} {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// AnnotateQuery selects which poems an annotation run should cover
type AnnotateQuery struct {
	Limit           int
	StartID         int64
	EndID           int64
	IDs             []int64 // explicit poem IDs, overrides range filters
	ForceRerun      bool    // include poems already completed
	IncludeInactive bool
}

// GetPoemsToAnnotate returns poems pending annotation for a model, in
// ascending ID order. Poems with a completed annotation are excluded
// unless ForceRerun is set; failed ones are always included. The two
// databases are consulted separately and joined in memory since they
// live in different files.
func (ss *Stores) GetPoemsToAnnotate(model string, q AnnotateQuery) ([]*Poem, error) {
	completed := map[int64]struct{}{}
	if !q.ForceRerun {
		var err error
		completed, err = ss.Annotation.GetCompletedPoemIDs(model)
		if err != nil {
			return nil, err
		}
	}

	var candidates []*Poem
	var err error
	if len(q.IDs) > 0 {
		candidates, err = ss.Raw.GetPoemsByIDs(q.IDs)
	} else {
		// Limit is applied after the completed filter, so fetch all here
		candidates, err = ss.Raw.GetPoems(PoemQuery{
			StartID:         q.StartID,
			EndID:           q.EndID,
			IncludeInactive: q.IncludeInactive,
		})
	}
	if err != nil {
		return nil, err
	}

	var pending []*Poem
	for _, p := range candidates {
		if _, done := completed[p.ID]; done {
			continue
		}
		pending = append(pending, p)
		if q.Limit > 0 && len(pending) >= q.Limit {
			break
		}
	}
	return pending, nil
}

// ModelStats summarizes one model's annotation progress
type ModelStats struct {
	Model           string
	Completed       int
	Failed          int
	UniqueCompleted int // distinct normalized poem texts, when dedup requested
}

// GetStatistics returns per-model annotation counts, sorted by model
// name. With dedup, completed counts are additionally collapsed by
// normalized poem full text so reprints of the same poem count once.
func (ss *Stores) GetStatistics(dedup bool) ([]ModelStats, error) {
	counts, err := ss.Annotation.ModelStatusCounts()
	if err != nil {
		return nil, err
	}

	var textKeys map[int64]string
	if dedup {
		textKeys, err = ss.Raw.PoemTextKeys()
		if err != nil {
			return nil, err
		}
	}

	var stats []ModelStats
	for model, byStatus := range counts {
		st := ModelStats{
			Model:     model,
			Completed: byStatus[StatusCompleted],
			Failed:    byStatus[StatusFailed],
		}
		if dedup {
			ids, err := ss.Annotation.GetCompletedPoemIDs(model)
			if err != nil {
				return nil, err
			}
			seen := make(map[string]struct{})
			for id := range ids {
				key, ok := textKeys[id]
				if !ok {
					key = fmt.Sprintf("missing-%d", id)
				}
				seen[key] = struct{}{}
			}
			st.UniqueCompleted = len(seen)
		}
		stats = append(stats, st)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Model < stats[j].Model })
	return stats, nil
}

// SampleQuery filters random sampling
type SampleQuery struct {
	N                  int
	ExcludeModel       string // exclude poems completed by this model
	FilterMissingChars bool   // drop poems flagged missing_chars
}

// RandomSample draws poems uniformly without replacement. Sampling is
// done over the candidate ID set in memory so exclusion filters cannot
// bias the draw.
func (ss *Stores) RandomSample(q SampleQuery) ([]*Poem, error) {
	candidates, err := ss.Raw.GetPoems(PoemQuery{IncludeInactive: true})
	if err != nil {
		return nil, err
	}

	var excluded map[int64]struct{}
	if q.ExcludeModel != "" {
		excluded, err = ss.Annotation.GetCompletedPoemIDs(q.ExcludeModel)
		if err != nil {
			return nil, err
		}
	}

	var pool []*Poem
	for _, p := range candidates {
		if q.FilterMissingChars && p.DataStatus == DataStatusMissingChars {
			continue
		}
		if _, done := excluded[p.ID]; done {
			continue
		}
		pool = append(pool, p)
	}

	rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if q.N > 0 && q.N < len(pool) {
		pool = pool[:q.N]
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i].ID < pool[j].ID })
	return pool, nil
}
