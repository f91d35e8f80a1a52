package service

import (
	"context"
	"fmt"

	"logqueue/internal/model"
)

// filterNew drops the candidates whose id the store already holds. The lookup
// result is only used for membership, so its order and duplicates are
// irrelevant.
func filterNew(ctx context.Context, s Store, candidates []model.Candidate, ids []string) ([]model.Candidate, error) {
	if len(ids) == 0 {
		return candidates, nil
	}
	existing, err := s.ExistingEventIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("lookup existing event ids: %w", err)
	}
	if len(existing) == 0 {
		return candidates, nil
	}
	fresh := make([]model.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := existing[c.ID]; ok {
			continue
		}
		fresh = append(fresh, c)
	}
	return fresh, nil
}

func candidateIDs(cs []model.Candidate) []string {
	ids := make([]string, len(cs))
	for i, c := range cs {
		ids[i] = c.ID
	}
	return ids
}
