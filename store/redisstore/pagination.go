package redisstore

import "context"

// rangeBranchKeys pages through a branch-list key in windows of queryLimit
// entries, deduplicating into a set.
//
// Open question resolved: the source this was ported from terminates only
// on a null LRANGE response, which the primitive never returns — that loop
// never terminates on a list whose length is an exact multiple of the page
// size followed by nothing. This implementation terminates on an empty
// window AND on a short window (size < queryLimit), which together cover
// every list length.
func (s *RedisSessionStore) rangeBranchKeys(ctx context.Context, xid string) ([]string, error) {
	limit := s.queryLimit
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	seen := make(map[string]struct{})
	var keys []string
	start := 0
	for {
		stop := start + limit - 1
		window, err := s.client.lrange(ctx, branchListKey(xid), start, stop)
		if err != nil {
			return nil, err
		}
		for _, k := range window {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				keys = append(keys, k)
			}
		}
		if len(window) == 0 || len(window) < limit {
			break
		}
		start += limit
	}
	return keys, nil
}
