package tagcache

import (
	"context"
	"errors"

	"github.com/silverpine/tagcache/backend"
)

// InvalidateTags deduplicates tags, maps each to its namespaced tag id, and
// sweeps every item currently related to any of them. On success it also
// flushes the L1 accelerator wholesale, since an accelerator has no tag
// index to evict selectively.
func (p *pool[V]) InvalidateTags(ctx context.Context, tags ...string) (bool, error) {
	if len(tags) == 0 {
		return false, nil
	}
	for _, t := range tags {
		if err := validateTag(t); err != nil {
			return false, err
		}
	}

	seen := make(map[string]struct{}, len(tags))
	tagIDs := make([]string, 0, len(tags))
	for _, t := range tags {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		tagIDs = append(tagIDs, p.tagID(t))
	}

	ok, err := p.backend.Invalidate(ctx, tagIDs)
	if err != nil {
		var fatal *backend.FatalError
		if errors.As(err, &fatal) {
			p.reportFatal(fatal)
			return ok, &BackendFatalError{Op: fatal.Op, Err: fatal.Err}
		}
		return ok, err
	}

	if ok && p.l1 != nil {
		if err := p.l1.Flush(ctx); err != nil {
			p.log.Warn("accelerator flush after invalidate failed", Fields{"err": err})
		}
	}

	return ok, nil
}
