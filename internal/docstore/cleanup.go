package docstore

import (
	"context"
	"fmt"

	"engagement/pkg/domain"
)

// DefaultBatchSize bounds one cleanup page.
const DefaultBatchSize = 500

// CleanUp deletes every direct child of collection in pages of batchSize, one
// DeleteBatch per page, until a page comes back empty. It returns the number
// of documents deleted. A failed page aborts the loop; calling CleanUp again
// resumes where it stopped.
func CleanUp(ctx context.Context, store domain.DocumentStore, collection string, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		docs, err := store.Query(ctx, domain.Query{Collection: collection, Limit: batchSize})
		if err != nil {
			return total, fmt.Errorf("list %s: %w", collection, err)
		}
		if len(docs) == 0 {
			return total, nil
		}
		paths := make([]string, len(docs))
		for i, d := range docs {
			paths[i] = d.Path
		}
		if err := store.DeleteBatch(ctx, paths); err != nil {
			return total, fmt.Errorf("delete batch in %s: %w", collection, err)
		}
		total += len(paths)
	}
}
