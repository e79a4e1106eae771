package qwala

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

const defaultBatchConcurrency = 4

// ShortenBatch сокращает несколько ссылок параллельно, не более concurrency
// запросов одновременно. Результат выровнен по индексам items. Первая ошибка
// отменяет оставшиеся запросы и возвращается вызывающему.
func (c *Client) ShortenBatch(ctx context.Context, items []BatchItem, concurrency int) ([]string, error) {
	if concurrency <= 0 {
		concurrency = defaultBatchConcurrency
	}

	ids := make([]string, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, item := range items {
		g.Go(func() error {
			id, err := c.Shorten(gctx, item.LongLink, item.Options)
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			ids[i] = id
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return ids, nil
}
