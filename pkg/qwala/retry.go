package qwala

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// retry повторяет идемпотентный запрос с экспоненциальной задержкой.
// Без WithRetry запрос выполняется один раз.
func (c *Client) retry(ctx context.Context, op string, fn func() error) error {
	if c.maxRetries == 0 {
		return fn()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		c.logger.Debug("Retrying request",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})

	// backoff отдаёт голую ошибку контекста, если отмена пришлась на паузу
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		var te *TransportError
		var se *ServiceError
		if !errors.As(err, &te) && !errors.As(err, &se) {
			return &TransportError{Op: op, Err: err}
		}
	}

	return err
}
