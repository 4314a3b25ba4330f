package source

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy 是页面加载的有界重试策略（指数退避）。
// Retries 不含首次尝试：1 表示最多 2 次尝试。
type RetryPolicy struct {
	Retries    int
	Initial    time.Duration
	Multiplier float64
}

// DefaultRetryPolicy：重试一次，间隔 1s（若放宽次数则为 1s、2s、4s…）。
var DefaultRetryPolicy = RetryPolicy{Retries: 1, Initial: time.Second, Multiplier: 2}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.Retries < 0 {
		p.Retries = 0
	}
	if p.Initial <= 0 {
		p.Initial = DefaultRetryPolicy.Initial
	}
	if p.Multiplier < 1 {
		p.Multiplier = DefaultRetryPolicy.Multiplier
	}
	return p
}

// Do 执行 op，失败后按策略退避重试，返回实际尝试次数与最后一次错误。
//
// ErrNoMorePages 与 ctx 取消不重试，直接返回。
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) (attempts int, err error) {
	p = p.normalized()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.Initial
	eb.Multiplier = p.Multiplier
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.Retries)), ctx)

	err = backoff.Retry(func() error {
		attempts++
		e := op(ctx)
		if e == nil {
			return nil
		}
		if errors.Is(e, ErrNoMorePages) || ctx.Err() != nil {
			return backoff.Permanent(e)
		}
		return e
	}, b)
	return attempts, err
}
