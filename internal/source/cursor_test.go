package source

import (
	"context"
	"errors"
	"testing"

	"github.com/John-Robertt/moviescrape/internal/domain"
)

func TestPaginate_YieldsAtMostRequestedPages(t *testing.T) {
	loads := 0
	c := Paginate(3, fastRetry, func(ctx context.Context, index int) (Page, error) {
		loads++
		return Page{HTML: []byte("<html/>")}, nil
	}, nil)

	got := 0
	for {
		p, err := c.Next(context.Background())
		if errors.Is(err, ErrNoMorePages) {
			break
		}
		if err != nil {
			t.Fatalf("不期望错误：%v", err)
		}
		if p.Index != got {
			t.Fatalf("页下标不连续：期望 %d，实际 %d", got, p.Index)
		}
		got++
	}
	if got != 3 || loads != 3 {
		t.Fatalf("期望 3 页，实际 got=%d loads=%d", got, loads)
	}
}

func TestPaginate_TruncatesOnNoMorePages(t *testing.T) {
	c := Paginate(5, fastRetry, func(ctx context.Context, index int) (Page, error) {
		if index == 2 {
			return Page{}, ErrNoMorePages
		}
		return Page{}, nil
	}, nil)

	n := 0
	for {
		_, err := c.Next(context.Background())
		if errors.Is(err, ErrNoMorePages) {
			break
		}
		if err != nil {
			t.Fatalf("不期望错误：%v", err)
		}
		n++
	}
	if n != 2 {
		t.Fatalf("期望提前结束于 2 页，实际 %d", n)
	}
	if _, err := c.Next(context.Background()); !errors.Is(err, ErrNoMorePages) {
		t.Fatalf("结束后应保持 ErrNoMorePages，实际 %v", err)
	}
}

func TestPaginate_PageErrorAfterRetriesThenContinues(t *testing.T) {
	calls := map[int]int{}
	c := Paginate(3, fastRetry, func(ctx context.Context, index int) (Page, error) {
		calls[index]++
		if index == 1 {
			return Page{}, &TimeoutError{Op: "load more"}
		}
		return Page{}, nil
	}, nil)

	ctx := context.Background()
	if _, err := c.Next(ctx); err != nil {
		t.Fatalf("第 0 页不期望错误：%v", err)
	}

	_, err := c.Next(ctx)
	var pe *PageError
	if !errors.As(err, &pe) {
		t.Fatalf("期望 *PageError，实际 %T %v", err, err)
	}
	if pe.Page != 1 || pe.Kind != domain.KindNavigationTimeout || pe.Attempts != 2 {
		t.Fatalf("PageError 不符合预期：%+v", pe)
	}
	if calls[1] != 2 {
		t.Fatalf("失败页应尝试 2 次，实际 %d", calls[1])
	}

	p, err := c.Next(ctx)
	if err != nil || p.Index != 2 {
		t.Fatalf("失败后应继续下一页：page=%+v err=%v", p, err)
	}
}

func TestPaginate_CloseOnce(t *testing.T) {
	closes := 0
	c := Paginate(1, fastRetry, func(ctx context.Context, index int) (Page, error) {
		return Page{}, nil
	}, func() error {
		closes++
		return nil
	})
	_ = c.Close()
	_ = c.Close()
	if closes != 1 {
		t.Fatalf("closeFn 应只调用一次，实际 %d", closes)
	}
}

func TestPaginate_CanceledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := Paginate(2, fastRetry, func(ctx context.Context, index int) (Page, error) {
		t.Fatalf("ctx 已取消时不应加载页面")
		return Page{}, nil
	}, nil)
	if _, err := c.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("期望 context.Canceled，实际 %v", err)
	}
}
