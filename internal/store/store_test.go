package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/John-Robertt/moviescrape/internal/domain"
)

// backends 返回参与契约测试的存储实现；Postgres 需要显式提供 DSN。
func backends(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	out := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemory() },
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "movies.db"))
			if err != nil {
				t.Fatalf("打开 sqlite 失败：%v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"dryrun": func(t *testing.T) Store { return NewDryRun(NewMemory()) },
	}
	if dsn := os.Getenv("MOVIESCRAPE_TEST_PG_DSN"); dsn != "" {
		out["postgres"] = func(t *testing.T) Store {
			s, err := OpenPostgres(context.Background(), dsn)
			if err != nil {
				t.Fatalf("打开 postgres 失败：%v", err)
			}
			if _, err := s.db.Exec(context.Background(), "TRUNCATE movies"); err != nil {
				t.Fatalf("清空 movies 失败：%v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		}
	}
	return out
}

func heat() domain.MovieRecord {
	return domain.MovieRecord{
		Title:       "Heat",
		ReleaseYear: domain.StrPtr("1995"),
		Duration:    domain.StrPtr("2h 50m"),
		Category:    domain.StrPtr("R"),
		IMDbRating:  domain.FloatPtr(8.3),
		Cast:        domain.StrPtr("Al Pacino, Robert De Niro"),
	}
}

func TestStoreContract(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			if err := s.Create(ctx, heat()); err != nil {
				t.Fatalf("Create 失败：%v", err)
			}

			got, err := s.Get(ctx, "HEAT")
			if err != nil {
				t.Fatalf("大小写不敏感的 Get 失败：%v", err)
			}
			if diff := cmp.Diff(heat(), got); diff != "" {
				t.Fatalf("读回记录不一致（-want +got）：\n%s", diff)
			}

			dup := heat()
			dup.Title = "heat"
			if err := s.Create(ctx, dup); !errors.Is(err, ErrDuplicate) {
				t.Fatalf("大小写不同的同名记录应返回 ErrDuplicate，实际 %v", err)
			}

			if _, err := s.Get(ctx, "Ronin"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("期望 ErrNotFound，实际 %v", err)
			}

			updated, err := s.Update(ctx, "heat", domain.MoviePatch{Director: domain.StrPtr("Michael Mann")})
			if err != nil {
				t.Fatalf("Update 失败：%v", err)
			}
			if updated.Director == nil || *updated.Director != "Michael Mann" || updated.Title != "Heat" {
				t.Fatalf("Update 结果不正确：%+v", updated)
			}
			if _, err := s.Update(ctx, "Ronin", domain.MoviePatch{}); !errors.Is(err, ErrNotFound) {
				t.Fatalf("更新不存在的记录应返回 ErrNotFound，实际 %v", err)
			}

			if err := s.Create(ctx, domain.MovieRecord{Title: "Alien"}); err != nil {
				t.Fatalf("只有标题的记录也应能写入：%v", err)
			}
			if _, err := s.Update(ctx, "Alien", domain.MoviePatch{Title: domain.StrPtr("HEAT")}); !errors.Is(err, ErrDuplicate) {
				t.Fatalf("改名为已存在的标题应返回 ErrDuplicate，实际 %v", err)
			}

			list, err := s.List(ctx)
			if err != nil {
				t.Fatalf("List 失败：%v", err)
			}
			if len(list) != 2 || list[0].Title != "Alien" || list[1].Title != "Heat" {
				t.Fatalf("List 应按标题排序：%+v", list)
			}
			if list[0].ReleaseYear != nil || list[0].IMDbRating != nil {
				t.Fatalf("缺失字段应读回为 nil：%+v", list[0])
			}

			if err := s.Delete(ctx, "alien"); err != nil {
				t.Fatalf("Delete 失败：%v", err)
			}
			if err := s.Delete(ctx, "alien"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("重复删除应返回 ErrNotFound，实际 %v", err)
			}

			if err := s.Create(ctx, domain.MovieRecord{Title: "  "}); !errors.Is(err, domain.ErrMissingTitle) {
				t.Fatalf("空标题应被拒绝，实际 %v", err)
			}
		})
	}
}

func TestStore_ConcurrentCreateSameTitle(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()

			const n = 8
			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				ok   int
				dups int
			)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := s.Create(ctx, domain.MovieRecord{Title: "Arrival"})
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						ok++
					case errors.Is(err, ErrDuplicate):
						dups++
					default:
						t.Errorf("不期望错误：%v", err)
					}
				}()
			}
			wg.Wait()
			if ok != 1 || dups != n-1 {
				t.Fatalf("同名并发写入应只成功一次：ok=%d dups=%d", ok, dups)
			}
		})
	}
}

func TestSQLite_ReopenKeepsDataAndMigrationsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "movies.db")
	ctx := context.Background()

	s, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("打开失败：%v", err)
	}
	if err := s.Create(ctx, heat()); err != nil {
		t.Fatalf("Create 失败：%v", err)
	}
	_ = s.Close()

	s2, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("重新打开失败：%v", err)
	}
	defer s2.Close()
	if _, err := s2.Get(ctx, "heat"); err != nil {
		t.Fatalf("重新打开后应能读到数据：%v", err)
	}
	var n int
	if err := s2.db.QueryRow("SELECT COUNT(1) FROM schema_migrations").Scan(&n); err != nil {
		t.Fatalf("查询迁移记录失败：%v", err)
	}
	if n != 1 {
		t.Fatalf("迁移应只记录一次，实际 %d", n)
	}
}

func TestDryRun_DoesNotTouchBase(t *testing.T) {
	ctx := context.Background()
	base := NewMemory()
	if err := base.Create(ctx, heat()); err != nil {
		t.Fatalf("Create 失败：%v", err)
	}

	d := NewDryRun(base)
	if err := d.Create(ctx, domain.MovieRecord{Title: "heat"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("base 中已存在的标题应返回 ErrDuplicate，实际 %v", err)
	}
	if err := d.Create(ctx, domain.MovieRecord{Title: "Ronin"}); err != nil {
		t.Fatalf("Create 失败：%v", err)
	}
	if err := d.Delete(ctx, "Heat"); err != nil {
		t.Fatalf("Delete 失败：%v", err)
	}

	list, _ := d.List(ctx)
	if len(list) != 1 || list[0].Title != "Ronin" {
		t.Fatalf("覆盖层视图不正确：%+v", list)
	}
	baseList, _ := base.List(ctx)
	if len(baseList) != 1 || baseList[0].Title != "Heat" {
		t.Fatalf("base 不应被修改：%+v", baseList)
	}
}

func TestOpen_DispatchesByDSN(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "a.db"))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if _, ok := s.(*SQLite); !ok {
		t.Fatalf("期望 *SQLite，实际 %T", s)
	}
	_ = s.Close()

	if _, err := Open(ctx, ""); err == nil {
		t.Fatalf("空 DSN 应报错")
	}
	if _, err := Open(ctx, "mysql://localhost/x"); err == nil {
		t.Fatalf("不支持的 scheme 应报错")
	}
}

func TestKey_CaseFolding(t *testing.T) {
	if Key(" Amélie ") != Key("AMÉLIE") {
		t.Fatalf("Unicode 大小写应折叠为同一键")
	}
	if Key("Straße") != Key("STRASSE") {
		t.Fatalf("ß 应与 SS 折叠为同一键")
	}
}
