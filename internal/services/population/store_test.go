package population

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"FinPeer/internal/domain/models"
	drepo "FinPeer/internal/domain/repository"
	"FinPeer/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = models.BucketKey{Exchange: "US", Industry: "Information_Technology"}

type countingRepo struct {
	*repository.MemoryStore
	mu    sync.Mutex
	saves int
}

func (r *countingRepo) Save(ctx context.Context, key models.BucketKey, b *models.Bucket) error {
	r.mu.Lock()
	r.saves++
	r.mu.Unlock()
	return r.MemoryStore.Save(ctx, key, b)
}

func TestUpsertAdmissionGate(t *testing.T) {
	ctx := context.Background()
	s := NewStore(repository.NewMemoryStore())

	ok, err := s.Upsert(ctx, testKey, "SMALL", models.RatioRecord{models.RatioMarketCap: 40})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Upsert(ctx, testKey, "BIG", models.RatioRecord{models.RatioMarketCap: 60})
	require.NoError(t, err)
	assert.True(t, ok)

	entries, err := s.ReadAll(ctx, testKey)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "BIG", entries[0].Code)
}

func TestUpsertFiltersNegativeField(t *testing.T) {
	ctx := context.Background()
	s := NewStore(repository.NewMemoryStore())

	_, err := s.Upsert(ctx, testKey, "AAA", models.RatioRecord{
		models.RatioMarketCap:  200,
		models.RatioPriceBook:  -3,
		models.RatioTrailingPE: 15,
	})
	require.NoError(t, err)

	entry, found, err := s.Entry(ctx, testKey, "AAA")
	require.NoError(t, err)
	require.True(t, found)
	assert.NotContains(t, entry.Ratios, models.RatioPriceBook)
	assert.Equal(t, 15.0, entry.Ratios[models.RatioTrailingPE])
}

func TestUpsertIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := &countingRepo{MemoryStore: repository.NewMemoryStore()}
	s := NewStore(repo)
	rec := models.RatioRecord{models.RatioMarketCap: 200, models.RatioTrailingPE: 15}

	_, err := s.Upsert(ctx, testKey, "AAA", rec)
	require.NoError(t, err)
	first, err := s.ReadAll(ctx, testKey)
	require.NoError(t, err)

	_, err = s.Upsert(ctx, testKey, "AAA", rec)
	require.NoError(t, err)
	second, err := s.ReadAll(ctx, testKey)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.saves)
}

func TestUpsertMergeModes(t *testing.T) {
	ctx := context.Background()
	first := models.RatioRecord{models.RatioMarketCap: 200, models.RatioPriceBook: 2}
	second := models.RatioRecord{models.RatioMarketCap: 220}

	patch := NewStore(repository.NewMemoryStore())
	_, _ = patch.Upsert(ctx, testKey, "AAA", first)
	_, _ = patch.Upsert(ctx, testKey, "AAA", second)
	e, _, err := patch.Entry(ctx, testKey, "AAA")
	require.NoError(t, err)
	assert.Equal(t, 2.0, e.Ratios[models.RatioPriceBook])
	assert.Equal(t, 220.0, e.Ratios[models.RatioMarketCap])

	replace := NewStore(repository.NewMemoryStore(), WithMergeMode(MergeReplace))
	_, _ = replace.Upsert(ctx, testKey, "AAA", first)
	_, _ = replace.Upsert(ctx, testKey, "AAA", second)
	e, _, err = replace.Entry(ctx, testKey, "AAA")
	require.NoError(t, err)
	assert.NotContains(t, e.Ratios, models.RatioPriceBook)
}

func TestUpsertCorruptBucketSurfaced(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryStore()
	repo.PutRaw(testKey, []byte(`{"Companies": [`))
	s := NewStore(repo)

	ok, err := s.Upsert(ctx, testKey, "AAA", models.RatioRecord{models.RatioMarketCap: 200})
	require.Error(t, err)
	assert.False(t, ok)
	assert.True(t, drepo.IsCorrupt(err))

	_, err = s.ReadAll(ctx, testKey)
	assert.True(t, drepo.IsCorrupt(err))
}

func TestUpsertValidation(t *testing.T) {
	s := NewStore(repository.NewMemoryStore())
	_, err := s.Upsert(context.Background(), models.BucketKey{Exchange: "US"}, "AAA", nil)
	assert.Error(t, err)
	_, err = s.Upsert(context.Background(), testKey, "", nil)
	assert.Error(t, err)
}

func TestUpsertRejectsKeyOutsideStoreRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "buckets")
	repo, err := repository.NewFileStore(root)
	require.NoError(t, err)
	s := NewStore(repo)

	rec := models.RatioRecord{models.RatioMarketCap: 100, models.RatioTrailingPE: 12}
	for _, ex := range []string{"..", "."} {
		ok, err := s.Upsert(context.Background(), models.BucketKey{Exchange: ex, Industry: "Energy"}, "AAA", rec)
		assert.ErrorIs(t, err, models.ErrInvalidBucketKey)
		assert.False(t, ok)
	}
	assert.NoFileExists(t, filepath.Join(parent, "Energy.json"))
	assert.NoFileExists(t, filepath.Join(root, "Energy.json"))
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReadAllMissingBucket(t *testing.T) {
	entries, err := NewStore(repository.NewMemoryStore()).ReadAll(context.Background(), testKey)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestConcurrentUpsertsKeepEveryCompany(t *testing.T) {
	ctx := context.Background()
	s := NewStore(repository.NewMemoryStore())
	codes := []string{"A", "B", "C", "D", "E", "F", "G", "H"}

	var wg sync.WaitGroup
	for i, code := range codes {
		wg.Add(1)
		go func(code string, mc float64) {
			defer wg.Done()
			_, err := s.Upsert(ctx, testKey, code, models.RatioRecord{models.RatioMarketCap: mc})
			assert.NoError(t, err)
		}(code, float64(100+i))
	}
	wg.Wait()

	entries, err := s.ReadAll(ctx, testKey)
	require.NoError(t, err)
	assert.Len(t, entries, len(codes))
}

func TestLocalLockerRespectsContext(t *testing.T) {
	l := NewLocalLocker()
	unlock, err := l.Lock(context.Background(), testKey)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, testKey)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	unlock2, err := l.Lock(context.Background(), testKey)
	require.NoError(t, err)
	unlock2()
}
