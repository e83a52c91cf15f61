package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"FinPeer/internal/domain/models"
	drepo "FinPeer/internal/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	keyTech   = models.BucketKey{Exchange: "US", Industry: "Information_Technology"}
	keyEnergy = models.BucketKey{Exchange: "US", Industry: "Energy"}
	keyLSE    = models.BucketKey{Exchange: "LSE", Industry: "Energy"}
)

func sampleBucket() *models.Bucket {
	return &models.Bucket{Companies: []models.CompanyEntry{
		{Code: "AAA", Ratios: models.RatioRecord{models.RatioMarketCap: 200, models.RatioTrailingPE: 15}},
		{Code: "BBB", Ratios: models.RatioRecord{models.RatioMarketCap: 300}},
	}}
}

// exerciseStore runs the contract shared by every backend.
func exerciseStore(t *testing.T, s drepo.Store) {
	ctx := context.Background()

	_, err := s.Load(ctx, keyTech)
	assert.ErrorIs(t, err, drepo.ErrBucketNotFound)
	_, err = s.LoadSnapshot(ctx, keyTech)
	assert.ErrorIs(t, err, drepo.ErrSnapshotNotFound)

	require.NoError(t, s.Save(ctx, keyTech, sampleBucket()))
	require.NoError(t, s.Save(ctx, keyEnergy, &models.Bucket{}))
	require.NoError(t, s.Save(ctx, keyLSE, &models.Bucket{}))

	b, err := s.Load(ctx, keyTech)
	require.NoError(t, err)
	assert.Equal(t, sampleBucket(), b)

	snap := models.NewStatSnapshot()
	snap.Median[models.RatioTrailingPE] = 20
	snap.MAD[models.RatioTrailingPE] = 5
	require.NoError(t, s.SaveSnapshot(ctx, keyTech, snap))
	got, err := s.LoadSnapshot(ctx, keyTech)
	require.NoError(t, err)
	assert.Equal(t, snap, got)

	keys, err := s.List(ctx, "US")
	require.NoError(t, err)
	assert.Equal(t, []models.BucketKey{keyEnergy, keyTech}, keys)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// overwrite replaces the whole document
	require.NoError(t, s.Save(ctx, keyTech, &models.Bucket{Companies: []models.CompanyEntry{{Code: "ZZZ", Ratios: models.RatioRecord{}}}}))
	b, err = s.Load(ctx, keyTech)
	require.NoError(t, err)
	assert.Equal(t, []string{"ZZZ"}, b.Codes())

	require.NoError(t, s.Close())
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreCorrupt(t *testing.T) {
	s := NewMemoryStore()
	s.PutRaw(keyTech, []byte("not json"))
	_, err := s.Load(context.Background(), keyTech)
	require.Error(t, err)
	assert.True(t, drepo.IsCorrupt(err))
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestFileStoreLayout(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileStore(root)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, keyTech, sampleBucket()))
	require.NoError(t, s.SaveSnapshot(ctx, keyTech, models.NewStatSnapshot()))

	raw, err := os.ReadFile(filepath.Join(root, "US", "Information_Technology.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"Companies":[{"Code":"AAA","MktCap":200,"Trailing P/E":15},{"Code":"BBB","MktCap":300}]}`, string(raw))
	assert.FileExists(t, filepath.Join(root, "US", "Information_Technology_Average.json"))

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Join(root, "US"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	keys, err := s.List(ctx, "US")
	require.NoError(t, err)
	assert.Equal(t, []models.BucketKey{keyTech}, keys)
}

func TestFileStoreListsReservedNames(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileStore(root)
	require.NoError(t, err)
	ctx := context.Background()

	keys := []models.BucketKey{
		{Exchange: "US", Industry: "CON"},
		{Exchange: "US", Industry: "CON_"},
		{Exchange: "US", Industry: "Energy"},
	}
	for _, k := range keys {
		require.NoError(t, s.Save(ctx, k, sampleBucket()))
	}
	assert.FileExists(t, filepath.Join(root, "US", "CON_.json"))
	assert.FileExists(t, filepath.Join(root, "US", "CON__.json"))

	listed, err := s.List(ctx, "US")
	require.NoError(t, err)
	assert.ElementsMatch(t, keys, listed)
	for _, k := range listed {
		b, err := s.Load(ctx, k)
		require.NoError(t, err, k.String())
		assert.Len(t, b.Companies, 2)
	}

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, keys, all)
}

func TestFileStoreReadsLegacyDocument(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "US"), 0o755))
	legacy := `{"Companies":[{"Code":"AAA","MktCap":120.5,"P/B":"","Trailing P/E":null}]}`
	require.NoError(t, os.WriteFile(filepath.Join(root, "US", "Energy.json"), []byte(legacy), 0o644))

	s, err := NewFileStore(root)
	require.NoError(t, err)
	b, err := s.Load(context.Background(), keyEnergy)
	require.NoError(t, err)
	require.Len(t, b.Companies, 1)
	assert.Equal(t, models.RatioRecord{models.RatioMarketCap: 120.5}, b.Companies[0].Ratios)
}

func TestFileStoreCorrupt(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "US"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "US", "Energy.json"), []byte(`{"Companies":[{"MktCap":1}]}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "US", "Energy_Average.json"), []byte(`{`), 0o644))

	s, err := NewFileStore(root)
	require.NoError(t, err)
	_, err = s.Load(context.Background(), keyEnergy)
	assert.True(t, drepo.IsCorrupt(err))
	_, err = s.LoadSnapshot(context.Background(), keyEnergy)
	assert.True(t, drepo.IsCorrupt(err))
}

func TestBadgerStore(t *testing.T) {
	s, err := NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestParquetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "US_Energy.parquet")
	require.NoError(t, ExportParquet(path, keyEnergy, sampleBucket().Companies))

	rows, err := ReadParquet(path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "AAA", rows[0].Code)
	require.NotNil(t, rows[0].TrailingPE)
	assert.Equal(t, 15.0, *rows[0].TrailingPE)
	assert.Nil(t, rows[1].TrailingPE)
	assert.Equal(t, "Energy", rows[1].Industry)
}
