package jobcatalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/piecework/internal/domain/models"
)

func TestJobNumberOfToleratesColumnNames(t *testing.T) {
	cases := map[string]row{
		"JobNumber":    {columns: []string{"JobNumber"}, values: map[string]any{"JobNumber": "J-1001"}},
		"Job_NO":       {columns: []string{"Id", "Job_NO"}, values: map[string]any{"Id": int64(1), "Job_NO": []byte("J-1001 ")}},
		"first column": {columns: []string{"Whatever", "Other"}, values: map[string]any{"Whatever": "J-1001", "Other": "x"}},
	}
	for name, r := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, "J-1001", jobNumberOf(r))
		})
	}

	assert.Empty(t, jobNumberOf(row{columns: []string{"JobNumber"}, values: map[string]any{"JobNumber": nil}}))
}

func TestMetadataOfMapsCatalogColumns(t *testing.T) {
	r := row{
		columns: []string{"Client Name", "Job Title", "OrderQty", "ProductCategory", "UnitPrice"},
		values: map[string]any{
			"Client Name":     "Acme Press",
			"Job Title":       "Annual report",
			"OrderQty":        int64(500),
			"ProductCategory": "Books",
			"UnitPrice":       []byte("12.3400"),
		},
	}

	meta := metadataOf(r)
	assert.Equal(t, "Acme Press", meta.ClientName)
	assert.Equal(t, "Annual report", meta.Title)
	assert.Equal(t, 500.0, meta.TotalUnits)
	assert.Equal(t, "Books", meta.Category)
	assert.True(t, decimal.RequireFromString("12.34").Equal(meta.UnitPrice))
}

func TestMetadataOfDefaultsMissingColumns(t *testing.T) {
	meta := metadataOf(row{values: map[string]any{"qty": "abc"}})
	assert.Equal(t, models.JobMetadata{UnitPrice: decimal.Zero}, meta)
}

type fakeRedis struct {
	redis.Cmdable
	data    map[string]string
	readErr error
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx, "get", key)
	switch v, ok := f.data[key]; {
	case f.readErr != nil:
		cmd.SetErr(f.readErr)
	case ok:
		cmd.SetVal(v)
	default:
		cmd.SetErr(redis.Nil)
	}
	return cmd
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx, "set", key)
	f.data[key] = string(value.([]byte))
	cmd.SetVal("OK")
	return cmd
}

type countingCatalog struct {
	calls int
	meta  *models.JobMetadata
}

func (c *countingCatalog) SearchJobNumbers(context.Context, string) ([]string, error) {
	return []string{"J-1001"}, nil
}

func (c *countingCatalog) JobDetails(context.Context, string) (*models.JobMetadata, error) {
	c.calls++
	return c.meta, nil
}

func TestCachedCatalogServesRepeatLookupsFromRedis(t *testing.T) {
	ctx := context.Background()
	next := &countingCatalog{meta: &models.JobMetadata{JobNumber: "J-1001", ClientName: "Acme", UnitPrice: decimal.RequireFromString("1.5")}}
	rdb := &fakeRedis{data: map[string]string{}}
	cache := NewCachedCatalog(next, rdb, time.Minute, nil)

	first, err := cache.JobDetails(ctx, "J-1001")
	require.NoError(t, err)
	second, err := cache.JobDetails(ctx, "J-1001")
	require.NoError(t, err)

	assert.Equal(t, 1, next.calls)
	assert.Equal(t, first.ClientName, second.ClientName)
	assert.True(t, first.UnitPrice.Equal(second.UnitPrice))
}

func TestCachedCatalogFallsThroughOnRedisFailure(t *testing.T) {
	ctx := context.Background()
	next := &countingCatalog{}
	cache := NewCachedCatalog(next, &fakeRedis{data: map[string]string{}, readErr: errors.New("connection refused")}, time.Minute, nil)

	meta, err := cache.JobDetails(ctx, "J-404")
	require.NoError(t, err)
	assert.Nil(t, meta)
	assert.Equal(t, 1, next.calls)
}
