package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/noah-isme/tc-schedule-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	ctx := context.Background()

	var dest []string
	err := repo.Get(ctx, "suggest:slots:s-1", &dest)
	assert.True(t, errors.Is(err, appErrors.ErrCacheMiss))
	assert.NoError(t, repo.Set(ctx, "suggest:slots:s-1", []string{"a"}, time.Minute))
	assert.NoError(t, repo.DeleteByPattern(ctx, "suggest:*"))
	assert.NoError(t, repo.Close())
}
