package seed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novelmaze/novelmaze/internal/models"
	"github.com/novelmaze/novelmaze/internal/service/gamification"
	"github.com/novelmaze/novelmaze/pkg/logger"
	"github.com/novelmaze/novelmaze/test/mocks"
	"github.com/novelmaze/novelmaze/test/testdb"
)

func TestSeeder_Run(t *testing.T) {
	db := testdb.New(t)
	log := logger.Nop()
	game, err := gamification.NewService(db, mocks.NewMockCache(), nil, gamification.Options{}, log)
	require.NoError(t, err)
	ctx := context.Background()

	seeder := NewSeeder(db, game, log)
	res, err := seeder.Run(ctx, DefaultOptions())
	require.NoError(t, err)

	assert.True(t, res.Created)
	assert.Equal(t, "tides-of-the-glass-harbor", res.Novel.Slug)
	assert.True(t, res.Admin.IsStaff())
	assert.True(t, res.Author.HasRole(models.RoleAuthor))
	require.Len(t, res.Episodes, 5)

	free, paid := 0, 0
	for _, ep := range res.Episodes {
		if ep.IsFree() {
			free++
			continue
		}
		paid++
		assert.Equal(t, int64(30), ep.PriceCoins)
	}
	assert.Equal(t, 2, free)
	assert.Equal(t, 3, paid)

	balance, err := game.CoinBalance(ctx, res.Reader.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)

	again, err := seeder.Run(ctx, DefaultOptions())
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, res.Novel.ID, again.Novel.ID)
	assert.Equal(t, res.Reader.ID, again.Reader.ID)
	assert.Len(t, again.Episodes, 5)

	balance, err = game.CoinBalance(ctx, res.Reader.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}
