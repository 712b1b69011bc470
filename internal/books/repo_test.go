package books

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/library-backend/pkg/db/dbtest"
	"github.com/angelmondragon/library-backend/pkg/db/models"
)

func TestRepositoryStatsQueries(t *testing.T) {
	repo := NewRepository(dbtest.NewSQLite(t).DB())
	ctx := context.Background()

	require.NoError(t, repo.CreateBatch(ctx, []models.Book{
		{Title: "Dune", Author: "Frank Herbert", Year: 1965, Quantity: 3},
		{Title: "Children of Dune", Author: "Frank Herbert", Year: 1976, Quantity: 1},
		{Title: "Kindred", Author: "Octavia E. Butler", Year: 1979, Quantity: 2},
		{Title: "Beloved", Author: "Toni Morrison", Year: 1987, Quantity: 0},
	}))

	titles, copies, err := repo.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), titles)
	assert.Equal(t, int64(6), copies)

	decades, err := repo.CountByDecade(ctx)
	require.NoError(t, err)
	assert.Equal(t, []DecadeCount{
		{Decade: 1960, Count: 1},
		{Decade: 1970, Count: 2},
		{Decade: 1980, Count: 1},
	}, decades)

	authors, err := repo.TopAuthors(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []AuthorCount{
		{Author: "Frank Herbert", Count: 2},
		{Author: "Octavia E. Butler", Count: 1},
	}, authors)
}

func TestRepositoryUpdateDetailsLeavesQuantity(t *testing.T) {
	conn := dbtest.NewSQLite(t).DB()
	repo := NewRepository(conn)
	ctx := context.Background()

	book := &models.Book{Title: "Dune", Author: "Frank Herbert", Year: 1965, Quantity: 3}
	require.NoError(t, repo.Create(ctx, book))

	book.Title = "Dune Messiah"
	book.Year = 1969
	book.Quantity = 99
	require.NoError(t, repo.UpdateDetails(ctx, book))

	loaded, err := repo.FindByID(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune Messiah", loaded.Title)
	assert.Equal(t, 1969, loaded.Year)
	assert.Equal(t, 3, loaded.Quantity)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRepositoryCreateRequiresBook(t *testing.T) {
	repo := NewRepository(dbtest.NewSQLite(t).DB())
	assert.Error(t, repo.Create(context.Background(), nil))
	assert.NoError(t, repo.CreateBatch(context.Background(), nil))
}
