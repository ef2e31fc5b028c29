package universe

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kessanview/kessanview/internal/budget"
	"github.com/kessanview/kessanview/internal/config"
	"github.com/kessanview/kessanview/internal/domain"
	testhelpers "github.com/kessanview/kessanview/internal/testing"
)

type fakeCompanySource struct {
	pages map[string]struct {
		companies []domain.Company
		next      string
	}
	calls int
}

func (f *fakeCompanySource) ListedInfoPage(ctx context.Context, pageToken string) ([]domain.Company, string, error) {
	f.calls++
	page := f.pages[pageToken]
	return page.companies, page.next, nil
}

func TestMetadataSyncAll(t *testing.T) {
	db, cleanup := testhelpers.NewTestDB(t, "universe", Schema)
	defer cleanup()
	repo := NewCompanyRepository(db.Conn(), zerolog.Nop())

	source := &fakeCompanySource{pages: map[string]struct {
		companies []domain.Company
		next      string
	}{
		"": {
			companies: []domain.Company{
				{Code: "7203", Name: "Toyota Motor", Sector33Code: "3700", MarketCode: "0111", MarketName: "Prime"},
				{Code: "6758", Name: "Sony Group", Sector33Code: "5250", MarketCode: "0111", MarketName: "Prime"},
			},
			next: "p2",
		},
		"p2": {
			companies: []domain.Company{
				{Code: "9984", Name: "SoftBank Group", Sector33Code: "5250", MarketCode: "0111", MarketName: "Prime"},
			},
		},
	}}

	rateBudget := budget.New(config.TierLimits{RequestsPerMinute: 100, RequestsPerDay: 1000}, zerolog.Nop())
	service := NewMetadataSyncService(source, repo, rateBudget, zerolog.Nop())

	total, err := service.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, 2, source.calls)

	got, err := repo.Get("7203")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Toyota Motor", got.Name)
	assert.Equal(t, "Prime", got.MarketName)

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestCompanyRepositoryUpsertReplacesExisting(t *testing.T) {
	db, cleanup := testhelpers.NewTestDB(t, "universe", Schema)
	defer cleanup()
	repo := NewCompanyRepository(db.Conn(), zerolog.Nop())

	require.NoError(t, repo.Upsert(&domain.Company{Code: "7203", Name: "Toyota"}))
	require.NoError(t, repo.Upsert(&domain.Company{Code: "7203", Name: "Toyota Motor", MarketName: "Prime"}))

	got, err := repo.Get("7203")
	require.NoError(t, err)
	assert.Equal(t, "Toyota Motor", got.Name)
	assert.Equal(t, "Prime", got.MarketName)

	all, err := repo.GetAll()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCompanyRepositoryRejectsEmptyCode(t *testing.T) {
	db, cleanup := testhelpers.NewTestDB(t, "universe", Schema)
	defer cleanup()
	repo := NewCompanyRepository(db.Conn(), zerolog.Nop())

	err := repo.Upsert(&domain.Company{Name: "Nameless"})
	require.Error(t, err)

	got, err := repo.Get("   ")
	require.NoError(t, err)
	assert.Nil(t, got)
}
