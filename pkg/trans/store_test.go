package trans

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewStore(db), mock, db
}

func TestGetProjectBySlug(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()

	t.Run("found", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{
			"id", "slug", "name", "access_control", "enforce_2fa", "translation_review", "source_review",
		}).AddRow(int64(1), "weblate", "Weblate", int(AccessProtected), false, true, false)

		mock.ExpectQuery(`SELECT .+ FROM projects WHERE slug = \$1`).
			WithArgs("weblate").
			WillReturnRows(rows)

		project, err := store.GetProjectBySlug(context.Background(), "weblate")
		require.NoError(t, err)
		require.NotNil(t, project)
		assert.Equal(t, AccessProtected, project.Access)
		assert.True(t, project.TranslationReview)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing project is nil, not an error", func(t *testing.T) {
		mock.ExpectQuery(`SELECT .+ FROM projects WHERE slug = \$1`).
			WithArgs("ghost").
			WillReturnError(sql.ErrNoRows)

		project, err := store.GetProjectBySlug(context.Background(), "ghost")
		require.NoError(t, err)
		assert.Nil(t, project)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSearchUnits(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT DISTINCT id FROM unit_search WHERE state = \$1 ORDER BY id`).
		WithArgs(int64(20)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)).AddRow(int64(8)))

	ids, err := store.SearchUnits(context.Background(), "state = $1", []any{int64(20)})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 8}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUnit(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()

	t.Run("persists every column", func(t *testing.T) {
		unit := &Unit{
			Translation: &Translation{ID: 100},
			Position:    3,
			Context:     "menu",
			Source:      "Save",
			Target:      "Uložit",
			Note:        "toolbar button",
			Location:    "src/ui/menu.c:42",
			Explanation: "Keep it short.",
			State:       StateTranslated,
			Priority:    120,
		}

		mock.ExpectQuery(`INSERT INTO units`).
			WithArgs(int64(100), 3, "menu", "Save", "Uložit", "toolbar button",
				"src/ui/menu.c:42", "Keep it short.", int(StateTranslated), false, 120).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(9)))

		require.NoError(t, store.CreateUnit(context.Background(), unit))
		assert.Equal(t, int64(9), unit.ID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("requires a translation", func(t *testing.T) {
		require.Error(t, store.CreateUnit(context.Background(), &Unit{}))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGlossaryTerms(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT DISTINCT u\.source`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"source"}).AddRow("branch").AddRow("commit"))

	terms, err := store.GlossaryTerms(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"branch", "commit"}, terms)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContentActions(t *testing.T) {
	actions := ContentActions()
	require.NotEmpty(t, actions)

	set := make(map[int64]bool)
	for _, a := range actions {
		assert.False(t, set[a], "duplicate action %d", a)
		set[a] = true
	}

	// Content edits are in; metadata-only changes are not.
	assert.True(t, set[int64(ActionChange)])
	assert.True(t, set[int64(ActionApprove)])
	assert.False(t, set[int64(ActionComment)])
	assert.False(t, set[int64(ActionLock)])
	assert.False(t, set[int64(ActionSuggestion)])
}

func TestUnitStateHelpers(t *testing.T) {
	assert.True(t, (&Unit{State: StateReadonly}).Readonly())
	assert.False(t, (&Unit{State: StateApproved}).Readonly())
	assert.True(t, (&Unit{State: StateApproved}).Approved())
	assert.False(t, (&Unit{State: StateTranslated}).Approved())
}

func TestComponentHasTemplate(t *testing.T) {
	assert.False(t, (&Component{}).HasTemplate())
	assert.True(t, (&Component{Template: "locales/en.json"}).HasTemplate())
}
