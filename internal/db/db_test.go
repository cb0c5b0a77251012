package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-sim/internal/transit"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(SQLite, filepath.Join(t.TempDir(), "stops.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Ping(context.Background()))
	return s
}

func TestSaveAndFetchStops(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	require.NoError(t, s.SaveStops(ctx, []transit.StopRecord{
		{ID: "B", Name: "Plaza", Lat: 40.41, Lon: -3.70},
		{ID: "A", Name: "", Lat: 40.42, Lon: -3.71},
	}))
	// upsert replaces the earlier row
	require.NoError(t, s.SaveStops(ctx, []transit.StopRecord{{ID: "B", Name: "Plaza Mayor", Lat: 40.415, Lon: -3.707}}))

	got, err := s.FetchStops(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, transit.StopRecord{ID: "A", Name: "A", Lat: 40.42, Lon: -3.71}, got[0], "name falls back to id")
	assert.Equal(t, transit.StopRecord{ID: "B", Name: "Plaza Mayor", Lat: 40.415, Lon: -3.707}, got[1])
}

func TestFetchStopsMissingColumns(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	_, err := s.DB.ExecContext(ctx, `CREATE TABLE stops (stop_id TEXT, stop_name TEXT)`)
	require.NoError(t, err)

	_, err = s.FetchStops(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing expected columns")
}

func TestSaveStopsRejectsPostgres(t *testing.T) {
	s := &Store{Dialect: Postgres}
	require.Error(t, s.SaveStops(context.Background(), nil))
}

func TestWithDBName(t *testing.T) {
	cases := []struct {
		name, dsn, db, want string
		wantErr            bool
	}{
		{"replaces path", "postgres://u:p@h:5432/postgres?sslmode=disable", "gtfs_madrid", "postgres://u:p@h:5432/gtfs_madrid?sslmode=disable", false},
		{"postgresql scheme", "postgresql://h/old", "/new", "postgresql://h/new", false},
		{"adds scheme", "u@h:5432/postgres", "city", "postgres://u@h:5432/city", false},
		{"empty", "", "city", "", true},
		{"wrong scheme", "mysql://h/db", "city", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := WithDBName(tc.dsn, tc.db)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolveLatestImportRequiresCity(t *testing.T) {
	_, err := ResolveLatestImportDBName(context.Background(), &Store{}, "  ")
	require.Error(t, err)
}
