// Copyright 2025 The GroundGame Authors
// SPDX-License-Identifier: Apache-2.0

package canvass

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/fieldthebern/groundgame/spatial"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var repoNow = time.Date(2016, 3, 2, 12, 0, 0, 0, time.UTC)

func setupTestRepo(t *testing.T) (*sql.DB, AddressRepository) {
	t.Helper()

	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewAddressRepository(db)
	repo.(*sqlAddressRepository).now = func() time.Time { return repoNow }

	require.NoError(t, repo.CreateSchema())

	return db, repo
}

func fullAddress() Address {
	p := spatial.NewPoint(40.7128, -74.006)
	visited := time.Date(2016, 3, 1, 10, 30, 0, 0, time.UTC)

	return Address{
		ID:        strPtr("17"),
		Point:     &p,
		Street1:   strPtr("123 Main St"),
		Street2:   strPtr("Apt 4"),
		City:      strPtr("New York"),
		StateCode: strPtr("NY"),
		ZipCode:   strPtr("10007"),
		Result:    NotHome,
		VisitedAt: &visited,
	}
}

func TestCreateSchema(t *testing.T) {
	db, repo := setupTestRepo(t)

	var tableName string

	err := db.QueryRow("SELECT table_name FROM information_schema.tables WHERE table_name = 'addresses'").Scan(&tableName)
	require.NoError(t, err)
	assert.Equal(t, "addresses", tableName)

	// idempotent
	require.NoError(t, repo.CreateSchema())
}

func TestAddressKey(t *testing.T) {
	key, err := AddressKey(fullAddress())
	require.NoError(t, err)
	assert.Equal(t, "123 main st, apt 4|new york|ny|10007", key)

	accented := Address{Street1: strPtr("  12  Peñasco   Rd "), City: strPtr("Española"), StateCode: strPtr("NM")}
	key, err = AddressKey(accented)
	require.NoError(t, err)
	assert.Equal(t, "12 penasco rd|espanola|nm|", key)

	p := spatial.NewPoint(40.7128, -74.006)
	key, err = AddressKey(Address{Point: &p})
	require.NoError(t, err)
	assert.Equal(t, "pt:40.712800,-74.006000", key)

	_, err = AddressKey(Address{})
	assert.Error(t, err)
}

func TestSaveAndGet(t *testing.T) {
	_, repo := setupTestRepo(t)

	addr := fullAddress()

	stored, err := repo.Save(addr)
	require.NoError(t, err)

	assert.Equal(t, "123 main st, apt 4|new york|ny|10007", stored.Key)
	assert.True(t, stored.CreatedAt.Equal(repoNow))
	assert.True(t, stored.UpdatedAt.Equal(repoNow))

	if diff := cmp.Diff(addr, stored.Address); diff != "" {
		t.Errorf("Save() mismatch (-want +got):\n%s", diff)
	}

	got, err := repo.Get(stored.Key)
	require.NoError(t, err)

	if diff := cmp.Diff(addr, got.Address); diff != "" {
		t.Errorf("Get() mismatch (-want +got):\n%s", diff)
	}

	byID, err := repo.GetByID("17")
	require.NoError(t, err)
	assert.Equal(t, stored.Key, byID.Key)

	_, err = repo.Get("missing")
	require.ErrorIs(t, err, ErrAddressNotFound)

	_, err = repo.GetByID("missing")
	require.ErrorIs(t, err, ErrAddressNotFound)
}

func TestSaveUpdatesExisting(t *testing.T) {
	_, repo := setupTestRepo(t)

	_, err := repo.Save(fullAddress())
	require.NoError(t, err)

	later := repoNow.Add(time.Hour)
	repo.(*sqlAddressRepository).now = func() time.Time { return later }

	update := fullAddress().WithVisit(Interested, later)
	update.ID = nil

	stored, err := repo.Save(update)
	require.NoError(t, err)

	assert.Equal(t, Interested, stored.Address.Result)
	require.NotNil(t, stored.Address.ID)
	assert.Equal(t, "17", *stored.Address.ID)
	assert.True(t, stored.CreatedAt.Equal(repoNow))
	assert.True(t, stored.UpdatedAt.Equal(later))

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSaveWithoutCoordinate(t *testing.T) {
	_, repo := setupTestRepo(t)

	stored, err := repo.Save(Address{Street1: strPtr("1 Elm St"), Result: NotVisited})
	require.NoError(t, err)
	assert.Nil(t, stored.Address.Point)
	assert.Nil(t, stored.Address.VisitedAt)
	assert.Nil(t, stored.Address.Street2)
}

func TestSaveRejectsInvalid(t *testing.T) {
	_, repo := setupTestRepo(t)

	_, err := repo.Save(Address{})
	require.Error(t, err)

	bad := spatial.NewPoint(91, 0)
	_, err = repo.Save(Address{Point: &bad, Street1: strPtr("1 Elm St")})
	require.Error(t, err)
}

func TestListFilters(t *testing.T) {
	_, repo := setupTestRepo(t)

	here := spatial.NewPoint(40.7128, -74.006)
	near := here.Offset(20, 0)
	elsewhere := spatial.NewPoint(34.0522, -118.2437)

	addrs := []Address{
		{Point: &here, Street1: strPtr("1 A St"), Result: Interested},
		{Point: &near, Street1: strPtr("2 B St"), Result: NotHome},
		{Point: &elsewhere, Street1: strPtr("3 C St"), Result: Interested},
		{Street1: strPtr("4 D St"), Result: NotVisited},
	}
	require.NoError(t, repo.BulkInsert(addrs))

	all, err := repo.AllSorted()
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "1 A St", all[0].Address.Title())
	assert.Equal(t, "4 D St", all[3].Address.Title())

	interested := Interested
	got, err := repo.List(AddressFilter{Result: &interested})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	cell, err := here.Cell(7)
	require.NoError(t, err)

	nearCell, err := near.Cell(7)
	require.NoError(t, err)

	want := []string{"1 A St"}
	if nearCell == cell {
		want = append(want, "2 B St")
	}

	got, err = repo.List(AddressFilter{Cell: cell})
	require.NoError(t, err)

	titles := make([]string, 0, len(got))
	for _, s := range got {
		titles = append(titles, s.Address.Title())
	}

	assert.Equal(t, want, titles)

	got, err = repo.List(AddressFilter{Cell: cell, Result: &interested})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1 A St", got[0].Address.Title())

	got, err = repo.List(AddressFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2 B St", got[0].Address.Title())

	coarse, err := here.Cell(5)
	require.NoError(t, err)

	_, err = repo.List(AddressFilter{Cell: coarse})
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	_, repo := setupTestRepo(t)

	stored, err := repo.Save(fullAddress())
	require.NoError(t, err)

	require.NoError(t, repo.Delete(stored.Key))

	_, err = repo.Get(stored.Key)
	require.ErrorIs(t, err, ErrAddressNotFound)

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
}
