// Copyright 2025 The GroundGame Authors
// SPDX-License-Identifier: Apache-2.0

package canvass

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fieldthebern/groundgame/canvass/utils"
	"github.com/fieldthebern/groundgame/spatial"
	"github.com/uber/h3-go/v4"
)

// Resolutions of the H3 cells stored with each address. Resolution 9 cells
// are roughly a city block.
const (
	MinCellResolution = 7
	MaxCellResolution = 10
)

// ErrAddressNotFound is returned when no stored address matches.
var ErrAddressNotFound = errors.New("canvass: address not found")

// StoredAddress is an address kept in the local store.
type StoredAddress struct {
	Key       string    `json:"key"`
	Address   Address   `json:"address"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AddressFilter narrows List. Zero values mean no restriction.
type AddressFilter struct {
	Result *VisitResult
	Cell   h3.Cell
	Limit  int
	Offset int
}

// AddressRepository handles persistence of canvassed addresses.
type AddressRepository interface {
	// CreateSchema creates the addresses table
	CreateSchema() error

	// Save inserts or updates an address, keyed by AddressKey
	Save(addr Address) (*StoredAddress, error)

	// Get returns the address stored under key
	Get(key string) (*StoredAddress, error)

	// GetByID returns the address with the given remote id
	GetByID(id string) (*StoredAddress, error)

	// List returns addresses matching filter, ordered by key
	List(filter AddressFilter) ([]*StoredAddress, error)

	// AllSorted returns every address, ordered by key
	AllSorted() ([]*StoredAddress, error)

	// BulkInsert inserts or updates addresses in a single transaction
	BulkInsert(addrs []Address) error

	// Delete removes the address stored under key
	Delete(key string) error

	// Count returns the number of stored addresses
	Count() (int, error)
}

type sqlAddressRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewAddressRepository creates a duckdb backed address repository.
func NewAddressRepository(db *sql.DB) AddressRepository {
	return &sqlAddressRepository{db: db, now: time.Now}
}

// AddressKey identifies an address independently of its remote id: the
// folded title, city, state and zip, or the coordinate when no postal field
// is known.
func AddressKey(a Address) (string, error) {
	parts := []string{
		a.Title(),
		stringOrEmpty(a.City),
		stringOrEmpty(a.StateCode),
		stringOrEmpty(a.ZipCode),
	}

	if strings.Join(parts, "") != "" {
		for i, p := range parts {
			parts[i] = utils.NormalizeSpace(p)
		}

		return strings.Join(parts, "|"), nil
	}

	if a.Point != nil {
		return fmt.Sprintf("pt:%.6f,%.6f", a.Point.Lat, a.Point.Lng), nil
	}

	return "", errors.New("canvass: address has neither postal fields nor coordinate")
}

func (r *sqlAddressRepository) CreateSchema() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS addresses (
			address_key VARCHAR PRIMARY KEY,
			external_id VARCHAR,
			latitude DOUBLE,
			longitude DOUBLE,
			street_1 VARCHAR,
			street_2 VARCHAR,
			city VARCHAR,
			state_code VARCHAR,
			zip_code VARCHAR,
			result VARCHAR NOT NULL,
			visited_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			h3_res7 BIGINT,
			h3_res8 BIGINT,
			h3_res9 BIGINT,
			h3_res10 BIGINT
		);
	`)

	return err
}

// cells returns the H3 cells for resolutions 7..10, or NULLs without a point.
func cells(a Address) ([]any, error) {
	out := make([]any, 0, MaxCellResolution-MinCellResolution+1)

	for res := MinCellResolution; res <= MaxCellResolution; res++ {
		if a.Point == nil {
			out = append(out, nil)

			continue
		}

		cell, err := a.Point.Cell(res)
		if err != nil {
			return nil, err
		}

		out = append(out, int64(cell))
	}

	return out, nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}

	return *s
}

func visitedArg(a Address) any {
	if a.VisitedAt == nil {
		return nil
	}

	return a.VisitedAt.UTC()
}

func pointArgs(a Address) (any, any) {
	if a.Point == nil {
		return nil, nil
	}

	return a.Point.Lat, a.Point.Lng
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

func (r *sqlAddressRepository) Save(addr Address) (*StoredAddress, error) {
	if err := r.upsert(r.db, addr); err != nil {
		return nil, err
	}

	key, _ := AddressKey(addr)

	return r.Get(key)
}

func (r *sqlAddressRepository) upsert(q execer, addr Address) error {
	key, err := AddressKey(addr)
	if err != nil {
		return err
	}

	if addr.Point != nil && !addr.Point.Valid() {
		return fmt.Errorf("canvass: invalid coordinate %s", addr.Point)
	}

	h3Cells, err := cells(addr)
	if err != nil {
		return err
	}

	lat, lng := pointArgs(addr)
	now := r.now().UTC()

	var exists int
	if err := q.QueryRow(`SELECT count(*) FROM addresses WHERE address_key = ?`, key).Scan(&exists); err != nil {
		return fmt.Errorf("checking address %q: %w", key, err)
	}

	if exists > 0 {
		args := []any{
			nullable(addr.ID), lat, lng,
			nullable(addr.Street1), nullable(addr.Street2), nullable(addr.City), nullable(addr.StateCode), nullable(addr.ZipCode),
			addr.Result.String(), visitedArg(addr), now,
		}
		args = append(args, h3Cells...)
		args = append(args, key)

		_, err = q.Exec(`
			UPDATE addresses
			SET external_id = COALESCE(CAST(? AS VARCHAR), external_id),
			    latitude = ?, longitude = ?,
			    street_1 = ?, street_2 = ?, city = ?, state_code = ?, zip_code = ?,
			    result = ?, visited_at = ?, updated_at = ?,
			    h3_res7 = ?, h3_res8 = ?, h3_res9 = ?, h3_res10 = ?
			WHERE address_key = ?
		`, args...)
		if err != nil {
			return fmt.Errorf("updating address %q: %w", key, err)
		}

		return nil
	}

	args := []any{
		key, nullable(addr.ID), lat, lng,
		nullable(addr.Street1), nullable(addr.Street2), nullable(addr.City), nullable(addr.StateCode), nullable(addr.ZipCode),
		addr.Result.String(), visitedArg(addr), now, now,
	}
	args = append(args, h3Cells...)

	_, err = q.Exec(`
		INSERT INTO addresses (
			address_key, external_id, latitude, longitude,
			street_1, street_2, city, state_code, zip_code,
			result, visited_at, created_at, updated_at,
			h3_res7, h3_res8, h3_res9, h3_res10
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, args...)
	if err != nil {
		return fmt.Errorf("inserting address %q: %w", key, err)
	}

	return nil
}

func (r *sqlAddressRepository) BulkInsert(addrs []Address) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}

	for _, a := range addrs {
		if err := r.upsert(tx, a); err != nil {
			if rErr := tx.Rollback(); rErr != nil {
				err = errors.Join(err, rErr)
			}

			return err
		}
	}

	return tx.Commit()
}

const selectAddress = `
	SELECT address_key, external_id, latitude, longitude,
	       street_1, street_2, city, state_code, zip_code,
	       result, visited_at, created_at, updated_at
	FROM addresses
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAddress(row rowScanner) (*StoredAddress, error) {
	var (
		stored                                     StoredAddress
		id, street1, street2, city, stateCode, zip sql.NullString
		lat, lng                                   sql.NullFloat64
		result                                     string
		visitedAt                                  sql.NullTime
	)

	err := row.Scan(
		&stored.Key, &id, &lat, &lng,
		&street1, &street2, &city, &stateCode, &zip,
		&result, &visitedAt, &stored.CreatedAt, &stored.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	stored.Address = Address{
		ID:        nullString(id),
		Street1:   nullString(street1),
		Street2:   nullString(street2),
		City:      nullString(city),
		StateCode: nullString(stateCode),
		ZipCode:   nullString(zip),
		Result:    ParseVisitResult(result),
	}

	if lat.Valid && lng.Valid {
		stored.Address.Point = &spatial.Point{Lat: lat.Float64, Lng: lng.Float64}
	}

	if visitedAt.Valid {
		t := visitedAt.Time.UTC()
		stored.Address.VisitedAt = &t
	}

	return &stored, nil
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}

	return &s.String
}

func (r *sqlAddressRepository) getOne(where string, arg any) (*StoredAddress, error) {
	stored, err := scanAddress(r.db.QueryRow(selectAddress+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAddressNotFound
	}

	return stored, err
}

func (r *sqlAddressRepository) Get(key string) (*StoredAddress, error) {
	return r.getOne(`WHERE address_key = ?`, key)
}

func (r *sqlAddressRepository) GetByID(id string) (*StoredAddress, error) {
	return r.getOne(`WHERE external_id = ? ORDER BY updated_at DESC LIMIT 1`, id)
}

func (r *sqlAddressRepository) List(filter AddressFilter) ([]*StoredAddress, error) {
	var (
		conditions []string
		args       []any
	)

	if filter.Result != nil {
		conditions = append(conditions, "result = ?")
		args = append(args, filter.Result.String())
	}

	if filter.Cell != 0 {
		res := filter.Cell.Resolution()
		if res < MinCellResolution || res > MaxCellResolution {
			return nil, fmt.Errorf("canvass: cell resolution %d outside %d..%d", res, MinCellResolution, MaxCellResolution)
		}

		conditions = append(conditions, fmt.Sprintf("h3_res%d = ?", res))
		args = append(args, int64(filter.Cell))
	}

	query := selectAddress
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY address_key"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	return r.list(query, args)
}

func (r *sqlAddressRepository) AllSorted() ([]*StoredAddress, error) {
	return r.list(selectAddress+" ORDER BY address_key", nil)
}

func (r *sqlAddressRepository) list(query string, args []any) ([]*StoredAddress, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	addrs := []*StoredAddress{}

	for rows.Next() {
		stored, err := scanAddress(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning address: %w", err)
		}

		addrs = append(addrs, stored)
	}

	return addrs, rows.Err()
}

func (r *sqlAddressRepository) Delete(key string) error {
	res, err := r.db.Exec(`DELETE FROM addresses WHERE address_key = ?`, key)
	if err != nil {
		return fmt.Errorf("deleting address %q: %w", key, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrAddressNotFound
	}

	return nil
}

func (r *sqlAddressRepository) Count() (int, error) {
	var n int

	err := r.db.QueryRow(`SELECT count(*) FROM addresses`).Scan(&n)

	return n, err
}
