// Copyright 2025 The GroundGame Authors
// SPDX-License-Identifier: Apache-2.0

package canvass

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// SeedVersion is the version written to exported seed files.
const SeedVersion = "1.0"

// SeedData is the JSON seed file format.
type SeedData struct {
	Version     string    `json:"version"`
	LastUpdated time.Time `json:"last_updated"`
	Addresses   []Address `json:"addresses"`
}

// ExportToJSON writes every stored address to a JSON seed file.
func ExportToJSON(repo AddressRepository, filepath string) (int, error) {
	stored, err := repo.AllSorted()
	if err != nil {
		return 0, fmt.Errorf("listing addresses: %w", err)
	}

	seed := &SeedData{
		Version:     SeedVersion,
		LastUpdated: time.Now().UTC(),
		Addresses:   make([]Address, 0, len(stored)),
	}

	for _, s := range stored {
		seed.Addresses = append(seed.Addresses, s.Address)
	}

	data, err := json.MarshalIndent(seed, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshaling JSON: %w", err)
	}

	if err := os.WriteFile(filepath, data, 0o600); err != nil {
		return 0, fmt.Errorf("writing file: %w", err)
	}

	return len(seed.Addresses), nil
}

// ReadSeed parses a JSON seed file. Each address is parsed leniently.
func ReadSeed(filepath string) (*SeedData, error) {
	data, err := os.ReadFile(filepath) // #nosec G304 - filepath is provided by the operator
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	var seed SeedData
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}

	return &seed, nil
}

// ImportFromJSON stores the addresses of a JSON seed file in one
// transaction and returns how many were imported.
func ImportFromJSON(repo AddressRepository, filepath string) (int, error) {
	seed, err := ReadSeed(filepath)
	if err != nil {
		return 0, err
	}

	if err := repo.BulkInsert(seed.Addresses); err != nil {
		return 0, fmt.Errorf("importing addresses: %w", err)
	}

	return len(seed.Addresses), nil
}

// SeedIfEmpty imports the seed file when the store has no addresses. A
// missing seed file is not an error.
func SeedIfEmpty(repo AddressRepository, filepath string) (bool, int, error) {
	count, err := repo.Count()
	if err != nil {
		return false, 0, fmt.Errorf("counting addresses: %w", err)
	}

	if count > 0 {
		return false, count, nil
	}

	if _, err := os.Stat(filepath); os.IsNotExist(err) {
		return false, 0, nil
	}

	imported, err := ImportFromJSON(repo, filepath)
	if err != nil {
		return false, 0, err
	}

	return true, imported, nil
}
