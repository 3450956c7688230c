// Package vkb loads the aircraft-type lookup table used to default wake
// turbulence categories on strips and formation elements.
package vkb

import (
	"fmt"
	"os"
	"strings"

	"github.com/jszwec/csvutil"

	"github.com/rjmurr/movebook/pkg/logger"
)

// TypeRecord is one row of the aircraft-type CSV
type TypeRecord struct {
	Designator  string `csv:"designator"`
	WTC         string `csv:"wtc"`
	Description string `csv:"description,omitempty"`
}

// DB is the in-memory aircraft-type database
type DB struct {
	byDesignator map[string]TypeRecord
	logger       *logger.Logger
}

// Load reads the CSV at path. Rows without a designator or WTC are skipped.
func Load(path string, log *logger.Logger) (*DB, error) {
	vkbLogger := log.Named("vkb")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read aircraft type db: %w", err)
	}

	var records []TypeRecord
	if err := csvutil.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse aircraft type db: %w", err)
	}

	db := &DB{
		byDesignator: make(map[string]TypeRecord, len(records)),
		logger:       vkbLogger,
	}
	skipped := 0
	for _, rec := range records {
		designator := strings.ToUpper(strings.TrimSpace(rec.Designator))
		wtc := strings.ToUpper(strings.TrimSpace(rec.WTC))
		if designator == "" || wtc == "" {
			skipped++
			continue
		}
		rec.Designator = designator
		rec.WTC = wtc
		db.byDesignator[designator] = rec
	}

	vkbLogger.Info("Loaded aircraft type database",
		logger.String("path", path),
		logger.Int("types", len(db.byDesignator)),
		logger.Int("skipped", skipped))
	return db, nil
}

// WTCFor returns the wake turbulence category for an ICAO type designator
func (d *DB) WTCFor(designator string) (string, bool) {
	rec, ok := d.byDesignator[strings.ToUpper(strings.TrimSpace(designator))]
	if !ok {
		return "", false
	}
	return rec.WTC, true
}

// Get returns the full record for a designator
func (d *DB) Get(designator string) (TypeRecord, bool) {
	rec, ok := d.byDesignator[strings.ToUpper(strings.TrimSpace(designator))]
	return rec, ok
}

// Count returns the number of loaded types
func (d *DB) Count() int {
	return len(d.byDesignator)
}
