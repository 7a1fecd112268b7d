package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"riskbot/internal/models"
)

// ErrNotFound is returned when no state has been persisted yet.
var ErrNotFound = errors.New("storage: not found")

// Store persists bot state as JSON files under a single directory.
// Writes go through a temp file and rename so a crash mid-write never
// leaves a truncated file behind.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// SaveRiskState writes the per-instrument risk state.
func (s *Store) SaveRiskState(symbol string, st models.RiskState) error {
	return s.writeJSON(s.path(symbol, "risk"), st)
}

// LoadRiskState reads the per-instrument risk state.
func (s *Store) LoadRiskState(symbol string) (models.RiskState, error) {
	var st models.RiskState
	err := s.readJSON(s.path(symbol, "risk"), &st)
	return st, err
}

// SavePosition writes the current position snapshot.
func (s *Store) SavePosition(symbol string, p models.Position) error {
	return s.writeJSON(s.path(symbol, "position"), p)
}

// LoadPosition reads the persisted position snapshot.
func (s *Store) LoadPosition(symbol string) (models.Position, error) {
	var p models.Position
	err := s.readJSON(s.path(symbol, "position"), &p)
	return p, err
}

// SaveTrades appends-free: writes the whole closed-trade history.
func (s *Store) SaveTrades(symbol string, trades []models.Trade) error {
	return s.writeJSON(s.path(symbol, "trades"), trades)
}

// LoadTrades reads the closed-trade history.
func (s *Store) LoadTrades(symbol string) ([]models.Trade, error) {
	var trades []models.Trade
	err := s.readJSON(s.path(symbol, "trades"), &trades)
	return trades, err
}

func (s *Store) path(symbol, kind string) string {
	name := strings.ToLower(symbol) + "_" + kind + ".json"
	return filepath.Join(s.dir, name)
}

func (s *Store) writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(tmp), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (s *Store) readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
