package lookup

import (
	"context"
	"testing"

	"f1etl/internal/warehouse"
)

type fakeRepo struct {
	warehouse.Repository

	keyValues map[string]map[string]int64
	sessions  map[int64]warehouse.SessionRef
	seasonID  int64
	roundID   int64

	sessionTypeSeen string
	roundCalls      int
}

func (f *fakeRepo) SelectKeyValue(ctx context.Context, table, keyColumn, valueColumn string) (map[string]int64, error) {
	return f.keyValues[table], nil
}

func (f *fakeRepo) SessionsByRound(ctx context.Context, sessionType string) (map[int64]warehouse.SessionRef, error) {
	f.sessionTypeSeen = sessionType
	return f.sessions, nil
}

func (f *fakeRepo) SeasonID(ctx context.Context, year int) (int64, bool, error) {
	return f.seasonID, f.seasonID != 0, nil
}

func (f *fakeRepo) RoundID(ctx context.Context, year, round int) (int64, bool, error) {
	f.roundCalls++
	return f.roundID, f.roundID != 0, nil
}

func newFake() *fakeRepo {
	return &fakeRepo{
		keyValues: map[string]map[string]int64{
			"driver": {"hamilton": 1, "max_verstappen": 2},
			"team":   {"mercedes": 7, "red_bull": 8},
		},
		sessions: map[int64]warehouse.SessionRef{
			102: {ID: 1002, Number: 5},
		},
		seasonID: 10,
		roundID:  102,
	}
}

func TestBuild_ResolvesAllMaps(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := newFake()
	m, err := Build(ctx, repo, 2024, 2, "R")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if repo.sessionTypeSeen != "R" {
		t.Fatalf("expected session type R, got %q", repo.sessionTypeSeen)
	}

	if id, ok := m.Driver("hamilton"); !ok || id != 1 {
		t.Fatalf("Driver(hamilton)=(%d,%v)", id, ok)
	}
	if id, ok := m.Driver(" hamilton "); !ok || id != 1 {
		t.Fatalf("expected normalized driver lookup, got (%d,%v)", id, ok)
	}
	if _, ok := m.Driver("nobody"); ok {
		t.Fatalf("expected unknown driver to miss")
	}

	if id, ok := m.Team("red_bull"); !ok || id != 8 {
		t.Fatalf("Team(red_bull)=(%d,%v)", id, ok)
	}

	if id, ok := m.Season(); !ok || id != 10 {
		t.Fatalf("Season()=(%d,%v)", id, ok)
	}
	if id, ok := m.Round(); !ok || id != 102 {
		t.Fatalf("Round()=(%d,%v)", id, ok)
	}

	if ref, ok := m.Session(102); !ok || ref.ID != 1002 || ref.Number != 5 {
		t.Fatalf("Session(102)=(%+v,%v)", ref, ok)
	}
	if _, ok := m.Session(999); ok {
		t.Fatalf("expected unknown round session to miss")
	}
}

func TestBuild_SeasonScopedSkipsRound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := newFake()
	m, err := Build(ctx, repo, 2024, 0, "R")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if repo.roundCalls != 0 {
		t.Fatalf("expected round lookup skipped, got %d calls", repo.roundCalls)
	}
	if _, ok := m.Round(); ok {
		t.Fatalf("expected unresolved round")
	}
}

func TestBuild_MissingSeason(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := newFake()
	repo.seasonID = 0
	m, err := Build(ctx, repo, 1999, 1, "R")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, ok := m.Season(); ok {
		t.Fatalf("expected unresolved season")
	}
}
