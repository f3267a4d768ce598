package main

import (
	"path/filepath"
	"testing"

	"github.com/banshee-data/mmwave.report/internal/api"
	"github.com/banshee-data/mmwave.report/internal/db"
	"github.com/banshee-data/mmwave.report/internal/mmwave"
	"github.com/banshee-data/mmwave.report/internal/testutil"
)

func TestHandleFramesEndToEnd(t *testing.T) {
	database, err := db.NewDB(filepath.Join(t.TempDir(), "radar_test.db"))
	testutil.AssertNoError(t, err)
	defer database.Close()

	session, err := database.StartSession("test")
	testutil.AssertNoError(t, err)

	// Two wire frames back to back, decoded then handled like the live loop.
	wire := append(
		testutil.BuildFrame(1, []mmwave.DetectedObject{{X: 1, Y: 2, Z: 3, Velocity: 0.5}}),
		testutil.BuildFrame(2, []mmwave.DetectedObject{{X: -1, Z: 5.5, Velocity: -2.25}})...,
	)
	decoder := mmwave.NewDecoder(mmwave.Options{})
	frames, err := decoder.Ingest(wire)
	testutil.AssertNoError(t, err)
	if len(frames) != 2 {
		t.Fatalf("expected 2 decoded frames, got %d", len(frames))
	}

	hub := api.NewFrameHub()
	handleFrames(database, hub, session, frames)

	summary, err := database.SummarizeSession(session)
	testutil.AssertNoError(t, err)
	if summary.FrameCount != 2 {
		t.Errorf("FrameCount = %d, want 2", summary.FrameCount)
	}
	if summary.ObjectCount != 2 {
		t.Errorf("ObjectCount = %d, want 2", summary.ObjectCount)
	}
}

func TestHandleFramesSurvivesBadSession(t *testing.T) {
	database, err := db.NewDB(filepath.Join(t.TempDir(), "radar_test.db"))
	testutil.AssertNoError(t, err)
	defer database.Close()

	// An unknown session still records (sqlite does not enforce the foreign
	// key by default) or logs; either way it must not panic.
	frames := []mmwave.Frame{{Header: mmwave.FrameHeader{FrameNumber: 9}}}
	handleFrames(database, api.NewFrameHub(), "no-such-session", frames)
}
