// Package db persists decoded sensor frames and point clouds to sqlite.
//
// Each run of the collector opens a session (a uuid) and appends frames to
// it; the point-cloud objects are stored one row per detected object so they
// can be queried and aggregated directly in SQL.
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/mmwave.report/internal/mmwave"
)

type DB struct {
	*sql.DB
}

// NewDB opens (creating if necessary) the sqlite database at path and brings
// the schema up to date by applying any pending migrations.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

// OpenDB opens the database without touching the schema. Used by the migrate
// CLI, which wants to inspect or repair the schema itself.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer; serialise access through one connection
	// rather than surfacing SQLITE_BUSY to callers.
	db.SetMaxOpenConns(1)
	return &DB{db}, nil
}

// StartSession records the beginning of a collection run and returns its id.
func (db *DB) StartSession(sensorPort string) (string, error) {
	id := uuid.NewString()
	_, err := db.Exec(
		"INSERT INTO sessions (session_id, sensor_port) VALUES (?, ?)",
		id, sensorPort,
	)
	if err != nil {
		return "", fmt.Errorf("failed to start session: %w", err)
	}
	return id, nil
}

// RecordFrame stores one decoded frame and its detected objects. The frame
// row and its object rows are written in a single transaction.
func (db *DB) RecordFrame(sessionID string, frame mmwave.Frame) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO frames (
			session_id, frame_number, version, platform, time_cpu_cycles,
			num_detected_obj, num_tlvs, subframe_number, received
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID,
		frame.Header.FrameNumber,
		frame.Header.Version,
		frame.Header.Platform,
		frame.Header.TimeCPUCycles,
		frame.Header.NumDetectedObj,
		frame.Header.NumTLVs,
		frame.Header.SubFrameNumber,
		frame.Received.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert frame %d: %w", frame.Header.FrameNumber, err)
	}

	frameID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	for i, obj := range frame.Objects {
		_, err := tx.Exec(
			`INSERT INTO objects (frame_id, object_index, x, y, z, velocity)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			frameID, i, obj.X, obj.Y, obj.Z, obj.Velocity,
		)
		if err != nil {
			return fmt.Errorf("failed to insert object %d of frame %d: %w",
				i, frame.Header.FrameNumber, err)
		}
	}

	return tx.Commit()
}

// StoredFrame is one row of the frames table.
type StoredFrame struct {
	ID             int64     `json:"id"`
	SessionID      string    `json:"session_id"`
	FrameNumber    uint32    `json:"frame_number"`
	Version        uint32    `json:"version"`
	Platform       uint32    `json:"platform"`
	TimeCPUCycles  uint32    `json:"time_cpu_cycles"`
	NumDetectedObj uint32    `json:"num_detected_obj"`
	NumTLVs        uint32    `json:"num_tlvs"`
	SubFrameNumber uint32    `json:"subframe_number"`
	Received       time.Time `json:"received"`
}

// StoredObject is one row of the objects table.
type StoredObject struct {
	FrameID     int64   `json:"frame_id"`
	FrameNumber uint32  `json:"frame_number"`
	ObjectIndex int     `json:"object_index"`
	X           float32 `json:"x"`
	Y           float32 `json:"y"`
	Z           float32 `json:"z"`
	Velocity    float32 `json:"velocity"`
}

// RecentFrames returns up to limit frames, newest first.
func (db *DB) RecentFrames(limit int) ([]StoredFrame, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(
		`SELECT id, session_id, frame_number, version, platform, time_cpu_cycles,
		        num_detected_obj, num_tlvs, subframe_number, received
		 FROM frames ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frames []StoredFrame
	for rows.Next() {
		var f StoredFrame
		if err := rows.Scan(
			&f.ID, &f.SessionID, &f.FrameNumber, &f.Version, &f.Platform,
			&f.TimeCPUCycles, &f.NumDetectedObj, &f.NumTLVs, &f.SubFrameNumber,
			&f.Received,
		); err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// RecentObjects returns up to limit detected objects, newest frame first.
func (db *DB) RecentObjects(limit int) ([]StoredObject, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := db.Query(
		`SELECT o.frame_id, f.frame_number, o.object_index, o.x, o.y, o.z, o.velocity
		 FROM objects o JOIN frames f ON f.id = o.frame_id
		 ORDER BY o.frame_id DESC, o.object_index ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var objects []StoredObject
	for rows.Next() {
		var o StoredObject
		if err := rows.Scan(
			&o.FrameID, &o.FrameNumber, &o.ObjectIndex, &o.X, &o.Y, &o.Z, &o.Velocity,
		); err != nil {
			return nil, err
		}
		objects = append(objects, o)
	}
	return objects, rows.Err()
}

// ObjectsForFrame returns the detected objects of one stored frame.
func (db *DB) ObjectsForFrame(frameID int64) ([]StoredObject, error) {
	rows, err := db.Query(
		`SELECT o.frame_id, f.frame_number, o.object_index, o.x, o.y, o.z, o.velocity
		 FROM objects o JOIN frames f ON f.id = o.frame_id
		 WHERE o.frame_id = ? ORDER BY o.object_index ASC`, frameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var objects []StoredObject
	for rows.Next() {
		var o StoredObject
		if err := rows.Scan(
			&o.FrameID, &o.FrameNumber, &o.ObjectIndex, &o.X, &o.Y, &o.Z, &o.Velocity,
		); err != nil {
			return nil, err
		}
		objects = append(objects, o)
	}
	return objects, rows.Err()
}

// SessionSummary aggregates what a collection run produced.
type SessionSummary struct {
	SessionID   string `json:"session_id"`
	FrameCount  int64  `json:"frame_count"`
	ObjectCount int64  `json:"object_count"`
}

// SummarizeSession counts the frames and objects recorded under a session.
func (db *DB) SummarizeSession(sessionID string) (SessionSummary, error) {
	s := SessionSummary{SessionID: sessionID}
	err := db.QueryRow(
		`SELECT COUNT(*) FROM frames WHERE session_id = ?`, sessionID,
	).Scan(&s.FrameCount)
	if err != nil {
		return s, err
	}
	err = db.QueryRow(
		`SELECT COUNT(*) FROM objects o JOIN frames f ON f.id = o.frame_id
		 WHERE f.session_id = ?`, sessionID,
	).Scan(&s.ObjectCount)
	return s, err
}
