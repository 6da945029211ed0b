// Package storage persists scanned assets and their analyses in sqlite.
// Storage implements the grouping Repository and AnalysisSource
// interfaces so groups can be rebuilt without re-analyzing.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"photosweep/internal/models"
)

// ErrNotFound is returned when an asset ID is not stored
var ErrNotFound = errors.New("asset not found")

// Storage handles persistence of assets and analysis results
type Storage struct {
	db     *sql.DB
	dbPath string
}

// NewStorage creates a new Storage
func NewStorage(dbPath string) (*Storage, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	s := &Storage{db: db, dbPath: dbPath}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Path returns the database file path
func (s *Storage) Path() string {
	return s.dbPath
}

// Current schema version
const schemaVersion = 3

// migrations defines all schema migrations
// Each migration should be idempotent (safe to run multiple times)
var migrations = []struct {
	version     int
	description string
	up          string
}{
	{
		version:     1,
		description: "Initial schema",
		up:          "", // Handled by base schema creation
	},
	{
		version:     2,
		description: "Add file_hash column for exact matching",
		up: `
			ALTER TABLE assets ADD COLUMN file_hash TEXT DEFAULT '';
			CREATE INDEX IF NOT EXISTS idx_assets_file_hash ON assets(file_hash);
		`,
	},
	{
		version:     3,
		description: "Index analyses by quality",
		up: `
			CREATE INDEX IF NOT EXISTS idx_analyses_quality ON analyses(quality_score);
		`,
	},
}

// init creates the database schema
func (s *Storage) init() error {
	// Create schema_version table first
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	// Create base schema. Times are unix nanoseconds, 0 for unknown.
	schema := `
	CREATE TABLE IF NOT EXISTS assets (
		id TEXT PRIMARY KEY,
		path TEXT UNIQUE NOT NULL,
		media_type TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		mod_time INTEGER NOT NULL,
		created_at INTEGER DEFAULT 0,
		front_camera INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_assets_path ON assets(path);

	CREATE TABLE IF NOT EXISTS analyses (
		asset_id TEXT PRIMARY KEY,
		analyzed_at INTEGER NOT NULL,
		quality_score REAL NOT NULL,
		blur_score REAL NOT NULL,
		brightness_score REAL NOT NULL,
		contrast_score REAL NOT NULL,
		saturation_score REAL NOT NULL,
		face_count INTEGER NOT NULL,
		face_data TEXT DEFAULT '',
		is_screenshot INTEGER DEFAULT 0,
		is_selfie INTEGER DEFAULT 0,
		feature_hash BLOB
	);

	CREATE TABLE IF NOT EXISTS scan_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		folder TEXT NOT NULL,
		scanned_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		total_assets INTEGER NOT NULL,
		total_analyzed INTEGER NOT NULL,
		total_failed INTEGER NOT NULL
	);
	`

	_, err = s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	// Run migrations
	if err := s.migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// migrate runs pending schema migrations
func (s *Storage) migrate() error {
	currentVersion := s.getSchemaVersion()

	for _, m := range migrations {
		if m.version <= currentVersion || m.up == "" {
			continue
		}

		// Check if migration is needed (column might already exist)
		if m.version == 2 && s.columnExists("assets", "file_hash") {
			s.setSchemaVersion(m.version)
			continue
		}

		if _, err := s.db.Exec(m.up); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.description, err)
		}

		s.setSchemaVersion(m.version)
	}

	return nil
}

// getSchemaVersion returns the current schema version
func (s *Storage) getSchemaVersion() int {
	var version int
	err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0
	}
	return version
}

// setSchemaVersion records a migration as applied
func (s *Storage) setSchemaVersion(version int) {
	s.db.Exec(`INSERT OR REPLACE INTO schema_version (version) VALUES (?)`, version)
}

// columnExists checks if a column exists in a table
func (s *Storage) columnExists(table, column string) bool {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?
	`, table, column).Scan(&count)
	if err != nil {
		return false
	}
	return count > 0
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// SaveAssets inserts or updates assets by ID
func (s *Storage) SaveAssets(ctx context.Context, assets []models.AssetRef) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO assets (id, path, media_type, file_size, mod_time, created_at, front_camera, file_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path = excluded.path,
			media_type = excluded.media_type,
			file_size = excluded.file_size,
			mod_time = excluded.mod_time,
			created_at = excluded.created_at,
			front_camera = excluded.front_camera,
			file_hash = excluded.file_hash
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, a := range assets {
		_, err := stmt.ExecContext(ctx,
			a.ID,
			a.Path,
			string(a.MediaType),
			a.FileSize,
			toUnix(a.ModTime),
			toUnix(a.CreatedAt),
			boolInt(a.FrontCamera),
			a.FileHash,
		)
		if err != nil {
			return fmt.Errorf("failed to insert asset %s: %w", a.Path, err)
		}
	}

	return tx.Commit()
}

const assetColumns = `id, path, media_type, file_size, mod_time, created_at, front_camera, file_hash`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row rowScanner) (models.AssetRef, error) {
	var (
		a           models.AssetRef
		mediaType   string
		modTime     int64
		createdAt   int64
		frontCamera int
		fileHash    sql.NullString
	)
	err := row.Scan(&a.ID, &a.Path, &mediaType, &a.FileSize, &modTime, &createdAt, &frontCamera, &fileHash)
	if err != nil {
		return models.AssetRef{}, err
	}
	a.MediaType = models.MediaType(mediaType)
	a.ModTime = fromUnix(modTime)
	a.CreatedAt = fromUnix(createdAt)
	a.FrontCamera = frontCamera == 1
	a.FileHash = fileHash.String
	return a, nil
}

// Assets returns all stored assets ordered by path
func (s *Storage) Assets(ctx context.Context) ([]models.AssetRef, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+assetColumns+` FROM assets ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	var assets []models.AssetRef
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// StaleAssets returns assets with no analysis or whose file changed after
// it was analyzed
func (s *Storage) StaleAssets(ctx context.Context) ([]models.AssetRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.path, a.media_type, a.file_size, a.mod_time, a.created_at, a.front_camera, a.file_hash
		FROM assets a
		LEFT JOIN analyses r ON r.asset_id = a.id
		WHERE r.asset_id IS NULL OR a.mod_time > r.analyzed_at
		ORDER BY a.path
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale assets: %w", err)
	}
	defer rows.Close()

	var assets []models.AssetRef
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// Resolve returns the stored asset with the given ID
func (s *Storage) Resolve(ctx context.Context, assetID string) (models.AssetRef, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = ?`, assetID)
	a, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.AssetRef{}, fmt.Errorf("%w: %s", ErrNotFound, assetID)
	}
	if err != nil {
		return models.AssetRef{}, fmt.Errorf("failed to load asset %s: %w", assetID, err)
	}
	return a, nil
}

// FileSize returns the stored size of an asset
func (s *Storage) FileSize(ctx context.Context, assetID string) (int64, error) {
	var size int64
	err := s.db.QueryRowContext(ctx, `SELECT file_size FROM assets WHERE id = ?`, assetID).Scan(&size)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, assetID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load size of %s: %w", assetID, err)
	}
	return size, nil
}

// DeleteAsset removes an asset and its analysis
func (s *Storage) DeleteAsset(ctx context.Context, assetID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM analyses WHERE asset_id = ?`, assetID); err != nil {
		return fmt.Errorf("failed to delete analysis: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM assets WHERE id = ?`, assetID); err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
	}
	return tx.Commit()
}

// PruneMissing deletes assets whose files no longer exist on disk and
// returns how many were removed
func (s *Storage) PruneMissing(ctx context.Context) (int, error) {
	assets, err := s.Assets(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, a := range assets {
		if _, err := os.Stat(a.Path); !os.IsNotExist(err) {
			continue
		}
		if err := s.DeleteAsset(ctx, a.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// faceData is the JSON payload of the face_data column
type faceData struct {
	Scores []float64          `json:"scores,omitempty"`
	Angles []models.FaceAngle `json:"angles,omitempty"`
}

// SaveAnalyses inserts or replaces analysis results by asset ID
func (s *Storage) SaveAnalyses(ctx context.Context, results []models.AnalysisResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO analyses (
			asset_id, analyzed_at, quality_score, blur_score, brightness_score,
			contrast_score, saturation_score, face_count, face_data,
			is_screenshot, is_selfie, feature_hash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		faces, err := json.Marshal(faceData{Scores: r.FaceQualityScores, Angles: r.FaceAngles})
		if err != nil {
			return fmt.Errorf("failed to encode faces for %s: %w", r.AssetID, err)
		}
		_, err = stmt.ExecContext(ctx,
			r.AssetID,
			toUnix(r.AnalyzedAt),
			r.QualityScore,
			r.BlurScore,
			r.BrightnessScore,
			r.ContrastScore,
			r.SaturationScore,
			r.FaceCount,
			string(faces),
			boolInt(r.IsScreenshot),
			boolInt(r.IsSelfie),
			r.FeatureVectorHash,
		)
		if err != nil {
			return fmt.Errorf("failed to insert analysis %s: %w", r.AssetID, err)
		}
	}

	return tx.Commit()
}

// Analysis returns the stored analysis for an asset. ok is false when the
// asset has not been analyzed.
func (s *Storage) Analysis(ctx context.Context, assetID string) (models.AnalysisResult, bool, error) {
	var (
		f            models.AnalysisFields
		analyzedAt   int64
		faceJSON     sql.NullString
		isScreenshot int
		isSelfie     int
		hash         []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT asset_id, analyzed_at, quality_score, blur_score, brightness_score,
			contrast_score, saturation_score, face_count, face_data,
			is_screenshot, is_selfie, feature_hash
		FROM analyses WHERE asset_id = ?
	`, assetID).Scan(
		&f.AssetID,
		&analyzedAt,
		&f.QualityScore,
		&f.BlurScore,
		&f.BrightnessScore,
		&f.ContrastScore,
		&f.SaturationScore,
		&f.FaceCount,
		&faceJSON,
		&isScreenshot,
		&isSelfie,
		&hash,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.AnalysisResult{}, false, nil
	}
	if err != nil {
		return models.AnalysisResult{}, false, fmt.Errorf("failed to load analysis %s: %w", assetID, err)
	}

	if faceJSON.String != "" {
		var faces faceData
		if err := json.Unmarshal([]byte(faceJSON.String), &faces); err != nil {
			return models.AnalysisResult{}, false, fmt.Errorf("failed to decode faces for %s: %w", assetID, err)
		}
		f.FaceQualityScores = faces.Scores
		f.FaceAngles = faces.Angles
	}
	f.AnalyzedAt = fromUnix(analyzedAt)
	f.IsScreenshot = isScreenshot == 1
	f.IsSelfie = isSelfie == 1
	f.FeatureVectorHash = hash

	return models.NewAnalysisResult(f), true, nil
}

// RecordScan records a scan in history
func (s *Storage) RecordScan(ctx context.Context, folder string, totalAssets, totalAnalyzed, totalFailed int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_history (folder, total_assets, total_analyzed, total_failed)
		VALUES (?, ?, ?, ?)
	`, folder, totalAssets, totalAnalyzed, totalFailed)
	return err
}

// Counts returns the number of stored assets and analyses
func (s *Storage) Counts(ctx context.Context) (assets, analyzed int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM assets), (SELECT COUNT(*) FROM analyses)
	`).Scan(&assets, &analyzed)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return assets, analyzed, nil
}
