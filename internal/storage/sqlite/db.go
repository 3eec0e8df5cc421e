// Package sqlite persists analysis history, user corrections and cache
// entries in a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"contextanalyzer/internal/domain"
)

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS analysis_history (
		id              TEXT PRIMARY KEY,
		title           TEXT NOT NULL,
		description     TEXT DEFAULT '',
		impact          TEXT DEFAULT '',
		category        TEXT NOT NULL,
		intent          TEXT NOT NULL,
		business_impact TEXT DEFAULT '',
		confidence      REAL NOT NULL,
		source          TEXT NOT NULL,
		agreement       INTEGER NOT NULL DEFAULT 0,
		ai_error        TEXT DEFAULT '',
		llm_provider    TEXT DEFAULT '',
		llm_model       TEXT DEFAULT '',
		analyzed_at     DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_ah_date ON analysis_history(analyzed_at);
	CREATE INDEX IF NOT EXISTS idx_ah_source ON analysis_history(source);

	CREATE TABLE IF NOT EXISTS classification_corrections (
		id                 INTEGER PRIMARY KEY AUTOINCREMENT,
		original_text      TEXT NOT NULL,
		original_category  TEXT NOT NULL,
		corrected_category TEXT NOT NULL,
		correction_notes   TEXT DEFAULT '',
		corrected_at       DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_cc_date ON classification_corrections(corrected_at);

	CREATE TABLE IF NOT EXISTS cache_entries (
		namespace  TEXT NOT NULL,
		key        TEXT NOT NULL,
		data       TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		ttl_days   INTEGER NOT NULL,
		hits       INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (namespace, key)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return db, nil
}

func InsertAnalysis(db *sql.DB, rec domain.AnalysisRecord) error {
	if rec.AnalyzedAt.IsZero() {
		rec.AnalyzedAt = time.Now().UTC()
	}
	_, err := db.Exec(
		`INSERT INTO analysis_history
		 (id, title, description, impact, category, intent, business_impact, confidence,
		  source, agreement, ai_error, llm_provider, llm_model, analyzed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Title, rec.Description, rec.Impact,
		string(rec.Category), string(rec.Intent), string(rec.BusinessImpact), rec.Confidence,
		rec.Source, rec.Agreement, rec.AIError, rec.LLMProvider, rec.LLMModel, rec.AnalyzedAt,
	)
	return err
}

func GetAnalysisByID(db *sql.DB, id string) (domain.AnalysisRecord, error) {
	var rec domain.AnalysisRecord
	var category, intent, impact string
	err := db.QueryRow(
		`SELECT id, title, description, impact, category, intent, business_impact, confidence,
		        source, agreement, ai_error, llm_provider, llm_model, analyzed_at
		 FROM analysis_history WHERE id = ?`,
		id,
	).Scan(&rec.ID, &rec.Title, &rec.Description, &rec.Impact, &category, &intent, &impact,
		&rec.Confidence, &rec.Source, &rec.Agreement, &rec.AIError, &rec.LLMProvider, &rec.LLMModel,
		&rec.AnalyzedAt)
	rec.Category = domain.Category(category)
	rec.Intent = domain.Intent(intent)
	rec.BusinessImpact = domain.BusinessImpact(impact)
	return rec, err
}

func InsertCorrection(db *sql.DB, c domain.Correction) error {
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}
	_, err := db.Exec(
		`INSERT INTO classification_corrections
		 (original_text, original_category, corrected_category, correction_notes, corrected_at)
		 VALUES (?, ?, ?, ?, ?)`,
		c.OriginalText, c.OriginalCategory, c.CorrectedCategory, c.CorrectionNotes, c.Timestamp,
	)
	return err
}

func GetRecentCorrections(db *sql.DB, since time.Time, limit int) ([]domain.Correction, error) {
	rows, err := db.Query(
		`SELECT original_text, original_category, corrected_category, correction_notes, corrected_at
		 FROM classification_corrections
		 WHERE corrected_at >= ?
		 ORDER BY corrected_at DESC, id DESC
		 LIMIT ?`,
		since, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Correction
	for rows.Next() {
		var c domain.Correction
		if err := rows.Scan(&c.OriginalText, &c.OriginalCategory, &c.CorrectedCategory,
			&c.CorrectionNotes, &c.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetAnalysisStats summarises analyses since the given time: confidence
// buckets, agreement rate and counts per result source.
func GetAnalysisStats(db *sql.DB, since time.Time) (domain.AnalysisStats, error) {
	s := domain.AnalysisStats{BySource: make(map[string]int)}
	err := db.QueryRow(
		`SELECT COUNT(*), COALESCE(AVG(confidence), 0), COALESCE(AVG(agreement), 0),
		        COALESCE(SUM(CASE WHEN confidence < 0.50 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN confidence >= 0.50 AND confidence < 0.70 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN confidence >= 0.70 AND confidence < 0.90 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN confidence >= 0.90 THEN 1 ELSE 0 END), 0)
		 FROM analysis_history WHERE analyzed_at >= ?`,
		since,
	).Scan(&s.TotalAnalyses, &s.AvgConfidence, &s.AgreementRate,
		&s.BucketBelow50, &s.Bucket50to70, &s.Bucket70to90, &s.Bucket90Plus)
	if err != nil {
		return s, err
	}

	rows, err := db.Query(
		`SELECT source, COUNT(*) FROM analysis_history WHERE analyzed_at >= ? GROUP BY source`,
		since,
	)
	if err != nil {
		return s, err
	}
	defer rows.Close()
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return s, err
		}
		s.BySource[source] = n
	}
	if err := rows.Err(); err != nil {
		return s, err
	}

	err = db.QueryRow(
		`SELECT COUNT(*) FROM classification_corrections WHERE corrected_at >= ?`,
		since,
	).Scan(&s.TotalCorrections)
	return s, err
}

// Recorder adapts the history table to the hybrid analyzer.
type Recorder struct {
	DB *sql.DB
}

func (r Recorder) RecordAnalysis(_ context.Context, rec domain.AnalysisRecord) error {
	return InsertAnalysis(r.DB, rec)
}
