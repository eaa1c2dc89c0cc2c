package storage

import (
	"casescraper/internal/domain"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a case lookup matches no stored row.
var ErrNotFound = errors.New("storage: case not found")

// PostgresStore persists foreclosure cases keyed by case id.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

// upsertSQL is a single conditional write: insert when the case id is new,
// update only when incoming content differs from the stored row. Two runs
// racing on the same case id therefore converge on one consistent row.
// RETURNING (xmax = 0) distinguishes an insert from an update; zero rows
// back means the conflict row was identical and nothing was written.
const upsertSQL = `
INSERT INTO foreclosure_cases (
    case_id, filing_type, filing_date, case_status, plaintiff, defendants,
    parcel_number, case_filing_id, county, property_address, source_url, needs_review
) VALUES (
    $1, $2, to_date(NULLIF($3, ''), 'MM/DD/YYYY'), $4, $5, $6,
    $7, $8, $9, $10, $11, $12
)
ON CONFLICT (case_id) DO UPDATE SET
    filing_type      = EXCLUDED.filing_type,
    filing_date      = EXCLUDED.filing_date,
    case_status      = EXCLUDED.case_status,
    plaintiff        = EXCLUDED.plaintiff,
    defendants       = EXCLUDED.defendants,
    parcel_number    = EXCLUDED.parcel_number,
    case_filing_id   = EXCLUDED.case_filing_id,
    county           = EXCLUDED.county,
    property_address = EXCLUDED.property_address,
    source_url       = EXCLUDED.source_url,
    needs_review     = EXCLUDED.needs_review,
    updated_at       = NOW()
WHERE (foreclosure_cases.filing_type, foreclosure_cases.filing_date,
       foreclosure_cases.case_status, foreclosure_cases.plaintiff,
       foreclosure_cases.defendants, foreclosure_cases.parcel_number,
       foreclosure_cases.case_filing_id, foreclosure_cases.county,
       foreclosure_cases.property_address, foreclosure_cases.source_url,
       foreclosure_cases.needs_review)
      IS DISTINCT FROM
      (EXCLUDED.filing_type, EXCLUDED.filing_date, EXCLUDED.case_status,
       EXCLUDED.plaintiff, EXCLUDED.defendants, EXCLUDED.parcel_number,
       EXCLUDED.case_filing_id, EXCLUDED.county, EXCLUDED.property_address,
       EXCLUDED.source_url, EXCLUDED.needs_review)
RETURNING (xmax = 0) AS inserted`

// Upsert writes one record under its dedup identity and reports whether it
// was inserted, updated, or skipped as unchanged.
func (s *PostgresStore) Upsert(ctx context.Context, identity string, record *domain.CaseRecord) (domain.PersistSummary, error) {
	defendants, err := json.Marshal(record.Defendants)
	if err != nil {
		return domain.PersistSummary{}, fmt.Errorf("encode defendants for %s: %w", identity, err)
	}

	var inserted bool
	err = s.db.QueryRow(ctx, upsertSQL,
		identity, record.FilingType, record.FilingDate, record.CaseStatus,
		record.Plaintiff, defendants, record.ParcelNumber, record.CaseFilingID,
		record.County, record.PropertyAddress, record.SourceURL, record.NeedsReview,
	).Scan(&inserted)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PersistSummary{Skipped: 1}, nil
	}
	if err != nil {
		return domain.PersistSummary{}, fmt.Errorf("upsert case %s: %w", identity, err)
	}
	if inserted {
		return domain.PersistSummary{Inserted: 1}, nil
	}
	return domain.PersistSummary{Updated: 1}, nil
}

// FindByCaseID retrieves the stored row for a case id.
func (s *PostgresStore) FindByCaseID(ctx context.Context, caseID string) (*domain.CaseRecord, time.Time, error) {
	var (
		record     domain.CaseRecord
		filingDate *time.Time
		defendants []byte
		updatedAt  time.Time
	)
	err := s.db.QueryRow(ctx,
		`SELECT case_id, filing_type, filing_date, case_status, plaintiff, defendants,
		        parcel_number, case_filing_id, county, property_address, source_url,
		        needs_review, updated_at
		 FROM foreclosure_cases WHERE case_id = $1`,
		caseID,
	).Scan(&record.CaseID, &record.FilingType, &filingDate, &record.CaseStatus,
		&record.Plaintiff, &defendants, &record.ParcelNumber, &record.CaseFilingID,
		&record.County, &record.PropertyAddress, &record.SourceURL,
		&record.NeedsReview, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("find case %s: %w", caseID, err)
	}
	if filingDate != nil {
		record.FilingDate = filingDate.Format("01/02/2006")
	}
	if len(defendants) > 0 {
		if err := json.Unmarshal(defendants, &record.Defendants); err != nil {
			return nil, time.Time{}, fmt.Errorf("decode defendants for %s: %w", caseID, err)
		}
	}
	return &record, updatedAt, nil
}
