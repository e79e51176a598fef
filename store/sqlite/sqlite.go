/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements engine.Store and cache.Writer using SQLite. This is the
  engine's own snapshot store - accounts, estimates, and snoozes are
  materialized here by upstream import, and the engine writes segments,
  duplicate groups, and cache snapshots back. The same patterns apply to
  PostgreSQL with minor dialect changes.

KEY TABLES:
  accounts:          Customer records with last-computed segment
  estimates:         Immutable sales estimates (written by import only)
  snoozes:           At-risk suppressions
  duplicate_groups:  Data-quality findings (detected/resolved lifecycle)
  cache_snapshots:   TTL'd engine output with monotonic versions

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of SQLite's WAL mode:
  multiple readers don't block, single writer at a time.

USAGE:
  store, err := sqlite.New("./data/crm.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - engine/refresh.go: consumes engine.Store
  - cache/snapshot.go: the Writer contract
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/revenue-engine/cache"
	"github.com/warp/revenue-engine/crm"
	"github.com/warp/revenue-engine/risk"
)

// Store implements engine.Store and cache.Writer using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		archived INTEGER NOT NULL DEFAULT 0,
		annual_revenue TEXT,
		revenue_segment TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS estimates (
		id TEXT PRIMARY KEY,
		number TEXT NOT NULL DEFAULT '',
		account_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		estimate_type TEXT NOT NULL DEFAULT '',
		total_price TEXT,
		total_price_with_tax TEXT,
		estimate_date TEXT,
		contract_start TEXT,
		contract_end TEXT,
		division TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		exclude_stats INTEGER NOT NULL DEFAULT 0,
		archived INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_estimates_account
		ON estimates(account_id);
	-- At-risk scan hot path: won estimates with a contract end date
	CREATE INDEX IF NOT EXISTS idx_estimates_contract_end
		ON estimates(contract_end) WHERE contract_end IS NOT NULL;

	CREATE TABLE IF NOT EXISTS snoozes (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		expires_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snoozes_account
		ON snoozes(account_id);

	CREATE TABLE IF NOT EXISTS duplicate_groups (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		account_name TEXT NOT NULL DEFAULT '',
		division TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		estimate_ids TEXT NOT NULL,
		estimate_numbers TEXT NOT NULL,
		contract_ends TEXT NOT NULL,
		fingerprint TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		detected_at TEXT NOT NULL,
		resolved_at TEXT
	);

	CREATE TABLE IF NOT EXISTS cache_snapshots (
		cache_key TEXT PRIMARY KEY,
		cache_data TEXT NOT NULL,
		version INTEGER NOT NULL,
		written_at TEXT NOT NULL,
		expires_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ACCOUNTS
// =============================================================================

// SaveAccount inserts or replaces an account record.
func (s *Store) SaveAccount(ctx context.Context, a crm.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO accounts (id, name, archived, annual_revenue, revenue_segment)
		VALUES (?, ?, ?, ?, ?)`,
		string(a.ID), a.Name, boolToInt(a.Archived), decimalToNull(a.AnnualRevenue), string(a.RevenueSegment))
	return err
}

// GetAccount returns one account by ID.
func (s *Store) GetAccount(ctx context.Context, id crm.AccountID) (*crm.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, archived, annual_revenue, revenue_segment
		FROM accounts WHERE id = ?`, string(id))
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, crm.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListAccounts returns all accounts ordered by ID.
func (s *Store) ListAccounts(ctx context.Context) ([]crm.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, archived, annual_revenue, revenue_segment
		FROM accounts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []crm.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// UpdateAccountSegment persists a newly computed tier.
func (s *Store) UpdateAccountSegment(ctx context.Context, id crm.AccountID, segment crm.Segment) error {
	if !segment.Valid() {
		return fmt.Errorf("%w: %q", crm.ErrInvalidSegment, segment)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET revenue_segment = ? WHERE id = ?`,
		string(segment), string(id))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return crm.ErrAccountNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*crm.Account, error) {
	var (
		a             crm.Account
		id, segment   string
		archived      int
		annualRevenue sql.NullString
	)
	if err := row.Scan(&id, &a.Name, &archived, &annualRevenue, &segment); err != nil {
		return nil, err
	}
	a.ID = crm.AccountID(id)
	a.Archived = archived != 0
	a.RevenueSegment = crm.Segment(segment)
	if annualRevenue.Valid {
		d, err := decimal.NewFromString(annualRevenue.String)
		if err != nil {
			return nil, fmt.Errorf("bad annual_revenue for account %s: %w", id, err)
		}
		a.AnnualRevenue = &d
	}
	return &a, nil
}

// =============================================================================
// ESTIMATES
// =============================================================================

// SaveEstimate inserts or replaces an estimate record. Only upstream import
// calls this; the engine treats estimates as immutable inputs.
func (s *Store) SaveEstimate(ctx context.Context, e crm.Estimate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO estimates (
			id, number, account_id, status, estimate_type,
			total_price, total_price_with_tax,
			estimate_date, contract_start, contract_end,
			division, address, exclude_stats, archived
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.ID), e.Number, string(e.AccountID), e.Status, e.EstimateType,
		decimalToNull(e.TotalPrice), decimalToNull(e.TotalPriceWithTax),
		dateToNull(e.EstimateDate), dateToNull(e.ContractStart), dateToNull(e.ContractEnd),
		e.Division, e.Address, boolToInt(e.ExcludeStats), boolToInt(e.Archived))
	return err
}

// ListEstimates returns all estimates ordered by ID.
func (s *Store) ListEstimates(ctx context.Context) ([]crm.Estimate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, number, account_id, status, estimate_type,
		       total_price, total_price_with_tax,
		       estimate_date, contract_start, contract_end,
		       division, address, exclude_stats, archived
		FROM estimates ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var estimates []crm.Estimate
	for rows.Next() {
		var (
			e                      crm.Estimate
			id, accountID          string
			price, priceWithTax    sql.NullString
			estDate, cStart, cEnd  sql.NullString
			excludeStats, archived int
		)
		if err := rows.Scan(&id, &e.Number, &accountID, &e.Status, &e.EstimateType,
			&price, &priceWithTax, &estDate, &cStart, &cEnd,
			&e.Division, &e.Address, &excludeStats, &archived); err != nil {
			return nil, err
		}
		e.ID = crm.EstimateID(id)
		e.AccountID = crm.AccountID(accountID)
		e.ExcludeStats = excludeStats != 0
		e.Archived = archived != 0
		var err error
		if e.TotalPrice, err = nullToDecimal(price); err != nil {
			return nil, fmt.Errorf("bad total_price for estimate %s: %w", id, err)
		}
		if e.TotalPriceWithTax, err = nullToDecimal(priceWithTax); err != nil {
			return nil, fmt.Errorf("bad total_price_with_tax for estimate %s: %w", id, err)
		}
		// Dates that fail to parse degrade to nil; the attribution fallback
		// chain handles missing dates, so one bad row can't poison a refresh.
		e.EstimateDate = nullToDate(estDate)
		e.ContractStart = nullToDate(cStart)
		e.ContractEnd = nullToDate(cEnd)
		estimates = append(estimates, e)
	}
	return estimates, rows.Err()
}

// =============================================================================
// SNOOZES
// =============================================================================

// SaveSnooze inserts or replaces a snooze.
func (s *Store) SaveSnooze(ctx context.Context, snooze crm.Snooze) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO snoozes (id, account_id, expires_at)
		VALUES (?, ?, ?)`,
		string(snooze.ID), string(snooze.AccountID), snooze.ExpiresAt.UTC().Format(time.RFC3339))
	return err
}

// ListSnoozes returns all snoozes, expired ones included; callers filter
// via Snooze.Active.
func (s *Store) ListSnoozes(ctx context.Context) ([]crm.Snooze, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_id, expires_at FROM snoozes ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snoozes []crm.Snooze
	for rows.Next() {
		var id, accountID, expiresAt string
		if err := rows.Scan(&id, &accountID, &expiresAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, expiresAt)
		if err != nil {
			return nil, fmt.Errorf("bad expires_at for snooze %s: %w", id, err)
		}
		snoozes = append(snoozes, crm.Snooze{
			ID:        crm.SnoozeID(id),
			AccountID: crm.AccountID(accountID),
			ExpiresAt: t,
		})
	}
	return snoozes, rows.Err()
}

// DeleteSnooze removes a snooze.
func (s *Store) DeleteSnooze(ctx context.Context, id crm.SnoozeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM snoozes WHERE id = ?`, string(id))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return crm.ErrSnoozeNotFound
	}
	return nil
}

// =============================================================================
// DUPLICATE GROUPS
// =============================================================================

// SaveDuplicateGroups inserts new groups atomically. Groups whose
// fingerprint already exists are left untouched (the engine filters these
// out, but the UNIQUE constraint backs it up).
func (s *Store) SaveDuplicateGroups(ctx context.Context, groups []risk.DuplicateGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, g := range groups {
		ids, _ := json.Marshal(g.EstimateIDs)
		numbers, _ := json.Marshal(g.EstimateNumbers)
		ends, _ := json.Marshal(g.ContractEnds)

		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO duplicate_groups (
				id, account_id, account_name, division, address,
				estimate_ids, estimate_numbers, contract_ends,
				fingerprint, status, detected_at, resolved_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			g.ID, string(g.AccountID), g.AccountName, g.Division, g.Address,
			string(ids), string(numbers), string(ends),
			g.Fingerprint, string(g.Status), g.DetectedAt.UTC().Format(time.RFC3339),
			timeToNull(g.ResolvedAt))
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListDuplicateGroups returns all groups, newest detection first.
func (s *Store) ListDuplicateGroups(ctx context.Context) ([]risk.DuplicateGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, account_name, division, address,
		       estimate_ids, estimate_numbers, contract_ends,
		       fingerprint, status, detected_at, resolved_at
		FROM duplicate_groups ORDER BY detected_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []risk.DuplicateGroup
	for rows.Next() {
		g, err := scanDuplicateGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, *g)
	}
	return groups, rows.Err()
}

// ResolveDuplicateGroup marks a group resolved. Resolving an already
// resolved group keeps the original resolution time.
func (s *Store) ResolveDuplicateGroup(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE duplicate_groups
		SET status = ?, resolved_at = COALESCE(resolved_at, ?)
		WHERE id = ?`,
		string(risk.GroupResolved), at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return crm.ErrGroupNotFound
	}
	return nil
}

// ExistingFingerprints returns the fingerprint set of all groups on file.
func (s *Store) ExistingFingerprints(ctx context.Context) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT fingerprint FROM duplicate_groups`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fingerprints := make(map[string]bool)
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, err
		}
		fingerprints[fp] = true
	}
	return fingerprints, rows.Err()
}

func scanDuplicateGroup(row rowScanner) (*risk.DuplicateGroup, error) {
	var (
		g                  risk.DuplicateGroup
		accountID          string
		ids, numbers, ends string
		status, detectedAt string
		resolvedAt         sql.NullString
	)
	if err := row.Scan(&g.ID, &accountID, &g.AccountName, &g.Division, &g.Address,
		&ids, &numbers, &ends, &g.Fingerprint, &status, &detectedAt, &resolvedAt); err != nil {
		return nil, err
	}
	g.AccountID = crm.AccountID(accountID)
	g.Status = risk.GroupStatus(status)
	if err := json.Unmarshal([]byte(ids), &g.EstimateIDs); err != nil {
		return nil, fmt.Errorf("bad estimate_ids for group %s: %w", g.ID, err)
	}
	if err := json.Unmarshal([]byte(numbers), &g.EstimateNumbers); err != nil {
		return nil, fmt.Errorf("bad estimate_numbers for group %s: %w", g.ID, err)
	}
	if err := json.Unmarshal([]byte(ends), &g.ContractEnds); err != nil {
		return nil, fmt.Errorf("bad contract_ends for group %s: %w", g.ID, err)
	}
	t, err := time.Parse(time.RFC3339, detectedAt)
	if err != nil {
		return nil, fmt.Errorf("bad detected_at for group %s: %w", g.ID, err)
	}
	g.DetectedAt = t
	if resolvedAt.Valid {
		rt, err := time.Parse(time.RFC3339, resolvedAt.String)
		if err != nil {
			return nil, fmt.Errorf("bad resolved_at for group %s: %w", g.ID, err)
		}
		g.ResolvedAt = &rt
	}
	return &g, nil
}

// =============================================================================
// CACHE SNAPSHOTS - cache.Writer implementation
// =============================================================================

// Write stores a snapshot unless a newer version already exists.
func (s *Store) Write(ctx context.Context, snapshot cache.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var existing int64
	err = tx.QueryRowContext(ctx,
		`SELECT version FROM cache_snapshots WHERE cache_key = ?`, snapshot.Key).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// First write for this key.
	case err != nil:
		return err
	case snapshot.Version <= existing:
		return cache.ErrStaleSnapshot
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO cache_snapshots (cache_key, cache_data, version, written_at, expires_at)
		VALUES (?, ?, ?, ?, ?)`,
		snapshot.Key, string(snapshot.Data), snapshot.Version,
		snapshot.WrittenAt.UTC().Format(time.RFC3339Nano),
		snapshot.ExpiresAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Read returns the stored snapshot for a key, flagging expiry.
func (s *Store) Read(ctx context.Context, key string) (*cache.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		snapshot             cache.Snapshot
		data                 string
		writtenAt, expiresAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT cache_key, cache_data, version, written_at, expires_at
		FROM cache_snapshots WHERE cache_key = ?`, key).
		Scan(&snapshot.Key, &data, &snapshot.Version, &writtenAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cache.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}

	snapshot.Data = json.RawMessage(data)
	if snapshot.WrittenAt, err = time.Parse(time.RFC3339Nano, writtenAt); err != nil {
		return nil, fmt.Errorf("bad written_at for snapshot %s: %w", key, err)
	}
	if snapshot.ExpiresAt, err = time.Parse(time.RFC3339Nano, expiresAt); err != nil {
		return nil, fmt.Errorf("bad expires_at for snapshot %s: %w", key, err)
	}

	if snapshot.Expired(time.Now()) {
		return &snapshot, cache.ErrSnapshotExpired
	}
	return &snapshot, nil
}

// =============================================================================
// COLUMN HELPERS
// =============================================================================

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func decimalToNull(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullToDecimal(ns sql.NullString) (*decimal.Decimal, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func dateToNull(d *crm.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullToDate(ns sql.NullString) *crm.Date {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	d, err := crm.ParseDate(ns.String)
	if err != nil {
		return nil
	}
	return &d
}

func timeToNull(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
