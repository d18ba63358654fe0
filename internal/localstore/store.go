// Package localstore persists imported medicine records in SQLite and serves
// the offline side of every search.
package localstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"medbrand/searchservice/internal/domain"
	"medbrand/searchservice/internal/metrics"
)

const (
	insertBatchSize = 50
	// insertBatchPause keeps bulk imports from starving concurrent reads.
	insertBatchPause = 10 * time.Millisecond
	maxSearchResults = 200
	topIngredients   = 10
)

// Store is the SQLite-backed medicine store. All methods are safe for
// concurrent use; database/sql serializes access to the single connection
// pool and the schema is created once in Open.
type Store struct {
	db *sql.DB
}

// Open opens or creates the store at path and ensures the schema exists.
// Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if strings.Contains(path, ":memory:") {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS medicines (
			id TEXT PRIMARY KEY,
			brand_name TEXT NOT NULL,
			active_ingredient TEXT NOT NULL,
			country TEXT NOT NULL,
			manufacturer TEXT,
			dosage_form TEXT,
			strength TEXT,
			source TEXT NOT NULL,
			imported_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_medicines_brand_name ON medicines(brand_name)`,
		`CREATE INDEX IF NOT EXISTS idx_medicines_active_ingredient ON medicines(active_ingredient)`,
		`CREATE INDEX IF NOT EXISTS idx_medicines_country ON medicines(country)`,
		`CREATE INDEX IF NOT EXISTS idx_medicines_manufacturer ON medicines(manufacturer)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// BulkInsert upserts records in batches, pausing between batches. A record
// without a brand name counts as failed; everything else is inserted or
// replaced by ID.
func (s *Store) BulkInsert(ctx context.Context, records []domain.Medicine) (domain.ImportReport, error) {
	report := domain.ImportReport{}
	importedAt := time.Now().UTC().Format(time.RFC3339)

	for start := 0; start < len(records); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(records) {
			end = len(records)
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return report, fmt.Errorf("begin batch: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO medicines
			(id, brand_name, active_ingredient, country, manufacturer, dosage_form, strength, source, imported_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			tx.Rollback()
			return report, fmt.Errorf("prepare insert: %w", err)
		}

		for _, record := range records[start:end] {
			brand := strings.TrimSpace(record.BrandName)
			ingredient := strings.TrimSpace(record.ActiveIngredient)
			if brand == "" || ingredient == "" {
				report.Failed++
				continue
			}
			id := strings.TrimSpace(record.ID)
			if id == "" {
				id = "local-" + strings.ToLower(strings.Join(strings.Fields(brand), "-")) + "-" + strings.ToLower(strings.TrimSpace(record.Country))
			}
			source := string(record.Source)
			if source == "" {
				source = string(domain.SourceAI)
			}
			country := strings.TrimSpace(record.Country)
			if country == "" {
				country = domain.CountryGlobal
			}
			if _, err := stmt.ExecContext(ctx, id, brand,
				ingredient, country,
				strings.TrimSpace(record.Manufacturer), strings.TrimSpace(record.DosageForm),
				strings.TrimSpace(record.Strength), source, importedAt); err != nil {
				report.Failed++
				continue
			}
			report.Inserted++
		}
		stmt.Close()
		if err := tx.Commit(); err != nil {
			return report, fmt.Errorf("commit batch: %w", err)
		}

		if end < len(records) {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(insertBatchPause):
			}
		}
	}

	metrics.LocalStoreImportsTotal.WithLabelValues("inserted").Add(float64(report.Inserted))
	metrics.LocalStoreImportsTotal.WithLabelValues("failed").Add(float64(report.Failed))
	if total, err := s.Count(ctx); err == nil {
		metrics.LocalStoreRecords.Set(float64(total))
	}
	return report, nil
}

// SearchLocal scans the store and returns records matching the term by brand
// name, ingredient or manufacturer, including close fuzzy brand matches,
// ordered by match quality. Results are capped.
func (s *Store) SearchLocal(ctx context.Context, term, country string) ([]domain.Medicine, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, brand_name, active_ingredient, country,
		manufacturer, dosage_form, strength, source FROM medicines`)
	if err != nil {
		return nil, fmt.Errorf("query medicines: %w", err)
	}
	defer rows.Close()

	needle := strings.ToLower(strings.TrimSpace(term))
	countryFilter := strings.ToLower(strings.TrimSpace(country))
	if countryFilter == domain.CountryAll {
		countryFilter = ""
	}

	type scored struct {
		record domain.Medicine
		rank   int
	}
	var matches []scored
	for rows.Next() {
		var record domain.Medicine
		var source string
		if err := rows.Scan(&record.ID, &record.BrandName, &record.ActiveIngredient,
			&record.Country, &record.Manufacturer, &record.DosageForm,
			&record.Strength, &source); err != nil {
			return nil, fmt.Errorf("scan medicine: %w", err)
		}
		record.Source = domain.SourceKind(source)

		if countryFilter != "" {
			recordCountry := strings.ToLower(record.Country)
			if !strings.Contains(recordCountry, countryFilter) && record.Country != domain.CountryGlobal {
				continue
			}
		}

		rank, ok := matchRank(record, needle)
		if !ok {
			continue
		}
		matches = append(matches, scored{record: record, rank: rank})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate medicines: %w", err)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].rank != matches[j].rank {
			return matches[i].rank < matches[j].rank
		}
		return strings.ToLower(matches[i].record.BrandName) < strings.ToLower(matches[j].record.BrandName)
	})

	if len(matches) > maxSearchResults {
		matches = matches[:maxSearchResults]
	}
	results := make([]domain.Medicine, len(matches))
	for i, match := range matches {
		results[i] = match.record
	}
	return results, nil
}

// matchRank scores how a record matches the term. Lower ranks order first:
// exact brand, exact ingredient, brand prefix, ingredient prefix, brand
// substring, ingredient substring, manufacturer substring, fuzzy brand.
func matchRank(record domain.Medicine, needle string) (int, bool) {
	if needle == "" {
		return 0, false
	}
	brand := strings.ToLower(strings.TrimSpace(record.BrandName))
	ingredient := strings.ToLower(strings.TrimSpace(record.ActiveIngredient))
	manufacturer := strings.ToLower(strings.TrimSpace(record.Manufacturer))

	switch {
	case brand == needle:
		return 0, true
	case ingredient == needle:
		return 1, true
	case strings.HasPrefix(brand, needle):
		return 2, true
	case strings.HasPrefix(ingredient, needle):
		return 3, true
	case strings.Contains(brand, needle):
		return 4, true
	case strings.Contains(ingredient, needle):
		return 5, true
	case manufacturer != "" && strings.Contains(manufacturer, needle):
		return 6, true
	case fuzzyMatch(brand, needle) || fuzzyMatch(ingredient, needle):
		return 7, true
	default:
		return 0, false
	}
}

// fuzzyMatch tolerates typos up to 30% of the longer string's length.
func fuzzyMatch(value, needle string) bool {
	if value == "" || needle == "" {
		return false
	}
	longer := len(value)
	if len(needle) > longer {
		longer = len(needle)
	}
	budget := longer * 3 / 10
	if budget == 0 {
		return value == needle
	}
	return levenshtein(value, needle) <= budget
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM medicines`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count medicines: %w", err)
	}
	return total, nil
}

// Statistics summarizes the store: total records, distinct countries and
// sources, and the most frequent active ingredients.
func (s *Store) Statistics(ctx context.Context) (domain.StoreStatistics, error) {
	stats := domain.StoreStatistics{}

	total, err := s.Count(ctx)
	if err != nil {
		return stats, err
	}
	stats.Total = total

	countries, err := s.distinctValues(ctx, "country")
	if err != nil {
		return stats, err
	}
	stats.Countries = countries

	sources, err := s.distinctValues(ctx, "source")
	if err != nil {
		return stats, err
	}
	stats.Sources = sources

	rows, err := s.db.QueryContext(ctx, `SELECT active_ingredient, COUNT(*) AS n FROM medicines
		WHERE active_ingredient != '' GROUP BY active_ingredient ORDER BY n DESC, active_ingredient ASC LIMIT ?`, topIngredients)
	if err != nil {
		return stats, fmt.Errorf("query top ingredients: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var entry domain.IngredientCount
		if err := rows.Scan(&entry.ActiveIngredient, &entry.Count); err != nil {
			return stats, fmt.Errorf("scan ingredient count: %w", err)
		}
		stats.TopIngredients = append(stats.TopIngredients, entry)
	}
	return stats, rows.Err()
}

func (s *Store) distinctValues(ctx context.Context, column string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT DISTINCT %s FROM medicines WHERE %s != '' ORDER BY %s ASC`, column, column, column))
	if err != nil {
		return nil, fmt.Errorf("query distinct %s: %w", column, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("scan %s: %w", column, err)
		}
		values = append(values, value)
	}
	return values, rows.Err()
}

// Clear removes every record.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM medicines`); err != nil {
		return fmt.Errorf("clear medicines: %w", err)
	}
	metrics.LocalStoreRecords.Set(0)
	return nil
}
