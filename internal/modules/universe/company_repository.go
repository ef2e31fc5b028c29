package universe

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kessanview/kessanview/internal/domain"
)

// companyColumns is the column list for the companies table.
// Order must match scanCompany.
const companyColumns = `code, name, sector_17_code, sector_17_name,
sector_33_code, sector_33_name, market_code, market_name`

// CompanyRepository persists the company master in universe.db.
// Implements domain.CompanyStore.
type CompanyRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewCompanyRepository creates a new company repository.
func NewCompanyRepository(db *sql.DB, log zerolog.Logger) *CompanyRepository {
	return &CompanyRepository{
		db:  db,
		log: log.With().Str("repo", "company").Logger(),
	}
}

// Upsert inserts or replaces a company record.
func (r *CompanyRepository) Upsert(company *domain.Company) error {
	if company == nil {
		return fmt.Errorf("nil company")
	}
	code := strings.TrimSpace(company.Code)
	if code == "" {
		return fmt.Errorf("code is required for company upsert")
	}

	query := `
		INSERT OR REPLACE INTO companies
		(code, name, sector_17_code, sector_17_name, sector_33_code, sector_33_name,
		 market_code, market_name, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query,
		code,
		company.Name,
		company.Sector17Code,
		company.Sector17Name,
		company.Sector33Code,
		company.Sector33Name,
		company.MarketCode,
		company.MarketName,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert company: %w", err)
	}
	return nil
}

// Get returns a company by code, or nil if unknown.
func (r *CompanyRepository) Get(code string) (*domain.Company, error) {
	query := "SELECT " + companyColumns + " FROM companies WHERE code = ?"

	rows, err := r.db.Query(query, strings.TrimSpace(code))
	if err != nil {
		return nil, fmt.Errorf("failed to query company: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}

	company, err := scanCompany(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan company: %w", err)
	}
	return company, nil
}

// GetAll returns the full company master ordered by code.
func (r *CompanyRepository) GetAll() ([]domain.Company, error) {
	query := "SELECT " + companyColumns + " FROM companies ORDER BY code ASC"

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query companies: %w", err)
	}
	defer rows.Close()

	var companies []domain.Company
	for rows.Next() {
		company, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		companies = append(companies, *company)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating companies: %w", err)
	}
	return companies, nil
}

// Count returns the number of companies in the master.
func (r *CompanyRepository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM companies").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count companies: %w", err)
	}
	return count, nil
}

func scanCompany(rows *sql.Rows) (*domain.Company, error) {
	var c domain.Company
	err := rows.Scan(
		&c.Code,
		&c.Name,
		&c.Sector17Code,
		&c.Sector17Name,
		&c.Sector33Code,
		&c.Sector33Name,
		&c.MarketCode,
		&c.MarketName,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
