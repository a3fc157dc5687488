package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"intake_bot/internal/applicant"
)

// ApplicantStore хранит заявки в Postgres.
type ApplicantStore struct {
	db *sql.DB
}

// NewApplicantStore создает новый ApplicantStore.
func NewApplicantStore(db *sql.DB) *ApplicantStore {
	return &ApplicantStore{db: db}
}

func (s *ApplicantStore) Create(ctx context.Context, a applicant.Applicant) error {
	const query = `
		INSERT INTO applicants (telegram_id, name, age, city, username, phone, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`
	var usernameValue any = a.Username
	if a.Username == "" {
		usernameValue = nil
	}
	var phoneValue any = a.Phone
	if a.Phone == "" {
		phoneValue = nil
	}
	status := a.Status
	if status == "" {
		status = applicant.StatusNew
	}
	if _, err := s.db.ExecContext(ctx, query, a.TelegramID, a.Name, a.Age, a.City, usernameValue, phoneValue, string(status)); err != nil {
		if isUniqueViolation(err) {
			return applicant.ErrApplicantExists
		}
		return err
	}
	return nil
}

func (s *ApplicantStore) Get(ctx context.Context, telegramID int64) (applicant.Applicant, error) {
	const query = `
		SELECT telegram_id, name, age, city, username, phone, status, accepted_city, accepted_date, created_at
		FROM applicants
		WHERE telegram_id = $1
	`
	a, err := scanApplicant(s.db.QueryRowContext(ctx, query, telegramID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return applicant.Applicant{}, applicant.ErrApplicantNotFound
		}
		return applicant.Applicant{}, err
	}
	return a, nil
}

func (s *ApplicantStore) Exists(ctx context.Context, telegramID int64) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM applicants WHERE telegram_id = $1)`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, telegramID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *ApplicantStore) List(ctx context.Context, status applicant.Status) ([]applicant.Applicant, error) {
	query := `
		SELECT telegram_id, name, age, city, username, phone, status, accepted_city, accepted_date, created_at
		FROM applicants
		ORDER BY created_at DESC
	`
	args := []any{}
	if status != "" {
		query = `
			SELECT telegram_id, name, age, city, username, phone, status, accepted_city, accepted_date, created_at
			FROM applicants
			WHERE status = $1
			ORDER BY created_at DESC
		`
		args = append(args, string(status))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var applicants []applicant.Applicant
	for rows.Next() {
		a, err := scanApplicant(rows)
		if err != nil {
			return nil, err
		}
		applicants = append(applicants, a)
	}
	return applicants, rows.Err()
}

func (s *ApplicantStore) UpdateStatus(ctx context.Context, telegramID int64, status applicant.Status) error {
	const query = `UPDATE applicants SET status = $2 WHERE telegram_id = $1`
	result, err := s.db.ExecContext(ctx, query, telegramID, string(status))
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (s *ApplicantStore) MarkInProgressIfNew(ctx context.Context, telegramID int64) error {
	const query = `UPDATE applicants SET status = $2 WHERE telegram_id = $1 AND status = $3`
	_, err := s.db.ExecContext(ctx, query, telegramID, string(applicant.StatusInProgress), string(applicant.StatusNew))
	return err
}

func (s *ApplicantStore) Accept(ctx context.Context, telegramID int64, city string, date time.Time) error {
	const query = `
		UPDATE applicants
		SET status = $2, accepted_city = $3, accepted_date = $4
		WHERE telegram_id = $1
	`
	result, err := s.db.ExecContext(ctx, query, telegramID, string(applicant.StatusAccepted), city, date)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (s *ApplicantStore) Delete(ctx context.Context, telegramID int64) error {
	const query = `DELETE FROM applicants WHERE telegram_id = $1`
	result, err := s.db.ExecContext(ctx, query, telegramID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplicant(row rowScanner) (applicant.Applicant, error) {
	var a applicant.Applicant
	var username, phone, acceptedCity sql.NullString
	var acceptedDate sql.NullTime
	var status string
	if err := row.Scan(&a.TelegramID, &a.Name, &a.Age, &a.City, &username, &phone, &status, &acceptedCity, &acceptedDate, &a.CreatedAt); err != nil {
		return applicant.Applicant{}, err
	}
	a.Status = applicant.Status(status)
	if username.Valid {
		a.Username = username.String
	}
	if phone.Valid {
		a.Phone = phone.String
	}
	if acceptedCity.Valid {
		a.AcceptedCity = acceptedCity.String
	}
	if acceptedDate.Valid {
		date := acceptedDate.Time
		a.AcceptedDate = &date
	}
	return a, nil
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return applicant.ErrApplicantNotFound
	}
	return nil
}

// isUniqueViolation распознает нарушение уникальности от обоих
// драйверов: pgx (основной) и lib/pq.
func isUniqueViolation(err error) bool {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code == "23505"
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
