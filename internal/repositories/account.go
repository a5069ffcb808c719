package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/postx/internal/models"
	"github.com/desertthunder/postx/internal/shared"
)

const accountColumns = `
	id, sequence, user_id, platform_type, platform_account_id, account_name,
	access_token, refresh_token, token_expiry, scope, metadata, created_at, updated_at
`

// AccountRepository implements models.Repository[*models.Account] and the token store operations.
type AccountRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewAccountRepository creates a new AccountRepository with the given database connection
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db, now: time.Now}
}

// UpsertFields are the values written when an OAuth callback succeeds.
//
// AccountName and Profile are only written when set, so a reconnect keeps the enriched profile.
type UpsertFields struct {
	models.TokenFields
	AccountName string
	Profile     models.Profile
}

// Create inserts a new account with a generated ID and sequence
func (r *AccountRepository) Create(account *models.Account) error {
	if account.ID == "" {
		account.SetID(shared.GenerateID())
	}

	if err := account.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := r.insert(tx, account); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *AccountRepository) insert(tx *sql.Tx, account *models.Account) error {
	sequence, err := nextSequence(tx, "accounts")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	metadata, err := models.MarshalProfile(account.Profile)
	if err != nil {
		return err
	}

	now := r.now().UTC()
	account.Sequence = sequence
	account.CreatedAt = now
	account.UpdatedAt = now

	_, err = tx.Exec(`
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		sequence,
		account.UserID,
		string(account.Platform),
		account.PlatformAccountID,
		account.AccountName,
		account.AccessToken,
		nullable(account.RefreshToken),
		nullTime(account.TokenExpiry),
		account.Scope,
		nullBytes(metadata),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

// Get retrieves an account by ID.
//
// A missing row is reported as [shared.ErrAccountNotFound].
func (r *AccountRepository) Get(id string) (*models.Account, error) {
	row := r.db.QueryRow(`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrAccountNotFound, id)
	}
	return account, err
}

// FindByPlatformAccount looks up the account for a provider identity.
func (r *AccountRepository) FindByPlatformAccount(platform models.PlatformType, platformAccountID string) (*models.Account, error) {
	row := r.db.QueryRow(
		`SELECT `+accountColumns+` FROM accounts WHERE platform_type = ? AND platform_account_id = ?`,
		string(platform), platformAccountID,
	)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", shared.ErrAccountNotFound, platform, platformAccountID)
	}
	return account, err
}

// Upsert creates the account for (platform, platformAccountID) or updates its tokens in place,
// re-associating it with fields.UserID. The boolean result reports whether a new row was created.
func (r *AccountRepository) Upsert(platform models.PlatformType, platformAccountID string, fields UpsertFields) (*models.Account, bool, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRow(
		`SELECT id FROM accounts WHERE platform_type = ? AND platform_account_id = ?`,
		string(platform), platformAccountID,
	).Scan(&id)

	created := false
	switch {
	case errors.Is(err, sql.ErrNoRows):
		account := &models.Account{
			ID:                shared.GenerateID(),
			UserID:            fields.UserID,
			Platform:          platform,
			PlatformAccountID: platformAccountID,
			AccountName:       fields.AccountName,
			AccessToken:       fields.AccessToken,
			RefreshToken:      fields.RefreshToken,
			TokenExpiry:       fields.TokenExpiry,
			Scope:             fields.Scope,
			Profile:           fields.Profile,
		}
		if account.AccountName == "" {
			account.AccountName = platform.DefaultAccountName()
		}
		if err := account.Validate(); err != nil {
			return nil, false, fmt.Errorf("validation failed: %w", err)
		}
		if err := r.insert(tx, account); err != nil {
			return nil, false, err
		}
		id = account.ID
		created = true
	case err != nil:
		return nil, false, fmt.Errorf("failed to look up account: %w", err)
	default:
		if fields.AccessToken == "" {
			return nil, false, fmt.Errorf("validation failed: access token is required")
		}
		if err := r.updateOnReconnect(tx, id, fields); err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit upsert: %w", err)
	}

	account, err := r.Get(id)
	if err != nil {
		return nil, false, err
	}
	return account, created, nil
}

func (r *AccountRepository) updateOnReconnect(tx *sql.Tx, id string, fields UpsertFields) error {
	metadata, err := models.MarshalProfile(fields.Profile)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		UPDATE accounts
		SET user_id = ?, access_token = ?,
			refresh_token = COALESCE(?, refresh_token),
			token_expiry = ?, scope = ?,
			account_name = COALESCE(?, account_name),
			metadata = COALESCE(?, metadata),
			updated_at = ?
		WHERE id = ?`,
		fields.UserID,
		fields.AccessToken,
		nullable(fields.RefreshToken),
		nullTime(fields.TokenExpiry),
		fields.Scope,
		nullable(fields.AccountName),
		nullBytes(metadata),
		r.now().UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return nil
}

// Update modifies an existing account in the database
func (r *AccountRepository) Update(account *models.Account) error {
	if err := account.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	metadata, err := models.MarshalProfile(account.Profile)
	if err != nil {
		return err
	}

	now := r.now().UTC()
	result, err := r.db.Exec(`
		UPDATE accounts
		SET user_id = ?, account_name = ?, access_token = ?, refresh_token = ?,
			token_expiry = ?, scope = ?, metadata = ?, updated_at = ?
		WHERE id = ?`,
		account.UserID,
		account.AccountName,
		account.AccessToken,
		nullable(account.RefreshToken),
		nullTime(account.TokenExpiry),
		account.Scope,
		nullBytes(metadata),
		now,
		account.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}

	if err := expectRow(result, shared.ErrAccountNotFound, account.ID); err != nil {
		return err
	}
	account.UpdatedAt = now
	return nil
}

// UpdateTokens persists refreshed credentials. An empty refresh token keeps the stored one.
func (r *AccountRepository) UpdateTokens(id, accessToken, refreshToken string, expiry time.Time) error {
	result, err := r.db.Exec(`
		UPDATE accounts
		SET access_token = ?, refresh_token = COALESCE(?, refresh_token), token_expiry = ?, updated_at = ?
		WHERE id = ?`,
		accessToken, nullable(refreshToken), nullTime(expiry), r.now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update tokens: %w", err)
	}
	return expectRow(result, shared.ErrAccountNotFound, id)
}

// UpdateProfile stores an enriched profile and display name.
func (r *AccountRepository) UpdateProfile(id, accountName string, profile models.Profile) error {
	metadata, err := models.MarshalProfile(profile)
	if err != nil {
		return err
	}

	result, err := r.db.Exec(
		`UPDATE accounts SET account_name = ?, metadata = ?, updated_at = ? WHERE id = ?`,
		accountName, nullBytes(metadata), r.now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return expectRow(result, shared.ErrAccountNotFound, id)
}

// Delete removes an account along with its posts and pending scheduler jobs.
func (r *AccountRepository) Delete(id string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM scheduler_jobs WHERE account_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete scheduler jobs: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM posts WHERE account_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete posts: %w", err)
	}

	result, err := tx.Exec(`DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	if err := expectRow(result, shared.ErrAccountNotFound, id); err != nil {
		return err
	}
	return tx.Commit()
}

// List retrieves accounts filtered by "user_id" and "platform_type" criteria.
func (r *AccountRepository) List(criteria map[string]any) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE 1 = 1`
	args := []any{}

	if userID, ok := criteria["user_id"].(string); ok && userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}

	switch platform := criteria["platform_type"].(type) {
	case models.PlatformType:
		query += " AND platform_type = ?"
		args = append(args, string(platform))
	case string:
		if platform != "" {
			query += " AND platform_type = ?"
			args = append(args, platform)
		}
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return accounts, nil
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		a            models.Account
		platform     string
		refreshToken sql.NullString
		tokenExpiry  sql.NullTime
		metadata     []byte
	)

	err := row.Scan(
		&a.ID, &a.Sequence, &a.UserID, &platform, &a.PlatformAccountID, &a.AccountName,
		&a.AccessToken, &refreshToken, &tokenExpiry, &a.Scope, &metadata, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}

	a.Platform = models.PlatformType(platform)
	a.RefreshToken = refreshToken.String
	if tokenExpiry.Valid {
		a.TokenExpiry = tokenExpiry.Time
	}

	if a.Profile, err = models.UnmarshalProfile(metadata); err != nil {
		return nil, err
	}
	return &a, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// expectRow returns notFound wrapped with id when result affected no rows.
func expectRow(result sql.Result, notFound error, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", notFound, id)
	}
	return nil
}
