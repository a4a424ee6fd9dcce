package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/ruet-connect/connect/services/connect/pkg/models"
)

// --- Credential operations (local auth backend) ---

const credentialColumns = `id, email, email_hash, email_verified, password_hash, created_at, last_login_at`

func scanCredential(row scanner) (*models.Credential, error) {
	c := &models.Credential{}
	var lastLogin sql.NullTime
	err := row.Scan(&c.ID, &c.Email, &c.EmailHash, &c.EmailVerified, &c.PasswordHash, &c.CreatedAt, &lastLogin)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		c.LastLoginAt = &t
	}
	return c, nil
}

// CreateCredential inserts a new principal.
func (db *DB) CreateCredential(ctx context.Context, c *models.Credential) error {
	const q = `INSERT INTO principals (id, email, email_hash, email_verified, password_hash, created_at)
	           VALUES (?, ?, ?, ?, ?, ?)`
	_, err := db.conn.ExecContext(ctx, q, c.ID, c.Email, c.EmailHash, c.EmailVerified, c.PasswordHash, c.CreatedAt)
	return err
}

// GetCredential looks up a principal by ID.
func (db *DB) GetCredential(ctx context.Context, id string) (*models.Credential, error) {
	q := `SELECT ` + credentialColumns + ` FROM principals WHERE id = ?`
	return scanCredential(db.conn.QueryRowContext(ctx, q, id))
}

// GetCredentialByEmail looks up a principal by exact email.
func (db *DB) GetCredentialByEmail(ctx context.Context, email string) (*models.Credential, error) {
	q := `SELECT ` + credentialColumns + ` FROM principals WHERE email = ?`
	return scanCredential(db.conn.QueryRowContext(ctx, q, email))
}

// GetCredentialByEmailHash looks up a principal by normalized email hash.
func (db *DB) GetCredentialByEmailHash(ctx context.Context, hash string) (*models.Credential, error) {
	q := `SELECT ` + credentialColumns + ` FROM principals WHERE email_hash = ?`
	return scanCredential(db.conn.QueryRowContext(ctx, q, hash))
}

// MarkEmailVerified flags a principal's email as verified.
func (db *DB) MarkEmailVerified(ctx context.Context, id string) error {
	_, err := db.conn.ExecContext(ctx, `UPDATE principals SET email_verified = 1 WHERE id = ?`, id)
	return err
}

// UpdatePasswordHash replaces a principal's password hash.
func (db *DB) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	_, err := db.conn.ExecContext(ctx, `UPDATE principals SET password_hash = ? WHERE id = ?`, hash, id)
	return err
}

// UpdateLastLogin sets the last_login_at timestamp.
func (db *DB) UpdateLastLogin(ctx context.Context, id string, t time.Time) error {
	_, err := db.conn.ExecContext(ctx, `UPDATE principals SET last_login_at = ? WHERE id = ?`, t, id)
	return err
}

// DeleteCredential removes a principal and its tokens.
func (db *DB) DeleteCredential(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM verification_tokens WHERE principal_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM principals WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// --- Verification token operations ---

// CreateVerificationToken inserts a new one-time token.
func (db *DB) CreateVerificationToken(ctx context.Context, t *models.VerificationToken) error {
	const q = `INSERT INTO verification_tokens (id, principal_id, purpose, expires_at, created_at)
	           VALUES (?, ?, ?, ?, ?)`
	_, err := db.conn.ExecContext(ctx, q, t.ID, t.PrincipalID, string(t.Purpose), t.ExpiresAt, t.CreatedAt)
	return err
}

// GetVerificationToken retrieves a token if it is unused, unexpired and of the given purpose.
func (db *DB) GetVerificationToken(ctx context.Context, id string, purpose models.TokenPurpose) (*models.VerificationToken, error) {
	const q = `SELECT id, principal_id, purpose, expires_at, created_at
	           FROM verification_tokens
	           WHERE id = ? AND purpose = ? AND used_at IS NULL AND expires_at > ?`
	t := &models.VerificationToken{}
	err := db.conn.QueryRowContext(ctx, q, id, string(purpose), time.Now()).
		Scan(&t.ID, &t.PrincipalID, &t.Purpose, &t.ExpiresAt, &t.CreatedAt)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ConsumeVerificationToken marks a token as used.
func (db *DB) ConsumeVerificationToken(ctx context.Context, id string) error {
	_, err := db.conn.ExecContext(ctx, `UPDATE verification_tokens SET used_at = ? WHERE id = ?`, time.Now(), id)
	return err
}

// PurgeVerificationTokens deletes one-time tokens that were redeemed or
// expired before now, returning how many rows went.
func (db *DB) PurgeVerificationTokens(ctx context.Context, now time.Time) (int, error) {
	const q = `DELETE FROM verification_tokens WHERE used_at IS NOT NULL OR expires_at <= ?`
	res, err := db.conn.ExecContext(ctx, q, now)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
