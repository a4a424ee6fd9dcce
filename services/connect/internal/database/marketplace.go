package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ruet-connect/connect/services/connect/internal/store"
	"github.com/ruet-connect/connect/services/connect/pkg/models"
)

// --- Profile operations ---

const profileColumns = `id, short_id, display_name, email, contact_number, role`

func scanProfile(row scanner) (*models.UserProfile, error) {
	p := &models.UserProfile{}
	err := row.Scan(&p.ID, &p.ShortID, &p.DisplayName, &p.Email, &p.ContactNumber, &p.Role)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetProfile returns a profile by principal id.
func (db *DB) GetProfile(ctx context.Context, id string) (*models.UserProfile, error) {
	q := `SELECT ` + profileColumns + ` FROM profiles WHERE id = ?`
	return scanProfile(db.conn.QueryRowContext(ctx, q, id))
}

// PutProfile inserts or replaces a profile. IsAdmin is not stored.
func (db *DB) PutProfile(ctx context.Context, p *models.UserProfile) error {
	const q = `INSERT INTO profiles (id, short_id, display_name, email, contact_number, role)
	           VALUES (?, ?, ?, ?, ?, ?)
	           ON CONFLICT(id) DO UPDATE SET
	               short_id = excluded.short_id,
	               display_name = excluded.display_name,
	               email = excluded.email,
	               contact_number = excluded.contact_number,
	               role = excluded.role`
	_, err := db.conn.ExecContext(ctx, q, p.ID, p.ShortID, p.DisplayName, p.Email, p.ContactNumber, string(p.Role))
	return err
}

// CreateProfile inserts p unless a profile with the same id exists.
func (db *DB) CreateProfile(ctx context.Context, p *models.UserProfile) (bool, error) {
	const q = `INSERT INTO profiles (id, short_id, display_name, email, contact_number, role)
	           VALUES (?, ?, ?, ?, ?, ?)
	           ON CONFLICT(id) DO NOTHING`
	res, err := db.conn.ExecContext(ctx, q, p.ID, p.ShortID, p.DisplayName, p.Email, p.ContactNumber, string(p.Role))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// DeleteProfile removes a profile. Deleting a missing profile is not an error.
func (db *DB) DeleteProfile(ctx context.Context, id string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM profiles WHERE id = ?`, id)
	return err
}

// ListProfiles returns every profile in insertion order.
func (db *DB) ListProfiles(ctx context.Context) ([]models.UserProfile, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []models.UserProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

// --- Item operations ---

const itemColumns = `id, title, description, category, image_url, owner_id, created_at`

func scanItem(row scanner) (*models.Item, error) {
	item := &models.Item{}
	err := row.Scan(
		&item.ID, &item.Title, &item.Description, &item.Category,
		&item.ImageURL, &item.OwnerID, &item.CreatedAt,
	)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// InsertItem stores a new item.
func (db *DB) InsertItem(ctx context.Context, item *models.Item) error {
	const q = `INSERT INTO items (id, title, description, category, image_url, owner_id, created_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := db.conn.ExecContext(ctx, q,
		item.ID, item.Title, item.Description, string(item.Category),
		item.ImageURL, item.OwnerID, item.CreatedAt,
	)
	return err
}

// GetItem returns an item by ID.
func (db *DB) GetItem(ctx context.Context, id string) (*models.Item, error) {
	q := `SELECT ` + itemColumns + ` FROM items WHERE id = ?`
	return scanItem(db.conn.QueryRowContext(ctx, q, id))
}

// ListItems returns all items in insertion order.
func (db *DB) ListItems(ctx context.Context) ([]models.Item, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+itemColumns+` FROM items ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// DeleteItem removes an item by ID. Claim requests referencing it are kept.
func (db *DB) DeleteItem(ctx context.Context, id string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	return err
}

// --- Claim request operations ---

const requestColumns = `id, item_id, item_title, requester_id, owner_id, status, created_at`

func scanRequest(row scanner) (*models.ClaimRequest, error) {
	r := &models.ClaimRequest{}
	err := row.Scan(&r.ID, &r.ItemID, &r.ItemTitle, &r.RequesterID, &r.OwnerID, &r.Status, &r.CreatedAt)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// InsertRequest stores a new claim request.
func (db *DB) InsertRequest(ctx context.Context, req *models.ClaimRequest) error {
	const q = `INSERT INTO claim_requests (id, item_id, item_title, requester_id, owner_id, status, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.conn.ExecContext(ctx, q,
		req.ID, req.ItemID, req.ItemTitle, req.RequesterID, req.OwnerID,
		string(req.Status), req.CreatedAt, req.CreatedAt,
	)
	return err
}

// GetRequest returns a claim request by ID.
func (db *DB) GetRequest(ctx context.Context, id string) (*models.ClaimRequest, error) {
	q := `SELECT ` + requestColumns + ` FROM claim_requests WHERE id = ?`
	return scanRequest(db.conn.QueryRowContext(ctx, q, id))
}

// ListRequests returns all claim requests in insertion order.
func (db *DB) ListRequests(ctx context.Context) ([]models.ClaimRequest, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+requestColumns+` FROM claim_requests ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []models.ClaimRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, *r)
	}
	return reqs, rows.Err()
}

// UpdateStatus moves a request from one status to another in a single
// conditional UPDATE, so two concurrent resolutions cannot both succeed.
func (db *DB) UpdateStatus(ctx context.Context, id string, from, to models.ClaimStatus) error {
	const q = `UPDATE claim_requests SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	res, err := db.conn.ExecContext(ctx, q, string(to), time.Now(), id, string(from))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("request %s: %w", id, store.ErrStatusConflict)
	}
	return nil
}

// DeleteRequest removes a claim request by ID.
func (db *DB) DeleteRequest(ctx context.Context, id string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM claim_requests WHERE id = ?`, id)
	return err
}

var (
	_ store.ProfileStore = (*DB)(nil)
	_ store.ItemStore    = (*DB)(nil)
	_ store.RequestStore = (*DB)(nil)
	_ scanner            = (*sql.Row)(nil)
)
