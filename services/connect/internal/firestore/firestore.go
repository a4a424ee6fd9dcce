// Package firestore implements the profile, item and claim request stores
// on Cloud Firestore. Each record is a flat document keyed by its id.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gfs "cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ruet-connect/connect/services/connect/internal/store"
	"github.com/ruet-connect/connect/services/connect/pkg/models"
)

const (
	profilesCollection = "profiles"
	itemsCollection    = "items"
	requestsCollection = "claimRequests"
)

// Store implements store.ProfileStore, store.ItemStore and store.RequestStore.
type Store struct {
	client *gfs.Client
	now    func() time.Time

	// seq orders documents by insertion. It is a nanosecond clock forced
	// to increase within the process.
	seqMu   sync.Mutex
	lastSeq int64
}

var (
	_ store.ProfileStore = (*Store)(nil)
	_ store.ItemStore    = (*Store)(nil)
	_ store.RequestStore = (*Store)(nil)
)

// New wraps an existing client.
func New(client *gfs.Client) *Store {
	return &Store{client: client, now: time.Now}
}

// Open connects to database in the app's project. "(default)" or an empty
// name selects the default database.
func Open(ctx context.Context, app *firebase.App, projectID, database string) (*Store, error) {
	var (
		client *gfs.Client
		err    error
	)
	if database == "" || database == gfs.DefaultDatabaseID {
		client, err = app.Firestore(ctx)
	} else {
		client, err = gfs.NewClientWithDatabase(ctx, projectID, database)
	}
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return New(client), nil
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) nextSeq() int64 {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	seq := s.now().UnixNano()
	if seq <= s.lastSeq {
		seq = s.lastSeq + 1
	}
	s.lastSeq = seq
	return seq
}

func notFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// --- Profiles ---

type profileDoc struct {
	ShortID       string `firestore:"shortId"`
	DisplayName   string `firestore:"displayName"`
	Email         string `firestore:"email"`
	ContactNumber string `firestore:"contactNumber"`
	Role          string `firestore:"role"`
	Seq           int64  `firestore:"seq"`
}

func (d profileDoc) model(id string) *models.UserProfile {
	return &models.UserProfile{
		ID:            id,
		ShortID:       d.ShortID,
		DisplayName:   d.DisplayName,
		Email:         d.Email,
		ContactNumber: d.ContactNumber,
		Role:          models.Role(d.Role),
	}
}

// GetProfile returns a profile or nil.
func (s *Store) GetProfile(ctx context.Context, id string) (*models.UserProfile, error) {
	snap, err := s.client.Collection(profilesCollection).Doc(id).Get(ctx)
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var d profileDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", id, err)
	}
	return d.model(snap.Ref.ID), nil
}

// PutProfile creates or replaces a profile, keeping its original position
// in the listing order.
func (s *Store) PutProfile(ctx context.Context, p *models.UserProfile) error {
	ref := s.client.Collection(profilesCollection).Doc(p.ID)
	seq := s.nextSeq()
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *gfs.Transaction) error {
		d := profileDoc{
			ShortID:       p.ShortID,
			DisplayName:   p.DisplayName,
			Email:         p.Email,
			ContactNumber: p.ContactNumber,
			Role:          string(p.Role),
			Seq:           seq,
		}
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			var old profileDoc
			if err := snap.DataTo(&old); err == nil && old.Seq != 0 {
				d.Seq = old.Seq
			}
		case !notFound(err):
			return err
		}
		return tx.Set(ref, d)
	})
}

// CreateProfile creates the profile document unless it already exists.
func (s *Store) CreateProfile(ctx context.Context, p *models.UserProfile) (bool, error) {
	_, err := s.client.Collection(profilesCollection).Doc(p.ID).Create(ctx, profileDoc{
		ShortID:       p.ShortID,
		DisplayName:   p.DisplayName,
		Email:         p.Email,
		ContactNumber: p.ContactNumber,
		Role:          string(p.Role),
		Seq:           s.nextSeq(),
	})
	if status.Code(err) == codes.AlreadyExists {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DeleteProfile removes a profile. Missing profiles are not an error.
func (s *Store) DeleteProfile(ctx context.Context, id string) error {
	_, err := s.client.Collection(profilesCollection).Doc(id).Delete(ctx)
	return err
}

// ListProfiles returns profiles in insertion order.
func (s *Store) ListProfiles(ctx context.Context) ([]models.UserProfile, error) {
	iter := s.client.Collection(profilesCollection).OrderBy("seq", gfs.Asc).Documents(ctx)
	defer iter.Stop()

	var out []models.UserProfile
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		var d profileDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, fmt.Errorf("decode profile %s: %w", snap.Ref.ID, err)
		}
		out = append(out, *d.model(snap.Ref.ID))
	}
}

// --- Items ---

type itemDoc struct {
	Title       string    `firestore:"title"`
	Description string    `firestore:"description"`
	Category    string    `firestore:"category"`
	ImageURL    string    `firestore:"imageUrl"`
	OwnerID     string    `firestore:"userId"`
	CreatedAt   time.Time `firestore:"createdAt"`
	Seq         int64     `firestore:"seq"`
}

func (d itemDoc) model(id string) *models.Item {
	return &models.Item{
		ID:          id,
		Title:       d.Title,
		Description: d.Description,
		Category:    models.Category(d.Category),
		ImageURL:    d.ImageURL,
		OwnerID:     d.OwnerID,
		CreatedAt:   d.CreatedAt.UTC(),
	}
}

// InsertItem creates an item document. It fails if the id exists.
func (s *Store) InsertItem(ctx context.Context, item *models.Item) error {
	_, err := s.client.Collection(itemsCollection).Doc(item.ID).Create(ctx, itemDoc{
		Title:       item.Title,
		Description: item.Description,
		Category:    string(item.Category),
		ImageURL:    item.ImageURL,
		OwnerID:     item.OwnerID,
		CreatedAt:   item.CreatedAt,
		Seq:         s.nextSeq(),
	})
	return err
}

// GetItem returns an item or nil.
func (s *Store) GetItem(ctx context.Context, id string) (*models.Item, error) {
	snap, err := s.client.Collection(itemsCollection).Doc(id).Get(ctx)
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var d itemDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("decode item %s: %w", id, err)
	}
	return d.model(snap.Ref.ID), nil
}

// ListItems returns items in insertion order.
func (s *Store) ListItems(ctx context.Context) ([]models.Item, error) {
	iter := s.client.Collection(itemsCollection).OrderBy("seq", gfs.Asc).Documents(ctx)
	defer iter.Stop()

	var out []models.Item
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		var d itemDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, fmt.Errorf("decode item %s: %w", snap.Ref.ID, err)
		}
		out = append(out, *d.model(snap.Ref.ID))
	}
}

// DeleteItem removes an item.
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	_, err := s.client.Collection(itemsCollection).Doc(id).Delete(ctx)
	return err
}

// --- Claim requests ---

type requestDoc struct {
	ItemID      string    `firestore:"itemId"`
	ItemTitle   string    `firestore:"itemTitle"`
	RequesterID string    `firestore:"requesterId"`
	OwnerID     string    `firestore:"ownerId"`
	Status      string    `firestore:"status"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
	Seq         int64     `firestore:"seq"`
}

func (d requestDoc) model(id string) *models.ClaimRequest {
	return &models.ClaimRequest{
		ID:          id,
		ItemID:      d.ItemID,
		ItemTitle:   d.ItemTitle,
		RequesterID: d.RequesterID,
		OwnerID:     d.OwnerID,
		Status:      models.ClaimStatus(d.Status),
		CreatedAt:   d.CreatedAt.UTC(),
	}
}

// InsertRequest creates a request document.
func (s *Store) InsertRequest(ctx context.Context, req *models.ClaimRequest) error {
	_, err := s.client.Collection(requestsCollection).Doc(req.ID).Create(ctx, requestDoc{
		ItemID:      req.ItemID,
		ItemTitle:   req.ItemTitle,
		RequesterID: req.RequesterID,
		OwnerID:     req.OwnerID,
		Status:      string(req.Status),
		CreatedAt:   req.CreatedAt,
		UpdatedAt:   req.CreatedAt,
		Seq:         s.nextSeq(),
	})
	return err
}

// GetRequest returns a request or nil.
func (s *Store) GetRequest(ctx context.Context, id string) (*models.ClaimRequest, error) {
	snap, err := s.client.Collection(requestsCollection).Doc(id).Get(ctx)
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var d requestDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("decode request %s: %w", id, err)
	}
	return d.model(snap.Ref.ID), nil
}

// ListRequests returns requests in insertion order.
func (s *Store) ListRequests(ctx context.Context) ([]models.ClaimRequest, error) {
	iter := s.client.Collection(requestsCollection).OrderBy("seq", gfs.Asc).Documents(ctx)
	defer iter.Stop()

	var out []models.ClaimRequest
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		var d requestDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, fmt.Errorf("decode request %s: %w", snap.Ref.ID, err)
		}
		out = append(out, *d.model(snap.Ref.ID))
	}
}

// UpdateStatus changes the status inside a transaction that first checks
// the stored status is still from.
func (s *Store) UpdateStatus(ctx context.Context, id string, from, to models.ClaimStatus) error {
	ref := s.client.Collection(requestsCollection).Doc(id)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *gfs.Transaction) error {
		snap, err := tx.Get(ref)
		if notFound(err) {
			return fmt.Errorf("request %s: %w", id, store.ErrStatusConflict)
		}
		if err != nil {
			return err
		}
		current, err := snap.DataAt("status")
		if err != nil {
			return fmt.Errorf("read status of %s: %w", id, err)
		}
		if current != string(from) {
			return fmt.Errorf("request %s: %w", id, store.ErrStatusConflict)
		}
		return tx.Update(ref, []gfs.Update{
			{Path: "status", Value: string(to)},
			{Path: "updatedAt", Value: s.now()},
		})
	})
}

// DeleteRequest removes a request.
func (s *Store) DeleteRequest(ctx context.Context, id string) error {
	_, err := s.client.Collection(requestsCollection).Doc(id).Delete(ctx)
	return err
}
