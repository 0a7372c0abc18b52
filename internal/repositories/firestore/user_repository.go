package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/doug-pr/API-Pizzaria/internal/domain"
	pfirestore "github.com/doug-pr/API-Pizzaria/internal/platform/firestore"
	"github.com/doug-pr/API-Pizzaria/internal/repositories"
)

const (
	userCollection       = "users"
	userEmailsCollection = "user_emails"
)

type userDocument struct {
	ID           int64     `firestore:"id"`
	Email        string    `firestore:"email"`
	Name         string    `firestore:"name"`
	PasswordHash string    `firestore:"passwordHash"`
	Active       bool      `firestore:"active"`
	Admin        bool      `firestore:"admin"`
	CreatedAt    time.Time `firestore:"createdAt"`
}

// userEmailDocument reserves an email. The document id is the hex SHA-256 of the email,
// so creating it fails when another user already owns the address.
type userEmailDocument struct {
	UserID int64 `firestore:"userId"`
}

// UserRepository persists users in Firestore.
type UserRepository struct {
	provider *pfirestore.Provider
	users    *pfirestore.Collection[userDocument]
	emails   *pfirestore.Collection[userEmailDocument]
}

var _ repositories.UserRepository = (*UserRepository)(nil)

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{
		provider: provider,
		users:    pfirestore.NewCollection[userDocument](provider, userCollection),
		emails:   pfirestore.NewCollection[userEmailDocument](provider, userEmailsCollection),
	}, nil
}

// Insert creates the user and its email reservation atomically.
func (r *UserRepository) Insert(ctx context.Context, user domain.User) error {
	if user.ID <= 0 {
		return errors.New("user id is required")
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		if err := r.emails.Create(ctx, emailKey(user.Email), userEmailDocument{UserID: user.ID}); err != nil {
			return err
		}
		return r.users.Create(ctx, userKey(user.ID), fromDomainUser(user))
	})
}

// FindByID loads a user by numeric id.
func (r *UserRepository) FindByID(ctx context.Context, userID int64) (domain.User, error) {
	doc, err := r.users.Get(ctx, userKey(userID))
	if err != nil {
		return domain.User{}, err
	}
	return toDomainUser(doc), nil
}

// FindByEmail resolves the email reservation and then the user it points at.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	index, err := r.emails.Get(ctx, emailKey(email))
	if err != nil {
		return domain.User{}, err
	}
	return r.FindByID(ctx, index.UserID)
}

func userKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

func emailKey(email string) string {
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:])
}

func fromDomainUser(user domain.User) userDocument {
	return userDocument{
		ID:           user.ID,
		Email:        user.Email,
		Name:         user.Name,
		PasswordHash: user.PasswordHash,
		Active:       user.Active,
		Admin:        user.Admin,
		CreatedAt:    user.CreatedAt.UTC(),
	}
}

func toDomainUser(doc userDocument) domain.User {
	return domain.User{
		ID:           doc.ID,
		Email:        doc.Email,
		Name:         doc.Name,
		PasswordHash: doc.PasswordHash,
		Active:       doc.Active,
		Admin:        doc.Admin,
		CreatedAt:    doc.CreatedAt,
	}
}
