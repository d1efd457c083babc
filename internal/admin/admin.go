// Package admin manages dashboard operator accounts and credential checks.
package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/real-rm/golog"
	"github.com/real-rm/gomongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/crypto/bcrypt"

	"github.com/real-rm/supportchat/internal/constants"
	"github.com/real-rm/supportchat/internal/metrics"
	"github.com/real-rm/supportchat/internal/util"
)

var (
	// ErrInvalidCredentials is returned when username or password do not match
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAdminNotFound is returned when no admin matches the given identifier
	ErrAdminNotFound = errors.New("admin not found")
	// ErrUsernameTaken is returned when creating an account with an existing username
	ErrUsernameTaken = errors.New("username already taken")
	// ErrWeakPassword is returned when a password does not meet the minimum length
	ErrWeakPassword = errors.New("password too short")
)

// bcryptCost matches the work factor the dashboard has always used for
// stored credentials
const bcryptCost = 10

// Admin represents a dashboard operator account
type Admin struct {
	ID        primitive.ObjectID
	Username  string
	CreatedAt time.Time
}

// adminDocument represents an admin account stored in MongoDB
type adminDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Username  string             `bson:"username"`
	Password  string             `bson:"password"` // bcrypt hash
	CreatedAt time.Time          `bson:"_ts,omitempty"` // gomongo automatic timestamp
}

// Store manages admin accounts in MongoDB
type Store struct {
	admins *gomongo.MongoCollection
	logger *golog.Logger
}

// NewStore creates an admin store over the given collection
func NewStore(mongo *gomongo.Mongo, dbName, collName string, logger *golog.Logger) *Store {
	return &Store{
		admins: mongo.Coll(dbName, collName),
		logger: logger,
	}
}

// EnsureIndexes creates the unique username index
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: constants.MongoFieldUsername, Value: 1}},
			Options: options.Index().SetName(constants.IndexAdminUsername).SetUnique(true),
		},
	}

	_, err := s.admins.CreateIndexes(ctx, indexes)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		return fmt.Errorf("failed to create admin indexes: %w", err)
	}

	return nil
}

// Create adds a new admin account with a bcrypt-hashed password
func (s *Store) Create(username, password string) (*Admin, error) {
	// No else needed: early return pattern (guard clause)
	if err := util.ValidateNotEmpty(username, "username"); err != nil {
		return nil, err
	}

	// No else needed: early return pattern (guard clause)
	if len(password) < constants.MinPasswordLength {
		return nil, fmt.Errorf("%w: must be at least %d characters", ErrWeakPassword, constants.MinPasswordLength)
	}

	hash, err := hashPassword(password)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	ctx, cancel := util.NewTimeoutContext(constants.DefaultContextTimeout)
	defer cancel()

	doc := &adminDocument{
		ID:       primitive.NewObjectID(),
		Username: username,
		Password: hash,
	}

	_, err = s.admins.InsertOne(ctx, doc)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to create admin: %w", err)
	}

	return &Admin{
		ID:        doc.ID,
		Username:  username,
		CreatedAt: time.Now(),
	}, nil
}

// EnsureDefaultAdmin seeds the configured default account when it does not
// exist yet, so a fresh deployment always has a working dashboard login.
func (s *Store) EnsureDefaultAdmin(ctx context.Context, username, password string) error {
	filter := bson.M{constants.MongoFieldUsername: username}

	err := s.admins.FindOne(ctx, filter).Err()
	// No else needed: early return pattern (guard clause - account already exists)
	if err == nil {
		return nil
	}

	// No else needed: early return pattern (guard clause)
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("failed to check default admin: %w", err)
	}

	_, err = s.Create(username, password)
	// Concurrent startup of another instance may have seeded it first
	if errors.Is(err, ErrUsernameTaken) {
		return nil
	}
	// No else needed: early return pattern (guard clause)
	if err != nil {
		return fmt.Errorf("failed to seed default admin: %w", err)
	}

	s.logger.Info("Default admin account created", "username", username)
	return nil
}

// Authenticate verifies a username/password pair. Both a missing account and
// a wrong password return ErrInvalidCredentials so callers cannot tell the
// two apart.
func (s *Store) Authenticate(username, password string) (*Admin, error) {
	ctx, cancel := util.NewTimeoutContext(constants.DefaultContextTimeout)
	defer cancel()

	filter := bson.M{constants.MongoFieldUsername: username}
	var doc adminDocument

	err := s.admins.FindOne(ctx, filter).Decode(&doc)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// Burn a comparison anyway to keep timing consistent with the
			// wrong-password path
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			metrics.AdminLogins.With(prometheus.Labels{"outcome": "failure"}).Inc()
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up admin: %w", err)
	}

	err = bcrypt.CompareHashAndPassword([]byte(doc.Password), []byte(password))
	// No else needed: early return pattern (guard clause)
	if err != nil {
		metrics.AdminLogins.With(prometheus.Labels{"outcome": "failure"}).Inc()
		return nil, ErrInvalidCredentials
	}

	metrics.AdminLogins.With(prometheus.Labels{"outcome": "success"}).Inc()
	return &Admin{
		ID:        doc.ID,
		Username:  doc.Username,
		CreatedAt: doc.CreatedAt,
	}, nil
}

// FindByID retrieves an admin account by its hex object ID
func (s *Store) FindByID(adminID string) (*Admin, error) {
	oid, err := primitive.ObjectIDFromHex(adminID)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		return nil, ErrAdminNotFound
	}

	ctx, cancel := util.NewTimeoutContext(constants.DefaultContextTimeout)
	defer cancel()

	filter := bson.M{constants.MongoFieldID: oid}
	var doc adminDocument

	err = s.admins.FindOne(ctx, filter).Decode(&doc)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrAdminNotFound
		}
		return nil, fmt.Errorf("failed to find admin: %w", err)
	}

	return &Admin{
		ID:        doc.ID,
		Username:  doc.Username,
		CreatedAt: doc.CreatedAt,
	}, nil
}

// dummyHash is a valid bcrypt hash of an unguessable value, used to equalize
// timing when the username does not exist
var dummyHash = func() []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte("supportchat-dummy-timing-pad"), bcryptCost)
	if err != nil {
		// bcrypt only fails on invalid cost, which is a constant here
		panic(err)
	}
	return hash
}()

// hashPassword hashes a password with the standard cost
func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
