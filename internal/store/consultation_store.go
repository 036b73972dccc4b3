package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/upclosets/nova-voice-agent/internal/domain"
	"github.com/upclosets/nova-voice-agent/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	consultationsCollection = "consultations"
	opTimeout               = 5 * time.Second
)

// ConsultationStore is the narrow persistence surface for booking records.
type ConsultationStore interface {
	// Insert persists a confirmed consultation and returns its record ID.
	Insert(ctx context.Context, c *domain.Consultation) (string, error)
	// InsertPending persists a consultation awaiting caller confirmation.
	InsertPending(ctx context.Context, c *domain.Consultation) (string, error)
	// Confirm promotes a pending consultation to scheduled.
	Confirm(ctx context.Context, id string) error
	// FindByPhone returns the most recent consultation for a phone number,
	// or nil when none exists.
	FindByPhone(ctx context.Context, phone string) (*domain.Consultation, error)
	// ListRecent returns the newest consultations, newest first.
	ListRecent(ctx context.Context, limit int64) ([]domain.Consultation, error)
}

// Connect initializes the MongoDB client and verifies the connection.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, nil
}

// MongoConsultationStore persists consultations in a MongoDB collection.
type MongoConsultationStore struct {
	coll *mongo.Collection
}

// NewMongoConsultationStore returns a store over the consultations collection.
func NewMongoConsultationStore(client *mongo.Client, database string) *MongoConsultationStore {
	return &MongoConsultationStore{coll: client.Database(database).Collection(consultationsCollection)}
}

// Insert persists a confirmed consultation record.
func (s *MongoConsultationStore) Insert(ctx context.Context, c *domain.Consultation) (string, error) {
	normalize(c)
	c.Status = domain.StatusScheduled
	c.ConfirmationStatus = domain.ConfirmationConfirmed

	return s.insert(ctx, c)
}

// InsertPending persists a consultation before the caller has confirmed it.
func (s *MongoConsultationStore) InsertPending(ctx context.Context, c *domain.Consultation) (string, error) {
	normalize(c)
	c.Status = domain.StatusPendingConfirmation
	c.ConfirmationStatus = domain.ConfirmationPending

	return s.insert(ctx, c)
}

func (s *MongoConsultationStore) insert(ctx context.Context, c *domain.Consultation) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.coll.InsertOne(ctx, c)
	if err != nil {
		return "", fmt.Errorf("failed to insert consultation: %w", err)
	}

	id, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	c.ID = id

	logger.Base().Info("Consultation persisted",
		zap.String("record_id", id.Hex()),
		zap.String("phone", c.Phone),
		zap.String("status", c.Status))
	return id.Hex(), nil
}

// Confirm promotes a pending consultation to scheduled.
func (s *MongoConsultationStore) Confirm(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid consultation id %s: %w", id, err)
	}

	now := time.Now()
	res, err := s.coll.UpdateByID(ctx, oid, bson.M{"$set": bson.M{
		"status":              domain.StatusScheduled,
		"confirmation_status": domain.ConfirmationConfirmed,
		"confirmed_at":        now,
	}})
	if err != nil {
		return fmt.Errorf("failed to confirm consultation %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("consultation %s not found", id)
	}
	return nil
}

// FindByPhone returns the most recent consultation for a phone number.
func (s *MongoConsultationStore) FindByPhone(ctx context.Context, phone string) (*domain.Consultation, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	opts := options.FindOne().SetSort(bson.D{{Key: "_id", Value: -1}})
	var c domain.Consultation
	err := s.coll.FindOne(ctx, bson.M{"phone": phone}, opts).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find consultation for %s: %w", phone, err)
	}
	return &c, nil
}

// ListRecent returns the newest consultations, newest first.
func (s *MongoConsultationStore) ListRecent(ctx context.Context, limit int64) ([]domain.Consultation, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: -1}}).SetLimit(limit)
	cur, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list consultations: %w", err)
	}
	defer cur.Close(ctx)

	var out []domain.Consultation
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode consultations: %w", err)
	}
	return out, nil
}

// normalize fills the invariant fields of a record before it is written. The
// phone fallback also lives here so a record can never reach the collection
// as "unknown", whatever the caller did.
func normalize(c *domain.Consultation) {
	if c.Phone == "" || c.Phone == domain.PhoneUnknown {
		c.Phone = fmt.Sprintf("call_%d", time.Now().Unix())
	}
	if c.ConsultationType == "" {
		c.ConsultationType = domain.ConsultationTypePhoneOnly
	}
	if c.PhoneSource == "" {
		if c.CallerPhone != "" {
			c.PhoneSource = domain.PhoneSourceExtractedFromCall
		} else {
			c.PhoneSource = domain.PhoneSourceProvidedByCustomer
		}
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
}
