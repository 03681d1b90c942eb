package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophaccounts/internal/common"
	"github.com/dmitrijs2005/gophaccounts/internal/server/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionName is the MongoDB collection holding account documents.
const CollectionName = "users"

type avatarDocument struct {
	PublicID string `bson:"public_id"`
	URL      string `bson:"url"`
}

type accountDocument struct {
	ID             primitive.ObjectID `bson:"_id"`
	Email          string             `bson:"email"`
	PasswordHash   string             `bson:"password_hash,omitempty"`
	Name           string             `bson:"name"`
	Avatar         avatarDocument     `bson:"avatar"`
	Verified       bool               `bson:"verified"`
	OTP            *int               `bson:"otp,omitempty"`
	OTPExpiry      *time.Time         `bson:"otp_expiry,omitempty"`
	ResetOTP       *int               `bson:"reset_otp,omitempty"`
	ResetOTPExpiry *time.Time         `bson:"reset_otp_expiry,omitempty"`
	CreatedAt      time.Time          `bson:"created_at"`
}

func challengeFields(c *models.Challenge) (*int, *time.Time) {
	if c == nil {
		return nil, nil
	}
	code, exp := c.Code, c.ExpiresAt.UTC()
	return &code, &exp
}

func challengeFrom(code *int, exp *time.Time) *models.Challenge {
	if code == nil || exp == nil {
		return nil
	}
	return &models.Challenge{Code: *code, ExpiresAt: exp.UTC()}
}

func (d *accountDocument) toModel() *models.Account {
	return &models.Account{
		ID:           d.ID.Hex(),
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Name:         d.Name,
		Avatar:       models.Avatar{ID: d.Avatar.PublicID, URL: d.Avatar.URL},
		Verified:     d.Verified,
		Verification: challengeFrom(d.OTP, d.OTPExpiry),
		Reset:        challengeFrom(d.ResetOTP, d.ResetOTPExpiry),
		CreatedAt:    d.CreatedAt.UTC(),
	}
}

// MongoRepository stores accounts as documents in one collection with a
// unique index on email.
type MongoRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{coll: db.Collection(CollectionName), now: time.Now}
}

// EnsureIndexes creates the unique email index and a sparse index for
// reset-code lookups.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("email_unique"),
		},
		{
			Keys:    bson.D{{Key: "reset_otp", Value: 1}},
			Options: options.Index().SetSparse(true).SetName("reset_otp"),
		},
	})
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.D, o findOptions) (*models.Account, error) {
	opts := options.FindOne()
	if !o.withPasswordHash {
		opts.SetProjection(bson.D{{Key: "password_hash", Value: 0}})
	}

	var doc accountDocument
	if err := r.coll.FindOne(ctx, filter, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return doc.toModel(), nil
}

func (r *MongoRepository) FindByEmail(ctx context.Context, email string, opts ...FindOption) (*models.Account, error) {
	return r.findOne(ctx, bson.D{{Key: "email", Value: email}}, applyFindOptions(opts))
}

func (r *MongoRepository) FindByID(ctx context.Context, id string, opts ...FindOption) (*models.Account, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, common.ErrNotFound
	}
	return r.findOne(ctx, bson.D{{Key: "_id", Value: oid}}, applyFindOptions(opts))
}

func (r *MongoRepository) FindByResetOTP(ctx context.Context, code int, now time.Time) (*models.Account, error) {
	filter := bson.D{
		{Key: "reset_otp", Value: code},
		{Key: "reset_otp_expiry", Value: bson.D{{Key: "$gt", Value: now.UTC()}}},
	}
	return r.findOne(ctx, filter, findOptions{})
}

func (r *MongoRepository) Create(ctx context.Context, account *models.Account) error {
	doc := accountDocument{
		ID:           primitive.NewObjectID(),
		Email:        account.Email,
		PasswordHash: account.PasswordHash,
		Name:         account.Name,
		Avatar:       avatarDocument{PublicID: account.Avatar.ID, URL: account.Avatar.URL},
		Verified:     account.Verified,
		CreatedAt:    r.now().UTC(),
	}
	doc.OTP, doc.OTPExpiry = challengeFields(account.Verification)
	doc.ResetOTP, doc.ResetOTPExpiry = challengeFields(account.Reset)

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return common.ErrDuplicateAccount
		}
		return fmt.Errorf("db error: %w", err)
	}

	account.ID = doc.ID.Hex()
	account.CreatedAt = doc.CreatedAt
	return nil
}

func (r *MongoRepository) Save(ctx context.Context, account *models.Account) error {
	oid, err := primitive.ObjectIDFromHex(account.ID)
	if err != nil {
		return common.ErrNotFound
	}

	set := bson.D{
		{Key: "name", Value: account.Name},
		{Key: "avatar", Value: avatarDocument{PublicID: account.Avatar.ID, URL: account.Avatar.URL}},
		{Key: "verified", Value: account.Verified},
	}
	if account.PasswordHash != "" {
		set = append(set, bson.E{Key: "password_hash", Value: account.PasswordHash})
	}

	var unset bson.D
	if c := account.Verification; c != nil {
		set = append(set, bson.E{Key: "otp", Value: c.Code}, bson.E{Key: "otp_expiry", Value: c.ExpiresAt.UTC()})
	} else {
		unset = append(unset, bson.E{Key: "otp", Value: ""}, bson.E{Key: "otp_expiry", Value: ""})
	}
	if c := account.Reset; c != nil {
		set = append(set, bson.E{Key: "reset_otp", Value: c.Code}, bson.E{Key: "reset_otp_expiry", Value: c.ExpiresAt.UTC()})
	} else {
		unset = append(unset, bson.E{Key: "reset_otp", Value: ""}, bson.E{Key: "reset_otp_expiry", Value: ""})
	}

	update := bson.D{{Key: "$set", Value: set}}
	if len(unset) > 0 {
		update = append(update, bson.E{Key: "$unset", Value: unset})
	}

	res, err := r.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: oid}}, update)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if res.MatchedCount == 0 {
		return common.ErrNotFound
	}
	return nil
}
