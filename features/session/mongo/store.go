// Package mongo implements session.Store on MongoDB. Sessions are stored as
// opaque JSON documents keyed by the (customer, business) pair, replaced
// wholesale on save; the store never inspects the document shape.
package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/sokoflow/sokoflow/runtime/session"
)

const (
	defaultCollection = "sessions"
	defaultOpTimeout  = 5 * time.Second
	storeName         = "session-mongo"
)

type (
	// Options configures the Mongo session store.
	Options struct {
		// Client is the connected Mongo client. Required.
		Client *mongodriver.Client
		// Database is the database name. Required.
		Database string
		// Collection defaults to "sessions".
		Collection string
		// Timeout bounds each store operation. Defaults to 5s.
		Timeout time.Duration
	}

	// Store implements session.Store backed by a Mongo collection.
	Store struct {
		mongo   *mongodriver.Client
		coll    *mongodriver.Collection
		timeout time.Duration
	}

	document struct {
		Key       string    `bson:"key"`
		Doc       string    `bson:"doc"`
		UpdatedAt time.Time `bson:"updated_at"`
	}
)

// New returns a session store backed by MongoDB and ensures the unique key
// index exists.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	collection := opts.Collection
	if collection == "" {
		collection = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	coll := opts.Client.Database(opts.Database).Collection(collection)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	index := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "key", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := coll.Indexes().CreateOne(ctx, index); err != nil {
		return nil, err
	}
	return &Store{mongo: opts.Client, coll: coll, timeout: timeout}, nil
}

// Name identifies the store for health reporting.
func (s *Store) Name() string { return storeName }

// Ping reports whether the backing deployment is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.mongo.Ping(ctx, readpref.Primary())
}

// Load implements session.Store.
func (s *Store) Load(ctx context.Context, key string) (*session.Session, error) {
	if key == "" {
		return nil, errors.New("session key is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc document
	if err := s.coll.FindOne(ctx, bson.M{"key": key}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, session.ErrNotFound
		}
		return nil, err
	}
	var sess session.Session
	if err := json.Unmarshal([]byte(doc.Doc), &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Save implements session.Store: the full document replaces any prior state.
func (s *Store) Save(ctx context.Context, sess *session.Session) error {
	if sess == nil {
		return errors.New("session is required")
	}
	payload, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	doc := document{Key: sess.Key(), Doc: string(payload), UpdatedAt: time.Now().UTC()}
	_, err = s.coll.ReplaceOne(ctx, bson.M{"key": doc.Key}, doc, options.Replace().SetUpsert(true))
	return err
}

// Delete implements session.Store. Deleting an absent key is a no-op.
func (s *Store) Delete(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("session key is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.coll.DeleteOne(ctx, bson.M{"key": key})
	return err
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, s.timeout)
}
