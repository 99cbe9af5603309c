package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/product"
)

const (
	labelTransientTransaction = "TransientTransactionError"
	labelUnknownCommitResult  = "UnknownTransactionCommitResult"
	abortTimeout              = 2 * time.Second
	maxCommitAttempts         = 3
)

// ErrCommitUnknown means the commit outcome could not be confirmed. The order may or may
// not be stored, so it must not be retried as a new unit of work.
var ErrCommitUnknown = errors.New("mongodb: transaction commit result unknown")

// Store persists products and orders in MongoDB. Units of work run as multi-document
// transactions, so the server must be a replica set or sharded cluster.
type Store struct {
	client   *mongo.Client
	products *mongo.Collection
	orders   *mongo.Collection
}

func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb: connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("mongodb: ping: %w", err)
	}
	return New(client, database), nil
}

func New(client *mongo.Client, database string) *Store {
	db := client.Database(database)
	return &Store{
		client:   client,
		products: db.Collection(productsCollection),
		orders:   db.Collection(ordersCollection),
	}
}

// EnsureSchema creates the collections (transactions cannot create them implicitly on
// older servers) and the listing indexes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	db := s.products.Database()
	existing, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("mongodb: list collections: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, name := range existing {
		have[name] = true
	}
	for _, name := range []string{productsCollection, ordersCollection} {
		if have[name] {
			continue
		}
		if err := db.CreateCollection(ctx, name); err != nil {
			return fmt.Errorf("mongodb: create %s: %w", name, err)
		}
	}

	if _, err := s.products.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "createdAt", Value: -1}},
	}); err != nil {
		return fmt.Errorf("mongodb: products index: %w", err)
	}
	if _, err := s.orders.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "product", Value: 1}},
	}); err != nil {
		return fmt.Errorf("mongodb: orders index: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) Create(ctx context.Context, p *product.Product) error {
	oid, err := primitive.ObjectIDFromHex(p.ID)
	if err != nil {
		return fmt.Errorf("mongodb: product id %q is not an ObjectID: %w", p.ID, err)
	}
	doc := productDocument{
		ID:        oid,
		Name:      p.Name,
		Price:     p.Price,
		Stock:     p.Stock,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	if _, err := s.products.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("mongodb: insert product: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]*product.Product, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := s.products.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb: find products: %w", err)
	}
	var docs []productDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongodb: decode products: %w", err)
	}

	out := make([]*product.Product, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (*product.Product, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, product.ErrNotFound
	}
	var doc productDocument
	err = s.products.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, product.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb: find product: %w", err)
	}
	return doc.toDomain(), nil
}

// OrdersForProduct returns orders referencing productID, oldest first.
func (s *Store) OrdersForProduct(ctx context.Context, productID string) ([]*order.Order, error) {
	oid, err := primitive.ObjectIDFromHex(productID)
	if err != nil {
		return []*order.Order{}, nil
	}
	cur, err := s.orders.Find(ctx, bson.M{"product": oid}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongodb: find orders: %w", err)
	}
	var docs []orderDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongodb: decode orders: %w", err)
	}
	out := make([]*order.Order, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

// Within runs fn in a snapshot transaction with majority write concern.
func (s *Store) Within(ctx context.Context, fn func(ctx context.Context, tx inventory.Tx) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("mongodb: start session: %w", err)
	}
	defer sess.EndSession(context.WithoutCancel(ctx))

	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	return mongo.WithSession(ctx, sess, func(sc mongo.SessionContext) error {
		if err := sess.StartTransaction(txnOpts); err != nil {
			return fmt.Errorf("mongodb: start transaction: %w", err)
		}

		if err := fn(sc, &mongoTx{store: s}); err != nil {
			s.abort(sc, sess)
			return classify(err)
		}
		if err := sc.Err(); err != nil {
			s.abort(sc, sess)
			return fmt.Errorf("mongodb: unit of work expired before commit: %w", err)
		}
		return commitWithRetry(sc, sess.CommitTransaction)
	})
}

// commitWithRetry retries only the commit while the outcome is unknown; the transaction
// may already be applied, so re-running the unit of work could apply it twice.
func commitWithRetry(ctx context.Context, commit func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= maxCommitAttempts; attempt++ {
		err = commit(ctx)
		if err == nil {
			return nil
		}
		if !hasLabel(err, labelUnknownCommitResult) {
			return classify(fmt.Errorf("mongodb: commit: %w", err))
		}
		if ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("%w: %w", ErrCommitUnknown, err)
}

func (s *Store) abort(ctx context.Context, sess mongo.Session) {
	abortCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
	defer cancel()
	_ = sess.AbortTransaction(abortCtx)
}

// classify marks transactions the server aborted as safe to run again.
func classify(err error) error {
	if hasLabel(err, labelTransientTransaction) && !hasLabel(err, labelUnknownCommitResult) {
		return fmt.Errorf("%w: %w", inventory.ErrConflict, err)
	}
	return err
}

func hasLabel(err error, label string) bool {
	var labeled mongo.LabeledError
	return errors.As(err, &labeled) && labeled.HasErrorLabel(label)
}

type mongoTx struct {
	store *Store
}

func (t *mongoTx) DeductStock(ctx context.Context, productID string, quantity int) (*product.Product, error) {
	if quantity <= 0 {
		return nil, inventory.ErrInvalidQuantity
	}
	oid, err := primitive.ObjectIDFromHex(productID)
	if err != nil {
		// a malformed id cannot match any product
		return nil, inventory.ErrNoMatch
	}

	filter := bson.M{"_id": oid, "stock": bson.M{"$gte": quantity}}
	update := bson.M{
		"$inc": bson.M{"stock": -quantity},
		"$set": bson.M{"updatedAt": time.Now().UTC()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc productDocument
	err = t.store.products.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, inventory.ErrNoMatch
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb: deduct stock: %w", err)
	}
	return doc.toDomain(), nil
}

func (t *mongoTx) InsertOrder(ctx context.Context, o *order.Order) error {
	doc, err := newOrderDocument(o)
	if err != nil {
		return fmt.Errorf("mongodb: order ids must be ObjectIDs: %w", err)
	}
	if _, err := t.store.orders.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("mongodb: insert order: %w", err)
	}
	return nil
}
