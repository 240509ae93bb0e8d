package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"fintrack_backend/models"
)

// MongoDB collection names
const (
	MongoDBName          = "fintrack"
	MongoQuoteCollection = "quote_history"
	MongoConnectTimeout  = 30 * time.Second
	MongoWriteTimeout    = 10 * time.Second
)

// MongoQuoteSync mirrors refreshed quotes into MongoDB Atlas when a URI is
// configured. It implements QuoteSink and is entirely optional: without a
// URI every method is a no-op.
type MongoQuoteSync struct {
	client      *mongo.Client
	database    *mongo.Database
	mu          sync.RWMutex
	isConnected bool
	lastError   string
}

// mongoQuoteDoc is one quote observation as stored in MongoDB.
type mongoQuoteDoc struct {
	InstrumentID  uint      `bson:"instrument_id"`
	Symbol        string    `bson:"symbol"`
	Type          string    `bson:"type"`
	Price         string    `bson:"price"`
	ChangePercent string    `bson:"change_percent"`
	High          string    `bson:"high"`
	Low           string    `bson:"low"`
	Volume        int64     `bson:"volume"`
	ObservedAt    time.Time `bson:"observed_at"`
}

// NewMongoQuoteSync connects to MongoDB Atlas. An empty URI disables the
// sync without error.
func NewMongoQuoteSync(uri string) (*MongoQuoteSync, error) {
	m := &MongoQuoteSync{}
	if uri == "" {
		log.Println("MONGODB_URI not set, MongoDB quote sync disabled")
		return m, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), MongoConnectTimeout)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetMaxPoolSize(10).
		SetMinPoolSize(2).
		SetMaxConnIdleTime(30 * time.Second).
		SetConnectTimeout(MongoConnectTimeout).
		SetRetryWrites(true).
		SetRetryReads(true)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		m.lastError = fmt.Sprintf("Failed to connect: %v", err)
		return m, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		m.lastError = fmt.Sprintf("Failed to ping: %v", err)
		client.Disconnect(ctx)
		return m, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	m.mu.Lock()
	m.client = client
	m.database = client.Database(MongoDBName)
	m.isConnected = true
	m.mu.Unlock()

	m.createIndexes()
	log.Println("MongoDB quote sync connected")
	return m, nil
}

// IsConfigured reports whether the sync has a live connection.
func (m *MongoQuoteSync) IsConfigured() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isConnected
}

// Close disconnects from MongoDB.
func (m *MongoQuoteSync) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	m.isConnected = false
	return m.client.Disconnect(ctx)
}

func (m *MongoQuoteSync) createIndexes() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := m.database.Collection(MongoQuoteCollection).Indexes().CreateOne(ctx,
		mongo.IndexModel{
			Keys: bson.D{
				{Key: "instrument_id", Value: 1},
				{Key: "observed_at", Value: -1},
			},
		})
	if err != nil {
		log.Printf("Failed to create MongoDB indexes: %v", err)
	}
}

// OnQuoteRefreshed uploads one refreshed quote. Failures are logged, never
// propagated; the local archive stays authoritative.
func (m *MongoQuoteSync) OnQuoteRefreshed(inst models.Instrument, quote NormalizedQuote) {
	m.mu.RLock()
	connected := m.isConnected
	db := m.database
	m.mu.RUnlock()
	if !connected {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), MongoWriteTimeout)
	defer cancel()

	doc := mongoQuoteDoc{
		InstrumentID:  inst.ID,
		Symbol:        inst.Symbol,
		Type:          string(inst.Type),
		Price:         quote.Price.String(),
		ChangePercent: quote.ChangePercent.String(),
		High:          quote.High.String(),
		Low:           quote.Low.String(),
		Volume:        quote.Volume,
		ObservedAt:    quote.ObservedAt,
	}

	if _, err := db.Collection(MongoQuoteCollection).InsertOne(ctx, doc); err != nil {
		m.mu.Lock()
		m.lastError = err.Error()
		m.mu.Unlock()
		log.Printf("Failed to sync quote for %s to MongoDB: %v", inst.Symbol, err)
	}
}

// PruneOlderThan removes synced quotes past the retention period.
func (m *MongoQuoteSync) PruneOlderThan(retention time.Duration) error {
	m.mu.RLock()
	connected := m.isConnected
	db := m.database
	m.mu.RUnlock()
	if !connected {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-retention)
	result, err := db.Collection(MongoQuoteCollection).DeleteMany(ctx,
		bson.M{"observed_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return fmt.Errorf("failed to prune MongoDB quotes: %w", err)
	}
	if result.DeletedCount > 0 {
		log.Printf("Pruned %d MongoDB quotes older than %s", result.DeletedCount, cutoff.Format(time.RFC3339))
	}
	return nil
}

// GetStatus returns connection state for the health endpoint.
func (m *MongoQuoteSync) GetStatus() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]interface{}{
		"connected":  m.isConnected,
		"last_error": m.lastError,
	}
}
