// Package audit provides the fire-and-forget audit trail over MongoDB.
// Events are immutable once written and expire automatically through a TTL
// index; the application never deletes them. Audit failures are swallowed at
// this boundary so a dead audit store can never fail a request.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"record-gateway/internal/common/logging"
	"record-gateway/internal/service"
)

// EventType is the closed set of operations the trail records
type EventType string

const (
	EventAPIRequest     EventType = "api_request"
	EventDBOperation    EventType = "db_operation"
	EventFileOperation  EventType = "file_operation"
	EventCacheOperation EventType = "cache_operation"
)

// ValidType reports whether t belongs to the closed event type set
func ValidType(t EventType) bool {
	switch t {
	case EventAPIRequest, EventDBOperation, EventFileOperation, EventCacheOperation:
		return true
	}
	return false
}

// Event is one immutable audit record
type Event struct {
	Type       EventType              `bson:"type" json:"type"`
	Timestamp  time.Time              `bson:"timestamp" json:"timestamp"`
	RequestID  string                 `bson:"request_id,omitempty" json:"request_id,omitempty"`
	Method     string                 `bson:"method,omitempty" json:"method,omitempty"`
	Path       string                 `bson:"path,omitempty" json:"path,omitempty"`
	StatusCode int                    `bson:"status_code,omitempty" json:"status_code,omitempty"`
	DurationMs int64                  `bson:"duration_ms,omitempty" json:"duration_ms,omitempty"`
	Metadata   map[string]interface{} `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

// Stats summarizes the stored trail
type Stats struct {
	TotalEvents  int64            `json:"total_events"`
	EventsByType map[string]int64 `json:"events_by_type"`
	OldestEvent  *time.Time       `json:"oldest_event,omitempty"`
	NewestEvent  *time.Time       `json:"newest_event,omitempty"`
	StorageBytes int64            `json:"storage_bytes"`
}

// Sink is the audit contract consumed by the rest of the gateway
type Sink interface {
	Enabled() bool
	// Log records an event without blocking the caller. Errors are swallowed.
	Log(event Event)
	// Query returns events matching the filter. Degrades to an empty list on
	// backend failure.
	Query(ctx context.Context, filter Filter) []Event
	// Count mirrors Query's filter for pagination totals
	Count(ctx context.Context, filter Filter) int64
	// Stats aggregates the stored trail in a single pass
	Stats(ctx context.Context) *Stats
}

// RetentionPeriod is how long events are kept before the storage layer
// expires them.
const RetentionPeriod = 7 * 24 * time.Hour

const (
	collectionName = "audit_events"
	writeTimeout   = 5 * time.Second
)

type Config struct {
	URL      string `json:"url"`
	Database string `json:"database"`
}

// MongoSink implements Sink over a MongoDB collection
type MongoSink struct {
	config  *Config
	client  *mongo.Client
	events  *mongo.Collection
	state   service.State
	breaker *gobreaker.CircuitBreaker
	logger  logging.Logger
}

// NewMongoSink creates an audit sink. The connection is not probed here; call
// Initialize to run the bounded connect-with-retry sequence.
func NewMongoSink(config *Config) *MongoSink {
	if config == nil {
		config = &Config{}
	}

	s := &MongoSink{
		config: config,
		logger: logging.GetGlobalLogger().WithFields(logging.String("component", "audit")),
	}

	// The breaker stops a dead audit store from accumulating timed-out
	// writer goroutines; while open, Log drops events immediately.
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "audit-writes",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn("Audit write breaker state changed",
				logging.String("from", from.String()),
				logging.String("to", to.String()))
		},
	})

	return s
}

// Name implements service.Lifecycle
func (s *MongoSink) Name() string { return "audit" }

// Enabled reports whether a MongoDB URL was configured
func (s *MongoSink) Enabled() bool { return s.config.URL != "" }

// Ready reports whether operations can be attempted without a round trip
func (s *MongoSink) Ready() bool { return s.Enabled() && s.state.Connected() }

// Initialize connects with retry, then ensures the retention and query
// indexes exist.
func (s *MongoSink) Initialize(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}

	err := service.ConnectWithRetry(ctx, s.Name(), service.DefaultRetry, func(ctx context.Context) error {
		probeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()

		if s.client == nil {
			client, err := mongo.Connect(probeCtx, options.Client().ApplyURI(s.config.URL))
			if err != nil {
				return err
			}
			s.client = client
		}
		return s.client.Ping(probeCtx, readpref.Primary())
	})
	if err != nil {
		return err
	}

	s.events = s.client.Database(s.config.Database).Collection(collectionName)
	s.state.SetConnected(true)

	return s.EnsureIndexes(ctx)
}

// Shutdown disconnects from MongoDB if a connection was opened
func (s *MongoSink) Shutdown() error {
	if s.client == nil {
		return nil
	}
	s.state.SetConnected(false)

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// EnsureIndexes creates the TTL index on timestamp plus the compound query
// indexes. Creation is idempotent: "already exists" failures are ignored.
func (s *MongoSink) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "timestamp", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(RetentionPeriod.Seconds())),
		},
		{Keys: bson.D{{Key: "type", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "path", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "status_code", Value: 1}, {Key: "timestamp", Value: -1}}},
	}

	for _, idx := range indexes {
		if _, err := s.events.Indexes().CreateOne(ctx, idx); err != nil {
			if mongo.IsDuplicateKeyError(err) || isIndexConflict(err) {
				continue
			}
			return err
		}
	}
	return nil
}

func isIndexConflict(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		// 85 IndexOptionsConflict, 86 IndexKeySpecsConflict
		return cmdErr.Code == 85 || cmdErr.Code == 86
	}
	return false
}

// Log writes the event from a detached goroutine so the caller never waits on
// the audit store. The goroutine uses its own context: an aborted request
// must not cancel its audit record.
func (s *MongoSink) Log(event Event) {
	if !s.Ready() {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if !ValidType(event.Type) {
		s.logger.Warn("Dropping audit event with unknown type",
			logging.String("type", string(event.Type)))
		return
	}

	go func() {
		_, err := s.breaker.Execute(func() (interface{}, error) {
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			defer cancel()
			return s.events.InsertOne(ctx, event)
		})
		if err != nil {
			s.logger.Warn("Audit event dropped",
				logging.String("type", string(event.Type)),
				logging.String("path", event.Path),
				logging.Err(err))
		}
	}()
}

// Query returns events matching the filter, newest first. Any backend
// failure degrades to an empty list.
func (s *MongoSink) Query(ctx context.Context, filter Filter) []Event {
	if !s.Ready() {
		return nil
	}

	params := filter.page()
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(params.Limit)).
		SetSkip(int64(params.Offset))

	cursor, err := s.events.Find(ctx, filter.document(), opts)
	if err != nil {
		s.logger.Warn("Audit query failed", logging.Err(err))
		return nil
	}
	defer cursor.Close(ctx)

	var events []Event
	if err := cursor.All(ctx, &events); err != nil {
		s.logger.Warn("Audit query decode failed", logging.Err(err))
		return nil
	}
	return events
}

// Count returns the number of events matching the filter
func (s *MongoSink) Count(ctx context.Context, filter Filter) int64 {
	if !s.Ready() {
		return 0
	}

	n, err := s.events.CountDocuments(ctx, filter.document())
	if err != nil {
		s.logger.Warn("Audit count failed", logging.Err(err))
		return 0
	}
	return n
}

// Stats aggregates totals, per-type counts and the time span of the stored
// trail in one grouping pass, plus collection storage size.
func (s *MongoSink) Stats(ctx context.Context) *Stats {
	stats := &Stats{EventsByType: map[string]int64{}}
	if !s.Ready() {
		return stats
	}

	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$type"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "oldest", Value: bson.D{{Key: "$min", Value: "$timestamp"}}},
			{Key: "newest", Value: bson.D{{Key: "$max", Value: "$timestamp"}}},
		}}},
	}

	cursor, err := s.events.Aggregate(ctx, pipeline)
	if err != nil {
		s.logger.Warn("Audit stats aggregation failed", logging.Err(err))
		return stats
	}
	defer cursor.Close(ctx)

	var groups []struct {
		Type   string    `bson:"_id"`
		Count  int64     `bson:"count"`
		Oldest time.Time `bson:"oldest"`
		Newest time.Time `bson:"newest"`
	}
	if err := cursor.All(ctx, &groups); err != nil {
		s.logger.Warn("Audit stats decode failed", logging.Err(err))
		return stats
	}

	for _, g := range groups {
		stats.TotalEvents += g.Count
		stats.EventsByType[g.Type] = g.Count
		oldest, newest := g.Oldest, g.Newest
		if stats.OldestEvent == nil || oldest.Before(*stats.OldestEvent) {
			stats.OldestEvent = &oldest
		}
		if stats.NewestEvent == nil || newest.After(*stats.NewestEvent) {
			stats.NewestEvent = &newest
		}
	}

	var collStats struct {
		StorageSize int64 `bson:"storageSize"`
	}
	err = s.client.Database(s.config.Database).
		RunCommand(ctx, bson.D{{Key: "collStats", Value: collectionName}}).
		Decode(&collStats)
	if err == nil {
		stats.StorageBytes = collStats.StorageSize
	}

	return stats
}

// DisabledSink is the constructed-once no-op variant used when MongoDB is not
// configured.
type DisabledSink struct{}

// NewDisabledSink creates a Sink whose operations all short-circuit
func NewDisabledSink() *DisabledSink { return &DisabledSink{} }

func (*DisabledSink) Enabled() bool { return false }

func (*DisabledSink) Log(event Event) {}

func (*DisabledSink) Query(ctx context.Context, filter Filter) []Event { return nil }

func (*DisabledSink) Count(ctx context.Context, filter Filter) int64 { return 0 }

func (*DisabledSink) Stats(ctx context.Context) *Stats {
	return &Stats{EventsByType: map[string]int64{}}
}
