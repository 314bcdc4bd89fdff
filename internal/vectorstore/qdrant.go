package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var qdrantTracer = otel.Tracer("lexflow.vectorstore.qdrant")

// pointNamespace derives stable point UUIDs from section ids so that
// re-ingesting a section overwrites its previous point.
var pointNamespace = uuid.MustParse("6f1c3f2e-9a51-4c3b-8f1e-2f7d0f5b7a10")

const (
	payloadID      = "id"
	payloadContent = "content"
)

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname. Default: "localhost"
	Host string `koanf:"host"`

	// Port is the gRPC port, not the REST port. Default: 6334
	Port int `koanf:"port"`

	// APIKey is sent with every request when set.
	APIKey string `koanf:"api_key"`

	// Collection holds the corpus sections. Default: "lexflow_sections"
	Collection string `koanf:"collection"`

	// VectorSize must match the embedder output. Default: 384
	VectorSize uint64 `koanf:"vector_size"`

	// Distance is one of cosine, euclid, dot. Default: cosine
	Distance string `koanf:"distance"`

	UseTLS bool `koanf:"use_tls"`

	// MaxRetries for transient gRPC failures. Default: 3
	MaxRetries int `koanf:"max_retries"`

	// RetryBackoff is the initial backoff, doubled per attempt. Default: 1s
	RetryBackoff time.Duration `koanf:"retry_backoff"`

	// MaxMessageSize in bytes. Default: 50MB
	MaxMessageSize int `koanf:"max_message_size"`

	// CircuitBreakerThreshold is the consecutive failure count that opens
	// the breaker. Default: 5
	CircuitBreakerThreshold uint32 `koanf:"circuit_breaker_threshold"`

	// CircuitBreakerTimeout is how long the breaker stays open. Default: 30s
	CircuitBreakerTimeout time.Duration `koanf:"circuit_breaker_timeout"`
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "lexflow_sections"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
	if c.Distance == "" {
		c.Distance = "cosine"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
	if c.CircuitBreakerThreshold == 0 {
		c.CircuitBreakerThreshold = 5
	}
	if c.CircuitBreakerTimeout == 0 {
		c.CircuitBreakerTimeout = 30 * time.Second
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	if _, err := parseDistance(c.Distance); err != nil {
		return err
	}
	return ValidateCollectionName(c.Collection)
}

func parseDistance(name string) (qdrant.Distance, error) {
	switch name {
	case "cosine", "":
		return qdrant.Distance_Cosine, nil
	case "euclid":
		return qdrant.Distance_Euclid, nil
	case "dot":
		return qdrant.Distance_Dot, nil
	default:
		return 0, fmt.Errorf("%w: unknown distance %q", ErrInvalidConfig, name)
	}
}

// IsTransientError reports whether a gRPC error is worth retrying.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// PointID returns the Qdrant point UUID for a section id. Valid UUIDs are
// used as-is.
func PointID(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(pointNamespace, []byte(id)).String()
}

// QdrantStore implements Store using Qdrant's native gRPC client.
type QdrantStore struct {
	client   *qdrant.Client
	embedder Embedder
	config   QdrantConfig
	breaker  *gobreaker.CircuitBreaker
	logger   *zap.Logger
}

// NewQdrantStore connects to Qdrant, checks health and ensures the
// collection exists.
func NewQdrantStore(ctx context.Context, config QdrantConfig, embedder Embedder, logger *zap.Logger) (*QdrantStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if !config.UseTLS {
		logger.Warn("qdrant gRPC using plaintext, TLS disabled")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	s := &QdrantStore{
		client:   client,
		embedder: embedder,
		config:   config,
		breaker:  newBreaker("qdrant", config.CircuitBreakerThreshold, config.CircuitBreakerTimeout, logger),
		logger:   logger,
	}

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := client.HealthCheck(initCtx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}
	if err := s.ensureCollection(initCtx); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("qdrant store initialized",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("collection", config.Collection),
	)
	return s, nil
}

func newBreaker(name string, threshold uint32, timeout time.Duration, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Permanent errors (bad request, not found) do not count against the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || !IsTransientError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.config.Collection)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", s.config.Collection, err)
	}
	if exists {
		return nil
	}

	distance, _ := parseDistance(s.config.Distance)
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.config.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.config.VectorSize,
			Distance: distance,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", s.config.Collection, err)
	}
	s.logger.Info("created qdrant collection", zap.String("collection", s.config.Collection))
	return nil
}

// retry runs op through the circuit breaker with exponential backoff on
// transient errors.
func (s *QdrantStore) retry(ctx context.Context, name string, op func() error) error {
	backoff := s.config.RetryBackoff
	for attempt := 0; ; attempt++ {
		_, err := s.breaker.Execute(func() (interface{}, error) {
			return nil, op()
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%s: %w", name, err)
		}
		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", name, err)
		}
		if attempt >= s.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", name, s.config.MaxRetries, err)
		}

		s.logger.Debug("retrying qdrant operation",
			zap.String("operation", name),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", name, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

// AddDocuments embeds and upserts documents.
func (s *QdrantStore) AddDocuments(ctx context.Context, docs []Document) ([]string, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.AddDocuments")
	defer span.End()

	span.SetAttributes(
		attribute.Int("document_count", len(docs)),
		attribute.String("collection", s.config.Collection),
	)

	if len(docs) == 0 {
		return nil, ErrEmptyDocuments
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		if doc.ID == "" {
			return nil, fmt.Errorf("document at index %d has no id", i)
		}
		texts[i] = doc.Content
	}

	embeddings, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(embeddings) != len(docs) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d documents", ErrEmbeddingFailed, len(embeddings), len(docs))
	}

	ids := make([]string, len(docs))
	points := make([]*qdrant.PointStruct, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(doc.ID)),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: toPayload(doc),
		}
	}

	err = s.retry(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.config.Collection,
			Points:         points,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("upserting points to collection %s: %w", s.config.Collection, err)
	}

	span.SetStatus(codes.Ok, "success")
	return ids, nil
}

// Search performs similarity search over the collection.
func (s *QdrantStore) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	return s.SearchWithFilters(ctx, query, k, nil)
}

// SearchWithFilters performs similarity search with keyword metadata filters.
func (s *QdrantStore) SearchWithFilters(ctx context.Context, query string, k int, filters map[string]any) ([]SearchResult, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Search")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("k", k),
	)

	if err := validateQuery(query, k); err != nil {
		return nil, err
	}
	if k > maxK {
		k = maxK
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	var points []*qdrant.ScoredPoint
	err = s.retry(ctx, "search", func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.config.Collection,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(k)),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         toFilter(filters),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching collection %s: %w", s.config.Collection, err)
	}

	out := make([]SearchResult, len(points))
	for i, point := range points {
		out[i] = fromPayload(point.Payload)
		out[i].Score = point.Score
	}

	span.SetAttributes(attribute.Int("results_count", len(out)))
	span.SetStatus(codes.Ok, "success")
	return out, nil
}

// DeleteDocuments deletes points whose payload id matches.
func (s *QdrantStore) DeleteDocuments(ctx context.Context, ids []string) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.DeleteDocuments")
	defer span.End()

	span.SetAttributes(attribute.Int("id_count", len(ids)))
	if len(ids) == 0 {
		return nil
	}

	err := s.retry(ctx, "delete", func() error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: s.config.Collection,
			Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
				Must: []*qdrant.Condition{qdrant.NewMatchKeywords(payloadID, ids...)},
			}),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting documents: %w", err)
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Count returns the exact number of points in the collection.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	var n uint64
	err := s.retry(ctx, "count", func() error {
		var err error
		n, err = s.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: s.config.Collection,
			Exact:          qdrant.PtrOf(true),
		})
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("counting points: %w", err)
	}
	return int(n), nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func toPayload(doc Document) map[string]*qdrant.Value {
	payload := make(map[string]*qdrant.Value, len(doc.Metadata)+2)
	for k, v := range doc.Metadata {
		switch val := v.(type) {
		case string:
			payload[k] = qdrant.NewValueString(val)
		case int:
			payload[k] = qdrant.NewValueInt(int64(val))
		case int64:
			payload[k] = qdrant.NewValueInt(val)
		case float64:
			payload[k] = qdrant.NewValueDouble(val)
		case bool:
			payload[k] = qdrant.NewValueBool(val)
		default:
			payload[k] = qdrant.NewValueString(fmt.Sprintf("%v", val))
		}
	}
	payload[payloadID] = qdrant.NewValueString(doc.ID)
	payload[payloadContent] = qdrant.NewValueString(doc.Content)
	return payload
}

func fromPayload(payload map[string]*qdrant.Value) SearchResult {
	var r SearchResult
	if payload == nil {
		return r
	}
	r.Metadata = make(map[string]any, len(payload))
	for k, v := range payload {
		switch val := v.GetKind().(type) {
		case *qdrant.Value_StringValue:
			switch k {
			case payloadID:
				r.ID = val.StringValue
			case payloadContent:
				r.Content = val.StringValue
			default:
				r.Metadata[k] = val.StringValue
			}
		case *qdrant.Value_IntegerValue:
			r.Metadata[k] = val.IntegerValue
		case *qdrant.Value_DoubleValue:
			r.Metadata[k] = val.DoubleValue
		case *qdrant.Value_BoolValue:
			r.Metadata[k] = val.BoolValue
		}
	}
	return r
}

func toFilter(filters map[string]any) *qdrant.Filter {
	if len(filters) == 0 {
		return nil
	}
	conditions := make([]*qdrant.Condition, 0, len(filters))
	for key, value := range filters {
		switch v := value.(type) {
		case string:
			conditions = append(conditions, qdrant.NewMatchKeyword(key, v))
		case bool:
			conditions = append(conditions, qdrant.NewMatchBool(key, v))
		case int:
			conditions = append(conditions, qdrant.NewMatchInt(key, int64(v)))
		case int64:
			conditions = append(conditions, qdrant.NewMatchInt(key, v))
		}
	}
	if len(conditions) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: conditions}
}

var _ Store = (*QdrantStore)(nil)
