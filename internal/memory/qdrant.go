package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"lerian-mcp-conflicts/internal/config"
	"lerian-mcp-conflicts/internal/logging"
)

const (
	qdrantVectorSize = 1 // payload-only store; the vector is a placeholder
	qdrantPageSize   = 256

	payloadOwner = "owner"
	payloadKey   = "key"
	payloadKind  = "kind"
	payloadText  = "text"
	payloadValue = "value"

	kindRecord = "record"
	kindNote   = "note"
)

// pointNamespace seeds deterministic point ids so Put on the same (owner, key) overwrites
var pointNamespace = uuid.MustParse("6f1f7f2e-4a53-4c1b-9a7e-3b1c2d4e5f60")

// scrollPageFunc fetches one page of a scroll; the response carries the next page offset
type scrollPageFunc func(ctx context.Context, req *qdrant.ScrollPoints) (*qdrant.ScrollResponse, error)

// QdrantBackend stores records as payload-only points with a full-text index on the searchable text
type QdrantBackend struct {
	client         *qdrant.Client
	config         config.QdrantConfig
	collectionName string
	logger         logging.Logger
}

// NewQdrantBackend creates a backend; call Initialize before use
func NewQdrantBackend(cfg config.QdrantConfig, logger logging.Logger) *QdrantBackend {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &QdrantBackend{
		config:         cfg,
		collectionName: cfg.Collection,
		logger:         logger.WithComponent("qdrant-backend"),
	}
}

// Initialize connects and creates the collection and payload indexes if missing
func (q *QdrantBackend) Initialize(ctx context.Context) error {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   q.config.Host,
		Port:   q.config.Port,
		APIKey: q.config.APIKey,
		UseTLS: q.config.UseTLS,
	})
	if err != nil {
		return fmt.Errorf("failed to create Qdrant client: %w", err)
	}
	q.client = client

	collections, err := q.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	for _, name := range collections {
		if name == q.collectionName {
			q.logger.Info("Qdrant collection found", "collection", q.collectionName)
			return nil
		}
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(qdrantVectorSize),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", q.collectionName, err)
	}

	indexes := map[string]qdrant.FieldType{
		payloadOwner: qdrant.FieldType_FieldTypeKeyword,
		payloadKey:   qdrant.FieldType_FieldTypeKeyword,
		payloadKind:  qdrant.FieldType_FieldTypeKeyword,
		payloadText:  qdrant.FieldType_FieldTypeText,
	}
	for field, fieldType := range indexes {
		_, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: q.collectionName,
			FieldName:      field,
			FieldType:      qdrant.PtrOf(fieldType),
		})
		if err != nil {
			return fmt.Errorf("failed to index %s: %w", field, err)
		}
	}

	q.logger.Info("Created Qdrant collection", "collection", q.collectionName)
	return nil
}

func (q *QdrantBackend) Put(ctx context.Context, key string, value json.RawMessage, owner string) error {
	return q.upsert(ctx, recordPointID(owner, key), recordPayload(key, value, owner))
}

func (q *QdrantBackend) Get(ctx context.Context, key, owner string) (json.RawMessage, error) {
	points, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: q.collectionName,
		Ids:            []*qdrant.PointId{pointID(recordPointID(owner, key))},
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant get %s: %w", key, err)
	}
	if len(points) == 0 {
		return nil, nil
	}
	return json.RawMessage(payloadString(points[0].GetPayload(), payloadValue)), nil
}

// Search relies on the full-text index: each query term must match a token of the text.
// A non-positive limit returns every match.
func (q *QdrantBackend) Search(ctx context.Context, query, owner string, limit int) (*SearchResults, error) {
	points, err := scrollAll(ctx, q.scrollPage, q.scrollRequest(searchFilter(query, owner)), limit)
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	results := emptyResults()
	for _, p := range points {
		results.Results = append(results.Results, SearchResult{Text: payloadString(p.GetPayload(), payloadText)})
	}
	return results, nil
}

func (q *QdrantBackend) AppendNote(ctx context.Context, text, owner string) error {
	return q.upsert(ctx, uuid.NewString(), notePayload(text, owner))
}

// ListKeys scrolls every page of the owner's records; Qdrant has no prefix match so the
// prefix is applied here
func (q *QdrantBackend) ListKeys(ctx context.Context, prefix, owner string) ([]string, error) {
	points, err := scrollAll(ctx, q.scrollPage, q.scrollRequest(listKeysFilter(owner)), 0)
	if err != nil {
		return nil, fmt.Errorf("qdrant list keys: %w", err)
	}

	keys := []string{}
	for _, p := range points {
		if key := payloadString(p.GetPayload(), payloadKey); strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (q *QdrantBackend) HealthCheck(ctx context.Context) error {
	if q.client == nil {
		return fmt.Errorf("qdrant client not initialized")
	}
	if _, err := q.client.GetCollectionInfo(ctx, q.collectionName); err != nil {
		return fmt.Errorf("qdrant health check failed: %w", err)
	}
	return nil
}

// Close tears down the gRPC connection; closing an uninitialized backend is a no-op
func (q *QdrantBackend) Close() error {
	if q.client == nil {
		return nil
	}
	err := q.client.Close()
	q.client = nil
	if err != nil {
		return fmt.Errorf("qdrant close: %w", err)
	}
	q.logger.Info("Qdrant connection closed")
	return nil
}

func (q *QdrantBackend) upsert(ctx context.Context, id string, payload map[string]*qdrant.Value) error {
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collectionName,
		Points: []*qdrant.PointStruct{{
			Id:      pointID(id),
			Vectors: &qdrant.Vectors{VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: []float32{1}}}},
			Payload: payload,
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

func (q *QdrantBackend) scrollPage(ctx context.Context, req *qdrant.ScrollPoints) (*qdrant.ScrollResponse, error) {
	return q.client.GetPointsClient().Scroll(ctx, req)
}

func (q *QdrantBackend) scrollRequest(filter *qdrant.Filter) *qdrant.ScrollPoints {
	return &qdrant.ScrollPoints{
		CollectionName: q.collectionName,
		Filter:         filter,
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	}
}

// scrollAll follows next-page offsets until the server reports none or max points are
// collected. maxPoints <= 0 means no cap.
func scrollAll(ctx context.Context, page scrollPageFunc, req *qdrant.ScrollPoints, maxPoints int) ([]*qdrant.RetrievedPoint, error) {
	var points []*qdrant.RetrievedPoint
	for {
		size := qdrantPageSize
		if maxPoints > 0 && maxPoints-len(points) < size {
			size = maxPoints - len(points)
		}
		req.Limit = qdrant.PtrOf(uint32(size)) //nolint:gosec // bounded by qdrantPageSize

		resp, err := page(ctx, req)
		if err != nil {
			return nil, err
		}
		points = append(points, resp.GetResult()...)

		next := resp.GetNextPageOffset()
		if next == nil || len(resp.GetResult()) == 0 || (maxPoints > 0 && len(points) >= maxPoints) {
			return points, nil
		}
		req.Offset = next
	}
}

func recordPayload(key string, value json.RawMessage, owner string) map[string]*qdrant.Value {
	return map[string]*qdrant.Value{
		payloadOwner: stringValue(owner),
		payloadKey:   stringValue(key),
		payloadKind:  stringValue(kindRecord),
		payloadText:  stringValue(searchableText(key, value)),
		payloadValue: stringValue(string(value)),
	}
}

func notePayload(text, owner string) map[string]*qdrant.Value {
	return map[string]*qdrant.Value{
		payloadOwner: stringValue(owner),
		payloadKind:  stringValue(kindNote),
		payloadText:  stringValue(text),
	}
}

func listKeysFilter(owner string) *qdrant.Filter {
	return &qdrant.Filter{Must: []*qdrant.Condition{
		keywordCondition(payloadOwner, owner),
		keywordCondition(payloadKind, kindRecord),
	}}
}

func searchFilter(query, owner string) *qdrant.Filter {
	conditions := []*qdrant.Condition{keywordCondition(payloadOwner, owner)}
	for _, term := range queryTerms(query) {
		conditions = append(conditions, textCondition(payloadText, term))
	}
	return &qdrant.Filter{Must: conditions}
}

func recordPointID(owner, key string) string {
	return uuid.NewSHA1(pointNamespace, []byte(owner+"\x00"+key)).String()
}

func pointID(id string) *qdrant.PointId {
	return &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}}
}

func stringValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

func payloadString(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func keywordCondition(field, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   field,
				Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: value}},
			},
		},
	}
}

func textCondition(field, text string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   field,
				Match: &qdrant.Match{MatchValue: &qdrant.Match_Text{Text: text}},
			},
		},
	}
}
