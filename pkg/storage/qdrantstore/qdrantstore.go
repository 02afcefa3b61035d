// Package qdrantstore keeps documents in a Qdrant collection. Each document
// is one point: the embedding is the point vector and the payload carries
// the rest of the record. Point ids are name-based UUIDs of document ids.
package qdrantstore

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/proto"

	"github.com/papercomputeco/docquery/pkg/logger"
	"github.com/papercomputeco/docquery/pkg/storage"
)

const (
	// DefaultCollection is used when the DSN names none.
	DefaultCollection = "docquery"

	manifestSuffix = "_manifest"
	scrollPage     = 256

	payloadID        = "id"
	payloadText      = "text"
	payloadSeq       = "seq"
	payloadMetadata  = "metadata"
	payloadCreatedAt = "created_at"
	payloadUpdatedAt = "updated_at"
	payloadManifest  = "manifest"
)

// namespace scopes the name-based point UUIDs.
var namespace = uuid.MustParse("6f1c2a4e-7d1b-5c3a-9e8f-0b4d2c6a8e10")

// Config holds the connection settings parsed from a DSN.
type Config struct {
	Addr       string
	Collection string
	APIKey     string
	TLS        bool
}

// ParseDSN reads "qdrant://host:port/collection?api_key=...&tls=true".
func ParseDSN(dsn string) (Config, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return Config{}, fmt.Errorf("invalid qdrant dsn: %w", err)
	}
	if u.Scheme != "qdrant" {
		return Config{}, fmt.Errorf("invalid qdrant dsn scheme %q", u.Scheme)
	}

	cfg := Config{
		Addr:       u.Host,
		Collection: DefaultCollection,
		APIKey:     u.Query().Get("api_key"),
	}
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6334"
	}
	if p := u.Path; len(p) > 1 {
		cfg.Collection = p[1:]
	}
	if t := u.Query().Get("tls"); t != "" {
		cfg.TLS, err = strconv.ParseBool(t)
		if err != nil {
			return Config{}, fmt.Errorf("invalid qdrant dsn tls flag: %w", err)
		}
	}
	return cfg, nil
}

// Driver implements storage.Driver on Qdrant.
type Driver struct {
	conn        *grpc.ClientConn
	points      qdrant.PointsClient
	collections qdrant.CollectionsClient
	collection  string
	logger      *slog.Logger

	// mu guards seqs, lastSeq and ready.
	mu      sync.Mutex
	seqs    map[string]uint64
	lastSeq uint64
	ready   map[string]bool
}

// NewDriver connects to Qdrant and loads the id to sequence map from the
// collection, if it exists. The collection itself is created on first Put,
// once the vector size is known.
func NewDriver(ctx context.Context, cfg Config, log *slog.Logger) (*Driver, error) {
	if log == nil {
		log = logger.Nop()
	}

	opts := []grpc.DialOption{}
	if cfg.TLS {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	if cfg.APIKey != "" {
		key := cfg.APIKey
		opts = append(opts, grpc.WithUnaryInterceptor(func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, callOpts ...grpc.CallOption) error {
			return invoker(metadata.AppendToOutgoingContext(ctx, "api-key", key), method, req, reply, cc, callOpts...)
		}))
	}

	conn, err := grpc.NewClient(cfg.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not connect to qdrant: %w", err)
	}

	d := &Driver{
		conn:        conn,
		points:      qdrant.NewPointsClient(conn),
		collections: qdrant.NewCollectionsClient(conn),
		collection:  cfg.Collection,
		logger:      log,
		seqs:        make(map[string]uint64),
		ready:       make(map[string]bool),
	}

	if err := d.load(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	log.Debug("opened qdrant store", "addr", cfg.Addr, "collection", cfg.Collection, "documents", len(d.seqs))
	return d, nil
}

func (d *Driver) exists(ctx context.Context, name string) (bool, error) {
	if d.ready[name] {
		return true, nil
	}

	resp, err := d.collections.CollectionExists(ctx, &qdrant.CollectionExistsRequest{CollectionName: name})
	if err != nil {
		return false, storage.Unavailable("check collection", err)
	}
	ok := resp.GetResult().GetExists()
	if ok {
		d.ready[name] = true
	}
	return ok, nil
}

// ensure creates the named collection with dot-product distance, which
// stores vectors unmodified.
func (d *Driver) ensure(ctx context.Context, name string, size int) error {
	ok, err := d.exists(ctx, name)
	if err != nil || ok {
		return err
	}

	d.logger.Info("creating qdrant collection", "collection", name, "size", size)
	_, err = d.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(size),
			Distance: qdrant.Distance_Dot,
		}),
	})
	if err != nil {
		return storage.Unavailable("create collection", err)
	}
	d.ready[name] = true
	return nil
}

func (d *Driver) load(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ok, err := d.exists(ctx, d.collection)
	if err != nil || !ok {
		return err
	}

	var offset *qdrant.PointId
	for {
		resp, err := d.points.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: d.collection,
			Offset:         offset,
			Limit:          proto.Uint32(scrollPage),
			WithPayload: &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Include{
				Include: &qdrant.PayloadIncludeSelector{Fields: []string{payloadID, payloadSeq}},
			}},
		})
		if err != nil {
			return storage.Unavailable("scroll collection", err)
		}

		for _, p := range resp.GetResult() {
			payload := p.GetPayload()
			id := payload[payloadID].GetStringValue()
			seq := uint64(payload[payloadSeq].GetIntegerValue())
			d.seqs[id] = seq
			d.lastSeq = max(d.lastSeq, seq)
		}

		offset = resp.GetNextPageOffset()
		if offset == nil {
			return nil
		}
	}
}

// PointID returns the Qdrant point id for a document id.
func PointID(id string) *qdrant.PointId {
	return &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: uuid.NewSHA1(namespace, []byte(id)).String()}}
}

func (d *Driver) Put(ctx context.Context, doc *storage.Document) (*storage.Document, error) {
	if doc == nil {
		return nil, errors.New("cannot store nil document")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensure(ctx, d.collection, len(doc.Vector)); err != nil {
		return nil, err
	}

	var existing *storage.Document
	if _, ok := d.seqs[doc.ID]; ok {
		prev, err := d.get(ctx, doc.ID)
		if err != nil && !storage.IsNotFound(err) {
			return nil, err
		}
		existing = prev
	}

	stored := storage.Merge(doc, existing, d.lastSeq+1)
	point, err := EncodePoint(stored)
	if err != nil {
		return nil, err
	}

	_, err = d.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: d.collection,
		Points:         []*qdrant.PointStruct{point},
		Wait:           proto.Bool(true),
	})
	if err != nil {
		return nil, storage.Unavailable("upsert point", err)
	}

	d.seqs[stored.ID] = stored.Seq
	d.lastSeq = max(d.lastSeq, stored.Seq)
	return stored, nil
}

func (d *Driver) Get(ctx context.Context, id string) (*storage.Document, error) {
	d.mu.Lock()
	_, ok := d.seqs[id]
	d.mu.Unlock()
	if !ok {
		return nil, storage.NotFoundError{ID: id}
	}
	return d.get(ctx, id)
}

func (d *Driver) get(ctx context.Context, id string) (*storage.Document, error) {
	resp, err := d.points.Get(ctx, &qdrant.GetPoints{
		CollectionName: d.collection,
		Ids:            []*qdrant.PointId{PointID(id)},
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
		WithVectors:    &qdrant.WithVectorsSelector{SelectorOptions: &qdrant.WithVectorsSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, storage.Unavailable("get point", err)
	}

	result := resp.GetResult()
	if len(result) == 0 {
		return nil, storage.NotFoundError{ID: id}
	}
	return DecodePoint(result[0].GetPayload(), result[0].GetVectors().GetVector().GetData())
}

func (d *Driver) Delete(ctx context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seqs[id]; !ok {
		return false, nil
	}

	_, err := d.points.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: d.collection,
		Wait:           proto.Bool(true),
		Points: &qdrant.PointsSelector{PointsSelectorOneOf: &qdrant.PointsSelector_Points{
			Points: &qdrant.PointsIdsList{Ids: []*qdrant.PointId{PointID(id)}},
		}},
	})
	if err != nil {
		return false, storage.Unavailable("delete point", err)
	}

	delete(d.seqs, id)
	return true, nil
}

func (d *Driver) ListIDs(_ context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := make([]string, 0, len(d.seqs))
	for id := range d.seqs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return d.seqs[ids[i]] < d.seqs[ids[j]] })
	return ids, nil
}

// Manifest reads the single point of the companion manifest collection.
func (d *Driver) Manifest(ctx context.Context) (*storage.Manifest, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	name := d.collection + manifestSuffix
	ok, err := d.exists(ctx, name)
	if err != nil || !ok {
		return nil, err
	}

	resp, err := d.points.Get(ctx, &qdrant.GetPoints{
		CollectionName: name,
		Ids:            []*qdrant.PointId{PointID(payloadManifest)},
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, storage.Unavailable("get manifest", err)
	}
	if len(resp.GetResult()) == 0 {
		return nil, nil
	}

	var m storage.Manifest
	raw := resp.GetResult()[0].GetPayload()[payloadManifest].GetStringValue()
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return &m, nil
}

func (d *Driver) SetManifest(ctx context.Context, m *storage.Manifest) error {
	if m == nil {
		return errors.New("cannot store nil manifest")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	name := d.collection + manifestSuffix
	if err := d.ensure(ctx, name, 1); err != nil {
		return err
	}

	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	_, err = d.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Wait:           proto.Bool(true),
		Points: []*qdrant.PointStruct{{
			Id:      PointID(payloadManifest),
			Vectors: &qdrant.Vectors{VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: []float32{1}}}},
			Payload: map[string]*qdrant.Value{
				payloadManifest: {Kind: &qdrant.Value_StringValue{StringValue: string(raw)}},
			},
		}},
	})
	if err != nil {
		return storage.Unavailable("store manifest", err)
	}
	return nil
}

func (d *Driver) Close() error {
	return d.conn.Close()
}

// EncodePoint converts a document into a Qdrant point.
func EncodePoint(doc *storage.Document) (*qdrant.PointStruct, error) {
	meta, err := storage.EncodeMetadata(doc.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	return &qdrant.PointStruct{
		Id:      PointID(doc.ID),
		Vectors: &qdrant.Vectors{VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: doc.Vector}}},
		Payload: map[string]*qdrant.Value{
			payloadID:        {Kind: &qdrant.Value_StringValue{StringValue: doc.ID}},
			payloadText:      {Kind: &qdrant.Value_StringValue{StringValue: doc.Text}},
			payloadSeq:       {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(doc.Seq)}},
			payloadMetadata:  {Kind: &qdrant.Value_StringValue{StringValue: string(meta)}},
			payloadCreatedAt: {Kind: &qdrant.Value_StringValue{StringValue: doc.CreatedAt.Format(time.RFC3339Nano)}},
			payloadUpdatedAt: {Kind: &qdrant.Value_StringValue{StringValue: doc.UpdatedAt.Format(time.RFC3339Nano)}},
		},
	}, nil
}

// DecodePoint rebuilds a document from a point payload and vector.
func DecodePoint(payload map[string]*qdrant.Value, vec []float32) (*storage.Document, error) {
	id := payload[payloadID].GetStringValue()
	if id == "" {
		return nil, errors.New("qdrant point is missing the document id")
	}

	meta, err := storage.DecodeMetadata([]byte(payload[payloadMetadata].GetStringValue()))
	if err != nil {
		return nil, fmt.Errorf("failed to decode metadata for %s: %w", id, err)
	}

	doc := &storage.Document{
		ID:       id,
		Text:     payload[payloadText].GetStringValue(),
		Metadata: meta,
		Vector:   append([]float32(nil), vec...),
		Seq:      uint64(payload[payloadSeq].GetIntegerValue()),
	}
	if doc.CreatedAt, err = parseTime(payload[payloadCreatedAt].GetStringValue()); err != nil {
		return nil, err
	}
	if doc.UpdatedAt, err = parseTime(payload[payloadUpdatedAt].GetStringValue()); err != nil {
		return nil, err
	}
	return doc, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

var _ storage.Driver = (*Driver)(nil)
