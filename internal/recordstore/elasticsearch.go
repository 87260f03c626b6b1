package recordstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"

	"referral-workers/internal/common/errors"
)

const createdField = "recordCreatedAt"

// ElasticsearchStore keeps each table in its own index, named prefix+table.
// Writes wait for a refresh so a following Query observes them.
// Queries page through every hit with the scroll API.
type ElasticsearchStore struct {
	client   *elasticsearch.Client
	prefix   string
	pageSize int
	scroll   time.Duration
}

func NewElasticsearchStore(client *elasticsearch.Client, prefix string) *ElasticsearchStore {
	return &ElasticsearchStore{client: client, prefix: prefix, pageSize: 1000, scroll: time.Minute}
}

func (s *ElasticsearchStore) index(table string) string {
	return s.prefix + table
}

type esHit struct {
	ID     string                 `json:"_id"`
	Found  bool                   `json:"found"`
	Source map[string]interface{} `json:"_source"`
}

func (s *ElasticsearchStore) Get(ctx context.Context, table, id string) (*Record, error) {
	req := esapi.GetRequest{Index: s.index(table), DocumentID: id}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, queryError(ctx, table, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, errors.NewResourceNotFoundError(table, "id: "+id)
	}
	if res.IsError() {
		return nil, errors.NewStoreQueryFailedError(table, responseError(res))
	}

	var hit esHit
	if err := json.NewDecoder(res.Body).Decode(&hit); err != nil {
		return nil, errors.NewStoreQueryFailedError(table, err)
	}
	if !hit.Found {
		return nil, errors.NewResourceNotFoundError(table, "id: "+id)
	}
	return hitToRecord(hit.ID, hit.Source), nil
}

func (s *ElasticsearchStore) Query(ctx context.Context, table string, filter Filter) ([]*Record, error) {
	query, err := compileES(filter)
	if err != nil {
		return nil, errors.NewValidationError(err.Error())
	}

	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(map[string]interface{}{
		"query": query,
		"size":  s.pageSize,
	}); err != nil {
		return nil, errors.NewValidationError(err.Error())
	}

	req := esapi.SearchRequest{
		Index:  []string{s.index(table)},
		Body:   &body,
		Scroll: s.scroll,
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, queryError(ctx, table, err)
	}
	// a table nobody has written to yet has no index
	if res.StatusCode == http.StatusNotFound {
		res.Body.Close()
		return nil, nil
	}
	page, err := decodePage(table, res)
	if err != nil {
		return nil, err
	}

	scrollID := page.ScrollID
	defer func() { s.clearScroll(scrollID) }()

	var out []*Record
	for {
		for _, hit := range page.Hits.Hits {
			out = append(out, hitToRecord(hit.ID, hit.Source))
		}
		if len(page.Hits.Hits) < s.pageSize || scrollID == "" {
			break
		}
		page, err = s.nextPage(ctx, table, scrollID)
		if err != nil {
			return nil, err
		}
		if page.ScrollID != "" {
			scrollID = page.ScrollID
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedTime.Equal(out[j].CreatedTime) {
			return out[i].CreatedTime.Before(out[j].CreatedTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

type esPage struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Hits []esHit `json:"hits"`
	} `json:"hits"`
}

func decodePage(table string, res *esapi.Response) (*esPage, error) {
	defer res.Body.Close()
	if res.IsError() {
		return nil, errors.NewStoreQueryFailedError(table, responseError(res))
	}
	var page esPage
	if err := json.NewDecoder(res.Body).Decode(&page); err != nil {
		return nil, errors.NewStoreQueryFailedError(table, err)
	}
	return &page, nil
}

func (s *ElasticsearchStore) nextPage(ctx context.Context, table, scrollID string) (*esPage, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"scroll":    fmt.Sprintf("%ds", int(s.scroll.Seconds())),
		"scroll_id": scrollID,
	})
	if err != nil {
		return nil, errors.NewValidationError(err.Error())
	}
	req := esapi.ScrollRequest{Body: bytes.NewReader(payload)}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, queryError(ctx, table, err)
	}
	return decodePage(table, res)
}

// clearScroll frees the server-side cursor. Failures only cost the server
// the scroll's keep-alive.
func (s *ElasticsearchStore) clearScroll(scrollID string) {
	if scrollID == "" {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{"scroll_id": []string{scrollID}})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req := esapi.ClearScrollRequest{Body: bytes.NewReader(payload)}
	res, err := req.Do(ctx, s.client)
	if err == nil {
		res.Body.Close()
	}
}

func (s *ElasticsearchStore) Create(ctx context.Context, table string, fields map[string]interface{}) (*Record, error) {
	doc := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		doc[k] = v
	}
	created := time.Now().UTC()
	doc[createdField] = created.Format(time.RFC3339Nano)

	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.NewValidationError(fmt.Sprintf("encode fields: %v", err))
	}

	id := uuid.NewString()
	req := esapi.IndexRequest{
		Index:      s.index(table),
		DocumentID: id,
		Body:       bytes.NewReader(payload),
		OpType:     "create",
		Refresh:    "wait_for",
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, writeError(ctx, table, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, errors.NewStoreWriteFailedError(table, responseError(res))
	}

	norm, err := normalize(fields)
	if err != nil {
		return nil, errors.NewValidationError(err.Error())
	}
	return &Record{ID: id, Fields: norm, CreatedTime: created}, nil
}

func (s *ElasticsearchStore) Update(ctx context.Context, table, id string, fields map[string]interface{}) (*Record, error) {
	payload, err := json.Marshal(map[string]interface{}{"doc": fields})
	if err != nil {
		return nil, errors.NewValidationError(fmt.Sprintf("encode fields: %v", err))
	}

	req := esapi.UpdateRequest{
		Index:      s.index(table),
		DocumentID: id,
		Body:       bytes.NewReader(payload),
		Refresh:    "wait_for",
		Source:     []string{"true"},
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, writeError(ctx, table, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, errors.NewResourceNotFoundError(table, "id: "+id)
	}
	if res.IsError() {
		return nil, errors.NewStoreWriteFailedError(table, responseError(res))
	}

	var parsed struct {
		ID  string `json:"_id"`
		Get struct {
			Source map[string]interface{} `json:"_source"`
		} `json:"get"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, errors.NewStoreWriteFailedError(table, err)
	}
	return hitToRecord(id, parsed.Get.Source), nil
}

func hitToRecord(id string, source map[string]interface{}) *Record {
	rec := &Record{ID: id, Fields: make(map[string]interface{}, len(source))}
	for k, v := range source {
		if k == createdField {
			if ts, ok := v.(string); ok {
				rec.CreatedTime, _ = time.Parse(time.RFC3339Nano, ts)
			}
			continue
		}
		rec.Fields[k] = v
	}
	return rec
}

// compileES renders a filter as a bool query. String equality targets the
// keyword sub-field created by dynamic mapping.
func compileES(f Filter) (map[string]interface{}, error) {
	switch f := f.(type) {
	case nil:
		return map[string]interface{}{"match_all": map[string]interface{}{}}, nil
	case EqFilter:
		field := f.Field
		if _, ok := f.Value.(string); ok {
			field += ".keyword"
		}
		return map[string]interface{}{
			"term": map[string]interface{}{field: f.Value},
		}, nil
	case AndFilter:
		clauses, err := compileClauses(f.Filters)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"bool": map[string]interface{}{"filter": clauses},
		}, nil
	case OrFilter:
		clauses, err := compileClauses(f.Filters)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"bool": map[string]interface{}{
				"should":               clauses,
				"minimum_should_match": 1,
			},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported filter %T", f)
	}
}

func compileClauses(filters []Filter) ([]interface{}, error) {
	clauses := make([]interface{}, 0, len(filters))
	for _, sub := range filters {
		q, err := compileES(sub)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, q)
	}
	return clauses, nil
}

func responseError(res *esapi.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
	return fmt.Errorf("elasticsearch %s: %s", res.Status(), string(body))
}
