package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/elastic/go-elasticsearch/v9"

	"github.com/courselane/course_platform/internal/config"
	"github.com/courselane/course_platform/internal/models"
)

const CourseIndex = "courses"

func NewClient(cfg *config.Config) (*elasticsearch.Client, error) {
	esCfg := elasticsearch.Config{
		Addresses: []string{cfg.ES_URL},
		Username:  cfg.ES_USER,
		Password:  cfg.ES_PASSWORD,
	}
	return elasticsearch.NewClient(esCfg)
}

// Indexer mirrors catalog writes into the search index. All methods are
// nil-safe so the service runs without Elasticsearch configured.
type Indexer struct {
	ES    *elasticsearch.Client
	Index string
}

// CourseDoc is the denormalized course projection stored in the index.
type CourseDoc struct {
	ID        uint     `json:"id"`
	Title     string   `json:"title"`
	Summary   string   `json:"summary"`
	Author    string   `json:"author"`
	Category  string   `json:"category"`
	Language  string   `json:"language"`
	Topics    []string `json:"topics"`
	Price     float64  `json:"price"`
	Published bool     `json:"published"`
}

func (ix *Indexer) IndexCourse(ctx context.Context, course *models.Course) error {
	if ix == nil || ix.ES == nil {
		return nil
	}

	doc := CourseDoc{
		ID:        course.ID,
		Title:     course.Title,
		Summary:   course.Summary,
		Author:    course.Author,
		Category:  course.Category,
		Language:  course.Language,
		Topics:    course.Topics,
		Price:     course.Price,
		Published: course.Published,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(doc); err != nil {
		return err
	}

	res, err := ix.ES.Index(
		ix.Index,
		&buf,
		ix.ES.Index.WithDocumentID(strconv.FormatUint(uint64(course.ID), 10)),
		ix.ES.Index.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index course: %s", res.String())
	}
	return nil
}

func (ix *Indexer) DeleteCourse(ctx context.Context, courseID uint) error {
	if ix == nil || ix.ES == nil {
		return nil
	}

	res, err := ix.ES.Delete(
		ix.Index,
		strconv.FormatUint(uint64(courseID), 10),
		ix.ES.Delete.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("delete course from index: %s", res.String())
	}
	return nil
}

// Search runs a fuzzy multi-field query over published courses.
func Search(ctx context.Context, es *elasticsearch.Client, index, query string, from, size int) (int64, []CourseDoc, error) {
	body := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": map[string]interface{}{
					"multi_match": map[string]interface{}{
						"query":     query,
						"fields":    []string{"title^2", "summary", "topics"},
						"fuzziness": "AUTO",
					},
				},
				"filter": map[string]interface{}{
					"term": map[string]interface{}{"published": true},
				},
			},
		},
		"from": from,
		"size": size,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return 0, nil, err
	}

	res, err := es.Search(
		es.Search.WithContext(ctx),
		es.Search.WithIndex(index),
		es.Search.WithBody(&buf),
	)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, nil, fmt.Errorf("search courses: %s", res.String())
	}

	var r struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source CourseDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return 0, nil, err
	}

	docs := make([]CourseDoc, len(r.Hits.Hits))
	for i, hit := range r.Hits.Hits {
		docs[i] = hit.Source
	}
	return r.Hits.Total.Value, docs, nil
}
