// internal/storage/archive.go
package storage

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"

	"ihydro/internal/common/database"
	"ihydro/internal/models"
)

const readingsMapping = `{
	"mappings": {
		"properties": {
			"timestamp": {"type": "date"},
			"temperature": {"type": "double"},
			"humidity": {"type": "double"},
			"tds": {"type": "double"},
			"ph": {"type": "double"}
		}
	}
}`

// Archive indexes readings into Elasticsearch for long-range search.
type Archive struct {
	es    *database.ElasticsearchClient
	index string
}

func NewArchive(es *database.ElasticsearchClient, index string) *Archive {
	return &Archive{es: es, index: index}
}

func (a *Archive) EnsureIndex(ctx context.Context) error {
	return a.es.EnsureIndex(ctx, a.index, readingsMapping)
}

// Index stores r under the given row id so re-indexing is idempotent.
func (a *Archive) Index(ctx context.Context, id int64, r models.Reading) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode reading: %w", err)
	}

	client := a.es.Client
	res, err := client.Index(a.index, bytes.NewReader(body),
		client.Index.WithContext(ctx),
		client.Index.WithDocumentID(strconv.FormatInt(id, 10)),
	)
	if err != nil {
		return fmt.Errorf("index reading: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index reading: %s", res.Status())
	}
	return nil
}
