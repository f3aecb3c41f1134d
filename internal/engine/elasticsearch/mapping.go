package elasticsearch

import (
	"encoding/json"

	"github.com/utafrali/catalog-indexer/internal/document"
	"github.com/utafrali/catalog-indexer/internal/engine"
)

// buildIndexMapping returns the JSON settings and mapping of a product
// index. Known text fields are analyzed, every other string is a keyword,
// and dynamically named price fields map to doubles.
func buildIndexMapping() string {
	properties := map[string]any{
		document.IDField:           map[string]any{"type": "keyword"},
		document.BoostsField:       map[string]any{"type": "object", "enabled": false},
		"introductionDate":         map[string]any{"type": "long"},
		"salesDiscontinuationDate": map[string]any{"type": "long"},
	}
	for _, name := range engine.TextFields {
		properties[name] = map[string]any{"type": "text", "analyzer": "standard"}
	}

	body := map[string]any{
		"settings": map[string]any{
			"number_of_shards":   1,
			"number_of_replicas": 0,
		},
		"mappings": map[string]any{
			"dynamic_templates": []any{
				map[string]any{
					"prices": map[string]any{
						"match":   "*_price",
						"mapping": map[string]any{"type": "double"},
					},
				},
				map[string]any{
					"terms": map[string]any{
						"match_mapping_type": "string",
						"mapping":            map[string]any{"type": "keyword"},
					},
				},
			},
			"properties": properties,
		},
	}

	data, _ := json.Marshal(body)
	return string(data)
}
