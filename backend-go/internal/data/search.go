package data

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

// IndexStats 索引统计
type IndexStats struct {
	DocCount    int64 `json:"doc_count"`
	SizeBytes   int64 `json:"size_bytes"`
	DeletedDocs int64 `json:"deleted_docs"`
}

// 索引 Mapping: content 文本 + knn_vector + meta + source_id
// 维度由文档库的 Embedding 模型决定
const indexBodyTemplate = `{
  "settings": {
    "index": {
      "knn": true,
      "knn.algo_param.ef_search": 512
    },
    "number_of_shards": 1,
    "number_of_replicas": 0
  },
  "mappings": {
    "properties": {
      "content": {"type": "text"},
      "embedding": {
        "type": "knn_vector",
        "dimension": %d,
        "method": {
          "name": "hnsw",
          "space_type": "cosinesimil",
          "engine": "nmslib",
          "parameters": {
            "ef_construction": 512,
            "m": 16
          }
        }
      },
      "meta": {"type": "object", "enabled": true},
      "source_id": {"type": "keyword"},
      "id": {"type": "keyword"}
    }
  }
}`

// =================================================================================
// 索引管理 (幂等语义：本层不把 "已存在/不存在" 当错误，是否有意义由上层判断)
// =================================================================================

// CreateIndex 创建带 knn_vector 映射的索引；已存在视为成功
func (d *Data) CreateIndex(ctx context.Context, name string, dim int) error {
	body := fmt.Sprintf(indexBodyTemplate, dim)

	res, err := opensearchapi.IndicesCreateRequest{
		Index: name,
		Body:  strings.NewReader(body),
	}.Do(ctx, d.Search)
	if err != nil {
		return fmt.Errorf("create index %s: %v", name, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		// 重复创建是幂等 no-op
		if strings.Contains(string(raw), "resource_already_exists_exception") {
			log.Printf("⚠️ 索引 %s 已存在，跳过创建", name)
			return nil
		}
		return fmt.Errorf("create index %s: [%d] %s", name, res.StatusCode, string(raw))
	}

	log.Printf("✅ 索引已创建: %s (dim=%d)", name, dim)
	return nil
}

// DeleteIndex 删除索引；不存在视为成功
func (d *Data) DeleteIndex(ctx context.Context, name string) error {
	res, err := opensearchapi.IndicesDeleteRequest{
		Index: []string{name},
	}.Do(ctx, d.Search)
	if err != nil {
		return fmt.Errorf("delete index %s: %v", name, err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		log.Printf("⚠️ 索引 %s 不存在，跳过删除", name)
		return nil
	}
	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return fmt.Errorf("delete index %s: [%d] %s", name, res.StatusCode, string(raw))
	}

	log.Printf("✅ 索引已删除: %s", name)
	return nil
}

// IndexExists 检查索引是否存在
func (d *Data) IndexExists(ctx context.Context, name string) (bool, error) {
	res, err := opensearchapi.IndicesExistsRequest{
		Index: []string{name},
	}.Do(ctx, d.Search)
	if err != nil {
		return false, err
	}
	defer res.Body.Close()

	return res.StatusCode == 200, nil
}

// DeleteBySourceID 按 source_id 删除某文档的全部 chunk
func (d *Data) DeleteBySourceID(ctx context.Context, index string, sourceID string) error {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{
				"source_id": sourceID,
			},
		},
	}
	payload, _ := json.Marshal(query)

	res, err := opensearchapi.DeleteByQueryRequest{
		Index: []string{index},
		Body:  strings.NewReader(string(payload)),
	}.Do(ctx, d.Search)
	if err != nil {
		return fmt.Errorf("delete_by_query %s: %v", index, err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		// 索引都没了，chunk 自然也没了
		return nil
	}
	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return fmt.Errorf("delete_by_query %s: [%d] %s", index, res.StatusCode, string(raw))
	}

	var result struct {
		Deleted int64 `json:"deleted"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err == nil {
		log.Printf("✅ 已从 %s 删除 %d 条 chunk (source_id=%s)", index, result.Deleted, sourceID)
	}
	return nil
}

// Stats 获取索引统计 (文档数 / 存储字节数)
func (d *Data) Stats(ctx context.Context, name string) (*IndexStats, error) {
	res, err := opensearchapi.IndicesStatsRequest{
		Index: []string{name},
	}.Do(ctx, d.Search)
	if err != nil {
		return nil, fmt.Errorf("stats %s: %v", name, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("stats %s: [%d] %s", name, res.StatusCode, string(raw))
	}

	// 响应结构: {"indices": {"<name>": {"total": {"docs": {...}, "store": {...}}}}}
	var parsed struct {
		Indices map[string]struct {
			Total struct {
				Docs struct {
					Count   int64 `json:"count"`
					Deleted int64 `json:"deleted"`
				} `json:"docs"`
				Store struct {
					SizeInBytes int64 `json:"size_in_bytes"`
				} `json:"store"`
			} `json:"total"`
		} `json:"indices"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("stats %s: decode failed: %v", name, err)
	}

	idx, ok := parsed.Indices[name]
	if !ok {
		return nil, fmt.Errorf("stats %s: index not in response", name)
	}

	return &IndexStats{
		DocCount:    idx.Total.Docs.Count,
		SizeBytes:   idx.Total.Store.SizeInBytes,
		DeletedDocs: idx.Total.Docs.Deleted,
	}, nil
}

// SearchHealth 集群健康检查 (green/yellow 算健康)
func (d *Data) SearchHealth(ctx context.Context) error {
	res, err := opensearchapi.ClusterHealthRequest{}.Do(ctx, d.Search)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("cluster health: [%d]", res.StatusCode)
	}

	var health struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(res.Body).Decode(&health); err != nil {
		return err
	}
	if health.Status != "green" && health.Status != "yellow" {
		return fmt.Errorf("cluster status: %s", health.Status)
	}
	return nil
}
