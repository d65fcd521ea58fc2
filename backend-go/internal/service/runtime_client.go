package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"DocStack/backend-go/internal/conf"
	"DocStack/backend-go/internal/errs"
)

// =================================================================================
// Hayhooks 运行时客户端
// 每个文档库对应两条远端 Pipeline: {slug}_indexing / {slug}_query
// 运行时返回按 Pipeline 阶段名嵌套的信封，这里统一拍平，上层不感知阶段名
// =================================================================================

// RuntimeFile 提交给索引 Pipeline 的文件
type RuntimeFile struct {
	Filename string
	Content  []byte
	MimeType string
}

// IndexResult 索引提交结果 (拍平后)
type IndexResult struct {
	ChunkCount int
}

// RetrievedDoc 检索结果单条 (拍平后)
type RetrievedDoc struct {
	Content  string
	Score    float64
	SourceID string
}

type HayhooksClient struct {
	baseURL string
	client  *http.Client
}

func NewHayhooksClient(cfg conf.RuntimeConfig) *HayhooksClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute // 大文件解析很慢
	}
	return &HayhooksClient{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// IndexDocuments 多文件 multipart 提交到 {slug}_indexing/run
// metadata 会随表单传给 Pipeline (如 source_id，chunk 落索引时带上)
func (c *HayhooksClient) IndexDocuments(ctx context.Context, slug string, files []RuntimeFile, metadata map[string]string) (*IndexResult, error) {
	url := fmt.Sprintf("%s/%s_indexing/run", c.baseURL, slug)

	// 1. 构造 multipart 表单
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for _, f := range files {
		part, err := writer.CreateFormFile("files", f.Filename)
		if err != nil {
			return nil, errs.Dependency("构造上传表单失败", err)
		}
		if _, err := part.Write(f.Content); err != nil {
			return nil, errs.Dependency("构造上传表单失败", err)
		}
	}
	if len(metadata) > 0 {
		metaBytes, _ := json.Marshal(metadata)
		_ = writer.WriteField("metadata", string(metaBytes))
	}
	if err := writer.Close(); err != nil {
		return nil, errs.Dependency("构造上传表单失败", err)
	}

	// 2. 发送请求
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, errs.Dependency("构造请求失败", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	raw, err := c.do(req)
	if err != nil {
		return nil, err
	}

	// 3. 拍平信封，取 chunk 数
	return &IndexResult{ChunkCount: extractChunkCount(raw)}, nil
}

// Query JSON 提交到 {slug}_query/run，返回拍平后的排序结果
func (c *HayhooksClient) Query(ctx context.Context, slug string, text string, topK int) ([]RetrievedDoc, error) {
	url := fmt.Sprintf("%s/%s_query/run", c.baseURL, slug)

	payload, _ := json.Marshal(map[string]interface{}{
		"query": text,
		"top_k": topK,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, errs.Dependency("构造请求失败", err)
	}
	req.Header.Set("Content-Type", "application/json")

	raw, err := c.do(req)
	if err != nil {
		return nil, err
	}

	return flattenQueryEnvelope(raw)
}

// Health 运行时健康检查
func (c *HayhooksClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("runtime status: %d", resp.StatusCode)
	}
	return nil
}

// do 统一处理：网络错误与非 2xx 一律归为 DependencyError，带上状态码和响应体
func (c *HayhooksClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errs.Dependency("运行时调用失败", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errs.Dependency(
			fmt.Sprintf("运行时返回 [%d]: %s", resp.StatusCode, truncate(string(raw), 500)),
			nil,
		)
	}
	return raw, nil
}

// =================================================================================
// 信封拍平
// Hayhooks 1.8 格式: {"result": {"<阶段名>": {"documents": [...]}}}
// 阶段名随 Pipeline 定义变化 (retriever/writer/...)，不能硬编码
// =================================================================================

type runtimeEnvelope struct {
	Result map[string]json.RawMessage `json:"result"`
}

type stagePayload struct {
	Documents []struct {
		Content string          `json:"content"`
		Score   float64         `json:"score"`
		Meta    map[string]any  `json:"meta"`
		ID      string          `json:"id"`
	} `json:"documents"`
	DocumentsWritten int `json:"documents_written"`
}

func flattenQueryEnvelope(raw []byte) ([]RetrievedDoc, error) {
	var env runtimeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errs.Dependency("运行时响应解析失败", err)
	}

	// 遍历所有阶段，找到带 documents 的那个
	for _, stageRaw := range env.Result {
		var stage stagePayload
		if err := json.Unmarshal(stageRaw, &stage); err != nil {
			continue
		}
		if stage.Documents == nil {
			continue
		}

		docs := make([]RetrievedDoc, 0, len(stage.Documents))
		for _, d := range stage.Documents {
			doc := RetrievedDoc{Content: d.Content, Score: d.Score}
			if sid, ok := d.Meta["source_id"].(string); ok {
				doc.SourceID = sid
			}
			docs = append(docs, doc)
		}
		return docs, nil
	}

	// 没有任何阶段带 documents，视为空结果 (合法：索引里还没数据)
	return []RetrievedDoc{}, nil
}

func extractChunkCount(raw []byte) int {
	var env runtimeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return 0
	}
	for _, stageRaw := range env.Result {
		var stage stagePayload
		if err := json.Unmarshal(stageRaw, &stage); err != nil {
			continue
		}
		if stage.DocumentsWritten > 0 {
			return stage.DocumentsWritten
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
