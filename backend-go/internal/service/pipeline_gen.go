package service

import (
	"bytes"
	"text/template"

	"DocStack/backend-go/internal/errs"
	"DocStack/backend-go/internal/model"
)

// =================================================================================
// Pipeline 模板引擎：纯函数，无 I/O
// 相同参数渲染结果逐字节一致 (上层据此比较内容判断是否变更)
// =================================================================================

// PipelineParams 渲染参数集
type PipelineParams struct {
	IndexName      string
	EmbedderModel  string
	EmbeddingDim   int
	SplitBy        string // sentence / word / passage，仅 indexing 用
	SplitLength    int
	SplitOverlap   int
	TopK           int // 仅 query 用
	Normalize      bool
	BatchSize      int
	OpenSearchHost string
}

// 索引 Pipeline：converter -> splitter -> embedder -> writer
const indexingTemplate = `components:
  converter:
    type: haystack.components.converters.multi_file_converter.MultiFileConverter
    init_parameters: {}
  splitter:
    type: haystack.components.preprocessors.document_splitter.DocumentSplitter
    init_parameters:
      split_by: {{ .SplitBy }}
      split_length: {{ .SplitLength }}
      split_overlap: {{ .SplitOverlap }}
  embedder:
    type: haystack.components.embedders.sentence_transformers_document_embedder.SentenceTransformersDocumentEmbedder
    init_parameters:
      model: {{ .EmbedderModel }}
      normalize_embeddings: {{ .Normalize }}
      batch_size: {{ .BatchSize }}
  writer:
    type: haystack.components.writers.document_writer.DocumentWriter
    init_parameters:
      document_store:
        type: haystack_integrations.document_stores.opensearch.document_store.OpenSearchDocumentStore
        init_parameters:
          hosts:
            - {{ .OpenSearchHost }}
          index: {{ .IndexName }}
          embedding_dim: {{ .EmbeddingDim }}
          create_index: false
connections:
  - sender: converter.documents
    receiver: splitter.documents
  - sender: splitter.documents
    receiver: embedder.documents
  - sender: embedder.documents
    receiver: writer.documents
`

// 检索 Pipeline：text_embedder -> retriever
const queryTemplate = `components:
  text_embedder:
    type: haystack.components.embedders.sentence_transformers_text_embedder.SentenceTransformersTextEmbedder
    init_parameters:
      model: {{ .EmbedderModel }}
      normalize_embeddings: {{ .Normalize }}
  retriever:
    type: haystack_integrations.components.retrievers.opensearch.embedding_retriever.OpenSearchEmbeddingRetriever
    init_parameters:
      document_store:
        type: haystack_integrations.document_stores.opensearch.document_store.OpenSearchDocumentStore
        init_parameters:
          hosts:
            - {{ .OpenSearchHost }}
          index: {{ .IndexName }}
          embedding_dim: {{ .EmbeddingDim }}
          create_index: false
      top_k: {{ .TopK }}
connections:
  - sender: text_embedder.embedding
    receiver: retriever.query_embedding
`

type PipelineGenerator struct {
	indexingTpl *template.Template
	queryTpl    *template.Template
}

func NewPipelineGenerator() *PipelineGenerator {
	return &PipelineGenerator{
		indexingTpl: template.Must(template.New("indexing").Parse(indexingTemplate)),
		queryTpl:    template.Must(template.New("query").Parse(queryTemplate)),
	}
}

// Render 按类型渲染 Pipeline YAML
func (g *PipelineGenerator) Render(kind string, p PipelineParams) (string, error) {
	if err := validateParams(kind, p); err != nil {
		return "", err
	}

	var tpl *template.Template
	switch kind {
	case model.PipelineTypeIndexing:
		tpl = g.indexingTpl
	case model.PipelineTypeQuery:
		tpl = g.queryTpl
	default:
		return "", errs.Validation("未知的 Pipeline 类型: %s", kind)
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, p); err != nil {
		return "", errs.Validation("Pipeline 渲染失败: %v", err)
	}
	return buf.String(), nil
}

func validateParams(kind string, p PipelineParams) error {
	if p.IndexName == "" {
		return errs.Validation("缺少参数: index_name")
	}
	if p.EmbedderModel == "" {
		return errs.Validation("缺少参数: embedder_model")
	}
	if p.EmbeddingDim <= 0 {
		return errs.Validation("缺少参数: embedding_dim")
	}
	if p.OpenSearchHost == "" {
		return errs.Validation("缺少参数: opensearch_host")
	}

	switch kind {
	case model.PipelineTypeIndexing:
		switch p.SplitBy {
		case model.SplitterSentence, model.SplitterWord, model.SplitterPassage:
		default:
			return errs.Validation("非法的切分策略: %q (允许 sentence/word/passage)", p.SplitBy)
		}
		if p.SplitLength <= 0 {
			return errs.Validation("缺少参数: split_length")
		}
		if p.SplitOverlap < 0 || p.SplitOverlap >= p.SplitLength {
			return errs.Validation("split_overlap 必须在 [0, split_length) 区间")
		}
		if p.BatchSize <= 0 {
			return errs.Validation("缺少参数: batch_size")
		}
	case model.PipelineTypeQuery:
		if p.TopK <= 0 {
			return errs.Validation("缺少参数: top_k")
		}
	}
	return nil
}

// =================================================================================
// Embedding 维度解析
// =================================================================================

// 常见模型的维度查表 (静态配置数据)
// 表里没有的模型走 DefaultEmbeddingDim 兜底，并在创建库时打告警
var embeddingDimTable = map[string]int{
	"BAAI/bge-large-en-v1.5":                  1024,
	"BAAI/bge-base-en-v1.5":                   768,
	"BAAI/bge-small-en-v1.5":                  384,
	"sentence-transformers/all-MiniLM-L6-v2":  384,
	"sentence-transformers/all-mpnet-base-v2": 768,
	"intfloat/e5-large-v2":                    1024,
	"intfloat/e5-base-v2":                     768,
}

const DefaultEmbeddingDim = 768

// LookupEmbeddingDim 查表；第二个返回值表示是否命中
func LookupEmbeddingDim(modelName string) (int, bool) {
	dim, ok := embeddingDimTable[modelName]
	return dim, ok
}
