package service

import (
	"context"
	"testing"

	"DocStack/backend-go/internal/data"
	"DocStack/backend-go/internal/dto"
	"DocStack/backend-go/internal/errs"
	"DocStack/backend-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCreateStore(t *testing.T, env *testEnv, name string) *dto.DocstoreResp {
	t.Helper()
	resp, err := env.stores.CreateDocstore(context.Background(), 1, dto.CreateDocstoreReq{Name: name})
	require.NoError(t, err)
	return resp
}

func TestCreateDocstore(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.stores.CreateDocstore(context.Background(), 1, dto.CreateDocstoreReq{
		Name:        "Product Manuals",
		Description: "内部产品手册",
	})
	require.NoError(t, err)

	// slug 从名字派生
	assert.Equal(t, "product-manuals", resp.Slug)
	assert.Contains(t, resp.IndexName, "docstack-product-manuals-")
	assert.True(t, resp.IsActive)

	// 索引先于元数据创建，默认模型 bge-large 是 1024 维
	require.Len(t, env.search.created, 1)
	assert.Equal(t, 1024, env.search.dims[resp.IndexName])

	// 默认模型配置一并落库
	var mc model.ModelConfig
	require.NoError(t, env.db.Where("docstore_id = ?", resp.ID).First(&mc).Error)
	assert.Equal(t, DefaultEmbedderModel, mc.EmbedderModel)
	assert.Equal(t, model.SplitterSentence, mc.SplitterType)
	assert.True(t, mc.IsActive)
}

func TestCreateDocstoreSlugConflict(t *testing.T) {
	env := newTestEnv(t)
	mustCreateStore(t, env, "Manuals")

	_, err := env.stores.CreateDocstore(context.Background(), 1, dto.CreateDocstoreReq{Name: "Manuals"})
	require.Error(t, err)
	assert.Equal(t, errs.KindConflict, errs.KindOf(err))

	// 冲突时不应该建第二个索引
	assert.Len(t, env.search.created, 1)
}

func TestCreateDocstoreInvalidSlug(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.stores.CreateDocstore(context.Background(), 1, dto.CreateDocstoreReq{
		Name: "X",
		Slug: "UPPER_case!",
	})
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
	assert.Empty(t, env.search.created)
}

func TestCreateDocstoreIndexFailure(t *testing.T) {
	env := newTestEnv(t)
	env.search.createErr = assert.AnError

	_, err := env.stores.CreateDocstore(context.Background(), 1, dto.CreateDocstoreReq{Name: "Manuals"})
	require.Error(t, err)
	assert.Equal(t, errs.KindDependency, errs.KindOf(err))

	// 索引没建成，元数据一行都不能有
	var count int64
	env.db.Model(&model.Docstore{}).Count(&count)
	assert.EqualValues(t, 0, count)
}

func TestCreateDocstoreUnknownModelFallback(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.stores.CreateDocstore(context.Background(), 1, dto.CreateDocstoreReq{
		Name: "Manuals",
		ModelSettings: &dto.ModelSettingsReq{
			EmbedderModel: "acme/secret-model-v9",
		},
	})
	require.NoError(t, err)

	// 维度表没收录的模型走兜底维度
	assert.Equal(t, DefaultEmbeddingDim, env.search.dims[resp.IndexName])
}

func TestUpdateDocstoreKeepsSlug(t *testing.T) {
	env := newTestEnv(t)
	created := mustCreateStore(t, env, "Manuals")

	newName := "Renamed Manuals"
	_, err := env.stores.UpdateDocstore(context.Background(), created.ID, dto.UpdateDocstoreReq{Name: &newName})
	require.NoError(t, err)

	var store model.Docstore
	require.NoError(t, env.db.First(&store, created.ID).Error)
	assert.Equal(t, "Renamed Manuals", store.Name)
	// slug 和索引名不随改名变化
	assert.Equal(t, "manuals", store.Slug)
	assert.Equal(t, created.IndexName, store.IndexName)
}

func TestDeleteDocstore(t *testing.T) {
	env := newTestEnv(t)
	created := mustCreateStore(t, env, "Manuals")

	// 库里塞一个文档
	require.NoError(t, env.db.Create(&model.Document{
		DocstoreID: created.ID, UploadedBy: 1,
		Filename: "a.pdf", MimeType: "application/pdf", SizeBytes: 10,
		Checksum: "abc", StoragePath: "docstores/1/a.pdf",
		Status: model.DocStatusCompleted,
	}).Error)

	resp, err := env.stores.DeleteDocstore(context.Background(), 1, created.ID)
	require.NoError(t, err)
	assert.True(t, resp.Deleted)
	assert.Empty(t, resp.Warning)

	// 元数据级联清空
	var stores, docs, configs int64
	env.db.Model(&model.Docstore{}).Count(&stores)
	env.db.Model(&model.Document{}).Count(&docs)
	env.db.Model(&model.ModelConfig{}).Count(&configs)
	assert.EqualValues(t, 0, stores)
	assert.EqualValues(t, 0, docs)
	assert.EqualValues(t, 0, configs)

	// 索引和远端 Pipeline 目录也清了
	assert.Contains(t, env.search.deleted, created.IndexName)
	assert.Contains(t, env.deployer.deletions, "manuals")
}

func TestDeleteDocstoreIndexFailureIsWarning(t *testing.T) {
	env := newTestEnv(t)
	created := mustCreateStore(t, env, "Manuals")
	env.search.deleteErr = assert.AnError

	resp, err := env.stores.DeleteDocstore(context.Background(), 1, created.ID)
	require.NoError(t, err)

	// 元数据删除成功就算成功，索引清理失败只降级为 warning
	assert.True(t, resp.Deleted)
	assert.NotEmpty(t, resp.Warning)

	var count int64
	env.db.Model(&model.Docstore{}).Count(&count)
	assert.EqualValues(t, 0, count)
}

func TestDeleteDocstoreAllowsSlugReuse(t *testing.T) {
	env := newTestEnv(t)
	created := mustCreateStore(t, env, "Manuals")

	_, err := env.stores.DeleteDocstore(context.Background(), 1, created.ID)
	require.NoError(t, err)

	// 删干净之后 slug 可以复用
	again, err := env.stores.CreateDocstore(context.Background(), 1, dto.CreateDocstoreReq{Name: "Manuals"})
	require.NoError(t, err)
	assert.Equal(t, "manuals", again.Slug)
}

func TestReindexOrdering(t *testing.T) {
	env := newTestEnv(t)
	created := mustCreateStore(t, env, "Manuals")
	oldIndex := created.IndexName

	// 一个已完成的文档，回放时要从对象存储读回来
	path, err := env.objects.PutObject(context.Background(), created.ID, "a.pdf", []byte("content"), "application/pdf")
	require.NoError(t, err)
	require.NoError(t, env.db.Create(&model.Document{
		DocstoreID: created.ID, UploadedBy: 1,
		Filename: "a.pdf", MimeType: "application/pdf", SizeBytes: 7,
		Checksum: "abc", StoragePath: path,
		Status: model.DocStatusCompleted, SourceID: "src-1",
	}).Error)

	resp, err := env.stores.Reindex(context.Background(), 1, created.ID)
	require.NoError(t, err)

	assert.Equal(t, oldIndex, resp.OldIndexName)
	assert.NotEqual(t, oldIndex, resp.NewIndexName)
	assert.Equal(t, 1, resp.Replayed)
	assert.Equal(t, 0, resp.Failed)

	// indexing pipeline 先于 query pipeline 切换，中间夹着回放
	require.Equal(t, []string{"manuals/indexing", "manuals/query"}, env.deployer.deploys)
	assert.Equal(t, 1, env.runtime.indexCallCount())

	// 元数据指针切到新索引
	var store model.Docstore
	require.NoError(t, env.db.First(&store, created.ID).Error)
	assert.Equal(t, resp.NewIndexName, store.IndexName)

	// 旧索引进清理队列，而不是当场删除
	assert.Equal(t, []string{oldIndex}, env.queue.queues[DropIndexQueue])
	assert.Empty(t, env.search.deleted)
}

func TestReindexLockConflict(t *testing.T) {
	env := newTestEnv(t)
	created := mustCreateStore(t, env, "Manuals")

	release, ok := env.stores.locks.TryAcquire(created.ID)
	require.True(t, ok)
	defer release()

	_, err := env.stores.Reindex(context.Background(), 1, created.ID)
	require.Error(t, err)
	assert.Equal(t, errs.KindConflict, errs.KindOf(err))
}

func TestReindexDeployFailureKeepsOldIndex(t *testing.T) {
	env := newTestEnv(t)
	created := mustCreateStore(t, env, "Manuals")
	env.deployer.deployErr = assert.AnError

	_, err := env.stores.Reindex(context.Background(), 1, created.ID)
	require.Error(t, err)

	// 切换没发生，指针还指旧索引
	var store model.Docstore
	require.NoError(t, env.db.First(&store, created.ID).Error)
	assert.Equal(t, created.IndexName, store.IndexName)

	// 半成品新索引进清理队列，旧索引不动
	require.Len(t, env.search.created, 2)
	newIndex := env.search.created[1]
	assert.Equal(t, []string{newIndex}, env.queue.queues[DropIndexQueue])
	assert.NotContains(t, env.queue.queues[DropIndexQueue], created.IndexName)
}

func TestCreateDocstoreUniqueRaceMapsToConflict(t *testing.T) {
	env := newTestEnv(t)
	created := mustCreateStore(t, env, "Manuals")

	// 软删掉这行：slug 预检查看不到它，但唯一键还占着 ——
	// 等价于两个并发创建同时通过预检查后输家撞唯一键的时刻
	require.NoError(t, env.db.Delete(&model.Docstore{}, created.ID).Error)

	_, err := env.stores.CreateDocstore(context.Background(), 1, dto.CreateDocstoreReq{Name: "Manuals"})
	require.Error(t, err)
	assert.Equal(t, errs.KindConflict, errs.KindOf(err))

	// 输家的索引被回收
	require.Len(t, env.search.created, 2)
	assert.Equal(t, []string{env.search.created[1]}, env.search.deleted)
}

func TestQueryMergeOrdering(t *testing.T) {
	env := newTestEnv(t)
	a := mustCreateStore(t, env, "Alpha")
	b := mustCreateStore(t, env, "Beta")

	env.runtime.queryHits["alpha"] = []RetrievedDoc{
		{Content: "a-high", Score: 0.9},
		{Content: "a-tie", Score: 0.5},
	}
	env.runtime.queryHits["beta"] = []RetrievedDoc{
		{Content: "b-mid", Score: 0.7},
		{Content: "b-tie", Score: 0.5},
	}

	resp, err := env.stores.Query(context.Background(), dto.QueryReq{
		DocstoreIDs: []uint{a.ID, b.ID},
		Query:       "测试",
		TopK:        10,
	})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 4)

	// 分数降序；平分时先出现请求里靠前的库
	assert.Equal(t, "a-high", resp.Hits[0].Content)
	assert.Equal(t, "b-mid", resp.Hits[1].Content)
	assert.Equal(t, "a-tie", resp.Hits[2].Content)
	assert.Equal(t, "b-tie", resp.Hits[3].Content)

	// 命中带来源库信息
	assert.Equal(t, "alpha", resp.Hits[0].DocstoreSlug)
	assert.Equal(t, b.ID, resp.Hits[1].DocstoreID)
}

func TestQueryTopKCap(t *testing.T) {
	env := newTestEnv(t)
	a := mustCreateStore(t, env, "Alpha")

	env.runtime.queryHits["alpha"] = []RetrievedDoc{
		{Content: "1", Score: 0.9},
		{Content: "2", Score: 0.8},
		{Content: "3", Score: 0.7},
	}

	resp, err := env.stores.Query(context.Background(), dto.QueryReq{
		DocstoreIDs: []uint{a.ID},
		Query:       "q",
		TopK:        2,
	})
	require.NoError(t, err)
	assert.Len(t, resp.Hits, 2)
	assert.Equal(t, "1", resp.Hits[0].Content)
}

func TestQueryPartialFailure(t *testing.T) {
	env := newTestEnv(t)
	a := mustCreateStore(t, env, "Alpha")
	b := mustCreateStore(t, env, "Beta")

	env.runtime.queryHits["alpha"] = []RetrievedDoc{{Content: "hit", Score: 0.9}}
	env.runtime.queryErrs["beta"] = assert.AnError

	resp, err := env.stores.Query(context.Background(), dto.QueryReq{
		DocstoreIDs: []uint{a.ID, b.ID},
		Query:       "q",
	})
	require.NoError(t, err)

	// 一个库挂了不拖垮整个请求
	assert.Len(t, resp.Hits, 1)
	require.Contains(t, resp.Errors, "beta")
}

func TestQueryAllStoresFail(t *testing.T) {
	env := newTestEnv(t)
	a := mustCreateStore(t, env, "Alpha")
	env.runtime.queryErrs["alpha"] = assert.AnError

	_, err := env.stores.Query(context.Background(), dto.QueryReq{
		DocstoreIDs: []uint{a.ID},
		Query:       "q",
	})
	require.Error(t, err)
	assert.Equal(t, errs.KindDependency, errs.KindOf(err))
}

func TestQueryUnknownStore(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.stores.Query(context.Background(), dto.QueryReq{
		DocstoreIDs: []uint{999},
		Query:       "q",
	})
	require.Error(t, err)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestGetStatsCalibratesChunkCount(t *testing.T) {
	env := newTestEnv(t)
	created := mustCreateStore(t, env, "Manuals")

	env.search.statsData[created.IndexName] = &data.IndexStats{
		DocCount:  42,
		SizeBytes: 4096,
	}

	resp, err := env.stores.GetStats(context.Background(), created.ID)
	require.NoError(t, err)

	require.NotNil(t, resp.IndexDocCount)
	assert.EqualValues(t, 42, *resp.IndexDocCount)
	assert.EqualValues(t, 4096, *resp.IndexSizeBytes)
	// 冗余计数按索引真实值校准
	assert.Equal(t, 42, resp.ChunkCount)

	var store model.Docstore
	require.NoError(t, env.db.First(&store, created.ID).Error)
	assert.Equal(t, 42, store.ChunkCount)
}

func TestGetStatsIndexUnreachable(t *testing.T) {
	env := newTestEnv(t)
	created := mustCreateStore(t, env, "Manuals")

	resp, err := env.stores.GetStats(context.Background(), created.ID)
	require.NoError(t, err)

	// 索引不可达时实时字段留空，不报错
	assert.Nil(t, resp.IndexDocCount)
	assert.Nil(t, resp.IndexSizeBytes)
}
