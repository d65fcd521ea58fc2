package service

import (
	"context"
	"testing"
	"time"

	"DocStack/backend-go/internal/dto"
	"DocStack/backend-go/internal/errs"
	"DocStack/backend-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitIndexed 等 n 次运行时调用发生，然后等所有文档离开中间状态
func waitIndexed(t *testing.T, env *testEnv, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-env.runtime.indexed:
		case <-time.After(5 * time.Second):
			t.Fatal("异步索引超时")
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var inflight int64
		env.db.Model(&model.Document{}).
			Where("status IN ?", []string{model.DocStatusPending, model.DocStatusProcessing}).
			Count(&inflight)
		if inflight == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("文档状态机未收敛")
}

func TestUploadDocuments(t *testing.T) {
	env := newTestEnv(t)
	store := mustCreateStore(t, env, "Manuals")

	outcomes, err := env.docs.UploadDocuments(context.Background(), 1, store.ID, []UploadFile{
		{Filename: "a.pdf", MimeType: "application/pdf", Content: []byte("content-a")},
		{Filename: "b.txt", MimeType: "text/plain", Content: []byte("content-b")},
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, dto.UploadOutcomeIndexed, outcomes[0].Outcome)
	assert.Equal(t, dto.UploadOutcomeIndexed, outcomes[1].Outcome)

	waitIndexed(t, env, 2)

	// 异步链路把状态推到 completed
	var docs []model.Document
	require.NoError(t, env.db.Where("docstore_id = ?", store.ID).Find(&docs).Error)
	require.Len(t, docs, 2)
	for _, d := range docs {
		assert.Equal(t, model.DocStatusCompleted, d.Status)
		assert.Equal(t, 3, d.ChunkCount)
		assert.NotEmpty(t, d.SourceID)
		assert.NotEmpty(t, d.Checksum)
	}

	// 冗余计数跟上
	var st model.Docstore
	require.NoError(t, env.db.First(&st, store.ID).Error)
	assert.Equal(t, 2, st.DocumentCount)
	assert.Equal(t, 6, st.ChunkCount)
	assert.EqualValues(t, 18, st.TotalSizeBytes)
}

func TestUploadDuplicate(t *testing.T) {
	env := newTestEnv(t)
	store := mustCreateStore(t, env, "Manuals")

	first, err := env.docs.UploadDocuments(context.Background(), 1, store.ID, []UploadFile{
		{Filename: "a.pdf", MimeType: "application/pdf", Content: []byte("same-content")},
	})
	require.NoError(t, err)
	waitIndexed(t, env, 1)

	// 同内容不同文件名，照样判重
	second, err := env.docs.UploadDocuments(context.Background(), 1, store.ID, []UploadFile{
		{Filename: "renamed.pdf", MimeType: "application/pdf", Content: []byte("same-content")},
	})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, dto.UploadOutcomeDuplicate, second[0].Outcome)
	assert.Equal(t, first[0].DocumentID, second[0].DocumentID)

	// 没有新记录，计数不动
	var count int64
	env.db.Model(&model.Document{}).Count(&count)
	assert.EqualValues(t, 1, count)
	assert.Equal(t, 1, env.runtime.indexCallCount())
}

func TestUploadSameContentDifferentStores(t *testing.T) {
	env := newTestEnv(t)
	a := mustCreateStore(t, env, "Alpha")
	b := mustCreateStore(t, env, "Beta")

	content := []byte("shared-content")
	_, err := env.docs.UploadDocuments(context.Background(), 1, a.ID, []UploadFile{
		{Filename: "a.pdf", MimeType: "application/pdf", Content: content},
	})
	require.NoError(t, err)

	// 判重只在库内生效，跨库同内容各自入库
	outcomes, err := env.docs.UploadDocuments(context.Background(), 1, b.ID, []UploadFile{
		{Filename: "a.pdf", MimeType: "application/pdf", Content: content},
	})
	require.NoError(t, err)
	assert.Equal(t, dto.UploadOutcomeIndexed, outcomes[0].Outcome)
	waitIndexed(t, env, 2)
}

func TestUploadFailedRetryInPlace(t *testing.T) {
	env := newTestEnv(t)
	store := mustCreateStore(t, env, "Manuals")

	// 第一次上传运行时挂了
	env.runtime.mu.Lock()
	env.runtime.indexErr = assert.AnError
	env.runtime.mu.Unlock()

	first, err := env.docs.UploadDocuments(context.Background(), 1, store.ID, []UploadFile{
		{Filename: "a.pdf", MimeType: "application/pdf", Content: []byte("content")},
	})
	require.NoError(t, err)
	waitIndexed(t, env, 1)

	var doc model.Document
	require.NoError(t, env.db.First(&doc, first[0].DocumentID).Error)
	assert.Equal(t, model.DocStatusFailed, doc.Status)
	assert.NotEmpty(t, doc.ErrorMsg)

	// 运行时恢复后重传同内容：原地重试，不新建记录
	env.runtime.mu.Lock()
	env.runtime.indexErr = nil
	env.runtime.mu.Unlock()

	second, err := env.docs.UploadDocuments(context.Background(), 1, store.ID, []UploadFile{
		{Filename: "a.pdf", MimeType: "application/pdf", Content: []byte("content")},
	})
	require.NoError(t, err)
	assert.Equal(t, dto.UploadOutcomeIndexed, second[0].Outcome)
	assert.Equal(t, first[0].DocumentID, second[0].DocumentID)
	waitIndexed(t, env, 1)

	require.NoError(t, env.db.First(&doc, first[0].DocumentID).Error)
	assert.Equal(t, model.DocStatusCompleted, doc.Status)
	assert.Empty(t, doc.ErrorMsg)

	var count int64
	env.db.Model(&model.Document{}).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestUploadEmptyFile(t *testing.T) {
	env := newTestEnv(t)
	store := mustCreateStore(t, env, "Manuals")

	outcomes, err := env.docs.UploadDocuments(context.Background(), 1, store.ID, []UploadFile{
		{Filename: "empty.txt", MimeType: "text/plain", Content: nil},
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, dto.UploadOutcomeFailed, outcomes[0].Outcome)
	assert.NotEmpty(t, outcomes[0].Error)
}

func TestUploadMixedOutcomes(t *testing.T) {
	env := newTestEnv(t)
	store := mustCreateStore(t, env, "Manuals")

	_, err := env.docs.UploadDocuments(context.Background(), 1, store.ID, []UploadFile{
		{Filename: "a.pdf", MimeType: "application/pdf", Content: []byte("dup")},
	})
	require.NoError(t, err)
	waitIndexed(t, env, 1)

	outcomes, err := env.docs.UploadDocuments(context.Background(), 1, store.ID, []UploadFile{
		{Filename: "a.pdf", MimeType: "application/pdf", Content: []byte("dup")},
		{Filename: "b.txt", MimeType: "text/plain", Content: []byte("fresh")},
		{Filename: "empty", MimeType: "text/plain", Content: nil},
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	// 一批里各种结局互不影响
	assert.Equal(t, dto.UploadOutcomeDuplicate, outcomes[0].Outcome)
	assert.Equal(t, dto.UploadOutcomeIndexed, outcomes[1].Outcome)
	assert.Equal(t, dto.UploadOutcomeFailed, outcomes[2].Outcome)
	waitIndexed(t, env, 1)
}

func TestUploadStorageFailure(t *testing.T) {
	env := newTestEnv(t)
	store := mustCreateStore(t, env, "Manuals")
	env.objects.putErr = assert.AnError

	outcomes, err := env.docs.UploadDocuments(context.Background(), 1, store.ID, []UploadFile{
		{Filename: "a.pdf", MimeType: "application/pdf", Content: []byte("content")},
	})
	require.NoError(t, err)
	assert.Equal(t, dto.UploadOutcomeFailed, outcomes[0].Outcome)

	// 落盘失败不能留下记录
	var count int64
	env.db.Model(&model.Document{}).Count(&count)
	assert.EqualValues(t, 0, count)
}

func TestDeleteDocument(t *testing.T) {
	env := newTestEnv(t)
	store := mustCreateStore(t, env, "Manuals")

	outcomes, err := env.docs.UploadDocuments(context.Background(), 1, store.ID, []UploadFile{
		{Filename: "a.pdf", MimeType: "application/pdf", Content: []byte("content")},
	})
	require.NoError(t, err)
	waitIndexed(t, env, 1)

	require.NoError(t, env.docs.DeleteDocument(context.Background(), 1, store.ID, outcomes[0].DocumentID))

	// 记录没了，计数归零不出负数
	var count int64
	env.db.Model(&model.Document{}).Count(&count)
	assert.EqualValues(t, 0, count)

	var st model.Docstore
	require.NoError(t, env.db.First(&st, store.ID).Error)
	assert.Equal(t, 0, st.DocumentCount)
	assert.Equal(t, 0, st.ChunkCount)
	assert.EqualValues(t, 0, st.TotalSizeBytes)

	// 原始文件也清了
	assert.Empty(t, env.objects.objects)
}

func TestDeleteDocumentIndexFailureAborts(t *testing.T) {
	env := newTestEnv(t)
	store := mustCreateStore(t, env, "Manuals")

	outcomes, err := env.docs.UploadDocuments(context.Background(), 1, store.ID, []UploadFile{
		{Filename: "a.pdf", MimeType: "application/pdf", Content: []byte("content")},
	})
	require.NoError(t, err)
	waitIndexed(t, env, 1)

	env.search.deleteErr = assert.AnError
	err = env.docs.DeleteDocument(context.Background(), 1, store.ID, outcomes[0].DocumentID)
	require.Error(t, err)
	assert.Equal(t, errs.KindDependency, errs.KindOf(err))

	// 索引清不掉就保留记录，避免索引里留无主 chunk
	var count int64
	env.db.Model(&model.Document{}).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestDeleteDocumentWrongStore(t *testing.T) {
	env := newTestEnv(t)
	a := mustCreateStore(t, env, "Alpha")
	b := mustCreateStore(t, env, "Beta")

	outcomes, err := env.docs.UploadDocuments(context.Background(), 1, a.ID, []UploadFile{
		{Filename: "a.pdf", MimeType: "application/pdf", Content: []byte("content")},
	})
	require.NoError(t, err)
	waitIndexed(t, env, 1)

	// 文档归属校验：拿 B 库的路径删 A 库的文档要 404
	err = env.docs.DeleteDocument(context.Background(), 1, b.ID, outcomes[0].DocumentID)
	require.Error(t, err)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestListDocumentsStatusFilter(t *testing.T) {
	env := newTestEnv(t)
	store := mustCreateStore(t, env, "Manuals")

	require.NoError(t, env.db.Create(&model.Document{
		DocstoreID: store.ID, UploadedBy: 1, Filename: "ok.pdf",
		MimeType: "application/pdf", SizeBytes: 1, Checksum: "c1",
		StoragePath: "p1", Status: model.DocStatusCompleted,
	}).Error)
	require.NoError(t, env.db.Create(&model.Document{
		DocstoreID: store.ID, UploadedBy: 1, Filename: "bad.pdf",
		MimeType: "application/pdf", SizeBytes: 1, Checksum: "c2",
		StoragePath: "p2", Status: model.DocStatusFailed,
	}).Error)

	all, err := env.docs.ListDocuments(context.Background(), store.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	failed, err := env.docs.ListDocuments(context.Background(), store.ID, model.DocStatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "bad.pdf", failed[0].Filename)
}
