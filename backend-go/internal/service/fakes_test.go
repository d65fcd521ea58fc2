package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"DocStack/backend-go/internal/conf"
	"DocStack/backend-go/internal/data"
	"DocStack/backend-go/internal/model"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// =================================================================================
// 测试基础设施：内存 SQLite + 外部系统假实现
// =================================================================================

// setupTestDB 每个测试一个独立的共享内存库 (异步 goroutine 也要能访问同一份数据)
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.Docstore{},
		&model.Document{},
		&model.ModelConfig{},
		&model.Pipeline{},
		&model.AuditLog{},
	))
	return db
}

func testConfig() *conf.Config {
	return &conf.Config{
		Search: conf.SearchConfig{
			URL:         "http://localhost:9200",
			IndexPrefix: "docstack",
		},
	}
}

// ---------------------------------------------------------------------------------
// fakeIndexManager 记录索引操作顺序
// ---------------------------------------------------------------------------------

type fakeIndexManager struct {
	mu        sync.Mutex
	created   []string
	deleted   []string
	dims      map[string]int
	createErr error
	deleteErr error
	statsData map[string]*data.IndexStats
}

func newFakeIndexManager() *fakeIndexManager {
	return &fakeIndexManager{
		dims:      map[string]int{},
		statsData: map[string]*data.IndexStats{},
	}
}

func (f *fakeIndexManager) CreateIndex(ctx context.Context, name string, dim int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, name)
	f.dims[name] = dim
	return nil
}

func (f *fakeIndexManager) DeleteIndex(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, name)
	return nil
}

func (f *fakeIndexManager) IndexExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.created {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeIndexManager) DeleteBySourceID(ctx context.Context, index string, sourceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deleteErr
}

func (f *fakeIndexManager) Stats(ctx context.Context, name string) (*data.IndexStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.statsData[name]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("index %s not found", name)
}

// ---------------------------------------------------------------------------------
// fakeRuntime 可编程的运行时假实现
// ---------------------------------------------------------------------------------

type fakeRuntime struct {
	mu         sync.Mutex
	indexCalls []string // 收到的文件名
	chunkCount int
	indexErr   error
	queryHits  map[string][]RetrievedDoc // slug -> 命中
	queryErrs  map[string]error          // slug -> 失败
	// 每次索引调用完成后发一个信号，测试用它等异步流程收尾
	indexed chan struct{}
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		chunkCount: 3,
		queryHits:  map[string][]RetrievedDoc{},
		queryErrs:  map[string]error{},
		indexed:    make(chan struct{}, 64),
	}
}

func (f *fakeRuntime) IndexDocuments(ctx context.Context, slug string, files []RuntimeFile, metadata map[string]string) (*IndexResult, error) {
	f.mu.Lock()
	for _, file := range files {
		f.indexCalls = append(f.indexCalls, file.Filename)
	}
	err := f.indexErr
	count := f.chunkCount
	f.mu.Unlock()

	defer func() { f.indexed <- struct{}{} }()
	if err != nil {
		return nil, err
	}
	return &IndexResult{ChunkCount: count}, nil
}

func (f *fakeRuntime) Query(ctx context.Context, slug string, text string, topK int) ([]RetrievedDoc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.queryErrs[slug]; ok {
		return nil, err
	}
	return f.queryHits[slug], nil
}

func (f *fakeRuntime) Health(ctx context.Context) error { return nil }

func (f *fakeRuntime) indexCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.indexCalls)
}

// ---------------------------------------------------------------------------------
// fakeDeployer 记录部署顺序
// ---------------------------------------------------------------------------------

type fakeDeployer struct {
	mu        sync.Mutex
	deploys   []string // "slug/type"
	deletions []string
	deployErr error
}

func (f *fakeDeployer) Deploy(slug string, pipelineType string, yamlContent string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deployErr != nil {
		return f.deployErr
	}
	f.deploys = append(f.deploys, slug+"/"+pipelineType)
	return nil
}

func (f *fakeDeployer) DeletePipelines(slug string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletions = append(f.deletions, slug)
	return nil
}

func (f *fakeDeployer) CheckDeployment(slug string) (*DeployStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	files := []string{}
	for _, d := range f.deploys {
		if len(d) > len(slug) && d[:len(slug)] == slug {
			files = append(files, d[len(slug)+1:]+".yaml")
		}
	}
	return &DeployStatus{Deployed: len(files) > 0, Files: files}, nil
}

// ---------------------------------------------------------------------------------
// fakeObjects 内存对象存储
// ---------------------------------------------------------------------------------

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string][]byte{}}
}

func (f *fakeObjects) PutObject(ctx context.Context, docstoreID uint, filename string, content []byte, mimeType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return "", f.putErr
	}
	path := fmt.Sprintf("docstores/%d/%s", docstoreID, filename)
	f.objects[path] = append([]byte(nil), content...)
	return path, nil
}

func (f *fakeObjects) GetObject(ctx context.Context, objectName string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.objects[objectName]
	if !ok {
		return nil, fmt.Errorf("object %s not found", objectName)
	}
	return content, nil
}

func (f *fakeObjects) RemoveObject(ctx context.Context, objectName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, objectName)
	return nil
}

// ---------------------------------------------------------------------------------
// fakeQueue 内存任务队列
// ---------------------------------------------------------------------------------

type fakeQueue struct {
	mu     sync.Mutex
	queues map[string][]string
	err    error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{queues: map[string][]string{}}
}

func (f *fakeQueue) PushTask(ctx context.Context, queue string, payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.queues[queue] = append(f.queues[queue], payload)
	return nil
}

// ---------------------------------------------------------------------------------
// 装配
// ---------------------------------------------------------------------------------

type testEnv struct {
	db       *gorm.DB
	search   *fakeIndexManager
	runtime  *fakeRuntime
	deployer *fakeDeployer
	objects  *fakeObjects
	queue    *fakeQueue
	stores   *DocstoreService
	docs     *DocumentService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := setupTestDB(t)
	env := &testEnv{
		db:       db,
		search:   newFakeIndexManager(),
		runtime:  newFakeRuntime(),
		deployer: &fakeDeployer{},
		objects:  newFakeObjects(),
		queue:    newFakeQueue(),
	}

	audit := NewAuditService(db)
	env.stores = &DocstoreService{
		db:       db,
		search:   env.search,
		objects:  env.objects,
		queue:    env.queue,
		runtime:  env.runtime,
		deployer: env.deployer,
		gen:      NewPipelineGenerator(),
		audit:    audit,
		locks:    NewStoreLockSet(),
		cfg:      testConfig(),
	}
	env.docs = &DocumentService{
		db:      db,
		search:  env.search,
		objects: env.objects,
		runtime: env.runtime,
		audit:   audit,
	}
	return env
}
