package data

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"time"

	"DocStack/backend-go/internal/conf"
	"DocStack/backend-go/internal/model"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	opensearch "github.com/opensearch-project/opensearch-go/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Data 结构体持有所有外部系统句柄
type Data struct {
	DB     *gorm.DB
	Redis  *redis.Client
	Minio  *minio.Client
	Search *opensearch.Client

	bucket string
}

func NewData(cfg *conf.Config) (*Data, func(), error) {
	// -------------------------------------------------------
	// 1. 连接 Postgres + 自动迁移
	// -------------------------------------------------------
	dsn := cfg.Data.DatabaseSource
	// TranslateError: 唯一键冲突等方言错误翻译成 gorm.ErrDuplicatedKey，上层按分类处理
	pgDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %v", err)
	}

	if err := pgDB.AutoMigrate(
		&model.User{},
		&model.Docstore{},    // 文档库容器
		&model.Document{},    // 文档记录
		&model.ModelConfig{}, // Embedding/切分配置
		&model.Pipeline{},    // Pipeline 定义
		&model.AuditLog{},    // 审计日志
	); err != nil {
		return nil, nil, fmt.Errorf("schema migration failed: %v", err)
	}

	log.Println("✅ 数据库表结构迁移完成")

	// -------------------------------------------------------
	// 2. 初始化 Redis (旧索引清理队列)
	// -------------------------------------------------------
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Data.RedisAddr,
		Password: cfg.Data.RedisPassword,
	})
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		return nil, nil, fmt.Errorf("redis connect failed: %v", err)
	}
	log.Println("✅ Redis 连接成功")

	// -------------------------------------------------------
	// 3. 初始化 MinIO (原始文件存储，重建索引时回放)
	// -------------------------------------------------------
	minioClient, err := minio.New(cfg.Data.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Data.MinioAccessKey, cfg.Data.MinioSecretKey, ""),
		Secure: false,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("minio init failed: %v", err)
	}

	bucketName := cfg.Data.MinioBucket
	if bucketName == "" {
		bucketName = "docstack-files" // 兜底
	}

	exists, err := minioClient.BucketExists(context.Background(), bucketName)
	if err != nil {
		return nil, nil, fmt.Errorf("minio bucket check failed: %v", err)
	}
	if !exists {
		if err := minioClient.MakeBucket(context.Background(), bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, nil, fmt.Errorf("minio bucket create failed: %v", err)
		}
		log.Printf("🎉 MinIO Bucket '%s' 创建成功", bucketName)
	} else {
		log.Printf("✅ MinIO 连接成功 (Bucket '%s' 已存在)", bucketName)
	}

	// -------------------------------------------------------
	// 4. 初始化 OpenSearch
	// -------------------------------------------------------
	osClient, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.Search.URL},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opensearch init failed: %v", err)
	}

	d := &Data{
		DB:     pgDB,
		Redis:  rdb,
		Minio:  minioClient,
		Search: osClient,
		bucket: bucketName,
	}

	// 连接测试 (集群挂了只告警，不阻塞启动)
	if err := d.SearchHealth(context.Background()); err != nil {
		log.Printf("⚠️ OpenSearch 暂不可达: %v", err)
	} else {
		log.Println("✅ OpenSearch 连接成功")
	}

	// 构造清理函数
	cleanup := func() {
		log.Println("正在关闭数据层资源...")
		if sqlDB, err := d.DB.DB(); err == nil {
			sqlDB.Close()
		}
		d.Redis.Close()
	}

	return d, cleanup, nil
}

// =================================================================================
// MinIO 对象操作
// =================================================================================

// PutObject 上传原始文件，返回对象名: docstores/{id}/{uuid}{ext}
func (d *Data) PutObject(ctx context.Context, docstoreID uint, filename string, content []byte, mimeType string) (string, error) {
	ext := filepath.Ext(filename)
	objectName := fmt.Sprintf("docstores/%d/%s%s", docstoreID, uuid.New().String(), ext)

	_, err := d.Minio.PutObject(ctx, d.bucket, objectName, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: mimeType,
	})
	if err != nil {
		return "", fmt.Errorf("MinIO 上传失败: %v", err)
	}
	return objectName, nil
}

// GetObject 读取原始文件全部内容 (重建索引回放用)
func (d *Data) GetObject(ctx context.Context, objectName string) ([]byte, error) {
	obj, err := d.Minio.GetObject(ctx, d.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

// GetObjectStream 获取文件流 (下载接口用)
func (d *Data) GetObjectStream(ctx context.Context, objectName string) (*minio.Object, int64, error) {
	obj, err := d.Minio.GetObject(ctx, d.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, err
	}
	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, 0, err
	}
	return obj, stat.Size, nil
}

// RemoveObject 删除原始文件
func (d *Data) RemoveObject(ctx context.Context, objectName string) error {
	return d.Minio.RemoveObject(ctx, d.bucket, objectName, minio.RemoveObjectOptions{})
}

// ObjectStoreHealth 检查对象存储可达性
func (d *Data) ObjectStoreHealth(ctx context.Context) error {
	_, err := d.Minio.BucketExists(ctx, d.bucket)
	return err
}

// =================================================================================
// Redis 任务队列 (生产者端，消费端见 worker 包)
// =================================================================================

// PushTask 把任务推入指定队列
func (d *Data) PushTask(ctx context.Context, queue string, payload string) error {
	return d.Redis.LPush(ctx, queue, payload).Err()
}

// PopTask 阻塞式取任务，timeout=0 表示一直等
func (d *Data) PopTask(ctx context.Context, queue string, timeout time.Duration) (string, error) {
	result, err := d.Redis.BLPop(ctx, timeout, queue).Result()
	if err != nil {
		return "", err
	}
	// BLPop 返回 [队列名, 值]
	return result[1], nil
}

// DBHealth 检查数据库可达性
func (d *Data) DBHealth(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
