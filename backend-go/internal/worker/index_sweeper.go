package worker

import (
	"context"
	"log"
	"time"

	"DocStack/backend-go/internal/data"
	"DocStack/backend-go/internal/service"
)

// IndexSweeper 负责从 Redis 拿旧索引清理任务并执行删除
// 重建索引切换后旧索引不立即删，走这条异步链路，避免删除失败阻塞切换
type IndexSweeper struct {
	data *data.Data
}

func NewIndexSweeper(data *data.Data) *IndexSweeper {
	return &IndexSweeper{data: data}
}

// Start 启动 Sweeper (阻塞运行)
func (w *IndexSweeper) Start(ctx context.Context, numWorkers int) {
	log.Printf("🚀 启动 %d 个 Index Sweeper，开始监听队列 %s...", numWorkers, service.DropIndexQueue)

	for i := 0; i < numWorkers; i++ {
		go w.processLoop(ctx, i)
	}
}

func (w *IndexSweeper) processLoop(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			// 1. 阻塞式获取任务 (BLPOP)
			indexName, err := w.data.PopTask(ctx, service.DropIndexQueue, 0)
			if err != nil {
				// Redis 偶尔连接超时是正常的，不要 panic
				log.Printf("[Sweeper-%d] 等待任务中... (%v)", workerID, err)
				time.Sleep(3 * time.Second)
				continue
			}

			log.Printf("[Sweeper-%d] 收到清理任务: %s", workerID, indexName)

			// 2. 删索引 (索引不存在视为成功)
			if err := w.dropIndex(ctx, indexName); err != nil {
				log.Printf("[Sweeper-%d] ❌ 清理失败: %s, 错误: %v", workerID, indexName, err)
			} else {
				log.Printf("[Sweeper-%d] ✅ 清理完成: %s", workerID, indexName)
			}
		}
	}
}

// dropIndex 删除一个旧索引，失败回队一次等下一轮重试
// 只回队一次，持续失败的任务打日志后丢弃，留给人工处理
func (w *IndexSweeper) dropIndex(ctx context.Context, indexName string) error {
	err := w.data.DeleteIndex(ctx, indexName)
	if err == nil {
		return nil
	}

	time.Sleep(5 * time.Second)
	if retryErr := w.data.DeleteIndex(ctx, indexName); retryErr == nil {
		return nil
	}
	return err
}
