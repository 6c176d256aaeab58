// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"convai-builder-go/internal/config"
	"convai-builder-go/pkg/database"
	"convai-builder-go/pkg/log"
	"convai-builder-go/pkg/tasks"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

const maxAttempts = 3

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.Task) error
}

// Producer 向任务主题写入后台任务。
type Producer struct {
	writer *kafka.Writer
}

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) *Producer {
	p := &Producer{writer: &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}}
	log.Info("Kafka 生产者初始化成功")
	return p
}

// Publish 发送一个任务到 Kafka。
func (p *Producer) Publish(ctx context.Context, task tasks.Task) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.Key()),
		Value: taskBytes,
	})
}

// Close 刷新并关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// StartConsumer 启动一个 Kafka 消费者来处理后台任务，ctx 取消时退出。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				log.Info("Kafka 消费者已停止")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			time.Sleep(time.Second)
			continue
		}

		var task tasks.Task
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			commit(ctx, r, m)
			continue
		}

		if err := runTask(ctx, processor, redisAttempts{rdb: database.RDB}, task); err != nil {
			if ctx.Err() != nil {
				// 停机中断，不提交 offset，重启后重新投递
				log.Info("Kafka 消费者已停止")
				return
			}
			log.Errorf("任务多次失败(>=%d)，提交 offset 放弃该任务: key=%s, error: %v", maxAttempts, task.Key(), err)
		} else {
			log.Infow("任务处理成功", "type", task.Type, "key", task.Key())
		}
		commit(ctx, r, m)
	}
}

// AttemptCounter 跨进程累计任务的失败次数，重启后重新投递的任务不会重置计数。
type AttemptCounter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string)
}

type redisAttempts struct {
	rdb *redis.Client
}

func (a redisAttempts) Incr(ctx context.Context, key string) (int64, error) {
	n, err := a.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	_ = a.rdb.Expire(ctx, key, 24*time.Hour).Err()
	return n, nil
}

func (a redisAttempts) Reset(ctx context.Context, key string) {
	_ = a.rdb.Del(ctx, key).Err()
}

// retryBackoff 是两次重试之间的基础等待时间，按失败次数线性增长。
var retryBackoff = 500 * time.Millisecond

// runTask 在当前消息上原地重试，直到成功或累计失败 maxAttempts 次。
// group reader 不会重新投递未提交的消息，重试必须在这里完成。
func runTask(ctx context.Context, processor TaskProcessor, attempts AttemptCounter, task tasks.Task) error {
	key := fmt.Sprintf("kafka:attempts:%s", task.Key())
	var local int64
	for {
		err := processor.Process(ctx, task)
		if err == nil {
			attempts.Reset(ctx, key)
			return nil
		}
		local++
		n, incErr := attempts.Incr(ctx, key)
		if incErr != nil || n < local {
			n = local
		}
		log.Warnf("处理任务失败(第 %d 次): type=%s key=%s, error: %v", n, task.Type, task.Key(), err)
		if n >= maxAttempts {
			attempts.Reset(ctx, key)
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryBackoff * time.Duration(n)):
		}
	}
}

func commit(ctx context.Context, r *kafka.Reader, m kafka.Message) {
	if err := r.CommitMessages(ctx, m); err != nil {
		log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
	}
}
