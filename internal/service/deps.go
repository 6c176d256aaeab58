// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"convai-builder-go/pkg/tasks"
	"time"
)

// TaskPublisher 把后台任务投递到消息队列。
type TaskPublisher interface {
	Publish(ctx context.Context, task tasks.Task) error
}

// AudioStore 保存和访问合成的语音文件。
type AudioStore interface {
	Put(ctx context.Context, objectName string, data []byte, contentType string) error
	PresignedURL(ctx context.Context, objectName string) (string, error)
	Remove(ctx context.Context, objectNames []string) error
	ListOlderThan(ctx context.Context, prefix string, cutoff time.Time) ([]string, error)
}

// Synthesizer 把文本合成为音频。
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

// Mailer 发送通知邮件。
type Mailer interface {
	Send(subject, body string) error
}
