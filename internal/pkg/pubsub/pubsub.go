package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/qs3c/devhance_server/internal/pkg/logger"
)

const ChannelCaseStudyProgress = "case_study_progress"

// ProgressMessage 案例生成进度，按 UserID 推送给对应的 websocket 连接
type ProgressMessage struct {
	Type        string `json:"type"`
	UserID      int64  `json:"user_id"`
	RepoURL     string `json:"repo_url"`
	CaseStudyID int64  `json:"case_study_id,omitempty"`
	Slug        string `json:"slug,omitempty"`
	Step        string `json:"step"`
	Progress    int    `json:"progress"`
	Message     string `json:"message,omitempty"`
	Error       string `json:"error,omitempty"`
	At          int64  `json:"at"`
}

const (
	StepLocked     = "locked"
	StepFetching   = "fetching"
	StepGenerating = "generating"
	StepSaving     = "saving"
	StepDone       = "done"
	StepFailed     = "failed"
)

type stage struct {
	progress int
	message  string
}

// failed 不推进进度条，前端保留最后一次的百分比
var stages = map[string]stage{
	StepLocked:     {10, "已开始分析"},
	StepFetching:   {30, "正在读取仓库信息"},
	StepGenerating: {60, "正在生成案例"},
	StepSaving:     {90, "正在保存结果"},
	StepDone:       {100, "案例生成完成"},
	StepFailed:     {0, "案例生成失败"},
}

// Describe 返回阶段的默认进度和提示
func Describe(step string) (progress int, message string, ok bool) {
	st, ok := stages[step]
	return st.progress, st.message, ok
}

// fill 补全类型、时间戳以及未显式指定的进度和提示
func (m *ProgressMessage) fill(now time.Time) {
	m.Type = ChannelCaseStudyProgress
	if m.At == 0 {
		m.At = now.UnixMilli()
	}
	progress, message, ok := Describe(m.Step)
	if !ok {
		return
	}
	if m.Progress == 0 {
		m.Progress = progress
	}
	if m.Message == "" {
		m.Message = message
	}
}

type Publisher struct {
	client  *redis.Client
	channel string
	now     func() time.Time
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client, channel: ChannelCaseStudyProgress, now: time.Now}
}

// PublishProgress 发布进度，没有订阅者时消息直接丢弃
func (p *Publisher) PublishProgress(ctx context.Context, msg *ProgressMessage) error {
	msg.fill(p.now())

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish progress: %w", err)
	}
	return nil
}

type Subscriber struct {
	client  *redis.Client
	channel string
	log     logger.Logger
}

func NewSubscriber(client *redis.Client, log logger.Logger) *Subscriber {
	if log == nil {
		log = logger.Nop()
	}
	return &Subscriber{client: client, channel: ChannelCaseStudyProgress, log: log}
}

// Subscribe 阻塞直到 ctx 取消或连接关闭，订阅确认失败时立即返回错误
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*ProgressMessage)) error {
	sub := s.client.Subscribe(ctx, s.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-ch:
			if !ok {
				return nil
			}
			var msg ProgressMessage
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				s.log.Warn(ctx, "drop malformed progress message", "channel", raw.Channel, "error", err)
				continue
			}
			handler(&msg)
		}
	}
}
