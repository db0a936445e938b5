package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrMalformedJob 负载无法解析，原始内容已转入死信列表
var ErrMalformedJob = errors.New("malformed report job")

// ReportJob 付款已确认但报告生成失败，等待重试
type ReportJob struct {
	PaymentID  int64     `json:"payment_id"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	Reason     string    `json:"reason,omitempty"`
}

// DefaultInflightTTL 需覆盖最长退避加一次生成的耗时，worker 异常退出后标记靠它过期
const DefaultInflightTTL = 30 * time.Minute

// Queue 基于 redis list 的先进先出队列，放弃的任务进入 <name>:dead。
// 每个订单在队列中或处理中时持有 <name>:inflight:<payment_id> 标记，
// PushUnique 据此去重。
type Queue struct {
	client      *redis.Client
	name        string
	dead        string
	inflightTTL time.Duration
}

func NewQueue(client *redis.Client, name string) *Queue {
	return &Queue{client: client, name: name, dead: name + ":dead", inflightTTL: DefaultInflightTTL}
}

// WithInflightTTL ttl 非正数时保持默认值
func (q *Queue) WithInflightTTL(ttl time.Duration) *Queue {
	if ttl > 0 {
		q.inflightTTL = ttl
	}
	return q
}

func (q *Queue) inflightKey(paymentID int64) string {
	return fmt.Sprintf("%s:inflight:%d", q.name, paymentID)
}

func encode(job *ReportJob) ([]byte, error) {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode report job: %w", err)
	}
	return data, nil
}

// Push 入队并刷新在途标记，用于首次失败和 worker 的退避重试
func (q *Queue) Push(ctx context.Context, job *ReportJob) error {
	data, err := encode(job)
	if err != nil {
		return err
	}
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, q.inflightKey(job.PaymentID), 1, q.inflightTTL)
		pipe.LPush(ctx, q.name, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("push %s: %w", q.name, err)
	}
	return nil
}

// PushUnique 订单已有在途任务时不入队，返回 false
func (q *Queue) PushUnique(ctx context.Context, job *ReportJob) (bool, error) {
	data, err := encode(job)
	if err != nil {
		return false, err
	}
	key := q.inflightKey(job.PaymentID)
	ok, err := q.client.SetNX(ctx, key, 1, q.inflightTTL).Result()
	if err != nil {
		return false, fmt.Errorf("mark inflight %d: %w", job.PaymentID, err)
	}
	if !ok {
		return false, nil
	}
	if err := q.client.LPush(ctx, q.name, data).Err(); err != nil {
		q.client.Del(context.WithoutCancel(ctx), key)
		return false, fmt.Errorf("push %s: %w", q.name, err)
	}
	return true, nil
}

// Release 任务结束（成功、丢弃或转入死信）后清除在途标记
func (q *Queue) Release(ctx context.Context, paymentID int64) error {
	return q.client.Del(ctx, q.inflightKey(paymentID)).Err()
}

// Pop 阻塞等待任务，超时返回 nil, nil
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*ReportJob, error) {
	result, err := q.client.BRPop(ctx, timeout, q.name).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop %s: %w", q.name, err)
	}
	// BRPOP 返回 [key, value]
	if len(result) < 2 {
		return nil, nil
	}

	var job ReportJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		if pushErr := q.client.LPush(ctx, q.dead, result[1]).Err(); pushErr != nil {
			return nil, fmt.Errorf("park malformed job: %w", pushErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}
	return &job, nil
}

// Bury 把放弃重试的任务写入死信列表，供人工处理
func (q *Queue) Bury(ctx context.Context, job *ReportJob, cause error) error {
	if cause != nil {
		job.Reason = cause.Error()
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode report job: %w", err)
	}
	return q.client.LPush(ctx, q.dead, data).Err()
}

func (q *Queue) Length(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.name).Result()
}

func (q *Queue) DeadLength(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.dead).Result()
}
