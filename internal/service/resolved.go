package service

// Resolved 上游调用结果：Degraded 为 true 时 Value 为降级占位数据，Reason 说明原因
type Resolved[T any] struct {
	Value    T
	Degraded bool
	Reason   string
}

func ok[T any](v T) Resolved[T] {
	return Resolved[T]{Value: v}
}

func degraded[T any](v T, reason string) Resolved[T] {
	return Resolved[T]{Value: v, Degraded: true, Reason: reason}
}
