package changefeed

// Status 订阅状态回调取值
type Status string

const (
	StatusSubscribed   Status = "SUBSCRIBED"
	StatusClosed       Status = "CLOSED"
	StatusChannelError Status = "CHANNEL_ERROR"
	StatusTimedOut     Status = "TIMED_OUT"
)

// IsFailure 是否属于需要重连的失败状态
func (s Status) IsFailure() bool {
	switch s {
	case StatusClosed, StatusChannelError, StatusTimedOut:
		return true
	}
	return false
}

// Subscription 一条已建立（或建立中）的订阅通道
type Subscription interface {
	// Close 之后不再有任何回调
	Close() error
}

// Subscriber 创建订阅通道
// onEvent 与 onStatus 可能在任意 goroutine 上被调用，调用方自行串行化
type Subscriber interface {
	Subscribe(onEvent func(Event), onStatus func(Status, error)) (Subscription, error)
}
