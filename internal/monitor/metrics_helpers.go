package monitor

// 便捷函数供外部调用，无需访问 Metrics 实例

// IncWebhook 按结果计数 webhook 请求
func IncWebhook(outcome string) {
	GetMetrics().IncWebhook(outcome)
}

// ObserveWebhookDuration 观察 webhook 耗时
func ObserveWebhookDuration(seconds float64) {
	GetMetrics().ObserveWebhookDuration(seconds)
}

// IncEventsPublished 增加事件发布计数
func IncEventsPublished(sink, eventType string) {
	GetMetrics().IncEventsPublished(sink, eventType)
}

// IncEventErrors 增加事件错误计数
func IncEventErrors(errType string) {
	GetMetrics().IncEventErrors(errType)
}

// SetHubClients 设置订阅者数量
func SetHubClients(count int) {
	GetMetrics().SetHubClients(count)
}

// IncHubDropped 慢订阅者被踢出
func IncHubDropped() {
	GetMetrics().IncHubDropped()
}

// SetNATSConnected 设置NATS连接状态
func SetNATSConnected(connected bool) {
	GetMetrics().SetNATSConnected(connected)
}

// IncStatusUpdates 增加状态修改计数
func IncStatusUpdates(status string) {
	GetMetrics().IncStatusUpdates(status)
}

// IncCacheHit 增加缓存命中计数
func IncCacheHit(cacheType string) {
	GetMetrics().IncCacheHit(cacheType)
}

// IncCacheMiss 增加缓存未命中计数
func IncCacheMiss(cacheType string) {
	GetMetrics().IncCacheMiss(cacheType)
}
