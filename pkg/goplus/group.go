package goplus

import (
	"sync"
	"sync/atomic"
)

var (
	defaultGroup     *WaitGroup
	defaultGroupOnce sync.Once
)

// DefaultGroup 进程级的 goroutine 分组，/status 会展示其在途数量
func DefaultGroup() *WaitGroup {
	defaultGroupOnce.Do(func() {
		defaultGroup = NewWaitGroup()
	})
	return defaultGroup
}

// Go 在默认分组中启动 goroutine，panic 只记日志不扩散
func Go(fn func()) {
	DefaultGroup().Go(fn)
}

// Running 默认分组在途 goroutine 数
func Running() int64 {
	return DefaultGroup().Running()
}

// WaitGroup 可统计在途数量、自动恢复 panic 的 sync.WaitGroup
type WaitGroup struct {
	wg      sync.WaitGroup
	running atomic.Int64
}

func NewWaitGroup() *WaitGroup {
	return &WaitGroup{}
}

func (g *WaitGroup) Go(fn func()) {
	g.running.Add(1)
	g.wg.Add(1)

	go func() {
		defer func() {
			g.running.Add(-1)
			g.wg.Done()
		}()
		defer Recover()

		fn()
	}()
}

func (g *WaitGroup) Running() int64 {
	return g.running.Load()
}

// Wait 等待分组内全部 goroutine 退出
func (g *WaitGroup) Wait() {
	g.wg.Wait()
}
