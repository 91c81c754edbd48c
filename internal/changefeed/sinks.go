package changefeed

import (
	"errors"
)

// Publisher 变更事件发布者
type Publisher interface {
	Publish(Event) error
}

// PublisherFunc 函数适配
type PublisherFunc func(Event) error

func (f PublisherFunc) Publish(ev Event) error {
	return f(ev)
}

// Sinks 将同一事件依次投递给多个下游，单个失败不影响其他下游
type Sinks []Publisher

func (s Sinks) Publish(ev Event) error {
	var errs []error
	for _, p := range s {
		if p == nil {
			continue
		}
		if err := p.Publish(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard 丢弃所有事件
var Discard Publisher = PublisherFunc(func(Event) error { return nil })
