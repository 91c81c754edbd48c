package goplus

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWaitGroupRecoversPanic(t *testing.T) {
	wg := NewWaitGroup()
	var ran atomic.Int32

	wg.Go(func() { ran.Add(1) })
	wg.Go(func() { panic("boom") })
	wg.Go(func() { ran.Add(1) })
	wg.Wait()

	assert.Equal(t, int32(2), ran.Load())
	assert.Equal(t, int64(0), wg.Running())
}

func TestRecoverWith(t *testing.T) {
	var got any
	func() {
		defer RecoverWith(func(r any) { got = r })
		panic("handler exploded")
	}()
	assert.Equal(t, "handler exploded", got)
}
