package goplus

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/utrading/utrading-alert-hub/pkg/logger"
)

const maxDepth = 32

// Recover 捕获 panic 并记录调用栈，需配合 defer 使用
func Recover() {
	if r := recover(); r != nil {
		logger.Error().Msg(panicReport(r, 2))
	}
}

// RecoverWith 捕获 panic 后额外执行 fn（例如返回 500）
func RecoverWith(fn func(r any)) {
	if r := recover(); r != nil {
		logger.Error().Msg(panicReport(r, 2))
		if fn != nil {
			fn(r)
		}
	}
}

func panicReport(r any, skip int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("panic: %v\ncallers:\n", r))
	for i := skip; i <= maxDepth; i++ {
		_, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		sb.WriteString(fmt.Sprintf("%s:%d\n", file, line))
	}
	return sb.String()
}
