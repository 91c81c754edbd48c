package sigproc

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/utrading/utrading-alert-hub/pkg/goplus"
)

type HandlerFunc func(os.Signal)

// ShutdownTimeout 关闭回调的最长等待时间，超时后强制退出
var ShutdownTimeout = 30 * time.Second

// GracefulShutdown 收到退出信号后执行 shutdown，完成或超时后退出进程
func GracefulShutdown(shutdown HandlerFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	goplus.Go(func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("received signal")

		done := make(chan struct{})
		goplus.Go(func() {
			defer close(done)
			shutdown(sig)
		})

		select {
		case <-done:
		case <-time.After(ShutdownTimeout):
			log.Warn().Dur("timeout", ShutdownTimeout).Msg("shutdown timeout, forcing exit")
		}

		os.Exit(0)
	})
}
