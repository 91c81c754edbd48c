package notify

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/utrading/utrading-alert-hub/pkg/logger"
)

// Variant 提示样式
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Toast 一条用户可见提示，Persistent 为真时不自动消失
type Toast struct {
	Title       string
	Description string
	Variant     Variant
	Duration    time.Duration
	Persistent  bool
}

// Toaster 展示提示
type Toaster interface {
	Toast(t Toast)
}

// ToasterFunc 函数适配
type ToasterFunc func(Toast)

func (f ToasterFunc) Toast(t Toast) { f(t) }

// Discard 丢弃所有提示
var Discard Toaster = ToasterFunc(func(Toast) {})

// Console 把提示写到终端并记一条日志
type Console struct {
	mu  sync.Mutex
	out io.Writer
	log zerolog.Logger
}

func NewConsole(out io.Writer) *Console {
	return &Console{
		out: out,
		log: logger.Component("toast"),
	}
}

func (c *Console) Toast(t Toast) {
	c.mu.Lock()
	defer c.mu.Unlock()

	mark := "*"
	if t.Variant == VariantDestructive {
		mark = "!"
	}
	_, _ = fmt.Fprintf(c.out, "[%s] %s: %s\n", mark, t.Title, t.Description)

	ev := c.log.Info()
	if t.Variant == VariantDestructive {
		ev = c.log.Warn()
	}
	ev.Str("title", t.Title).
		Str("description", t.Description).
		Bool("persistent", t.Persistent).
		Msg("toast")
}
