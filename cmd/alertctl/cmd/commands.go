package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/utrading/utrading-alert-hub/internal/alertsync"
	"github.com/utrading/utrading-alert-hub/internal/models"
)

// intervalOptions 看板可选的周期（分钟）
var intervalOptions = []string{"1", "2", "3", "5", "10", "15"}

type opKind int

const (
	opStatus opKind = iota
	opRefresh
	opDate
	opInterval
	opTab
	opQuit
	opHelp
)

type command struct {
	op     opKind
	id     string
	status models.AlertStatus
	arg    string
}

const helpText = `commands:
  a <id>            mark active
  i <id>            mark ignored
  n <id>            mark new
  r                 refresh
  d <YYYY-MM-DD>    change trading date
  f <interval|all>  interval filter (1 2 3 5 10 15 all)
  t <tab>           status tab (all active_new new active ignored)
  q                 quit`

// parseCommand 解析一行标准输入
func parseCommand(line string) (command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{op: opHelp}, nil
	}

	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}
	need := func() error {
		if arg == "" {
			return fmt.Errorf("%s: missing argument", fields[0])
		}
		return nil
	}

	switch fields[0] {
	case "a", "i", "n":
		if err := need(); err != nil {
			return command{}, err
		}
		st := map[string]models.AlertStatus{
			"a": models.StatusActive,
			"i": models.StatusIgnored,
			"n": models.StatusNew,
		}[fields[0]]
		return command{op: opStatus, id: arg, status: st}, nil
	case "r":
		return command{op: opRefresh}, nil
	case "d":
		if err := need(); err != nil {
			return command{}, err
		}
		if _, err := time.Parse("2006-01-02", arg); err != nil {
			return command{}, fmt.Errorf("invalid date %q", arg)
		}
		return command{op: opDate, arg: arg}, nil
	case "f":
		if err := need(); err != nil {
			return command{}, err
		}
		if !validInterval(arg) {
			return command{}, fmt.Errorf("invalid interval %q", arg)
		}
		return command{op: opInterval, arg: arg}, nil
	case "t":
		if err := need(); err != nil {
			return command{}, err
		}
		if _, ok := alertsync.ParseTab(arg); !ok {
			return command{}, fmt.Errorf("invalid tab %q", arg)
		}
		return command{op: opTab, arg: arg}, nil
	case "q", "quit", "exit":
		return command{op: opQuit}, nil
	case "h", "help", "?":
		return command{op: opHelp}, nil
	}
	return command{}, fmt.Errorf("unknown command %q", fields[0])
}

func validInterval(s string) bool {
	if s == alertsync.IntervalAll {
		return true
	}
	for _, opt := range intervalOptions {
		if s == opt {
			return true
		}
	}
	return false
}

// controller 命令的执行目标
type controller interface {
	UpdateStatus(ctx context.Context, id string, status models.AlertStatus) error
	Refresh()
	SetDate(date string)
	SetInterval(interval string)
	SetTab(tab alertsync.Tab)
}

// execute 返回 true 表示退出
func execute(ctx context.Context, c controller, cmd command) (bool, error) {
	switch cmd.op {
	case opStatus:
		return false, c.UpdateStatus(ctx, cmd.id, cmd.status)
	case opRefresh:
		c.Refresh()
	case opDate:
		c.SetDate(cmd.arg)
	case opInterval:
		c.SetInterval(cmd.arg)
	case opTab:
		tab, _ := alertsync.ParseTab(cmd.arg)
		c.SetTab(tab)
	case opQuit:
		return true, nil
	}
	return false, nil
}
