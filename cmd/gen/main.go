package main

import (
	"flag"

	"github.com/utrading/utrading-alert-hub/config"
	"github.com/utrading/utrading-alert-hub/internal/dal"
)

// 生成 gorm-gen 查询代码：go run ./cmd/gen -config cfg.toml -out internal/dal/query
func main() {
	var configFile, out string
	flag.StringVar(&configFile, "config", "cfg.toml", "config file path")
	flag.StringVar(&out, "out", "internal/dal/query", "output directory")
	flag.Parse()

	if err := config.Load(configFile); err != nil {
		panic(err)
	}

	conn, err := dal.Open(config.Get().Database)
	if err != nil {
		panic(err)
	}
	dal.GenExecute(out, conn)
}
