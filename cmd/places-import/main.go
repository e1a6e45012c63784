package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"places-api/internal/config"
	"places-api/internal/importer"
	"places-api/internal/logger"
	"places-api/internal/places"
	"places-api/internal/store"

	"github.com/gofrs/flock"
	"github.com/joho/godotenv"
)

func printHelp(w io.Writer) {
	fmt.Fprintln(w, "usage: places-import [--env <file>] [--created-by <name>] <file.geojson|http(s)://url>")
}

// 文档注释：GeoJSON 地点导入工具
// 背景：与主服务读写同一存储后端（配置口径一致），逐条经服务写路径落库。
// 约束：本地文件导入持有 <file>.lock 排他锁，同一文件的两次导入不能并发；远端地址不加锁。
func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

// run：返回进程退出码；所有清理（解锁、删除锁文件、关闭存储）在返回前完成
func run(args []string, out io.Writer) int {
	var envFile, createdBy, src string
	for i := 0; i < len(args); i++ {
		switch a := args[i]; {
		case a == "--env" && i+1 < len(args):
			envFile = args[i+1]
			i++
		case a == "--created-by" && i+1 < len(args):
			createdBy = args[i+1]
			i++
		case a == "-h" || a == "--help":
			printHelp(out)
			return 0
		default:
			src = a
		}
	}
	if src == "" {
		printHelp(out)
		return 2
	}
	if envFile != "" {
		_ = godotenv.Load(envFile)
	} else {
		_ = godotenv.Load(".env")
	}
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintln(out, "config error:", err)
		return 1
	}
	l := logger.Setup(cfg.Log.Level, cfg.Log.Format)
	if createdBy == "" {
		createdBy = "import"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	var data []byte
	remote := strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
	if remote {
		data, err = importer.Fetch(ctx, &http.Client{Timeout: time.Minute}, src)
	} else {
		lk := flock.New(src + ".lock")
		locked, lerr := lk.TryLock()
		if lerr != nil {
			l.Error("import_lock_error", "file", src, "err", lerr)
			return 1
		}
		if !locked {
			l.Error("import_locked", "file", src)
			return 1
		}
		defer func() {
			_ = lk.Unlock()
			_ = os.Remove(src + ".lock")
		}()
		data, err = os.ReadFile(src)
	}
	if err != nil {
		l.Error("import_read_error", "src", src, "err", err)
		return 1
	}

	st, err := store.Open(ctx, cfg)
	if err != nil {
		l.Error("store_open_error", "driver", cfg.Store.Driver, "err", err)
		return 1
	}
	defer st.Close()

	res, err := importer.ImportGeoJSON(ctx, data, places.NewService(st), createdBy)
	for _, p := range res.Problems {
		fmt.Fprintln(out, "skipped:", p)
	}
	fmt.Fprintf(out, "added=%d skipped=%d\n", res.Added, res.Skipped)
	if err != nil {
		l.Error("import_error", "err", err)
		return 1
	}
	return 0
}
