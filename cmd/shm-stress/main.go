// Command shm-stress hammers the atomic cells of a named shared region from a
// worker pool and checks that no update was lost. Run it in several processes
// against the same region to stress cross-process atomicity.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/srediag/shm-atomics/internal/logger"
)

var log = logger.New("shm-stress", os.Stderr)

// Globals are flags shared by every command.
type Globals struct {
	LogLevel string `help:"Log level." default:"info" enum:"trace,debug,info,warn,error"`
}

// env is bound into every command's Run.
type env struct {
	ctx context.Context
}

type cli struct {
	Globals

	Run     runCmd     `cmd:"" help:"Run concurrent fetch-add and exchange workers on a region."`
	Inspect inspectCmd `cmd:"" help:"Print the cells of a region."`
}

var levels = map[string]int{
	"trace": logger.LevelTrace,
	"debug": logger.LevelDebug,
	"info":  logger.LevelInfo,
	"warn":  logger.LevelWarn,
	"error": logger.LevelError,
}

func main() {
	var c cli
	kctx := kong.Parse(&c,
		kong.Name("shm-stress"),
		kong.Description("Stress and inspect atomic cells in shared memory."),
		kong.UsageOnError(),
	)
	logger.SetLevel(levels[c.LogLevel])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	kctx.FatalIfErrorf(kctx.Run(&env{ctx: ctx}))
}
