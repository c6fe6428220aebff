package logger

import (
	"fmt"
	"sync/atomic"
)

const (
	MinDebugLevel     = 0
	MaxDebugLevel     = 9
	DefaultDebugLevel = 2
)

var debugLevel atomic.Int32

func init() {
	debugLevel.Store(DefaultDebugLevel)
}

// SetDebugLevel 设置插件风格的调试等级（0~9），越大输出越多。
func SetDebugLevel(level int) {
	if level < MinDebugLevel {
		level = MinDebugLevel
	}
	if level > MaxDebugLevel {
		level = MaxDebugLevel
	}
	debugLevel.Store(int32(level))
}

func DebugLevel() int {
	return int(debugLevel.Load())
}

// Enabled reports whether messages at the given verbosity are written.
func Enabled(level int) bool {
	return DebugLevel() >= level
}

// Tracef writes an info record when the debug level is at least level.
func Tracef(level int, format string, v ...any) {
	if !Enabled(level) {
		return
	}
	activeLogger().Info(fmt.Sprintf(format, v...), "v", level)
}
