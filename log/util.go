package log

import (
	"runtime"
	"strconv"
)

// LazyEval defers building a log argument until the entry is actually written.
type LazyEval func() string

func (l LazyEval) String() string {
	return l()
}

// SkipCaller returns "file:line" of the caller skip frames up the stack.
func SkipCaller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "?"
	}
	return file + ":" + strconv.Itoa(line)
}
