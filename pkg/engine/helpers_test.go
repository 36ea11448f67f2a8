package engine

import (
	"io"

	"github.com/charmbracelet/log"
)

func newTestLogger() *log.Logger {
	return log.New(io.Discard)
}
