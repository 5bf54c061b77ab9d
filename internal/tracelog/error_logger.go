package tracelog

import (
	"io"
	"log"
)

type errorLogger struct {
	*log.Logger
}

func NewErrorLogger(out io.Writer, prefix string) *errorLogger {
	return &errorLogger{log.New(out, prefix, timeFlags)}
}

func (logger *errorLogger) PrintError(err error) {
	logger.Printf(GetErrorFormatter()+"\n", err)
}

func (logger *errorLogger) PrintOnError(err error) {
	if err != nil {
		logger.PrintError(err)
	}
}
