package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v3"
	"github.com/okian/twitch-sources/pkg/logger"
)

// badgerLogger adapts logger.Logger to badger.Logger.
type badgerLogger struct {
	l logger.Logger
}

var _ badger.Logger = (*badgerLogger)(nil)

func line(format string, args ...interface{}) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}

func (b *badgerLogger) Errorf(format string, args ...interface{}) {
	b.l.Error(context.Background(), line(format, args...))
}

func (b *badgerLogger) Warningf(format string, args ...interface{}) {
	b.l.Warn(context.Background(), line(format, args...))
}

func (b *badgerLogger) Infof(format string, args ...interface{}) {
	b.l.Debug(context.Background(), line(format, args...))
}

func (b *badgerLogger) Debugf(format string, args ...interface{}) {
	b.l.Debug(context.Background(), line(format, args...))
}
