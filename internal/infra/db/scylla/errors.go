package scylla

import (
	"errors"
	"fmt"

	"github.com/gocql/gocql"

	domainchat "carchat/internal/domain/chat"
)

// errVersionMoved is reported when a conditional batch lost the race for the conversation partition.
var errVersionMoved = fmt.Errorf("%w: conversation version moved", domainchat.ErrTransientStore)

func classify(err error) error {
	if err == nil {
		return nil
	}
	if isTransient(err) {
		return fmt.Errorf("%w: %v", domainchat.ErrTransientStore, err)
	}
	return err
}

func isTransient(err error) bool {
	var (
		writeTimeout *gocql.RequestErrWriteTimeout
		readTimeout  *gocql.RequestErrReadTimeout
		unavailable  *gocql.RequestErrUnavailable
	)
	switch {
	case errors.As(err, &writeTimeout), errors.As(err, &readTimeout), errors.As(err, &unavailable):
		return true
	case errors.Is(err, gocql.ErrTimeoutNoResponse),
		errors.Is(err, gocql.ErrNoConnections),
		errors.Is(err, gocql.ErrConnectionClosed):
		return true
	}
	return false
}
