package mongo

import (
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	domainchat "carchat/internal/domain/chat"
)

const (
	writeConflictCode = 112

	labelTransientTransaction = "TransientTransactionError"
	labelUnknownCommit        = "UnknownTransactionCommitResult"
)

// classify maps driver failures that may succeed on a fresh transaction to ErrTransientStore.
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
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return true
	}
	var labeled mongo.LabeledError
	if errors.As(err, &labeled) {
		if labeled.HasErrorLabel(labelTransientTransaction) || labeled.HasErrorLabel(labelUnknownCommit) {
			return true
		}
	}
	var server mongo.ServerError
	if errors.As(err, &server) && server.HasErrorCode(writeConflictCode) {
		return true
	}
	return false
}
