package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"carchat/internal/app/uow"
	domainchat "carchat/internal/domain/chat"
)

// Factory wires Mongo transactions into the generic UnitOfWork interface.
type Factory struct {
	DB            *mongo.Database
	Conversations *ConversationRepository
	Messages      *MessageRepository
}

var ErrUnitOfWorkNotConfigured = errors.New("mongo: unit of work factory missing database")

func NewFactory(db *mongo.Database) Factory {
	conversations := NewConversationRepository(db)
	return Factory{
		DB:            db,
		Conversations: conversations,
		Messages:      NewMessageRepository(db, conversations),
	}
}

// EnsureIndexes creates the indexes the repositories rely on, the dedup unique index included.
func (f Factory) EnsureIndexes(ctx context.Context) error {
	if err := f.Conversations.EnsureIndexes(ctx); err != nil {
		return err
	}
	return f.Messages.EnsureIndexes(ctx)
}

// Begin starts a MongoDB session. Writable units run inside a snapshot transaction; read-only
// units only get a causally consistent session.
func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.DB == nil || f.Conversations == nil || f.Messages == nil {
		return nil, ErrUnitOfWorkNotConfigured
	}
	session, err := f.DB.Client().StartSession()
	if err != nil {
		return nil, classify(err)
	}
	unit := &Unit{session: session, conversations: f.Conversations, messages: f.Messages, readOnly: opts.ReadOnly}
	if opts.ReadOnly {
		return unit, nil
	}
	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())
	if err := session.StartTransaction(txnOpts); err != nil {
		session.EndSession(ctx)
		return nil, classify(err)
	}
	return unit, nil
}

type Unit struct {
	session  mongo.Session
	readOnly bool
	done     bool

	conversations *ConversationRepository
	messages      *MessageRepository
}

func (u *Unit) Conversations() domainchat.ConversationRepository {
	return u.conversations
}

func (u *Unit) Messages() domainchat.MessageRepository {
	return u.messages
}

func (u *Unit) Commit(ctx context.Context) error {
	if u.done {
		return nil
	}
	u.done = true
	defer u.session.EndSession(ctx)
	if u.readOnly {
		return nil
	}
	return classify(u.session.CommitTransaction(ctx))
}

func (u *Unit) Rollback(ctx context.Context) error {
	if u.done {
		return nil
	}
	u.done = true
	defer u.session.EndSession(ctx)
	if u.readOnly {
		return nil
	}
	return u.session.AbortTransaction(ctx)
}

// InjectContext ensures Mongo session is available in context for downstream repos.
func (u *Unit) InjectContext(ctx context.Context) context.Context {
	return mongo.NewSessionContext(ctx, u.session)
}

var _ uow.UoWFactory = Factory{}
