package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"carchat/internal/app/commands"
	"carchat/internal/app/dto"
	"carchat/internal/app/middleware"
	"carchat/internal/app/outbox"
	"carchat/internal/app/queries"
	domainchat "carchat/internal/domain/chat"
	"carchat/internal/domain/listings"
	"carchat/internal/infra/storage/memory"
)

type capturedEvent struct {
	topic string
	key   string
	event outbox.CloudEvent
}

type capturePublisher struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (p *capturePublisher) Publish(_ context.Context, topic, key string, payload []byte, _ map[string]string) error {
	evt, err := outbox.Parse(payload)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, capturedEvent{topic: topic, key: key, event: evt})
	return nil
}

func (p *capturePublisher) named(name string) []capturedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []capturedEvent
	for _, e := range p.events {
		if e.event.Name() == name {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	commands  commands.Bus
	queries   queries.Bus
	store     *memory.ChatStore
	catalog   *memory.Catalog
	published *capturePublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.NewChatStore()
	catalog := memory.NewCatalog()
	catalog.PutCar(listings.Car{ID: "7", Make: "Toyota", Model: "Camry", Year: 2019, Price: 18500, Images: []string{"camry.jpg"}, Status: listings.SaleAvailable, DealershipID: "42"})
	catalog.PutCar(listings.Car{ID: "9", Make: "Honda", Model: "Civic", Year: 2020, Price: 17000, Status: listings.SaleSold, DealershipID: "42"})
	catalog.PutRentalCar(listings.RentalCar{ID: "r1", Make: "Kia", Model: "Rio", Year: 2022, PricePerDay: 45, Status: listings.RentalAvailable})

	published := &capturePublisher{}
	box := memory.NewOutbox(published, nil)
	factory := memory.Factory{Store: store}
	resolver := &ContextResolver{Catalog: catalog}

	cmdBus := commands.NewInMemoryBus()
	qBus := queries.NewInMemoryBus()
	Register(cmdBus, qBus, Dependencies{
		UoWFactory:      factory,
		Outbox:          box,
		Resolver:        resolver,
		ConflictBackoff: []time.Duration{time.Millisecond, time.Millisecond},
	})

	return &harness{
		commands: middleware.ChainCommands(cmdBus,
			middleware.Retry(middleware.RetryPolicy{Retryable: domainchat.IsRetryable, Backoff: []time.Duration{time.Millisecond}}),
			middleware.RequireActor(),
			middleware.OutboxFlush(box),
			middleware.Transaction(factory, nil),
			middleware.Idempotency(memory.NewIdempotencyStore(time.Hour), nil),
		),
		queries:   middleware.ChainQueries(qBus, middleware.QueryRequireActor()),
		store:     store,
		catalog:   catalog,
		published: published,
	}
}

func (h *harness) ensure(t *testing.T, cmd EnsureConversationCommand) (dto.Conversation, error) {
	t.Helper()
	res, err := commands.Dispatch[EnsureConversationCommand, *dto.Conversation](context.Background(), h.commands, cmd)
	if err != nil {
		return dto.Conversation{}, err
	}
	require.NotNil(t, res)
	return *res, nil
}

func (h *harness) mustEnsure(t *testing.T, cmd EnsureConversationCommand) dto.Conversation {
	t.Helper()
	conv, err := h.ensure(t, cmd)
	require.NoError(t, err)
	return conv
}

func dealerChat(initiator, listingID string) EnsureConversationCommand {
	return EnsureConversationCommand{
		InitiatorID:  initiator,
		Kind:         domainchat.KindUserDealer,
		DealershipID: "42",
		Listing:      listings.SaleRef(listingID),
	}
}
