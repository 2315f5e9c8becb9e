package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/rnaughtonwk/islandora-checksum-checker/internal/audit"
	logx "github.com/rnaughtonwk/islandora-checksum-checker/pkg/logx"
)

const (
	defaultStream   = "CHECKSUM_AUDIT"
	durableConsumer = "checksumd"
	fetchMaxWait    = 500 * time.Millisecond
)

// jetStreamQueue backs the work queue with a NATS JetStream work-queue
// stream: claim = pull-consumer fetch, delete = ack, release = re-publish
// to the stream tail + term.
//
// Claimed messages are tracked in an in-flight map so Delete/Release can
// address them by object ID. An untracked ID (process restart, double
// delete) is a no-op; JetStream's ack-wait redelivery covers the rest.
type jetStreamQueue struct {
	nc       *nats.Conn
	js       jetstream.JetStream
	consumer jetstream.Consumer
	subject  string
	log      logx.Logger

	inflight sync.Map // audit.ID -> jetstream.Msg
}

type wireItem struct {
	ID      string `json:"id"`
	Payload []byte `json:"payload,omitempty"`
}

func openJetStream(cfg Config, log logx.Logger) (Queue, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		url = nats.DefaultURL
	}
	streamName := strings.TrimSpace(cfg.Stream)
	if streamName == "" {
		streamName = defaultStream
	}
	subject := strings.ToLower(streamName) + ".items"

	nc, err := nats.Connect(url, nats.Name("checksumd"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, err
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{subject},
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, err
	}
	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:   durableConsumer,
		AckPolicy: jetstream.AckExplicitPolicy,
		AckWait:   5 * time.Minute,
		// Items retry until they validate; never exhaust deliveries.
		MaxDeliver: -1,
	})
	if err != nil {
		nc.Close()
		return nil, err
	}

	log.Info("jetstream queue ready", logx.String("stream", streamName), logx.String("subject", subject))
	return &jetStreamQueue{nc: nc, js: js, consumer: consumer, subject: subject, log: log}, nil
}

func (q *jetStreamQueue) Close() error {
	q.nc.Close()
	return nil
}

func (q *jetStreamQueue) Enqueue(ctx context.Context, items ...audit.WorkItem) error {
	for _, it := range items {
		data, err := json.Marshal(wireItem{ID: string(it.ID), Payload: it.Payload})
		if err != nil {
			return err
		}
		if _, err := q.js.Publish(ctx, q.subject, data); err != nil {
			return err
		}
	}
	return nil
}

func (q *jetStreamQueue) Claim(ctx context.Context) (audit.WorkItem, error) {
	msgs, err := q.consumer.Fetch(1, jetstream.FetchMaxWait(fetchMaxWait))
	if err != nil {
		return audit.WorkItem{}, err
	}
	for msg := range msgs.Messages() {
		var w wireItem
		if err := json.Unmarshal(msg.Data(), &w); err != nil || w.ID == "" {
			// Malformed message; drop it rather than wedging the queue.
			q.log.Warn("dropping malformed queue message", logx.Err(err))
			_ = msg.Term()
			continue
		}
		q.inflight.Store(audit.ID(w.ID), msg)
		return audit.WorkItem{ID: audit.ID(w.ID), Payload: w.Payload}, nil
	}
	if err := msgs.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) {
		return audit.WorkItem{}, err
	}
	return audit.WorkItem{}, audit.ErrEmpty
}

func (q *jetStreamQueue) Delete(ctx context.Context, id audit.ID) error {
	v, ok := q.inflight.LoadAndDelete(id)
	if !ok {
		// Not tracked (restart or already deleted); nothing to ack.
		return nil
	}
	return v.(jetstream.Msg).Ack()
}

// Release re-publishes the item at the back of the stream and terminates
// the claimed delivery. Nak would redeliver in stream-sequence order,
// putting the failed item ahead of everything not yet fetched, so a single
// persistently failing object would end every drain pass at the same spot
// and starve the rest of the queue.
func (q *jetStreamQueue) Release(ctx context.Context, id audit.ID) error {
	v, ok := q.inflight.LoadAndDelete(id)
	if !ok {
		return nil
	}
	msg := v.(jetstream.Msg)
	if _, err := q.js.Publish(ctx, q.subject, msg.Data()); err != nil {
		// Keep the claim; ack-wait redelivery recovers the item later.
		q.inflight.Store(id, msg)
		return err
	}
	return msg.Term()
}

func (q *jetStreamQueue) Depth(ctx context.Context) (int, error) {
	info, err := q.consumer.Info(ctx)
	if err != nil {
		return 0, err
	}
	return int(info.NumPending) + info.NumRedelivered, nil
}
