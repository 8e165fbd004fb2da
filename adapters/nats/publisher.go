// Package nats publishes committed event summaries to NATS JetStream.
// Summaries land on one subject per aggregate so consumers can filter by
// kind or by instance; JetStream acks make delivery at-least-once, matching
// the engine's publication contract.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/codewandler/evsrc-go/core/es"
)

const defaultSubjectPrefix = "evsrc.summaries"

type PublisherConfig struct {
	Connect        Connector    // Connect is used to create the underlying NATS connection. If nil, ConnectDefault() is used.
	Log            *slog.Logger // Log for diagnostics (optional)
	SubjectPrefix  string       // SubjectPrefix for summary subjects, e.g. "evsrc.summaries" -> evsrc.summaries.<agg_type>.<agg_id>
	StreamSubjects []string     // StreamSubjects is the list of subjects the stream is fed with
	StreamName     string
}

// Publisher implements es.SummaryPublisher on a JetStream stream.
type Publisher struct {
	nc            *natsgo.Conn
	closeNc       closeFunc
	js            jetstream.JetStream
	stream        jetstream.Stream
	log           *slog.Logger
	subjectPrefix string
	streamName    string
}

func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	doConnect := cfg.Connect
	if doConnect == nil {
		doConnect = ConnectDefault()
	}

	nc, closeNatsCon, err := doConnect()
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, err
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	streamName := strings.ToUpper(cfg.StreamName)
	if streamName == "" {
		streamName = "EVSRC_SUMMARIES"
	}

	subjectPrefix := cfg.SubjectPrefix
	if subjectPrefix == "" {
		subjectPrefix = defaultSubjectPrefix
	}

	streamSubjects := cfg.StreamSubjects
	if len(streamSubjects) == 0 {
		streamSubjects = []string{subjectPrefix + ".>"}
	}

	log = log.With(
		slog.String("publisher", "nats_js"),
		slog.String("stream", streamName),
		slog.String("subjectPrefix", subjectPrefix),
	)

	log.Debug("ensuring stream")

	ctx, cancel := context.WithTimeout(context.Background(), 10*natsgo.DefaultTimeout)
	defer cancel()

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: streamSubjects,
		Storage:  jetstream.FileStorage,
		FirstSeq: 1,
	})
	if err != nil {
		return nil, err
	}

	si, err := stream.Info(ctx)
	if err != nil {
		return nil, err
	}
	log.Debug("ensured", slog.Any("stream", si.Config))

	return &Publisher{
		nc:            nc,
		closeNc:       closeNatsCon,
		js:            js,
		stream:        stream,
		log:           log,
		subjectPrefix: subjectPrefix,
		streamName:    streamName,
	}, nil
}

func (p *Publisher) Close() error {
	p.js.CleanupPublisher()
	p.closeNc()
	p.log.Debug("closed publisher")
	return nil
}

// Publish sends each summary to its aggregate subject. The per-summary
// message id (stream, version) lets JetStream de-duplicate redeliveries
// within its dedup window.
func (p *Publisher) Publish(ctx context.Context, summaries []es.EventSummary) error {
	for _, s := range summaries {
		if err := p.publish(ctx, s); err != nil {
			return err
		}
	}
	p.log.Debug("published", slog.Int("summaries", len(summaries)))
	return nil
}

func (p *Publisher) publish(ctx context.Context, s es.EventSummary) error {
	if s.AggregateType == "" || s.AggregateID == "" {
		return errors.New("summary aggregate identity is empty")
	}

	data, err := json.Marshal(s)
	if err != nil {
		return err
	}

	msg := natsgo.NewMsg(p.subjectFor(s))
	msg.Header.Set("x-event-type", s.EventType)
	msg.Header.Set("x-aggregate-type", s.AggregateType)
	msg.Header.Set("x-aggregate-id", s.AggregateID)
	msg.Data = data

	_, err = p.js.PublishMsg(
		ctx,
		msg,
		jetstream.WithMsgID(fmt.Sprintf("%s.%s.%d", s.AggregateType, s.AggregateID, s.Version)),
	)
	if err != nil {
		return fmt.Errorf("failed to publish summary to %s: %w", msg.Subject, err)
	}
	return nil
}

func (p *Publisher) subjectFor(s es.EventSummary) string {
	return p.subjectPrefix + "." + s.AggregateType + "." + s.AggregateID
}

var _ es.SummaryPublisher = (*Publisher)(nil)
