// Package replies turns operator replies in the chat into resolved
// correlations.
package replies

import (
	"context"
	"log/slog"

	"tryonrelay/internal/caption"
	"tryonrelay/internal/correlation"
	"tryonrelay/internal/events"
	"tryonrelay/internal/logging"
	"tryonrelay/internal/reqid"
)

// Outcome classifies what Ingest did with an event.
type Outcome string

const (
	IgnoredNotReply     Outcome = "ignored_not_reply"
	IgnoredNotOurs      Outcome = "ignored_not_ours"
	IgnoredNoPhoto      Outcome = "ignored_no_photo"
	IgnoredNoIdentifier Outcome = "ignored_no_identifier"
	Duplicate           Outcome = "duplicate"
	ResolveFailed       Outcome = "resolve_failed"
	Stored              Outcome = "stored"
	KeptExisting        Outcome = "kept_existing"
)

// AttachmentResolver turns a relay file reference into a retrieval URL.
type AttachmentResolver interface {
	ResolveAttachment(ctx context.Context, fileID string) (string, error)
}

// Deduper remembers webhook update ids.
type Deduper interface {
	FirstSeen(ctx context.Context, updateID int64) (bool, error)
}

// Recorder notes accepted replies in the ledger.
type Recorder interface {
	MarkResolved(ctx context.Context, id string) error
}

// Dependencies bundles collaborators for a Listener. Deduper, Recorder and
// Publisher are optional.
type Dependencies struct {
	Store     correlation.Store
	Resolver  AttachmentResolver
	Deduper   Deduper
	Recorder  Recorder
	Publisher events.Publisher
	Logger    *slog.Logger
}

// Identity tells the Listener which quoted messages are its own.
type Identity struct {
	// BotID is the relay bot's user id. Zero accepts replies to any bot.
	BotID int64
	// ChatID is the numeric operator chat. Channel posts carry no author, so
	// an unauthored quoted message counts as ours only inside this chat.
	// Zero disables that path.
	ChatID int64
}

// Listener ingests reply events.
type Listener struct {
	store     correlation.Store
	resolver  AttachmentResolver
	deduper   Deduper
	recorder  Recorder
	publisher events.Publisher
	identity  Identity
	logger    *slog.Logger
}

// NewListener constructs a Listener that only accepts replies to messages
// sent by the identity it is given.
func NewListener(deps Dependencies, identity Identity) *Listener {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Listener{
		store:     deps.Store,
		resolver:  deps.Resolver,
		deduper:   deps.Deduper,
		recorder:  deps.Recorder,
		publisher: publisher,
		identity:  identity,
		logger:    logging.NewComponentLogger(deps.Logger, "reply-listener"),
	}
}

// Ingest processes one event. It never fails: every drop is logged and
// reported through the returned Outcome so the webhook can acknowledge
// promptly.
func (l *Listener) Ingest(ctx context.Context, ev Event) Outcome {
	logger := logging.WithContext(ctx, l.logger).With(
		logging.Int64(logging.FieldUpdateID, ev.UpdateID),
		logging.Int64("message_id", ev.MessageID),
	)

	if !ev.IsReply {
		logger.Debug("update ignored", logging.String("reason", string(IgnoredNotReply)))
		return IgnoredNotReply
	}
	if !l.ours(ev) {
		logger.Debug("update ignored", logging.String("reason", string(IgnoredNotOurs)))
		return IgnoredNotOurs
	}
	if ev.AttachmentFileID == "" {
		logger.Info("reply without photo ignored", logging.Int64("replied_to", ev.RepliedToID))
		return IgnoredNoPhoto
	}

	if l.deduper != nil {
		first, err := l.deduper.FirstSeen(ctx, ev.UpdateID)
		switch {
		case err != nil:
			logger.Warn("update dedup check failed; processing anyway",
				logging.Error(err),
				logging.String(logging.FieldEventType, "dedup_failed"),
			)
		case !first:
			logger.Info("redelivered update skipped")
			return Duplicate
		}
	}

	id, ok := caption.Extract(ev.RepliedToText)
	if !ok {
		logging.WarnWithContext(logger, "reply quotes a message without a request id", "reply_no_identifier",
			logging.Int64("replied_to", ev.RepliedToID),
			logging.String(logging.FieldImpact, "reply not delivered to any customer"),
			logging.String(logging.FieldErrorHint, "reply to the request photo or its catalog message"),
		)
		return IgnoredNoIdentifier
	}
	logger = logger.With(logging.String(logging.FieldCorrelationID, id.String()))

	url, err := l.resolver.ResolveAttachment(ctx, ev.AttachmentFileID)
	if err != nil {
		logging.WarnWithContext(logger, "reply attachment could not be resolved", "reply_resolve_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "customer keeps polling; operator must reply again"),
		)
		return ResolveFailed
	}

	entry, stored := l.store.Set(id, url)
	if !stored {
		if entry.URL == url {
			logger.Info("reply repeats the stored result", logging.Int("revisions", entry.Revisions))
		} else {
			logger.Info("reply ignored; request already resolved", logging.Int("revisions", entry.Revisions))
		}
		return KeptExisting
	}
	if entry.Revisions > 1 {
		logger.Info("reply replaced earlier result", logging.Int("revisions", entry.Revisions))
	} else {
		logger.Info("reply stored")
	}

	l.record(ctx, logger, id)
	l.announce(ctx, logger, id, entry)
	return Stored
}

func (l *Listener) ours(ev Event) bool {
	if ev.RepliedToBotID != 0 {
		return l.identity.BotID == 0 || ev.RepliedToBotID == l.identity.BotID
	}
	return ev.RepliedToAnonymous && l.identity.ChatID != 0 && ev.ChatID == l.identity.ChatID
}

func (l *Listener) record(ctx context.Context, logger *slog.Logger, id reqid.ID) {
	if l.recorder == nil {
		return
	}
	if err := l.recorder.MarkResolved(ctx, id.String()); err != nil {
		logger.Warn("ledger resolve update failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "ledger_write_failed"),
		)
	}
}

func (l *Listener) announce(ctx context.Context, logger *slog.Logger, id reqid.ID, entry correlation.Entry) {
	err := l.publisher.Publish(ctx, events.TypeReplyResolved, id.String(), events.ReplyResolved{
		RequestID:  id.String(),
		Revisions:  entry.Revisions,
		ResolvedAt: entry.ResolvedAt,
	})
	if err != nil {
		logger.Warn("event publish failed",
			logging.Error(err),
			logging.String("event", events.TypeReplyResolved),
			logging.String(logging.FieldEventType, "event_publish_failed"),
		)
	}
}
