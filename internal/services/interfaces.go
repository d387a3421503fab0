package services

import (
	"context"
	"time"

	"github.com/ajramos/mailsync/internal/mailbox"
)

// MailboxStore is the remote message store the sync engine talks to
type MailboxStore interface {
	FetchMessages(ctx context.Context, folder mailbox.Folder, forceRefresh bool) ([]mailbox.Message, error)
	Subscribe(ctx context.Context, filter IdentityFilter, sink FeedSink) (Subscription, error)
	SetFlag(ctx context.Context, messageID string, flag mailbox.Flag, value bool) error
	SendMessage(ctx context.Context, payload ComposePayload) error
}

// ActivityStore is implemented by stores that expose a narrow "new activity"
// channel next to the primary feed
type ActivityStore interface {
	SubscribeActivity(ctx context.Context, filter IdentityFilter, onActivity func(time.Time)) (Subscription, error)
}

// SnapshotCache persists the last canonical list per account and folder
type SnapshotCache interface {
	LoadSnapshot(ctx context.Context, account string, folder mailbox.Folder) ([]mailbox.Message, error)
	SaveSnapshot(ctx context.Context, account string, folder mailbox.Folder, msgs []mailbox.Message) error
}

// FeedSink receives emissions from a subscription. Emissions for one
// subscription arrive in the order the store committed them.
type FeedSink struct {
	OnSnapshot func(batch []mailbox.Message)
	OnError    func(err error)
}

// Subscription is a live feed handle
type Subscription interface {
	Unsubscribe()
}

// SubscriptionFunc adapts a function to Subscription
type SubscriptionFunc func()

// Unsubscribe calls f
func (f SubscriptionFunc) Unsubscribe() { f() }

// IdentityFilter scopes a subscription to the authenticated user
type IdentityFilter struct {
	Account string
}

// ComposePayload is an outgoing message
type ComposePayload struct {
	To        []string
	Cc        []string
	Subject   string
	Body      string
	InReplyTo string
}

// NoticeLevel is the severity of a user facing notice
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeSuccess
	NoticeWarning
	NoticeError
)

func (l NoticeLevel) String() string {
	switch l {
	case NoticeSuccess:
		return "success"
	case NoticeWarning:
		return "warning"
	case NoticeError:
		return "error"
	default:
		return "info"
	}
}

// Notifier shows non-blocking, toast style notices
type Notifier interface {
	Notify(level NoticeLevel, message string)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(level NoticeLevel, message string)

// Notify calls f
func (f NotifierFunc) Notify(level NoticeLevel, message string) { f(level, message) }

// MutationService applies flag changes optimistically and reconciles them with
// the store
type MutationService interface {
	Begin(ctx context.Context, req MutationRequest) (*PendingMutation, error)
	Mutate(ctx context.Context, req MutationRequest) (*MutationOutcome, error)
	Send(ctx context.Context, payload ComposePayload) error
	InFlight(id string) bool
}

// MutationKind names a user action
type MutationKind string

const (
	MutationMarkRead MutationKind = "mark-read"
	MutationStar     MutationKind = "star"
	MutationSpam     MutationKind = "spam"
	MutationArchive  MutationKind = "archive"
	MutationTrash    MutationKind = "trash"
)

// MutationRequest describes one user action over one or more messages.
// Value nil means "read" for mark-read, "toggle" for star and "set" for the rest.
type MutationRequest struct {
	Kind  MutationKind
	IDs   []string
	Value *bool
}

// OutcomeStatus classifies a settled mutation
type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomePartial   OutcomeStatus = "partial"
	OutcomeFailed    OutcomeStatus = "failed"
)

// MutationOutcome is the result reported once every remote call has settled
type MutationOutcome struct {
	Batch     string
	Kind      MutationKind
	Value     bool
	Status    OutcomeStatus
	Succeeded []string
	Failed    map[string]error
}

// SuccessCount returns how many ids were confirmed by the store
func (o *MutationOutcome) SuccessCount() int { return len(o.Succeeded) }

// FailureCount returns how many ids were rolled back
func (o *MutationOutcome) FailureCount() int { return len(o.Failed) }

// Total returns the number of targeted ids
func (o *MutationOutcome) Total() int { return len(o.Succeeded) + len(o.Failed) }
