// Package inbox turns raw inbound activity documents into dispatched events.
// The pipeline validates, deduplicates, and hands accepted activities to the
// bus; persistence and routing run as event handlers inside the dispatch
// transaction.
package inbox

import (
	"context"
	stderrors "errors"
	"sync"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-masker"

	"github.com/goliatone/go-federation/command"
	"github.com/goliatone/go-federation/pkg/types"
)

// Status classifies the outcome of one ingestion.
type Status string

const (
	// StatusAccepted means the activity was new and has been stored.
	StatusAccepted Status = "accepted"
	// StatusDuplicate means the activity was already stored; no handler ran
	// twice.
	StatusDuplicate Status = "duplicate"
	// StatusRejected means the document failed validation and was dropped.
	StatusRejected Status = "rejected"
)

// Result reports what became of an ingested document.
type Result struct {
	Status   Status
	Activity *types.ActivityPayload
	// Record is the previously stored copy when Status is StatusDuplicate.
	Record *types.ActivityRecord
}

// Dispatcher is the slice of the bus the pipeline needs.
type Dispatcher interface {
	DispatchEvent(ctx context.Context, msg gocommand.Message) error
}

// Config wires the ingestion pipeline.
type Config struct {
	Content    types.ContentStore
	Dispatcher Dispatcher
	Masker     *masker.Masker
	Logger     types.Logger
}

// Pipeline ingests inbound activities. Ingestion is idempotent: repeat
// deliveries of the same external id, including concurrent ones, settle as
// duplicates without running side effects twice.
type Pipeline struct {
	content    types.ContentStore
	dispatcher Dispatcher
	masker     *masker.Masker
	logger     types.Logger
}

// New constructs the pipeline.
func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &Pipeline{
		content:    cfg.Content,
		dispatcher: cfg.Dispatcher,
		masker:     cfg.Masker,
		logger:     logger,
	}
}

// Ingest processes one raw activity document.
func (p *Pipeline) Ingest(ctx context.Context, body []byte) (Result, error) {
	if p.content == nil || p.dispatcher == nil {
		return Result{}, types.ErrServiceNotReady
	}

	payload, err := types.DecodePayload(body)
	if err != nil {
		return Result{Status: StatusRejected}, rejectionError("malformed activity document", err)
	}
	if err := validate(payload); err != nil {
		return Result{Status: StatusRejected}, err
	}

	p.logger.Debug("activity received",
		"id", payload.ID, "kind", payload.Type, "payload", p.sanitized(payload))

	// Fast path: a repeat delivery of something already stored.
	existing, err := p.content.FindByExternalID(ctx, payload.ID)
	if err != nil {
		return Result{}, err
	}
	if existing != nil {
		return p.settleDuplicate(ctx, payload, existing)
	}

	err = p.dispatcher.DispatchEvent(ctx, command.ContentReceivedInput{Activity: payload})
	if err == nil {
		return Result{Status: StatusAccepted, Activity: payload}, nil
	}
	if !stderrors.Is(err, types.ErrDuplicateContent) {
		return Result{}, err
	}

	// Lost the insert race to a concurrent delivery. The other ingestion
	// owns the side effects; this one settles as a duplicate.
	stored, lookupErr := p.content.FindByExternalID(ctx, payload.ID)
	if lookupErr != nil {
		return Result{}, lookupErr
	}
	if stored == nil {
		// The winning transaction has not landed yet; report the conflict.
		return Result{}, err
	}
	return p.settleDuplicate(ctx, payload, stored)
}

func (p *Pipeline) settleDuplicate(ctx context.Context, payload *types.ActivityPayload, record *types.ActivityRecord) (Result, error) {
	p.logger.Debug("duplicate activity", "id", payload.ID)
	if err := p.dispatcher.DispatchEvent(ctx, command.ContentAlreadyKnownInput{Record: record}); err != nil {
		return Result{}, err
	}
	return Result{Status: StatusDuplicate, Activity: payload, Record: record}, nil
}

// sanitized returns a masked copy of the payload safe to log.
func (p *Pipeline) sanitized(payload *types.ActivityPayload) map[string]any {
	doc := payload.Normalize()
	mask := p.masker
	if mask == nil {
		mask = defaultMasker()
	}
	if mask == nil {
		return map[string]any{"id": payload.ID, "type": payload.Type}
	}
	masked, err := mask.Mask(cloneDoc(doc))
	if err != nil {
		return map[string]any{"id": payload.ID, "type": payload.Type}
	}
	if out, ok := masked.(map[string]any); ok {
		return out
	}
	return map[string]any{"id": payload.ID, "type": payload.Type}
}

func validate(payload *types.ActivityPayload) error {
	switch {
	case payload.ID == "":
		return rejectionError("activity id required", nil)
	case payload.Type == "":
		return rejectionError("activity type required", nil)
	case requiresActor(payload.Type) && payload.ActorIRI() == "" && payload.Actor.Raw == nil:
		return rejectionError("activity actor required", nil)
	default:
		return nil
	}
}

// requiresActor lists the kinds that change relationship state; those are
// meaningless without knowing who acted. Plain content carries only id, type
// and addressing, and is stored as-is.
func requiresActor(kind string) bool {
	return kind == types.ActivityKindFollow || kind == types.ActivityKindUndo
}

func rejectionError(msg string, cause error) error {
	if cause != nil {
		return errors.Wrap(cause, errors.CategoryValidation, msg).
			WithTextCode(types.TextCodeActivityInvalid)
	}
	return errors.New(msg, errors.CategoryValidation).
		WithTextCode(types.TextCodeActivityInvalid)
}

var inboxMaskerOnce sync.Once

func defaultMasker() *masker.Masker {
	inboxMaskerOnce.Do(func() {
		if masker.Default == nil {
			return
		}
		masker.Default.RegisterMaskField("token", "filled4")
		masker.Default.RegisterMaskField("secret", "filled4")
	})
	return masker.Default
}

func cloneDoc(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}
