// Package resolver turns identifiers into typed documents. Identifiers
// inside the instance namespace resolve against local storage and never
// touch the network; everything else is answered from the content store
// when possible and dereferenced over HTTP otherwise. Fetched documents are
// cached back into the content store so repeat resolutions stay local.
package resolver

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/url"
	"strings"

	errors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-federation/pkg/types"
)

// Config wires the resolver's collaborators.
type Config struct {
	Namespace *types.Namespace
	Accounts  types.AccountStore
	Content   types.ContentStore
	Fetcher   types.Fetcher
	Logger    types.Logger
}

// Resolver dereferences local and remote identifiers.
type Resolver struct {
	namespace *types.Namespace
	accounts  types.AccountStore
	content   types.ContentStore
	fetcher   types.Fetcher
	logger    types.Logger
}

// New constructs a resolver.
func New(cfg Config) (*Resolver, error) {
	if cfg.Namespace == nil {
		return nil, fmt.Errorf("resolver: namespace required")
	}
	if cfg.Accounts == nil || cfg.Content == nil {
		return nil, fmt.Errorf("resolver: account and content stores required")
	}
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("resolver: fetcher required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &Resolver{
		namespace: cfg.Namespace,
		accounts:  cfg.Accounts,
		content:   cfg.Content,
		fetcher:   cfg.Fetcher,
		logger:    logger,
	}, nil
}

// Resolve dereferences an identifier into its document form.
func (r *Resolver) Resolve(ctx context.Context, identifier string) (*types.ActivityPayload, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, resolutionError(identifier, "identifier required", nil)
	}
	if _, err := url.ParseRequestURI(identifier); err != nil {
		return nil, resolutionError(identifier, "identifier is not a valid IRI", err)
	}

	if r.namespace.Contains(identifier) {
		return r.resolveLocal(ctx, identifier)
	}
	return r.resolveRemote(ctx, identifier)
}

// resolveLocal answers from storage. Local identifiers name either one of
// our actors or a stored activity; neither case may reach the network.
func (r *Resolver) resolveLocal(ctx context.Context, identifier string) (*types.ActivityPayload, error) {
	if username, ok := r.namespace.Username(identifier); ok {
		user, err := r.accounts.UserByUsername(ctx, username)
		if err != nil {
			return nil, resolutionError(identifier, "local user lookup failed", err)
		}
		if user == nil {
			return nil, notFoundError(identifier)
		}
		actor, err := r.accounts.ActorByUserID(ctx, user.ID)
		if err != nil {
			return nil, resolutionError(identifier, "local actor lookup failed", err)
		}
		if actor == nil {
			return nil, notFoundError(identifier)
		}
		return actorDocument(r.namespace, user, actor), nil
	}

	record, err := r.content.FindByExternalID(ctx, identifier)
	if err != nil {
		return nil, resolutionError(identifier, "local content lookup failed", err)
	}
	if record == nil {
		return nil, notFoundError(identifier)
	}
	return payloadFromRecord(identifier, record)
}

func (r *Resolver) resolveRemote(ctx context.Context, identifier string) (*types.ActivityPayload, error) {
	record, err := r.content.FindByExternalID(ctx, identifier)
	if err != nil {
		return nil, resolutionError(identifier, "content lookup failed", err)
	}
	if record != nil {
		return payloadFromRecord(identifier, record)
	}

	raw, err := r.fetcher.Fetch(ctx, identifier)
	if err != nil {
		return nil, resolutionError(identifier, "remote fetch failed", err)
	}
	payload, err := types.DecodePayload(raw)
	if err != nil {
		return nil, resolutionError(identifier, "remote document is not valid JSON", err)
	}
	if payload.ID == "" || payload.Type == "" {
		return nil, resolutionError(identifier, "remote document lacks id or type", nil)
	}

	stored := &types.ActivityRecord{
		ExternalID:  payload.ID,
		Kind:        payload.Type,
		Payload:     payload.Normalize(),
		PublishedAt: payload.Published,
		UpdatedAt:   payload.Updated,
	}
	if err := r.content.Insert(ctx, stored); err != nil {
		// A concurrent resolution already cached it; theirs is as good as
		// ours.
		if !stderrors.Is(err, types.ErrDuplicateContent) {
			return nil, resolutionError(identifier, "cache store failed", err)
		}
	}
	r.logger.Debug("resolved remote object", "identifier", identifier, "type", payload.Type)
	return payload, nil
}

func actorDocument(ns *types.Namespace, user *types.User, actor *types.Actor) *types.ActivityPayload {
	doc := map[string]any{
		"@context":          "https://www.w3.org/ns/activitystreams",
		"id":                actor.URI,
		"type":              string(actor.Type),
		"preferredUsername": user.Username,
		"inbox":             actor.Inbox,
		"outbox":            actor.Outbox,
	}
	if actor.DisplayName != "" {
		doc["name"] = actor.DisplayName
	}
	if actor.Icon != "" {
		doc["icon"] = actor.Icon
	}
	if len(user.PublicKey) > 0 {
		doc["publicKey"] = map[string]any{
			"id":           ns.KeyID(user.Username),
			"owner":        actor.URI,
			"publicKeyPem": string(user.PublicKey),
		}
	}

	payload := &types.ActivityPayload{
		Context:           doc["@context"],
		ID:                actor.URI,
		Type:              string(actor.Type),
		PreferredUsername: user.Username,
		Name:              actor.DisplayName,
		Inbox:             actor.Inbox,
		Outbox:            actor.Outbox,
		Extra:             doc,
	}
	if actor.Icon != "" {
		payload.Icon = types.ObjectRef{IRI: actor.Icon}
	}
	return payload
}

func payloadFromRecord(identifier string, record *types.ActivityRecord) (*types.ActivityPayload, error) {
	raw, err := json.Marshal(record.Payload)
	if err != nil {
		return nil, resolutionError(identifier, "stored payload is not serializable", err)
	}
	payload, err := types.DecodePayload(raw)
	if err != nil {
		return nil, resolutionError(identifier, "stored payload is malformed", err)
	}
	return payload, nil
}

func resolutionError(identifier, msg string, cause error) error {
	if cause != nil {
		return errors.Wrap(cause, errors.CategoryInternal, fmt.Sprintf("resolver: %s", msg)).
			WithCode(errors.CodeInternal).
			WithTextCode(types.TextCodeResolutionFailed).
			WithMetadata(map[string]any{"identifier": identifier})
	}
	return errors.New(fmt.Sprintf("resolver: %s", msg), errors.CategoryInternal).
		WithCode(errors.CodeInternal).
		WithTextCode(types.TextCodeResolutionFailed).
		WithMetadata(map[string]any{"identifier": identifier})
}

func notFoundError(identifier string) error {
	return errors.New(
		fmt.Sprintf("resolver: %s does not exist here", identifier),
		errors.CategoryNotFound,
	).
		WithCode(errors.CodeNotFound).
		WithTextCode(types.TextCodeResolutionFailed).
		WithMetadata(map[string]any{"identifier": identifier})
}
