package query

import (
	"context"
	"strings"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-federation/pkg/types"
)

// ContentLookupInput identifies a stored activity by its external id.
type ContentLookupInput struct {
	ExternalID string
}

// Type implements gocommand.Message.
func (ContentLookupInput) Type() string {
	return "federation.content.lookup"
}

// Validate implements gocommand.Message.
func (input ContentLookupInput) Validate() error {
	if strings.TrimSpace(input.ExternalID) == "" {
		return types.ErrActivityRequired
	}
	return nil
}

// ContentLookupQuery fetches a stored activity record. A miss returns a nil
// record, not an error.
type ContentLookupQuery struct {
	content types.ContentStore
}

// NewContentLookupQuery constructs the lookup helper.
func NewContentLookupQuery(content types.ContentStore) *ContentLookupQuery {
	return &ContentLookupQuery{content: content}
}

var _ gocommand.Querier[ContentLookupInput, *types.ActivityRecord] = (*ContentLookupQuery)(nil)

// Query looks the record up by external id.
func (q *ContentLookupQuery) Query(ctx context.Context, input ContentLookupInput) (*types.ActivityRecord, error) {
	if q.content == nil {
		return nil, types.ErrServiceNotReady
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}
	return q.content.FindByExternalID(ctx, strings.TrimSpace(input.ExternalID))
}
