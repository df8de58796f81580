package models

import "context"

// Channel is a resolved channel record.
type Channel struct {
	ID         int64
	Title      string
	InviteLink string
}

// ChannelResolver resolves a channel id into a full record, typically via the
// messaging transport.
type ChannelResolver interface {
	ResolveChannel(ctx context.Context, channelID int64) (*Channel, error)
}

// ChannelRef refers to a channel either by bare id or as an already resolved
// record. All boundaries that render or verify channels normalize through
// Resolve instead of branching on what they were handed.
type ChannelRef struct {
	id       int64
	resolved *Channel
}

// RefByID makes an unresolved reference.
func RefByID(channelID int64) ChannelRef {
	return ChannelRef{id: channelID}
}

// RefResolved makes a reference carrying a full record.
func RefResolved(ch *Channel) ChannelRef {
	return ChannelRef{id: ch.ID, resolved: ch}
}

// ID returns the channel id without resolving.
func (r ChannelRef) ID() int64 {
	return r.id
}

// Resolve returns the full record, consulting the resolver only when the
// reference does not already carry one.
func (r ChannelRef) Resolve(ctx context.Context, resolver ChannelResolver) (*Channel, error) {
	if r.resolved != nil {
		return r.resolved, nil
	}
	return resolver.ResolveChannel(ctx, r.id)
}
