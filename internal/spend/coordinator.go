package spend

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"sigserver/internal/logging"
	"sigserver/internal/metrics"
	"sigserver/internal/signature"
)

// PartyCount is the number of stakeholders voting on each spend. The same
// stakeholders sign, so party indexes follow the signature store.
const PartyCount = signature.PartyCount

var (
	ErrNotFound     = errors.New("spend proposal not found")
	ErrInvalidParty = signature.ErrInvalidParty
)

type proposal struct {
	destinations []Destination
	votes        Votes
}

type CoordinatorOptions struct {
	Logger    *logging.Logger
	Registry  *metrics.Registry
	Publisher Publisher
}

// Coordinator records spend proposals and the stakeholders' votes on them.
type Coordinator struct {
	mu        sync.RWMutex
	proposals map[string]*proposal

	logger    *logging.Logger
	registry  *metrics.Registry
	publisher Publisher
}

func NewCoordinator(opts CoordinatorOptions) *Coordinator {
	registry := opts.Registry
	if registry == nil {
		registry = metrics.Default
	}
	return &Coordinator{
		proposals: make(map[string]*proposal),
		logger:    opts.Logger,
		registry:  registry,
		publisher: opts.Publisher,
	}
}

// Propose (re)creates the proposal for txid. Any votes already cast are
// discarded.
func (c *Coordinator) Propose(txid string, destinations []Destination) {
	stored := cloneDestinations(destinations)

	c.mu.Lock()
	_, replaced := c.proposals[txid]
	c.proposals[txid] = &proposal{destinations: stored}
	c.publish(Event{
		EventType:    EventProposed,
		Txid:         txid,
		Status:       StatusPending.String(),
		Destinations: cloneDestinations(stored),
	})
	c.mu.Unlock()

	c.registry.IncSpendProposed()
	c.logger.Info("spend proposed", map[string]string{
		"sigserver.category": "spend",
		"txid":               txid,
		"destinations":       strconv.Itoa(len(stored)),
		"replaced":           strconv.FormatBool(replaced),
	})
}

func (c *Coordinator) Vote(txid string, party int, accepted bool) error {
	return c.VoteAt(txid, "", party, accepted)
}

// VoteAt records the vote of party on txid. address is the destination the
// voter referred to; it is reported on the emitted event but not checked.
// A resolved event follows the vote only when it changes the outcome.
func (c *Coordinator) VoteAt(txid, address string, party int, accepted bool) error {
	if err := signature.ValidateParty(party); err != nil {
		return err
	}

	c.mu.Lock()
	p, ok := c.proposals[txid]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, txid)
	}
	previous := p.votes.Tally()
	vote := accepted
	p.votes[party-1] = &vote
	status := p.votes.Tally()

	// Events go out under the lock so subscribers see them in state order.
	c.publish(Event{
		EventType: EventVoted,
		Txid:      txid,
		Party:     party,
		Address:   address,
		Accepted:  &vote,
		Status:    status.String(),
	})
	if status != StatusPending && status != previous {
		c.publish(Event{
			EventType: EventResolved,
			Txid:      txid,
			Accepted:  status.Accepted(),
			Status:    status.String(),
		})
	}
	c.mu.Unlock()

	c.registry.IncSpendVote(accepted)
	c.logger.Info("spend vote cast", map[string]string{
		"sigserver.category": "spend",
		"txid":               txid,
		"address":            address,
		"party":              strconv.Itoa(party),
		"accepted":           strconv.FormatBool(accepted),
		"status":             status.String(),
	})
	return nil
}

func (c *Coordinator) Status(txid string) (Status, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.proposals[txid]
	if !ok {
		return StatusPending, fmt.Errorf("%w: %s", ErrNotFound, txid)
	}
	return p.votes.Tally(), nil
}

// Votes returns a copy of the votes cast on txid.
func (c *Coordinator) Votes(txid string) (Votes, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.proposals[txid]
	if !ok {
		return Votes{}, fmt.Errorf("%w: %s", ErrNotFound, txid)
	}
	var out Votes
	for i, vote := range p.votes {
		if vote == nil {
			continue
		}
		value := *vote
		out[i] = &value
	}
	return out, nil
}

// Proposals returns a snapshot of every proposal's destinations.
func (c *Coordinator) Proposals() map[string][]Destination {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string][]Destination, len(c.proposals))
	for txid, p := range c.proposals {
		out[txid] = cloneDestinations(p.destinations)
	}
	return out
}

// publish must be called with c.mu held.
func (c *Coordinator) publish(evt Event) {
	if c.publisher == nil {
		return
	}
	evt.OccurredAt = time.Now().UTC()
	c.publisher.Publish(evt)
}
