package model

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/koskimas/strata/internal/maps"
	"github.com/koskimas/strata/pkg/trait"
	"go.uber.org/zap"
)

// Model is one logical entity whose trait values are set by any number of
// strata. Reads resolve the values of all strata according to the precedence
// of the model and the kind of each trait.
//
// A Model is not safe for concurrent use.
type Model struct {
	id         string
	group      *trait.Group
	precedence Precedence
	ranks      map[string]int
	logger     *zap.Logger
	log        *zap.Logger

	strata     map[string]*bag
	strataSeen []string

	resolved map[string]*resolution

	subs       map[string][]*subscription
	pending    map[string]bool
	batchDepth int
}

type Option func(*Model)

// WithLogger sets the logger used for debug output. Models log nothing by
// default.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Model) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New creates a model of schema `group`. An empty id is replaced with a random
// UUID. The group is sealed.
func New(group *trait.Group, id string, precedence Precedence, opts ...Option) (*Model, error) {
	if err := precedence.Validate(); err != nil {
		return nil, fmt.Errorf(`invalid precedence for model "%s": %w`, id, err)
	}

	if len(id) == 0 {
		id = uuid.NewString()
	}

	group.Seal()

	m := &Model{
		id:         id,
		group:      group,
		precedence: precedence.Clone(),
		ranks:      precedence.ranks(),
		logger:     zap.NewNop(),
		strata:     make(map[string]*bag),
		strataSeen: make([]string, 0, len(precedence)),
		resolved:   make(map[string]*resolution),
		subs:       make(map[string][]*subscription),
		pending:    make(map[string]bool),
	}

	for _, o := range opts {
		o(m)
	}

	m.log = m.logger.With(zap.String("model", id), zap.String("schema", group.Name()))

	return m, nil
}

func (m *Model) ID() string                { return m.id }
func (m *Model) Group() *trait.Group       { return m.group }
func (m *Model) Precedence() Precedence    { return m.precedence.Clone() }
func (m *Model) HasStratum(id string) bool { _, ok := m.strata[id]; return ok }

// Strata returns the ids of the strata the model holds, in the order they were
// first written. The order has no effect on resolution.
func (m *Model) Strata() []string {
	out := make([]string, 0, len(m.strataSeen))

	for _, s := range m.strataSeen {
		if _, ok := m.strata[s]; ok {
			out = append(out, s)
		}
	}

	return out
}

// DeleteStratum drops every value set by `stratum`.
func (m *Model) DeleteStratum(stratum string) error {
	if err := m.checkStratum(stratum); err != nil {
		return err
	}

	b, ok := m.strata[stratum]
	if !ok {
		return nil
	}

	delete(m.strata, stratum)
	m.log.Debug("deleted stratum", zap.String("stratum", stratum), zap.Int("traits", len(b.values)))

	return m.Batch(func() error {
		for _, id := range maps.Keys(b.values) {
			m.touch(id)
		}

		return nil
	})
}

// Clone returns a model of the same schema and precedence holding deep copies
// of all strata. Subscriptions are not copied.
func (m *Model) Clone(id string) (*Model, error) {
	clone, err := New(m.group, id, m.precedence, WithLogger(m.logger))
	if err != nil {
		return nil, err
	}

	for _, s := range m.Strata() {
		clone.strata[s] = m.strata[s].clone()
		clone.strataSeen = append(clone.strataSeen, s)
	}

	return clone, nil
}

func (m *Model) checkStratum(stratum string) error {
	if _, ok := m.ranks[stratum]; !ok {
		return &UnknownStratumError{
			Stratum:    stratum,
			Precedence: m.precedence.Clone(),
		}
	}

	return nil
}

// stratum returns the bag of `stratum`, creating it when `create` is true.
func (m *Model) stratum(stratum string, create bool) *bag {
	b, ok := m.strata[stratum]
	if ok || !create {
		return b
	}

	b = newBag(m.group)
	m.strata[stratum] = b

	seen := false
	for _, s := range m.strataSeen {
		if s == stratum {
			seen = true
			break
		}
	}

	if !seen {
		m.strataSeen = append(m.strataSeen, stratum)
	}

	return b
}

// layers returns the values the strata set for the top level trait `id`,
// lowest precedence first.
func (m *Model) layers(id string) []layer {
	out := make([]layer, 0, len(m.strata))

	for _, s := range m.precedence {
		b, ok := m.strata[s]
		if !ok {
			continue
		}

		if v, ok := b.values[id]; ok {
			out = append(out, layer{stratum: s, value: v})
		}
	}

	return out
}
