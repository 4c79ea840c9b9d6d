// Package finder locates the sources a Reader works through.
package finder

import "context"

// DefaultLabel names the broker as a source.
const DefaultLabel = "AMQP Message Broker"

// Finder hands out sources and is told how each one ended.
type Finder interface {
	TypeName() string
	FindNextSource(ctx context.Context) (source string, found bool, err error)
	ClaimSource(source string) (string, error)
	MarkSourceProcessed(source string) error
	MarkSourceFailed(source string) error
}

// BrokerFinder always finds the same source: the broker, identified by a label.
// Nothing has to be claimed or moved, so the lifecycle hooks do nothing.
type BrokerFinder struct {
	Label string
}

// NewBrokerFinder creates a BrokerFinder. An empty label falls back to DefaultLabel.
func NewBrokerFinder(label string) *BrokerFinder {
	if label == "" {
		label = DefaultLabel
	}

	return &BrokerFinder{Label: label}
}

// TypeName is the human readable name of this finder.
func (bf *BrokerFinder) TypeName() string {
	return "Message Broker Finder"
}

// FindNextSource returns the label until ctx is done.
func (bf *BrokerFinder) FindNextSource(ctx context.Context) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	return bf.Label, true, nil
}

// ClaimSource returns source unchanged.
func (bf *BrokerFinder) ClaimSource(source string) (string, error) {
	return source, nil
}

// MarkSourceProcessed does nothing.
func (bf *BrokerFinder) MarkSourceProcessed(source string) error {
	return nil
}

// MarkSourceFailed does nothing.
func (bf *BrokerFinder) MarkSourceFailed(source string) error {
	return nil
}

var _ Finder = (*BrokerFinder)(nil)
