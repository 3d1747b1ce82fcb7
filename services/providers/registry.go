package providers

import (
	"errors"
	"sync"
)

var (
	// ErrProviderNotFound is returned when a provider is not registered
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderAlreadyRegistered is returned when trying to register a duplicate provider
	ErrProviderAlreadyRegistered = errors.New("provider already registered")
)

// Chain is an ordered set of classifiers. Registration order is resolution
// order: the first registered classifier is consulted first.
type Chain struct {
	mu          sync.RWMutex
	classifiers []Classifier
	index       map[string]int
}

// NewChain creates a chain from the given classifiers, in order
func NewChain(classifiers ...Classifier) (*Chain, error) {
	c := &Chain{index: make(map[string]int)}
	for _, cl := range classifiers {
		if err := c.Register(cl); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Register appends a classifier as the next tier
func (c *Chain) Register(classifier Classifier) error {
	if classifier == nil {
		return errors.New("provider cannot be nil")
	}

	name := classifier.Name()
	if name == "" {
		return errors.New("provider name cannot be empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.index[name]; exists {
		return ErrProviderAlreadyRegistered
	}

	c.index[name] = len(c.classifiers)
	c.classifiers = append(c.classifiers, classifier)
	return nil
}

// Get retrieves a classifier by name
func (c *Chain) Get(name string) (Classifier, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i, exists := c.index[name]
	if !exists {
		return nil, ErrProviderNotFound
	}
	return c.classifiers[i], nil
}

// Tiers returns a snapshot of the classifiers in resolution order
func (c *Chain) Tiers() []Classifier {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tiers := make([]Classifier, len(c.classifiers))
	copy(tiers, c.classifiers)
	return tiers
}

// Names returns the classifier names in resolution order
func (c *Chain) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, len(c.classifiers))
	for i, cl := range c.classifiers {
		names[i] = cl.Name()
	}
	return names
}

// Len returns the number of tiers
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.classifiers)
}
