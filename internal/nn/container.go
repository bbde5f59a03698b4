package nn

import (
	"fmt"
	"strings"

	"github.com/born-ml/zoo/internal/tensor"
)

// Container groups named child modules, like attributes on a PyTorch module.
//
// State dict keys are "<child>.<key>", so nesting containers yields dotted
// paths such as "backbone.layer1.0.conv1.weight".
type Container[B tensor.Backend] struct {
	names    []string
	children map[string]Module[B]
	training bool
}

// NewContainer creates an empty container.
func NewContainer[B tensor.Backend]() *Container[B] {
	return &Container[B]{
		children: make(map[string]Module[B]),
		training: true,
	}
}

// Add registers child under name and returns the container for chaining.
//
// Panics if name is empty, contains a dot, or is already registered.
func (c *Container[B]) Add(name string, child Module[B]) *Container[B] {
	if name == "" {
		panic("container: empty child name")
	}
	if strings.ContainsRune(name, '.') {
		panic(fmt.Sprintf("container: child name %q contains '.'", name))
	}
	if _, exists := c.children[name]; exists {
		panic(fmt.Sprintf("container: duplicate child %q", name))
	}
	c.names = append(c.names, name)
	c.children[name] = child
	return c
}

// Child returns the child registered under name, or nil.
func (c *Container[B]) Child(name string) Module[B] {
	return c.children[name]
}

// Names returns child names in registration order.
func (c *Container[B]) Names() []string {
	return append([]string(nil), c.names...)
}

// Parameters returns all parameters of all children, in registration order.
func (c *Container[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	for _, name := range c.names {
		params = append(params, c.children[name].Parameters()...)
	}
	return params
}

// Buffers returns all buffers of all children, in registration order.
func (c *Container[B]) Buffers() []*Buffer {
	var buffers []*Buffer
	for _, name := range c.names {
		buffers = append(buffers, c.children[name].Buffers()...)
	}
	return buffers
}

// StateDict returns every child's state under its name prefix.
func (c *Container[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for _, name := range c.names {
		prefixed(stateDict, name, c.children[name].StateDict())
	}
	return stateDict
}

// LoadStateDict strictly loads every child.
func (c *Container[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return loadState(c.StateDict(), stateDict)
}

// Train sets the mode of the container and all of its children.
func (c *Container[B]) Train(mode bool) {
	c.training = mode
	for _, name := range c.names {
		c.children[name].Train(mode)
	}
}

// Training reports whether the container is in training mode.
func (c *Container[B]) Training() bool {
	return c.training
}
