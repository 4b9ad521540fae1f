package nn

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dcan-ml/dcan/internal/tensor"
)

// Named pairs a module with the name it is registered under.
type Named[B tensor.Backend] struct {
	Name   string
	Module Module[B]
}

// Sequential is a container module that chains multiple modules together.
//
// Each module's output becomes the next module's input. Children are
// named "0", "1", ... unless built with NewNamedSequential, and their
// state dict keys carry that name as prefix:
//
//	layer0 := nn.NewNamedSequential(
//	    nn.Named[B]{Name: "conv1", Module: nn.NewConv2D(3, 64, 7, 7, 2, 3, false, backend)},
//	    nn.Named[B]{Name: "bn1", Module: nn.NewBatchNorm2D(64, backend)},
//	    nn.Named[B]{Name: "relu1", Module: nn.NewReLU[B]()},
//	)
//	layer0.StateDict() // conv1.weight, bn1.weight, bn1.running_mean, ...
type Sequential[B tensor.Backend] struct {
	children []Named[B]
	training bool
}

// NewSequential creates a Sequential whose children are named by index.
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	s := &Sequential[B]{training: true}
	for _, m := range modules {
		s.Add(m)
	}
	return s
}

// NewNamedSequential creates a Sequential with explicitly named children.
// Panics on empty or duplicate names.
func NewNamedSequential[B tensor.Backend](children ...Named[B]) *Sequential[B] {
	s := &Sequential[B]{training: true}
	for _, c := range children {
		s.AddNamed(c.Name, c.Module)
	}
	return s
}

// Forward applies all modules in sequence.
func (s *Sequential[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	output := input
	for _, c := range s.children {
		output = c.Module.Forward(output)
	}
	return output
}

// Parameters returns all parameters from all modules, in order.
func (s *Sequential[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	for _, c := range s.children {
		params = append(params, c.Module.Parameters()...)
	}
	return params
}

// Add appends a module named after its index.
func (s *Sequential[B]) Add(module Module[B]) {
	s.AddNamed(strconv.Itoa(len(s.children)), module)
}

// AddNamed appends a module under name.
func (s *Sequential[B]) AddNamed(name string, module Module[B]) {
	if name == "" || strings.Contains(name, ".") {
		panic(fmt.Sprintf("sequential: invalid child name %q", name))
	}
	if s.Child(name) != nil {
		panic(fmt.Sprintf("sequential: duplicate child name %q", name))
	}
	SetTraining(module, s.training)
	s.children = append(s.children, Named[B]{Name: name, Module: module})
}

// Len returns the number of modules in the sequence.
func (s *Sequential[B]) Len() int {
	return len(s.children)
}

// Module returns the module at the given index.
//
// Panics if index is out of bounds.
func (s *Sequential[B]) Module(index int) Module[B] {
	if index < 0 || index >= len(s.children) {
		panic("Sequential.Module: index out of bounds")
	}
	return s.children[index].Module
}

// Child returns the module registered under name, or nil.
func (s *Sequential[B]) Child(name string) Module[B] {
	for _, c := range s.children {
		if c.Name == name {
			return c.Module
		}
	}
	return nil
}

// Children returns the named children in order.
func (s *Sequential[B]) Children() []Named[B] {
	return s.children
}

// SetTraining sets the mode of every child that has one.
func (s *Sequential[B]) SetTraining(training bool) {
	s.training = training
	for _, c := range s.children {
		SetTraining(c.Module, training)
	}
}

// Training reports the container's mode.
func (s *Sequential[B]) Training() bool {
	return s.training
}

// StateDict returns a map of parameter names to raw tensors, prefixed with
// the child name (e.g., "0.weight", "bn1.running_var").
func (s *Sequential[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for _, c := range s.children {
		for k, v := range WithPrefix(c.Name, c.Module.StateDict()) {
			stateDict[k] = v
		}
	}
	return stateDict
}

// LoadStateDict loads each child from the entries under its name.
func (s *Sequential[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	for _, c := range s.children {
		if err := c.Module.LoadStateDict(SubDict(c.Name, stateDict)); err != nil {
			return fmt.Errorf("%s: %w", c.Name, err)
		}
	}
	return nil
}

// String renders the container and its children, PyTorch style.
func (s *Sequential[B]) String() string {
	var sb strings.Builder
	sb.WriteString("Sequential(\n")
	for _, c := range s.children {
		child := fmt.Sprint(c.Module)
		child = strings.ReplaceAll(child, "\n", "\n  ")
		fmt.Fprintf(&sb, "  (%s): %s\n", c.Name, child)
	}
	sb.WriteString(")")
	return sb.String()
}
