// Package pth decodes PyTorch checkpoints (.pth/.pt) into state dicts.
//
// Both the zip container written by torch.save since PyTorch 1.6 and the
// older single-pickle layout are supported. Half precision and bfloat16
// storages are widened to float32; 8 and 16 bit integers to int32.
package pth

import (
	"container/list"
	"fmt"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"

	"github.com/born-ml/zoo/internal/tensor"
)

// wrapperKeys are the entries training scripts commonly nest a state dict under.
var wrapperKeys = []string{"state_dict", "model", "model_state_dict"}

// Load reads the checkpoint at path and returns its tensors keyed by name,
// together with the key order stored in the file.
func Load(path string) (map[string]*tensor.RawTensor, []string, error) {
	obj, err := pytorch.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to unpickle %s: %w", path, err)
	}
	return FromPickle(obj)
}

// FromPickle converts an unpickled checkpoint object into a state dict.
//
// obj may be an OrderedDict of tensors or a dict wrapping one under
// "state_dict", "model" or "model_state_dict". Non-tensor entries are
// rejected.
func FromPickle(obj interface{}) (map[string]*tensor.RawTensor, []string, error) {
	entries, err := dictEntries(obj)
	if err != nil {
		return nil, nil, err
	}

	if !containsTensor(entries) {
		for _, key := range wrapperKeys {
			if inner, ok := lookup(entries, key); ok {
				return FromPickle(inner)
			}
		}
		return nil, nil, fmt.Errorf("checkpoint holds no tensors and no state_dict entry")
	}

	stateDict := make(map[string]*tensor.RawTensor, len(entries))
	order := make([]string, 0, len(entries))
	for _, e := range entries {
		name, ok := e.key.(string)
		if !ok {
			return nil, nil, fmt.Errorf("state dict key %v is %T, expected string", e.key, e.key)
		}
		t, ok := e.value.(*pytorch.Tensor)
		if !ok {
			return nil, nil, fmt.Errorf("state dict entry %s is %T, expected tensor", name, e.value)
		}
		raw, err := ConvertTensor(t)
		if err != nil {
			return nil, nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		if _, dup := stateDict[name]; dup {
			return nil, nil, fmt.Errorf("duplicate state dict key %s", name)
		}
		stateDict[name] = raw
		order = append(order, name)
	}
	return stateDict, order, nil
}

type entry struct {
	key   interface{}
	value interface{}
}

// keyedDict matches gopickle's plain dict representation.
type keyedDict interface {
	Keys() []interface{}
	Get(key interface{}) (interface{}, bool)
}

func dictEntries(obj interface{}) ([]entry, error) {
	switch d := obj.(type) {
	case *types.OrderedDict:
		return orderedEntries(d.List), nil
	case keyedDict:
		keys := d.Keys()
		entries := make([]entry, 0, len(keys))
		for _, k := range keys {
			v, _ := d.Get(k)
			entries = append(entries, entry{key: k, value: v})
		}
		return entries, nil
	default:
		return nil, fmt.Errorf("checkpoint root is %T, expected a dict", obj)
	}
}

func orderedEntries(l *list.List) []entry {
	entries := make([]entry, 0, l.Len())
	for el := l.Front(); el != nil; el = el.Next() {
		if e, ok := el.Value.(*types.OrderedDictEntry); ok {
			entries = append(entries, entry{key: e.Key, value: e.Value})
		}
	}
	return entries
}

func containsTensor(entries []entry) bool {
	for _, e := range entries {
		if _, ok := e.value.(*pytorch.Tensor); ok {
			return true
		}
	}
	return false
}

func lookup(entries []entry, key string) (interface{}, bool) {
	for _, e := range entries {
		if k, ok := e.key.(string); ok && k == key {
			return e.value, true
		}
	}
	return nil, false
}
