package loader

import (
	"fmt"
	"strconv"
	"strings"
)

// Architecture names as registered in the model zoo.
const (
	ArchitectureDeepLabV3ResNet50  = "deeplabv3_resnet50"
	ArchitectureDeepLabV3ResNet101 = "deeplabv3_resnet101"
	ArchitectureFCNResNet50        = "fcn_resnet50"
	ArchitectureFCNResNet101       = "fcn_resnet101"
)

// KeyMapper renames state dict keys as a checkpoint is loaded.
type KeyMapper interface {
	// MapName converts a checkpoint key to its module key.
	MapName(name string) (string, error)
}

// KeyMapperFunc adapts a function to KeyMapper.
type KeyMapperFunc func(name string) (string, error)

// MapName calls f.
func (f KeyMapperFunc) MapName(name string) (string, error) {
	return f(name)
}

// StripPrefix removes prefix from keys that carry it, e.g. the "module."
// prefix nn.DataParallel adds when a wrapped model is saved.
func StripPrefix(prefix string) KeyMapper {
	return KeyMapperFunc(func(name string) (string, error) {
		return strings.TrimPrefix(name, prefix), nil
	})
}

// Chain applies mappers in order.
func Chain(mappers ...KeyMapper) KeyMapper {
	return KeyMapperFunc(func(name string) (string, error) {
		var err error
		for _, m := range mappers {
			if name, err = m.MapName(name); err != nil {
				return "", err
			}
		}
		return name, nil
	})
}

// remap renames every key, preserving order. Two keys mapping to the same
// name is an error.
func remap[T any](stateDict map[string]T, names []string, mapper KeyMapper) (map[string]T, []string, error) {
	out := make(map[string]T, len(stateDict))
	order := make([]string, 0, len(names))
	for _, name := range names {
		mapped, err := mapper.MapName(name)
		if err != nil {
			return nil, nil, fmt.Errorf("map %s: %w", name, err)
		}
		if _, dup := out[mapped]; dup {
			return nil, nil, fmt.Errorf("keys collide after mapping: %s", mapped)
		}
		out[mapped] = stateDict[name]
		order = append(order, mapped)
	}
	return out, order, nil
}

// DetectArchitecture attempts to detect the model architecture from tensor names.
// It returns "" when the names do not look like a zoo segmentation model.
func DetectArchitecture(names []string) string {
	var head string
	layer3Blocks := 0
	for _, name := range names {
		switch {
		case strings.HasPrefix(name, "classifier.0.convs."):
			head = "deeplabv3"
		case head == "" && strings.HasPrefix(name, "classifier.0.weight"):
			head = "fcn"
		}
		if rest, ok := strings.CutPrefix(name, "backbone.layer3."); ok {
			idx, _, _ := strings.Cut(rest, ".")
			if n, err := strconv.Atoi(idx); err == nil && n+1 > layer3Blocks {
				layer3Blocks = n + 1
			}
		}
	}

	var depth string
	switch layer3Blocks {
	case 6:
		depth = "resnet50"
	case 23:
		depth = "resnet101"
	}
	if head == "" || depth == "" {
		return ""
	}
	return head + "_" + depth
}
