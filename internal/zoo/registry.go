package zoo

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownArchitecture is returned for names that are not registered.
var ErrUnknownArchitecture = errors.New("unknown architecture")

// HeadKind selects the segmentation head placed on the backbone.
type HeadKind string

// Supported heads.
const (
	HeadDeepLabV3 HeadKind = "deeplabv3"
	HeadFCN       HeadKind = "fcn"
)

// BackboneConfig describes a bottleneck ResNet.
type BackboneConfig struct {
	Name      string // e.g. "resnet101"
	Layers    [4]int // Bottleneck blocks per stage
	BaseWidth int    // Channels after the stem; 64 for the published models
}

// Architecture is a registered segmentation model.
type Architecture struct {
	Name         string
	Head         HeadKind
	Backbone     BackboneConfig
	HeadChannels int     // ASPP width for DeepLabV3; ignored by FCN
	Weights      Weights // Default pretrained weights
}

// BackboneChannels returns the channel count of the last backbone stage.
func (a Architecture) BackboneChannels() int {
	return a.Backbone.BaseWidth * 8 * bottleneckExpansion
}

// AuxChannels returns the channel count of the stage feeding the auxiliary head.
func (a Architecture) AuxChannels() int {
	return a.Backbone.BaseWidth * 4 * bottleneckExpansion
}

var (
	resnet50  = BackboneConfig{Name: "resnet50", Layers: [4]int{3, 4, 6, 3}, BaseWidth: 64}
	resnet101 = BackboneConfig{Name: "resnet101", Layers: [4]int{3, 4, 23, 3}, BaseWidth: 64}
)

var registry = struct {
	sync.RWMutex
	archs map[string]Architecture
}{archs: make(map[string]Architecture)}

func init() {
	for _, arch := range []Architecture{
		{
			Name:         "deeplabv3_resnet50",
			Head:         HeadDeepLabV3,
			Backbone:     resnet50,
			HeadChannels: 256,
			Weights:      cocoWeights("https://download.pytorch.org/models/deeplabv3_resnet50_coco-cd0a2569.pth", 42_004_074),
		},
		{
			Name:         "deeplabv3_resnet101",
			Head:         HeadDeepLabV3,
			Backbone:     resnet101,
			HeadChannels: 256,
			Weights:      cocoWeights("https://download.pytorch.org/models/deeplabv3_resnet101_coco-586e9e4e.pth", 60_996_202),
		},
		{
			Name:     "fcn_resnet50",
			Head:     HeadFCN,
			Backbone: resnet50,
			Weights:  cocoWeights("https://download.pytorch.org/models/fcn_resnet50_coco-1167a1af.pth", 35_322_218),
		},
		{
			Name:     "fcn_resnet101",
			Head:     HeadFCN,
			Backbone: resnet101,
			Weights:  cocoWeights("https://download.pytorch.org/models/fcn_resnet101_coco-7ecb50ca.pth", 54_314_346),
		},
	} {
		if err := Register(arch); err != nil {
			panic(err)
		}
	}
}

// Register adds arch to the registry.
//
// It fails if the name is taken or the configuration is incomplete.
func Register(arch Architecture) error {
	if arch.Name == "" {
		return fmt.Errorf("register: empty architecture name")
	}
	if arch.Head != HeadDeepLabV3 && arch.Head != HeadFCN {
		return fmt.Errorf("register %s: unsupported head %q", arch.Name, arch.Head)
	}
	if arch.Head == HeadDeepLabV3 && arch.HeadChannels <= 0 {
		return fmt.Errorf("register %s: deeplabv3 head needs positive HeadChannels", arch.Name)
	}
	if arch.Backbone.BaseWidth <= 0 {
		return fmt.Errorf("register %s: backbone needs positive BaseWidth", arch.Name)
	}
	for i, n := range arch.Backbone.Layers {
		if n <= 0 {
			return fmt.Errorf("register %s: layer%d has %d blocks", arch.Name, i+1, n)
		}
	}

	registry.Lock()
	defer registry.Unlock()
	if _, exists := registry.archs[arch.Name]; exists {
		return fmt.Errorf("register %s: already registered", arch.Name)
	}
	registry.archs[arch.Name] = arch
	return nil
}

// Lookup returns the architecture registered under name.
func Lookup(name string) (Architecture, error) {
	registry.RLock()
	defer registry.RUnlock()
	arch, ok := registry.archs[name]
	if !ok {
		return Architecture{}, fmt.Errorf("%w: %q (available: %v)", ErrUnknownArchitecture, name, namesLocked())
	}
	return arch, nil
}

// Names returns the registered architecture names in sorted order.
func Names() []string {
	registry.RLock()
	defer registry.RUnlock()
	return namesLocked()
}

func namesLocked() []string {
	names := make([]string, 0, len(registry.archs))
	for name := range registry.archs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
