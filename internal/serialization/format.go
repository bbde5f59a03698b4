package serialization

import (
	"fmt"
	"time"

	"github.com/born-ml/zoo/internal/tensor"
)

// Format constants.
const (
	MagicBytes       = "BORN"
	FormatVersion    = 2    // SHA-256 checksummed container
	HeaderAlignment  = 64   // Align tensor data to 64 bytes
	FixedHeaderSize  = 64   // Fixed header size (0x40 bytes)
	ChecksumSize     = 32   // SHA-256 checksum size (32 bytes)
	ChecksumOffset   = 0x20 // Checksum offset in the fixed header
	legacyVersionOne = 1
)

// Flags for the .born format.
const (
	FlagHasMetadata uint32 = 1 << 0 // bit 0: custom metadata included
	FlagEvalMode    uint32 = 1 << 1 // bit 1: parameters captured in evaluation mode
)

// Header represents the JSON header in a .born file.
type Header struct {
	FormatVersion int               `json:"format_version"`   // Version of the .born format
	ZooVersion    string            `json:"zoo_version"`      // Version of zoo that created this file
	ModelType     string            `json:"model_type"`       // Architecture name (e.g., "deeplabv3_resnet101")
	CreatedAt     time.Time         `json:"created_at"`       // When the file was created
	Tensors       []TensorMeta      `json:"tensors"`          // Tensor metadata, sorted by name
	Metadata      map[string]string `json:"metadata"`         // Custom metadata
	Export        *ExportMeta       `json:"export,omitempty"` // Present on zoo exports
}

// ExportMeta describes how an exported parameter mapping was produced.
type ExportMeta struct {
	Architecture string   `json:"architecture"`          // Registry name of the architecture
	Mode         string   `json:"mode"`                  // "eval" or "train"
	WeightsURL   string   `json:"weights_url,omitempty"` // Upstream weights, empty for random init
	NumClasses   int      `json:"num_classes"`           // Segmentation classes
	Categories   []string `json:"categories,omitempty"`  // Class names, index aligned
	Fingerprint  string   `json:"fingerprint"`           // Fingerprint of the tensors
}

// TensorMeta describes a tensor in the .born file.
type TensorMeta struct {
	Name   string `json:"name"`   // Tensor name (e.g., "backbone.conv1.weight")
	DType  string `json:"dtype"`  // Data type (e.g., "float32", "int64")
	Shape  []int  `json:"shape"`  // Tensor shape, empty for scalars
	Offset int64  `json:"offset"` // Offset in the data section
	Size   int64  `json:"size"`   // Size in bytes
}

// Format identifies an on-disk checkpoint format.
type Format string

// Supported output formats.
const (
	FormatBorn        Format = "born"
	FormatSafeTensors Format = "safetensors"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatBorn, FormatSafeTensors:
		return Format(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// dtypeToString converts tensor.DataType to string representation.
func dtypeToString(dt tensor.DataType) string {
	return dt.String()
}

// stringToDtype converts string representation to tensor.DataType.
func stringToDtype(s string) (tensor.DataType, bool) {
	dt, err := tensor.ParseDataType(s)
	return dt, err == nil
}
