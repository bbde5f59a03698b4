package nn

import (
	"github.com/born-ml/zoo/internal/serialization"
	"github.com/born-ml/zoo/internal/tensor"
)

// Save writes module's state dict to a .born file.
//
// The file is replaced atomically; the parent directory must exist.
//
// Example:
//
//	err := nn.Save(model, "model.born", "deeplabv3_resnet101", nil)
func Save[B tensor.Backend](module Module[B], path, modelType string, metadata map[string]string) error {
	return serialization.WriteFile(path, serialization.FormatBorn, module.StateDict(), serialization.Header{
		ModelType: modelType,
		Metadata:  metadata,
	})
}

// Load reads a .born file and strictly loads it into module.
//
// Returns the file header.
func Load[B tensor.Backend](path string, backend B, module Module[B]) (serialization.Header, error) {
	reader, err := serialization.NewBornReader(path)
	if err != nil {
		return serialization.Header{}, err
	}
	defer func() {
		_ = reader.Close()
	}()

	stateDict, err := reader.ReadStateDict(backend)
	if err != nil {
		return serialization.Header{}, err
	}

	if err := module.LoadStateDict(stateDict); err != nil {
		return serialization.Header{}, err
	}

	return reader.Header(), nil
}
