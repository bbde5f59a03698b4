package serialization

import (
	"encoding/binary"
	"encoding/hex"

	"lukechampine.com/blake3"

	"github.com/born-ml/zoo/internal/parallel"
	"github.com/born-ml/zoo/internal/tensor"
)

// Fingerprint returns a BLAKE3 digest over the sorted names, dtypes, shapes
// and raw bytes of stateDict.
//
// Two state dictionaries have the same fingerprint exactly when they would
// serialize to the same tensor section, regardless of the format or the
// header timestamp. Tensors are hashed concurrently and their digests
// combined in name order.
func Fingerprint(stateDict map[string]*tensor.RawTensor) string {
	names := SortedNames(stateDict)
	leaves := make([][32]byte, len(names))
	parallel.For(len(names), func(i int) {
		leaves[i] = tensorDigest(names[i], stateDict[names[i]])
	}, parallel.DefaultConfig())

	h := blake3.New(32, nil)
	for i := range leaves {
		_, _ = h.Write(leaves[i][:])
	}
	return "blake3:" + hex.EncodeToString(h.Sum(nil))
}

func tensorDigest(name string, raw *tensor.RawTensor) [32]byte {
	h := blake3.New(32, nil)
	var scratch [8]byte
	writeUint := func(v uint64) {
		binary.LittleEndian.PutUint64(scratch[:], v)
		_, _ = h.Write(scratch[:])
	}

	writeUint(uint64(len(name)))
	_, _ = h.Write([]byte(name))
	writeUint(uint64(raw.DType()))
	writeUint(uint64(len(raw.Shape())))
	for _, dim := range raw.Shape() {
		writeUint(uint64(dim)) //nolint:gosec // G115: dims are validated positive
	}
	writeUint(uint64(raw.ByteSize())) //nolint:gosec // G115: sizes are non-negative
	_, _ = h.Write(raw.Data())

	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
