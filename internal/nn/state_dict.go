package nn

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/born-ml/zoo/internal/tensor"
)

// ErrStateDictMismatch is matched by every *StateDictError.
var ErrStateDictMismatch = errors.New("state dict does not match module")

// StateDictError lists every key that prevented a strict load.
type StateDictError struct {
	Missing    []string // Keys the module expects but the state dict lacks
	Unexpected []string // Keys the state dict has but the module does not
	Mismatched []string // Keys present on both sides with different shape or dtype
}

// Error implements the error interface.
func (e *StateDictError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing keys %s", quoteKeys(e.Missing)))
	}
	if len(e.Unexpected) > 0 {
		parts = append(parts, fmt.Sprintf("unexpected keys %s", quoteKeys(e.Unexpected)))
	}
	if len(e.Mismatched) > 0 {
		parts = append(parts, fmt.Sprintf("size mismatch %s", strings.Join(e.Mismatched, "; ")))
	}
	return fmt.Sprintf("error loading state dict: %s", strings.Join(parts, ", "))
}

// Unwrap makes errors.Is(err, ErrStateDictMismatch) hold.
func (e *StateDictError) Unwrap() error {
	return ErrStateDictMismatch
}

func quoteKeys(keys []string) string {
	const limit = 8
	quoted := make([]string, 0, limit)
	for i, k := range keys {
		if i == limit {
			quoted = append(quoted, fmt.Sprintf("and %d more", len(keys)-limit))
			break
		}
		quoted = append(quoted, fmt.Sprintf("%q", k))
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// optionalKey reports whether a key may be absent from a loaded state dict.
// Checkpoints written before BatchNorm tracked its batch count lack it.
func optionalKey(name string) bool {
	return strings.HasSuffix(name, "num_batches_tracked")
}

// loadState copies src into the live tensors of dst.
//
// Every key is checked before anything is copied, so a failed load leaves dst
// untouched.
func loadState(dst, src map[string]*tensor.RawTensor) error {
	var mismatch StateDictError

	names := make([]string, 0, len(dst))
	for name := range dst {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		s, ok := src[name]
		if !ok {
			if !optionalKey(name) {
				mismatch.Missing = append(mismatch.Missing, name)
			}
			continue
		}
		d := dst[name]
		if !d.Shape().Equal(s.Shape()) || d.DType() != s.DType() {
			mismatch.Mismatched = append(mismatch.Mismatched,
				fmt.Sprintf("for %s: copying %s, module has %s", name, s, d))
		}
	}

	for name := range src {
		if _, ok := dst[name]; !ok {
			mismatch.Unexpected = append(mismatch.Unexpected, name)
		}
	}
	sort.Strings(mismatch.Unexpected)

	if len(mismatch.Missing) > 0 || len(mismatch.Unexpected) > 0 || len(mismatch.Mismatched) > 0 {
		return &mismatch
	}

	for _, name := range names {
		s, ok := src[name]
		if !ok {
			continue
		}
		if err := dst[name].CopyFrom(s); err != nil {
			return fmt.Errorf("failed to load %s: %w", name, err)
		}
	}
	return nil
}

// prefixed merges child state dicts under "<prefix>.<key>".
func prefixed(dst map[string]*tensor.RawTensor, prefix string, child map[string]*tensor.RawTensor) {
	for name, raw := range child {
		dst[prefix+"."+name] = raw
	}
}

// SnapshotStateDict returns deep copies of every tensor in m's state dict.
func SnapshotStateDict[B tensor.Backend](m Module[B]) map[string]*tensor.RawTensor {
	live := m.StateDict()
	snapshot := make(map[string]*tensor.RawTensor, len(live))
	for name, raw := range live {
		snapshot[name] = raw.Clone()
	}
	return snapshot
}
