package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/zoo/internal/backend/cpu"
	"github.com/born-ml/zoo/internal/serialization"
	"github.com/born-ml/zoo/internal/zoo"
)

const tinyArch = "test_cli_tiny"

// weightHits counts downloads from the fake weights server.
var weightHits int32

// TestMain registers a narrow architecture whose weights are served locally,
// so commands run end to end without the network.
func TestMain(m *testing.M) {
	arch := zoo.Architecture{
		Name:         tinyArch,
		Head:         zoo.HeadDeepLabV3,
		Backbone:     zoo.BackboneConfig{Name: "tiny_resnet", Layers: [4]int{1, 1, 1, 1}, BaseWidth: 2},
		HeadChannels: 4,
		Weights: zoo.Weights{
			Name:       "TINY_WITH_VOC_LABELS",
			NumClasses: 21,
			Categories: zoo.VOCCategories,
		},
	}

	donor, err := zoo.Build(context.Background(), arch, cpu.New(), zoo.Options{AuxLoss: true, Seed: 11})
	if err != nil {
		panic(err)
	}
	var weights bytes.Buffer
	header := serialization.Header{ModelType: tinyArch, CreatedAt: time.Unix(0, 0).UTC()}
	if err := serialization.Encode(&weights, donor.StateDict(), header); err != nil {
		panic(err)
	}

	name := fmt.Sprintf("tiny-%s.pth", digest.FromBytes(weights.Bytes()).Encoded()[:8])
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/"+name {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(&weightHits, 1)
		_, _ = w.Write(weights.Bytes())
	}))

	arch.Weights.URL = srv.URL + "/models/" + name
	if err := zoo.Register(arch); err != nil {
		panic(err)
	}

	code := m.Run()
	srv.Close()
	os.Exit(code)
}

// run executes the CLI with args and quiet logging.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(append(args, "--log-format", "nop", "--progress=false"))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "zoo v")
}

func TestList(t *testing.T) {
	out, err := run(t, "list", "--cache-dir", t.TempDir())
	require.NoError(t, err)
	for _, name := range []string{"deeplabv3_resnet101", "fcn_resnet50", tinyArch} {
		assert.Contains(t, out, name)
	}
	assert.Contains(t, out, "61.0M")
}

func TestExportPullAndInspect(t *testing.T) {
	cache := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "deeplabsv3")
	before := atomic.LoadInt32(&weightHits)

	out, err := run(t, "pull", tinyArch, "--cache-dir", cache)
	require.NoError(t, err)
	assert.Contains(t, out, cache)
	assert.Equal(t, before+1, atomic.LoadInt32(&weightHits))

	out, err = run(t, "export", tinyArch, "--cache-dir", cache, "--output-dir", outDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Saved")
	assert.Equal(t, before+1, atomic.LoadInt32(&weightHits), "export reuses the cached weights")

	path := filepath.Join(outDir, tinyArch+".pth")
	require.FileExists(t, path)

	out, err = run(t, "inspect", path, "--tensors")
	require.NoError(t, err)
	assert.Contains(t, out, "eval")
	assert.Contains(t, out, tinyArch)
	assert.Contains(t, out, "blake3:")
	assert.Contains(t, out, "classifier.4.weight")
	assert.Contains(t, out, "aux_classifier.4.bias")
}

func TestExportRandomInitWithFlags(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "out")
	_, err := run(t, "--arch", tinyArch, "--pretrained=false", "--seed", "3",
		"--output-dir", outDir, "--output-file", "tiny.safetensors", "--format", "safetensors")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(outDir, "tiny.safetensors"))

	// Without --output-file the name follows the architecture.
	_, err = run(t, "--arch", tinyArch, "--pretrained=false", "--output-dir", outDir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(outDir, tinyArch+".pth"))
	assert.NoFileExists(t, filepath.Join(outDir, "deeplabv3_resnet101.pth"))
}

func TestErrors(t *testing.T) {
	_, err := run(t, "export", "deeplabv9_resnet1", "--output-dir", t.TempDir())
	assert.True(t, errors.Is(err, zoo.ErrUnknownArchitecture))

	_, err = run(t, "--format", "onnx")
	assert.ErrorContains(t, err, "format")

	_, err = run(t, "unexpected-arg")
	assert.Error(t, err)

	_, err = run(t, "inspect", filepath.Join(t.TempDir(), "missing.pth"))
	assert.Error(t, err)

	_, err = run(t, "pull", "deeplabv9_resnet1")
	assert.True(t, errors.Is(err, zoo.ErrUnknownArchitecture))
}
