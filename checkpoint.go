package korudelta

import (
	"encoding/gob"
	"errors"
	"os"
	"path/filepath"

	"github.com/swyrknt/korudelta/internal/kerr"
	"github.com/swyrknt/korudelta/internal/snsw"
)

const checkpointFileName = "snsw.checkpoint"

// checkpointPayload is the gob-encoded contents of a checkpoint file:
// the SNSW graph's nodes plus enough bookkeeping to resume search
// without reassigning layers or relinking edges.
type checkpointPayload struct {
	Nodes      []snsw.NodeSnapshot
	EntryPoint string
	TopLayer   int
}

func checkpointPath(dataDir string) string {
	return filepath.Join(dataDir, checkpointFileName)
}

// loadCheckpoint restores idx from dataDir's checkpoint file if one
// exists. The bool return reports whether a checkpoint was found.
func loadCheckpoint(dataDir string, idx *snsw.Index) (bool, error) {
	f, err := os.Open(checkpointPath(dataDir))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, kerr.New(kerr.StorageError, "open snsw checkpoint: %v", err)
	}
	defer f.Close()

	var payload checkpointPayload
	if err := gob.NewDecoder(f).Decode(&payload); err != nil {
		return false, kerr.New(kerr.StorageError, "decode snsw checkpoint: %v", err)
	}
	idx.Restore(payload.Nodes, payload.EntryPoint, payload.TopLayer)
	return true, nil
}

// saveCheckpoint writes idx's current graph to dataDir, via a temp file
// plus rename so a crash mid-write never leaves a truncated checkpoint
// behind to be loaded on the next Open.
func saveCheckpoint(dataDir string, idx *snsw.Index) error {
	nodes, entryPoint, topLayer := idx.Snapshot()

	tmp := checkpointPath(dataDir) + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return kerr.New(kerr.StorageError, "create snsw checkpoint: %v", err)
	}

	payload := checkpointPayload{Nodes: nodes, EntryPoint: entryPoint, TopLayer: topLayer}
	if err := gob.NewEncoder(f).Encode(&payload); err != nil {
		f.Close()
		return kerr.New(kerr.StorageError, "encode snsw checkpoint: %v", err)
	}
	if err := f.Close(); err != nil {
		return kerr.New(kerr.StorageError, "close snsw checkpoint: %v", err)
	}
	if err := os.Rename(tmp, checkpointPath(dataDir)); err != nil {
		return kerr.New(kerr.StorageError, "install snsw checkpoint: %v", err)
	}
	return nil
}
