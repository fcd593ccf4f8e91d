package causal

import (
	"bufio"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/swyrknt/korudelta/internal/kerr"
	"github.com/swyrknt/korudelta/internal/writeid"
)

// record is one append-only log entry: a single committed write to one
// (namespace, key), in the order it was applied (which for replicated
// writes need not be write_id order).
type record struct {
	WriteID   writeid.WriteID
	Key       string
	Value     []byte // canonical json, or "null" for a tombstone
	Previous  *writeid.WriteID
	Tombstone bool
}

// persister owns one append-only gob-encoded log file per namespace
// under a data directory.
type persister struct {
	dir string

	mu    sync.Mutex
	files map[string]*os.File
	encs  map[string]*gob.Encoder
}

func openPersister(dir string) (*persister, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, kerr.New(kerr.StorageError, "create data directory %q: %v", dir, err)
	}
	return &persister{
		dir:   dir,
		files: make(map[string]*os.File),
		encs:  make(map[string]*gob.Encoder),
	}, nil
}

func (p *persister) logPath(ns string) string {
	return filepath.Join(p.dir, sanitizeNamespace(ns)+".log")
}

// append writes one record for (ns, key) and fsyncs before returning,
// so a successful append is durable before the caller commits the
// corresponding in-memory mutation.
func (p *persister) append(ns, key string, id writeid.WriteID, value []byte, previous *writeid.WriteID, tombstone bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	enc, f, err := p.encoderFor(ns)
	if err != nil {
		return err
	}

	rec := record{WriteID: id, Key: key, Value: value, Previous: previous, Tombstone: tombstone}
	if err := enc.Encode(&rec); err != nil {
		return kerr.New(kerr.StorageError, "append namespace %q key %q: %v", ns, key, err)
	}
	if err := f.Sync(); err != nil {
		return kerr.New(kerr.StorageError, "sync namespace %q: %v", ns, err)
	}
	return nil
}

func (p *persister) encoderFor(ns string) (*gob.Encoder, *os.File, error) {
	if enc, ok := p.encs[ns]; ok {
		return enc, p.files[ns], nil
	}

	f, err := os.OpenFile(p.logPath(ns), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, kerr.New(kerr.StorageError, "open log for namespace %q: %v", ns, err)
	}
	enc := gob.NewEncoder(f)
	p.files[ns] = f
	p.encs[ns] = enc
	return enc, f, nil
}

// loadOrCreateNodeID returns the node identity persisted in the data
// directory, minting and persisting a fresh one on first open, so the
// write-id NodeID component stays stable across restarts of the same
// data directory.
func (p *persister) loadOrCreateNodeID() (uint32, error) {
	path := filepath.Join(p.dir, "node-id")

	data, err := os.ReadFile(path)
	if err == nil {
		id, perr := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 32)
		if perr != nil {
			return 0, kerr.New(kerr.StorageError, "parse node id file %q: %v", path, perr)
		}
		return uint32(id), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return 0, kerr.New(kerr.StorageError, "read node id file %q: %v", path, err)
	}

	id := writeid.RandomNodeID()
	if err := os.WriteFile(path, []byte(strconv.FormatUint(uint64(id), 10)+"\n"), 0o644); err != nil {
		return 0, kerr.New(kerr.StorageError, "persist node id file %q: %v", path, err)
	}
	return id, nil
}

// namespaces lists every namespace with an existing log file, for
// startup replay.
func (p *persister) namespaces() ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, kerr.New(kerr.StorageError, "list data directory %q: %v", p.dir, err)
	}

	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".log" {
			continue
		}
		out = append(out, desanitizeNamespace(e.Name()[:len(e.Name())-len(".log")]))
	}
	return out, nil
}

// replayNamespace decodes ns's log in the order records were appended,
// calling visit for each one.
func (p *persister) replayNamespace(ns string, visit func(record) error) error {
	f, err := os.Open(p.logPath(ns))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return kerr.New(kerr.StorageError, "open log for namespace %q: %v", ns, err)
	}
	defer f.Close()

	dec := gob.NewDecoder(bufio.NewReader(f))
	for {
		var rec record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return kerr.New(kerr.StorageError, "decode log for namespace %q: %v", ns, err)
		}
		if err := visit(rec); err != nil {
			return err
		}
	}
}

func (p *persister) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for ns, f := range p.files {
		if err := f.Close(); err != nil {
			return kerr.New(kerr.StorageError, "close log for namespace %q: %v", ns, err)
		}
	}
	return nil
}

// sanitizeNamespace maps an arbitrary namespace string (unicode and
// whitespace are accepted verbatim, the same as keys) to a safe file
// name.
// Namespaces made only of conservative characters pass through
// unchanged for readability; anything else is hex-encoded behind an
// "ns-" prefix. Names that themselves start with "ns-" are always
// hex-encoded so the prefix can never collide with a pass-through
// name.
func sanitizeNamespace(ns string) string {
	if ns != "" && isSafeFileName(ns) && !strings.HasPrefix(ns, "ns-") {
		return ns
	}
	return "ns-" + hex.EncodeToString([]byte(ns))
}

func desanitizeNamespace(name string) string {
	const prefix = "ns-"
	if !strings.HasPrefix(name, prefix) {
		return name
	}
	decoded, err := hex.DecodeString(name[len(prefix):])
	if err != nil {
		return name
	}
	return string(decoded)
}

func isSafeFileName(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
