package hnsw

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/xDarkicex/vecengine/internal/distance"
	"github.com/xDarkicex/vecengine/internal/graph"
)

// metadataKey is the fixed record id the single persisted metadata record
// lives under.
const metadataKey = "m:graph"

// metadataMagic tags the metadata record's on-disk format.
const metadataMagic = 0x564d4554 // "VMET"

// DirtyStats reports how many distinct nodes carry unsaved mutations.
type DirtyStats struct {
	DirtyNodes int
}

// metadataRecord is the single persisted "graph" record: distance_kind, m,
// ef_construction, m_max_0, ml, seed, use_persistence, entry_point_key, and
// the serialized layer sequence.
type metadataRecord struct {
	DistanceKind   distance.Kind
	M              int
	EfConstruction int
	MMax0          int
	ML             float64
	Seed           int64
	UsePersistence bool
	HasEntryPoint  bool
	EntryPointKey  string
	Layers         []byte
}

func (idx *Index) buildMetadataRecord() metadataRecord {
	return metadataRecord{
		DistanceKind:   idx.cfg.DistanceKind,
		M:              idx.cfg.M,
		EfConstruction: idx.cfg.EfConstruction,
		MMax0:          idx.cfg.MMax0,
		ML:             idx.cfg.ML,
		Seed:           idx.cfg.Seed,
		UsePersistence: idx.cfg.UsePersistence,
		HasEntryPoint:  idx.hasEntryPoint,
		EntryPointKey:  idx.entryPoint,
		Layers:         idx.layers.Snapshot(),
	}
}

func encodeMetadata(r metadataRecord) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(metadataMagic))
	binary.Write(&buf, binary.LittleEndian, uint8(r.DistanceKind))
	binary.Write(&buf, binary.LittleEndian, int32(r.M))
	binary.Write(&buf, binary.LittleEndian, int32(r.EfConstruction))
	binary.Write(&buf, binary.LittleEndian, int32(r.MMax0))
	binary.Write(&buf, binary.LittleEndian, r.ML)
	binary.Write(&buf, binary.LittleEndian, r.Seed)
	writeBool(&buf, r.UsePersistence)
	writeBool(&buf, r.HasEntryPoint)
	writeLenPrefixedString(&buf, r.EntryPointKey)
	binary.Write(&buf, binary.LittleEndian, uint32(len(r.Layers)))
	buf.Write(r.Layers)
	return buf.Bytes()
}

func decodeMetadata(data []byte) (metadataRecord, error) {
	r := bytes.NewReader(data)
	var magic uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return metadataRecord{}, fmt.Errorf("%w: read magic: %v", ErrCorruptMetadata, err)
	}
	if magic != metadataMagic {
		return metadataRecord{}, fmt.Errorf("%w: bad magic %#x", ErrCorruptMetadata, magic)
	}

	var rec metadataRecord
	var kind, usePersist, hasEP uint8
	var m, efc, mMax0 int32

	if err := binary.Read(r, binary.LittleEndian, &kind); err != nil {
		return metadataRecord{}, fmt.Errorf("%w: %v", ErrCorruptMetadata, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &m); err != nil {
		return metadataRecord{}, fmt.Errorf("%w: %v", ErrCorruptMetadata, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &efc); err != nil {
		return metadataRecord{}, fmt.Errorf("%w: %v", ErrCorruptMetadata, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &mMax0); err != nil {
		return metadataRecord{}, fmt.Errorf("%w: %v", ErrCorruptMetadata, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &rec.ML); err != nil {
		return metadataRecord{}, fmt.Errorf("%w: %v", ErrCorruptMetadata, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &rec.Seed); err != nil {
		return metadataRecord{}, fmt.Errorf("%w: %v", ErrCorruptMetadata, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &usePersist); err != nil {
		return metadataRecord{}, fmt.Errorf("%w: %v", ErrCorruptMetadata, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &hasEP); err != nil {
		return metadataRecord{}, fmt.Errorf("%w: %v", ErrCorruptMetadata, err)
	}
	ep, err := readLenPrefixedString(r)
	if err != nil {
		return metadataRecord{}, fmt.Errorf("%w: %v", ErrCorruptMetadata, err)
	}
	var layersLen uint32
	if err := binary.Read(r, binary.LittleEndian, &layersLen); err != nil {
		return metadataRecord{}, fmt.Errorf("%w: %v", ErrCorruptMetadata, err)
	}
	layers := make([]byte, layersLen)
	if _, err := r.Read(layers); err != nil && layersLen > 0 {
		return metadataRecord{}, fmt.Errorf("%w: %v", ErrCorruptMetadata, err)
	}

	rec.DistanceKind = distance.Kind(kind)
	rec.M = int(m)
	rec.EfConstruction = int(efc)
	rec.MMax0 = int(mMax0)
	rec.UsePersistence = usePersist != 0
	rec.HasEntryPoint = hasEP != 0
	rec.EntryPointKey = ep
	rec.Layers = layers
	return rec, nil
}

func writeBool(buf *bytes.Buffer, b bool) {
	if b {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func writeLenPrefixedString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.LittleEndian, uint32(len(s)))
	buf.WriteString(s)
}

func readLenPrefixedString(r *bytes.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if n > 0 {
		if _, err := r.Read(b); err != nil {
			return "", err
		}
	}
	return string(b), nil
}

// Save unconditionally rewrites the metadata record and, on success, clears
// the dirty set: everything tracked as mutated is now on disk.
func (idx *Index) Save() error {
	idx.Ready()
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.saveLocked()
}

func (idx *Index) saveLocked() error {
	if idx.cfg.UsePersistence {
		data := encodeMetadata(idx.buildMetadataRecord())
		if err := idx.cfg.Store.Set(metadataKey, data); err != nil {
			return fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
		}
	}
	idx.dirty = make(map[dirtyKey]struct{})
	idx.reportDirty()
	idx.cancelAutosave()
	return nil
}

// IncrementalSave rewrites the metadata record only if something is dirty,
// then clears the dirty set. The graph topology is cheap relative to
// embeddings, so a dirty save still rewrites the whole metadata record
// rather than a delta.
func (idx *Index) IncrementalSave() error {
	idx.Ready()
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.incrementalSaveLocked()
}

func (idx *Index) incrementalSaveLocked() error {
	if len(idx.dirty) == 0 {
		return nil
	}
	return idx.saveLocked()
}

// DirtyStats reports how many distinct nodes have unsaved mutations.
func (idx *Index) DirtyStats() DirtyStats {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	seen := make(map[string]struct{}, len(idx.dirty))
	for dk := range idx.dirty {
		seen[dk.Key] = struct{}{}
	}
	return DirtyStats{DirtyNodes: len(seen)}
}

// load hydrates metadata from the store and rebinds the persistent node
// store's layer reference before returning, so no prefetch can ever
// dereference the pre-load layer sequence. A corrupt record is reported so
// the caller (asyncLoad) can fall back to an empty state.
func (idx *Index) load() error {
	data, err := idx.cfg.Store.Get(metadataKey)
	if err != nil {
		// No record yet is not corruption: a brand new persisted index.
		idx.mu.Lock()
		idx.persistent.SetLayers(idx.layers)
		idx.mu.Unlock()
		return nil
	}
	rec, err := decodeMetadata(data)
	if err != nil {
		return err
	}
	layers, err := graph.Load(rec.Layers)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptMetadata, err)
	}

	idx.mu.Lock()
	idx.cfg.DistanceKind = rec.DistanceKind
	idx.cfg.M = rec.M
	idx.cfg.EfConstruction = rec.EfConstruction
	idx.cfg.MMax0 = rec.MMax0
	idx.cfg.ML = rec.ML
	idx.cfg.Seed = rec.Seed
	idx.layers = layers
	idx.hasEntryPoint = rec.HasEntryPoint
	idx.entryPoint = rec.EntryPointKey
	idx.persistent.SetLayers(idx.layers)
	// Re-learn the vector dimension from the stored entry point so the
	// first post-load operation is dimension-checked against the existing
	// nodes rather than treated as a fresh first-set-wins.
	if rec.HasEntryPoint {
		if n, err := idx.nodes.Get(rec.EntryPointKey, layers.TopLevel()); err == nil {
			idx.dim = len(n.Vector)
			idx.dimSet = true
			idx.persistent.ResizeCache(idx.cfg.TargetCacheBytes, idx.dim)
		}
	}
	idx.mu.Unlock()
	return nil
}

// scheduleAutosave (re)arms the debounced autosave timer. It must be called
// with idx.mu held, and itself acquires the separate autosaveMu so the timer
// callback (which re-acquires idx.mu) never deadlocks against the caller.
func (idx *Index) scheduleAutosave() {
	if !idx.cfg.AutosaveEnabled {
		return
	}
	idx.autosaveMu.Lock()
	defer idx.autosaveMu.Unlock()
	if idx.autosaveTimer != nil {
		idx.autosaveTimer.Stop()
	}
	idx.autosaveTimer = time.AfterFunc(idx.cfg.AutosaveDelay, func() {
		idx.mu.Lock()
		err := idx.incrementalSaveLocked()
		idx.mu.Unlock()
		if err != nil {
			idx.cfg.Logger.Printf("hnsw: autosave failed, will retry: %v", err)
			idx.mu.Lock()
			idx.scheduleAutosave()
			idx.mu.Unlock()
		}
	})
}

// cancelAutosave stops any pending autosave timer without firing it.
// Called both on explicit disable and after a successful save (which
// already did the work the timer would have done).
func (idx *Index) cancelAutosave() {
	idx.autosaveMu.Lock()
	defer idx.autosaveMu.Unlock()
	if idx.autosaveTimer != nil {
		idx.autosaveTimer.Stop()
		idx.autosaveTimer = nil
	}
}

// DisableAutosave cancels any pending timer without firing it.
func (idx *Index) DisableAutosave() {
	idx.mu.Lock()
	idx.cfg.AutosaveEnabled = false
	idx.mu.Unlock()
	idx.cancelAutosave()
}
