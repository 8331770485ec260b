package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	TickRate           int `json:"tick_rate_hz"`
	SnapshotEveryTicks int `json:"snapshot_every_ticks,omitempty"`
	ChunkSize          int `json:"chunk_size"`

	// Digests of the catalogs the world ran with.
	BlocksDigest  string `json:"blocks_digest,omitempty"`
	RecipesDigest string `json:"recipes_digest,omitempty"`

	NextControllerNum uint64 `json:"next_controller_num"`

	Blocks      []BlockV1      `json:"blocks"`
	Parts       []PartV1       `json:"parts"`
	Signals     [][3]int       `json:"signals,omitempty"`
	Unloaded    []ChunkKeyV1   `json:"unloaded,omitempty"`
	Controllers []ControllerV1 `json:"controllers"`
}

// BlockV1 is a non-air filler block.
type BlockV1 struct {
	Pos [3]int `json:"pos"`
	ID  string `json:"id"`
}

type PartV1 struct {
	Pos        [3]int `json:"pos"`
	Kind       string `json:"kind"`
	Type       string `json:"type"`
	Variant    string `json:"variant,omitempty"`
	Controller string `json:"controller"`
}

type ChunkKeyV1 struct {
	CX int `json:"cx"`
	CZ int `json:"cz"`
}

type ControllerV1 struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	State string `json:"state"`

	// Machine is the kind-specific record, opaque to the world.
	Machine []byte `json:"machine,omitempty"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	hb, err := br.ReadBytes('\n')
	if err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(hb, &h); err != nil {
		return snap, fmt.Errorf("header: %w", err)
	}
	if h.Version > Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", h.Version)
	}

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

// ReadHeader decodes only the header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	hb, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(hb, &h); err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	return h, nil
}
