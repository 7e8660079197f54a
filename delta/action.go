// Package delta implements a single-writer, versioned transaction log for
// partitioned tables. Each commit is one newline-delimited JSON file of
// actions, made visible atomically through a conditional write.
package delta

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"

	"delta-forge/schema"
)

// Action is a single log record. Exactly one of the fields is set; the
// populated field is the JSON discriminator on the wire.
type Action struct {
	Add      *AddFile    `json:"add,omitempty"`
	Remove   *RemoveFile `json:"remove,omitempty"`
	Metadata *Metadata   `json:"metaData,omitempty"`
	Protocol *Protocol   `json:"protocol,omitempty"`
}

// AddFile records a data file joining the table.
type AddFile struct {
	Path             string            `json:"path"`
	PartitionValues  map[string]string `json:"partitionValues"`
	Size             int64             `json:"size"`
	RowCount         int64             `json:"numRecords"`
	ModificationTime int64             `json:"modificationTime"`
	DataChange       bool              `json:"dataChange"`
}

// RemoveFile records a data file leaving the live set.
type RemoveFile struct {
	Path              string `json:"path"`
	DeletionTimestamp int64  `json:"deletionTimestamp"`
	DataChange        bool   `json:"dataChange"`
}

// Metadata declares the table schema and partition spec. Both are fixed at
// table creation in this model.
type Metadata struct {
	ID               string        `json:"id"`
	Schema           schema.Schema `json:"schema"`
	PartitionColumns []string      `json:"partitionColumns"`
	CreatedTime      int64         `json:"createdTime"`
}

// Protocol pins the reader/writer feature level a client must support.
type Protocol struct {
	MinReaderVersion int `json:"minReaderVersion"`
	MinWriterVersion int `json:"minWriterVersion"`
}

func (a Action) validate() error {
	n := 0
	if a.Add != nil {
		n++
	}
	if a.Remove != nil {
		n++
	}
	if a.Metadata != nil {
		n++
	}
	if a.Protocol != nil {
		n++
	}
	if n != 1 {
		return fmt.Errorf("action must have exactly one variant, has %d", n)
	}
	return nil
}

// EncodeCommit renders actions as one JSON object per line, preserving
// commit order. The output is the canonical stored form of a commit.
func EncodeCommit(actions []Action) ([]byte, error) {
	var buf bytes.Buffer
	for i, a := range actions {
		if err := a.validate(); err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		line, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("marshaling action %d: %w", i, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// DecodeCommit parses a stored commit back into its ordered action list.
func DecodeCommit(data []byte) ([]Action, error) {
	var actions []Action
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var a Action
		if err := json.Unmarshal(line, &a); err != nil {
			return nil, fmt.Errorf("unmarshaling action %d: %w", len(actions), err)
		}
		if err := a.validate(); err != nil {
			return nil, fmt.Errorf("action %d: %w", len(actions), err)
		}
		actions = append(actions, a)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning commit: %w", err)
	}
	return actions, nil
}
