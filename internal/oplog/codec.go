package oplog

import (
	"encoding/json"

	"github.com/oriys/workerexec/internal/domain"
)

// EncodeEntry serializes an OplogEntry into the self-describing binary
// record IndexedStorage.Append expects (spec.md §6: "implementations MUST
// NOT reinterpret" the value). JSON satisfies that contract while staying
// in the teacher's stdlib-first style for encoding (no protobuf dependency
// exists for this domain's entry shape). Exported so OplogService.Create
// can encode the initial entry before the Oplog handle exists.
func EncodeEntry(e domain.OplogEntry) ([]byte, error) {
	return json.Marshal(e)
}

func decodeEntry(data []byte) (domain.OplogEntry, error) {
	var e domain.OplogEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return domain.OplogEntry{}, err
	}
	return e, nil
}
