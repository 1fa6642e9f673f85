package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dukerupert/chorekeeper/internal/model"
)

// Stager stages one legacy record.
type Stager interface {
	Stage(ctx context.Context, bucket, id string, body json.RawMessage) error
}

// legacyDump is the pre-unification export: each bucket maps record keys to
// raw record bodies.
type legacyDump struct {
	Kids    map[string]json.RawMessage `json:"kids"`
	Parents map[string]json.RawMessage `json:"parents"`
}

// Import stages every record of a legacy JSON export. Bodies are stored
// verbatim; validation happens when the migrator runs.
func Import(ctx context.Context, st Stager, r io.Reader) (int, error) {
	var dump legacyDump
	if err := json.NewDecoder(r).Decode(&dump); err != nil {
		return 0, fmt.Errorf("decode legacy export: %w", err)
	}

	n := 0
	for _, bucket := range []struct {
		name    string
		records map[string]json.RawMessage
	}{
		{model.BucketKids, dump.Kids},
		{model.BucketParents, dump.Parents},
	} {
		for id, body := range bucket.records {
			if err := st.Stage(ctx, bucket.name, id, body); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}
