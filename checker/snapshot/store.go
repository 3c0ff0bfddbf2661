package snapshot

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/spance/a11ycheck/constants"
	"github.com/spance/a11ycheck/utils"
)

// Store keeps reference snapshots as files in one directory. A snapshot stays the reference
// until Update replaces it.
type Store struct {
	Dir string
}

func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

func (s *Store) Path(ep constants.Endpoint) string {
	return filepath.Join(s.Dir, ep.SnapshotFile)
}

func (s *Store) Load(ep constants.Endpoint) ([]byte, error) {
	data, err := os.ReadFile(s.Path(ep))
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", ep.Name, err)
	}
	return data, nil
}

// Update makes body the new reference for ep.
func (s *Store) Update(ep constants.Endpoint, body []byte) error {
	pretty, err := utils.PrettyJSON(body)
	if err != nil {
		return fmt.Errorf("snapshot %s is not JSON: %w", ep.Name, err)
	}
	return writeAtomic(s.Path(ep), pretty)
}

// Serialize writes body next to the reference for manual inspection and returns its path.
func (s *Store) Serialize(ep constants.Endpoint, body []byte) (string, error) {
	path := s.Path(ep) + constants.SerializedSuffix
	if err := writeAtomic(path, body); err != nil {
		return "", err
	}
	return path, nil
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := fmt.Sprintf("%s.%s.tmp", path, uuid.New().String())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
