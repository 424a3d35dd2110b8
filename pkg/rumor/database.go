package rumor

import (
	"fmt"
	"path/filepath"

	"github.com/cuemby/sentinel/pkg/superr"
	bolt "go.etcd.io/bbolt"
)

var bucketNames = [][]byte{
	bucketMember,
	bucketService,
	bucketServiceConfig,
	bucketServiceFile,
	bucketElection,
	bucketElectionUpdate,
	bucketDeparture,
}

var (
	bucketMember         = []byte("member")
	bucketService        = []byte("service")
	bucketServiceConfig  = []byte("service_config")
	bucketServiceFile    = []byte("service_file")
	bucketElection       = []byte("election")
	bucketElectionUpdate = []byte("election_update")
	bucketDeparture      = []byte("departure")
)

// Database is the shared bolt.DB environment backing every rumor kind's
// store, one named sub-database (bucket) per kind.
type Database struct {
	db *bolt.DB
}

// OpenDatabase opens (creating if absent) the rumor database under
// dataDir/data/rumors.db, with every rumor-kind bucket present.
func OpenDatabase(dataDir string) (*Database, error) {
	path := filepath.Join(dataDir, "data", "rumors.db")
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: open rumor database: %v", superr.ErrDb, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range bucketNames {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", superr.ErrDb, err)
	}
	return &Database{db: db}, nil
}

// Close closes the underlying database.
func (d *Database) Close() error {
	return d.db.Close()
}
