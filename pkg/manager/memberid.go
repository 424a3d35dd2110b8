package manager

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuemby/sentinel/pkg/superr"
	"github.com/cuemby/sentinel/pkg/types"
	"github.com/google/uuid"
)

// memberIDFileName is the stable supervisor id file named in §6's
// persisted state layout.
const memberIDFileName = "MEMBER_ID"

// loadOrCreateMemberID honors an operator-supplied id first, then an
// id already persisted from a previous run, and only generates a fresh
// one (and persists it) when neither is available — the member id must
// stay stable for the lifetime of the supervisor process's state
// directory.
func loadOrCreateMemberID(stateDir, configured string) (types.MemberId, error) {
	if configured != "" {
		return types.MemberId(configured), nil
	}

	path := filepath.Join(stateDir, memberIDFileName)
	if raw, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(raw)); id != "" {
			return types.MemberId(id), nil
		}
	}

	id := uuid.New().String()
	if err := os.WriteFile(path, []byte(id), 0640); err != nil {
		return "", fmt.Errorf("%w: %v", superr.ErrProcessLockIO, err)
	}
	return types.MemberId(id), nil
}
