package manager

import (
	"time"

	"github.com/cuemby/sentinel/pkg/log"
	"github.com/cuemby/sentinel/pkg/types"
)

// selfUpdateInterval is how often the background updater rechecks the
// configured channel, independent of the ~1s tick rate — polling a
// builder URL every tick would be wasteful.
const selfUpdateInterval = 5 * time.Minute

// checkSelfUpdate implements §4.G's "self_update()": when a
// PackageSource is configured and the poll interval has elapsed, ask it
// whether a newer release of the supervisor's own package exists. A
// found update is returned for the run-loop to act on (graceful
// departure, then exit zero so the privileged launcher relaunches);
// fetching and installing the new binary is the PackageSource's job.
func (m *Manager) checkSelfUpdate() (types.PackageIdent, bool) {
	if m.packages == nil {
		return types.PackageIdent{}, false
	}
	if !m.lastSelfUpdateCheck.IsZero() && time.Since(m.lastSelfUpdateCheck) < selfUpdateInterval {
		return types.PackageIdent{}, false
	}
	m.lastSelfUpdateCheck = time.Now()

	newer, found, err := m.packages.CheckForUpdate(m.selfIdent, m.selfChannel)
	if err != nil {
		log.WithComponent("manager").Warn().Err(err).Msg("self-update check failed")
		return types.PackageIdent{}, false
	}
	return newer, found
}
