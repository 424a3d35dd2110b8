package manager

import (
	"bufio"
	"os"
	"strings"
	"sync"

	"github.com/cuemby/sentinel/pkg/log"
	"github.com/fsnotify/fsnotify"
)

// peerWatcher watches a plain-text peer list file (one "host:port" per
// line) and reports addresses not yet seen, per §4.G's "refresh
// peer-watch file -> seed new members". Seeding those addresses into
// the gossip engine is the gossip engine's job (external collaborator,
// non-goal); this type only detects and surfaces the new lines.
type peerWatcher struct {
	path    string
	watcher *fsnotify.Watcher

	mu   sync.Mutex
	seen map[string]bool
}

// newPeerWatcher returns nil, nil when path is empty: the peer-watch
// file is optional, matching SupervisorConfig.PeerWatchFile's
// zero-value default of "no watch configured".
func newPeerWatcher(path string) (*peerWatcher, error) {
	if path == "" {
		return nil, nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := path
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		dir = path[:idx]
	} else {
		dir = "."
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	return &peerWatcher{path: path, watcher: w, seen: make(map[string]bool)}, nil
}

// pollNewPeers re-reads the watch file on every call (a pending fsnotify
// event is drained but does not gate the read) and returns any address
// not seen before. A missing
// file yields no peers and no error; the operator may not have created
// it yet.
func (p *peerWatcher) pollNewPeers() []string {
	if p == nil {
		return nil
	}
	select {
	case <-p.watcher.Events:
	default:
	}

	f, err := os.Open(p.path)
	if err != nil {
		return nil
	}
	defer f.Close()

	p.mu.Lock()
	defer p.mu.Unlock()

	var fresh []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		addr := strings.TrimSpace(sc.Text())
		if addr == "" || strings.HasPrefix(addr, "#") || p.seen[addr] {
			continue
		}
		p.seen[addr] = true
		fresh = append(fresh, addr)
	}
	if len(fresh) > 0 {
		log.WithComponent("manager").Info().Strs("peers", fresh).Msg("peer-watch file: new peers")
	}
	return fresh
}

func (p *peerWatcher) close() error {
	if p == nil {
		return nil
	}
	return p.watcher.Close()
}
