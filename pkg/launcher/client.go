package launcher

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/cuemby/sentinel/pkg/log"
	"github.com/cuemby/sentinel/pkg/superr"
)

// SpawnRequest describes a process the launcher should start on the
// supervisor's behalf, per §4.E.
type SpawnRequest struct {
	ID          string
	Binary      string
	SvcUser     string
	SvcGroup    string
	SvcPassword string
	Env         map[string]string
}

// pending is the in-flight state for one outstanding request: the
// frame to send and the channel its response is delivered on.
type pending struct {
	id       msgID
	payload  []byte
	response chan frameResult
}

type frameResult struct {
	id      msgID
	payload []byte
	err     error
}

// Client is the supervisor-side Launcher Client. A single manager
// goroutine owns the connection and serializes every request, matching
// the teacher's pkg/worker.go pattern of one goroutine owning a remote
// connection rather than letting callers race on it directly.
type Client struct {
	conn    io.ReadWriteCloser
	reqs    chan pending
	done    chan struct{}
	once    sync.Once
	stopped atomic.Bool
}

// NewClient starts the manager goroutine over conn and returns a ready
// Client. conn is typically the supervisor's end of the pipe handed to
// it at boot by the privileged launcher process.
func NewClient(conn io.ReadWriteCloser) *Client {
	c := &Client{
		conn: conn,
		reqs: make(chan pending),
		done: make(chan struct{}),
	}
	go c.run()
	return c
}

// IsStopping reports whether the launcher has sent an unsolicited
// Shutdown message or the connection has otherwise failed; once true,
// every call on this Client fails immediately.
func (c *Client) IsStopping() bool {
	return c.stopped.Load()
}

func (c *Client) run() {
	defer c.conn.Close()
	incoming := make(chan frameResult)
	go func() {
		for {
			id, payload, err := readFrame(c.conn)
			incoming <- frameResult{id: id, payload: payload, err: err}
			if err != nil {
				return
			}
		}
	}()

	var waiting *pending
	closeOut := func(err error) {
		c.stopped.Store(true)
		if waiting != nil {
			waiting.response <- frameResult{err: err}
			waiting = nil
		}
	}

	for {
		select {
		case <-c.done:
			closeOut(superr.ErrLauncher)
			return
		case req := <-c.reqs:
			if err := writeFrame(c.conn, req.id, req.payload); err != nil {
				req.response <- frameResult{err: err}
				closeOut(err)
				return
			}
			r := req
			waiting = &r
		case res := <-incoming:
			if res.err != nil {
				log.WithComponent("launcher").Warn().Err(res.err).Msg("launcher connection closed")
				closeOut(res.err)
				return
			}
			if res.id == idShutdown {
				closeOut(fmt.Errorf("launcher requested shutdown"))
				return
			}
			if waiting != nil {
				waiting.response <- res
				waiting = nil
			}
		}
	}
}

func (c *Client) stop() {
	c.stopped.Store(true)
	c.once.Do(func() { close(c.done) })
}

func (c *Client) call(id msgID, payload []byte) ([]byte, error) {
	if c.stopped.Load() {
		return nil, fmt.Errorf("%w: shutting down", superr.ErrLauncher)
	}
	resp := make(chan frameResult, 1)
	select {
	case c.reqs <- pending{id: id, payload: payload, response: resp}:
	case <-c.done:
		return nil, fmt.Errorf("%w: shutting down", superr.ErrLauncher)
	}
	res := <-resp
	if res.err != nil {
		return nil, fmt.Errorf("%w: %v", superr.ErrLauncher, res.err)
	}
	if res.id == idNetErr {
		msg, _ := decodeSingleString(res.payload, fieldErrText)
		return nil, &superr.LauncherError{Kind: string(idNetErr), Err: fmt.Errorf("%s", msg)}
	}
	return res.payload, nil
}

// Register announces the supervisor's receive pipe to the launcher,
// once at boot.
func (c *Client) Register(pipe string) error {
	_, err := c.call(idRegisterReq, encodeString(fieldPipePath, pipe))
	return err
}

// Spawn asks the launcher to start a new process and returns its pid.
func (c *Client) Spawn(req SpawnRequest) (int, error) {
	payload := encodeSpawnRequest(spawnRequest{
		ID: req.ID, Binary: req.Binary, SvcUser: req.SvcUser,
		SvcGroup: req.SvcGroup, SvcPassword: req.SvcPassword, Env: req.Env,
	})
	resp, err := c.call(idSpawnReq, payload)
	if err != nil {
		return 0, err
	}
	return decodePid(resp)
}

// Restart asks the launcher to restart the process at pid and returns
// its new pid.
func (c *Client) Restart(pid int) (int, error) {
	resp, err := c.call(idRestartReq, encodePid(pid))
	if err != nil {
		return 0, err
	}
	return decodePid(resp)
}

// Terminate asks the launcher to terminate the process at pid and
// returns its exit code.
func (c *Client) Terminate(pid int) (int, error) {
	resp, err := c.call(idTerminateReq, encodePid(pid))
	if err != nil {
		return 0, err
	}
	return decodeExitCode(resp)
}

// Close tears down the manager goroutine and the underlying
// connection.
func (c *Client) Close() error {
	c.stop()
	return nil
}
