package launcher

import (
	"encoding/binary"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// msgID identifies the wire message kind. Every frame carries its id
// space-padded to idLen bytes so readers never need to scan for a
// delimiter.
type msgID string

const idLen = 16

const (
	idSpawnReq    msgID = "SPAWN_REQ"
	idSpawnOk     msgID = "SPAWN_OK"
	idRestartReq  msgID = "RESTART_REQ"
	idTerminateReq msgID = "TERMINATE_REQ"
	idTerminateOk msgID = "TERMINATE_OK"
	idRegisterReq msgID = "REGISTER_REQ"
	idNetOk       msgID = "NET_OK"
	idNetErr      msgID = "NET_ERR"
	idShutdown    msgID = "SHUTDOWN"
)

func padID(id msgID) ([idLen]byte, error) {
	var buf [idLen]byte
	if len(id) > idLen {
		return buf, fmt.Errorf("launcher: message id %q exceeds %d bytes", id, idLen)
	}
	copy(buf[:], id)
	for i := len(id); i < idLen; i++ {
		buf[i] = ' '
	}
	return buf, nil
}

func trimID(buf [idLen]byte) msgID {
	n := idLen
	for n > 0 && buf[n-1] == ' ' {
		n--
	}
	return msgID(buf[:n])
}

// writeFrame writes one length-prefixed frame: a 4-byte little-endian
// length, the padded message id, then the payload.
func writeFrame(w io.Writer, id msgID, payload []byte) error {
	idBuf, err := padID(id)
	if err != nil {
		return err
	}
	body := make([]byte, idLen+len(payload))
	copy(body, idBuf[:])
	copy(body[idLen:], payload)

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// readFrame blocks until a full frame is available and returns its id
// and payload. io.EOF (or an error wrapping it) propagates unchanged so
// callers can distinguish a clean close from a framing error.
func readFrame(r io.Reader) (msgID, []byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n < idLen {
		return "", nil, fmt.Errorf("launcher: frame too short (%d bytes)", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return "", nil, err
	}
	var idBuf [idLen]byte
	copy(idBuf[:], body[:idLen])
	return trimID(idBuf), body[idLen:], nil
}

// Protobuf field numbers for the hand-encoded wire messages below.
// There is no generated .proto schema; field layout is fixed and
// small enough to encode directly with protowire, the same low-level
// package the generated pb.go code in a normal Habitat-style build
// would delegate to.
const (
	fieldSpawnID       = 1
	fieldSpawnBinary   = 2
	fieldSpawnSvcUser  = 3
	fieldSpawnSvcGroup = 4
	fieldSpawnSvcPass  = 5
	fieldSpawnEnv      = 6

	fieldPid      = 1
	fieldExitCode = 1
	fieldPipePath = 1
	fieldErrText  = 1
)

type spawnRequest struct {
	ID          string
	Binary      string
	SvcUser     string
	SvcGroup    string
	SvcPassword string
	Env         map[string]string
}

func encodeSpawnRequest(r spawnRequest) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldSpawnID, protowire.BytesType)
	b = protowire.AppendString(b, r.ID)
	b = protowire.AppendTag(b, fieldSpawnBinary, protowire.BytesType)
	b = protowire.AppendString(b, r.Binary)
	b = protowire.AppendTag(b, fieldSpawnSvcUser, protowire.BytesType)
	b = protowire.AppendString(b, r.SvcUser)
	b = protowire.AppendTag(b, fieldSpawnSvcGroup, protowire.BytesType)
	b = protowire.AppendString(b, r.SvcGroup)
	if r.SvcPassword != "" {
		b = protowire.AppendTag(b, fieldSpawnSvcPass, protowire.BytesType)
		b = protowire.AppendString(b, r.SvcPassword)
	}
	for k, v := range r.Env {
		b = protowire.AppendTag(b, fieldSpawnEnv, protowire.BytesType)
		b = protowire.AppendString(b, k+"="+v)
	}
	return b
}

func decodeSpawnRequest(buf []byte) (spawnRequest, error) {
	var r spawnRequest
	r.Env = map[string]string{}
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return r, protowire.ParseError(n)
		}
		buf = buf[n:]
		if typ != protowire.BytesType {
			return r, fmt.Errorf("launcher: unexpected wire type %v for field %d", typ, num)
		}
		val, n := protowire.ConsumeBytes(buf)
		if n < 0 {
			return r, protowire.ParseError(n)
		}
		buf = buf[n:]
		s := string(val)
		switch num {
		case fieldSpawnID:
			r.ID = s
		case fieldSpawnBinary:
			r.Binary = s
		case fieldSpawnSvcUser:
			r.SvcUser = s
		case fieldSpawnSvcGroup:
			r.SvcGroup = s
		case fieldSpawnSvcPass:
			r.SvcPassword = s
		case fieldSpawnEnv:
			for i := 0; i < len(s); i++ {
				if s[i] == '=' {
					r.Env[s[:i]] = s[i+1:]
					break
				}
			}
		}
	}
	return r, nil
}

func encodePid(pid int) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldPid, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(pid))
	return b
}

func decodePid(buf []byte) (int, error) {
	v, err := decodeSingleVarint(buf, fieldPid)
	return int(v), err
}

func encodeExitCode(code int) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldExitCode, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(uint32(int32(code))))
	return b
}

func decodeExitCode(buf []byte) (int, error) {
	v, err := decodeSingleVarint(buf, fieldExitCode)
	return int(int32(uint32(v))), err
}

func decodeSingleVarint(buf []byte, wantField protowire.Number) (uint64, error) {
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return 0, protowire.ParseError(n)
		}
		buf = buf[n:]
		if typ != protowire.VarintType {
			return 0, fmt.Errorf("launcher: unexpected wire type %v for field %d", typ, num)
		}
		val, n := protowire.ConsumeVarint(buf)
		if n < 0 {
			return 0, protowire.ParseError(n)
		}
		buf = buf[n:]
		if num == wantField {
			return val, nil
		}
	}
	return 0, fmt.Errorf("launcher: field %d not present", wantField)
}

func encodeString(field protowire.Number, s string) []byte {
	var b []byte
	b = protowire.AppendTag(b, field, protowire.BytesType)
	b = protowire.AppendString(b, s)
	return b
}

func decodeSingleString(buf []byte, wantField protowire.Number) (string, error) {
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return "", protowire.ParseError(n)
		}
		buf = buf[n:]
		if typ != protowire.BytesType {
			return "", fmt.Errorf("launcher: unexpected wire type %v for field %d", typ, num)
		}
		val, n := protowire.ConsumeBytes(buf)
		if n < 0 {
			return "", protowire.ParseError(n)
		}
		buf = buf[n:]
		if num == wantField {
			return string(val), nil
		}
	}
	return "", fmt.Errorf("launcher: field %d not present", wantField)
}
