//go:build linux && (amd64 || arm64)

/*
 *
 * Copyright 2025 Z-Mon authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package shm

import (
	"encoding/binary"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// sendControl writes one envelope over the unix socket, attaching the
// descriptor as SCM_RIGHTS ancillary data when fd >= 0. Message and
// descriptor ride in the same sendmsg call so a single recvmsg observes
// both.
func sendControl(conn *net.UnixConn, env *controlEnvelope, fd int) error {
	buf, err := marshalControl(env)
	if err != nil {
		return err
	}
	var oob []byte
	if fd >= 0 {
		oob = unix.UnixRights(fd)
	}
	if _, _, err := conn.WriteMsgUnix(buf, oob, nil); err != nil {
		return fmt.Errorf("%w: sendmsg: %v", ErrSocket, err)
	}
	return nil
}

// recvControl reads one envelope and an optional descriptor from the unix
// socket. The descriptor rides with the first stream segment; the envelope
// body may arrive split and is reassembled until the length prefix is
// satisfied. Returns fd -1 when no descriptor was attached. The caller owns
// the returned descriptor.
func recvControl(conn *net.UnixConn) (*controlEnvelope, int, error) {
	buf := make([]byte, maxControlMessageSize)
	oob := make([]byte, unix.CmsgSpace(4))

	n, oobn, _, _, err := conn.ReadMsgUnix(buf, oob)
	if err != nil {
		return nil, -1, fmt.Errorf("%w: recvmsg: %v", ErrSocket, err)
	}
	if n == 0 {
		return nil, -1, fmt.Errorf("%w: connection closed during handshake", ErrSocket)
	}

	fd := -1
	if oobn > 0 {
		scms, err := unix.ParseSocketControlMessage(oob[:oobn])
		if err != nil {
			return nil, -1, fmt.Errorf("%w: parse ancillary data: %v", ErrSocket, err)
		}
		for i := range scms {
			fds, err := unix.ParseUnixRights(&scms[i])
			if err != nil || len(fds) == 0 {
				continue
			}
			fd = fds[0]
			// Close any surplus descriptors; the protocol sends one.
			for _, extra := range fds[1:] {
				unix.Close(extra)
			}
			break
		}
	}
	closeFd := func() {
		if fd >= 0 {
			unix.Close(fd)
		}
	}

	for n < 4 {
		m, err := conn.Read(buf[n:])
		if err != nil {
			closeFd()
			return nil, -1, fmt.Errorf("%w: read length prefix: %v", ErrSocket, err)
		}
		n += m
	}
	total := 4 + int(binary.LittleEndian.Uint32(buf[:4]))
	if total > maxControlMessageSize {
		closeFd()
		return nil, -1, fmt.Errorf("%w: control message too large: %d bytes", ErrSocket, total-4)
	}
	for n < total {
		m, err := conn.Read(buf[n:total])
		if err != nil {
			closeFd()
			return nil, -1, fmt.Errorf("%w: read control body: %v", ErrSocket, err)
		}
		n += m
	}

	env, err := unmarshalControl(buf[:total])
	if err != nil {
		closeFd()
		return nil, -1, err
	}
	if fd >= 0 {
		unix.CloseOnExec(fd)
	}
	return env, fd, nil
}
