// Copyright 2024 The Outline Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build linux || darwin

package sockopt

import "golang.org/x/sys/unix"

func getNoDelay(fd uintptr) (bool, error) {
	value, err := unix.GetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY)
	return value != 0, err
}

// sendOOB sends data on the connected socket with the urgent flag set.
func sendOOB(fd uintptr, data []byte) error {
	return unix.Sendto(int(fd), data, unix.MSG_OOB, nil)
}
