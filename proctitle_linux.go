// Copyright 2026 The Swoop Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package swoop

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// setProcTitle sets the kernel's name for the current thread group
// leader, which is what ps and top show.  Linux truncates it to 15 bytes.
func setProcTitle(title string) error {
	if len(title) > 15 {
		title = title[:15]
	}
	p, err := unix.BytePtrFromString(title)
	if err != nil {
		return err
	}
	return unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(p)), 0, 0, 0)
}
