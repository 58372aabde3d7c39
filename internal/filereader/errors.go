// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package filereader

import "fmt"

// SourceReadError indicates the input could not be read: it failed to open,
// its header does not carry the required columns, or the stream broke
// mid-read. It aborts the run.
type SourceReadError struct {
	Source  string
	Missing []string
	Err     error
}

func (e *SourceReadError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("source %s: header missing required columns %v", e.Source, e.Missing)
	}
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e *SourceReadError) Unwrap() error { return e.Err }
