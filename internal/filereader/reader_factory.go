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

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// OpenExtract opens the extract at path with the reader matching its
// extension (.csv or .parquet). Open and header failures are fatal
// SourceReadErrors; nothing is read past the header here.
func OpenExtract(path string, required []string, chunkSize int) (Reader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, &SourceReadError{Source: path, Err: err}
		}
		return NewCSVReader(f, path, required, chunkSize)

	case ".parquet":
		f, err := os.Open(path)
		if err != nil {
			return nil, &SourceReadError{Source: path, Err: err}
		}
		st, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return nil, &SourceReadError{Source: path, Err: err}
		}
		r, err := NewParquetReader(f, st.Size(), path, required, chunkSize)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		return &closerReader{Reader: r, closer: f.Close}, nil

	default:
		return nil, &SourceReadError{Source: path, Err: fmt.Errorf("unsupported extract format %q", filepath.Ext(path))}
	}
}

// closerReader closes an extra underlying resource after the wrapped reader.
type closerReader struct {
	Reader
	closer func() error
}

func (c *closerReader) Close() error {
	err := c.Reader.Close()
	if cerr := c.closer(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
