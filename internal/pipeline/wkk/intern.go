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

// Package wkk provides interned row keys so that batches of rows sharing the
// same column set do not hold duplicate column-name strings.
package wkk

import "unique"

type rowkey string

type RowKey = unique.Handle[rowkey]

func NewRowKey(s string) RowKey {
	return unique.Make(rowkey(s))
}

// Well-known keys of the canonical vendor extract.
var (
	RowKeySPUID       = NewRowKey("spu_used_id")
	RowKeySellerID    = NewRowKey("seller_used_id")
	RowKeyCategoryURL = NewRowKey("category_url")
	RowKeyCountry     = NewRowKey("country")
	RowKeyPlatform    = NewRowKey("platform")
	RowKeyMonth       = NewRowKey("month")
	RowKeyMetricName  = NewRowKey("metric_name")
	RowKeyMetricValue = NewRowKey("metric_value")
	RowKeyMetricMin   = NewRowKey("metric_min")
	RowKeyMetricMax   = NewRowKey("metric_max")
	RowKeySPUName     = NewRowKey("spu_name")
	RowKeySPUURL      = NewRowKey("spu_url")
	RowKeySellerName  = NewRowKey("seller_name")
)

// KeyName returns the string form of a row key.
func KeyName(k RowKey) string {
	return string(k.Value())
}
