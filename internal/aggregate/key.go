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

package aggregate

import "strings"

// keySep separates key fields in the serialized form. Unit separator cannot
// appear in normalized extract fields.
const keySep = "\x1f"

// Key is the composite aggregation key. Seller and category ride along as
// dimensional attributes of the SPU so rollups never need a second join pass.
type Key struct {
	Country     string
	Platform    string
	SellerID    string
	CategoryURL string
	SPUID       string
	Month       string
	MetricName  string
}

// String returns the canonical serialized form used by the join store.
func (k Key) String() string {
	return strings.Join([]string{
		k.Country, k.Platform, k.SellerID, k.CategoryURL, k.SPUID, k.Month, k.MetricName,
	}, keySep)
}

// ParseKey is the inverse of String. A serialized key that does not carry
// exactly the right number of fields indicates a key-derivation bug.
func ParseKey(s string) (Key, bool) {
	parts := strings.Split(s, keySep)
	if len(parts) != 7 {
		return Key{}, false
	}
	return Key{
		Country:     parts[0],
		Platform:    parts[1],
		SellerID:    parts[2],
		CategoryURL: parts[3],
		SPUID:       parts[4],
		Month:       parts[5],
		MetricName:  parts[6],
	}, true
}

// Less orders keys canonically: country, platform, entity id, month, metric
// name, then the riding dimensions as a final tie break. Two runs over the
// same logical input serialize identically regardless of chunking.
func (k Key) Less(other Key) bool {
	if k.Country != other.Country {
		return k.Country < other.Country
	}
	if k.Platform != other.Platform {
		return k.Platform < other.Platform
	}
	if k.SPUID != other.SPUID {
		return k.SPUID < other.SPUID
	}
	if k.Month != other.Month {
		return k.Month < other.Month
	}
	if k.MetricName != other.MetricName {
		return k.MetricName < other.MetricName
	}
	if k.SellerID != other.SellerID {
		return k.SellerID < other.SellerID
	}
	return k.CategoryURL < other.CategoryURL
}
