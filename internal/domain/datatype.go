package domain

import (
	"fmt"
	"math/bits"
	"sort"
	"strings"
)

// DataType is a single deletable browsing-data category.
type DataType uint32

// DataTypeSet is a set of independent DataType members.
type DataTypeSet uint32

const (
	DataAppCache DataType = 1 << iota
	DataCache
	DataCookies
	DataDownloads
	DataFileSystems
	DataFormData
	DataHistory
	DataIndexedDB
	DataLocalStorage
	DataPluginData
	DataPasswords
	DataWebSQL
	DataServerBoundCerts
	DataContentLicenses
	DataMediaLicenses
)

// Named unions of data types.
const (
	// DataSiteData covers everything a site can store on its own behalf.
	DataSiteData = DataTypeSet(DataAppCache | DataCookies | DataFileSystems |
		DataIndexedDB | DataLocalStorage | DataPluginData | DataWebSQL |
		DataServerBoundCerts)

	// DataQuotaManaged covers the categories governed by the shared quota subsystem.
	DataQuotaManaged = DataTypeSet(DataAppCache | DataFileSystems | DataIndexedDB | DataWebSQL)

	DataAll = DataSiteData | DataTypeSet(DataCache|DataDownloads|DataFormData|
		DataHistory|DataPasswords|DataContentLicenses|DataMediaLicenses)
)

var dataTypeNames = map[DataType]string{
	DataAppCache:         "appcache",
	DataCache:            "cache",
	DataCookies:          "cookies",
	DataDownloads:        "downloads",
	DataFileSystems:      "file_systems",
	DataFormData:         "form_data",
	DataHistory:          "history",
	DataIndexedDB:        "indexeddb",
	DataLocalStorage:     "local_storage",
	DataPluginData:       "plugin_data",
	DataPasswords:        "passwords",
	DataWebSQL:           "websql",
	DataServerBoundCerts: "server_bound_certs",
	DataContentLicenses:  "content_licenses",
	DataMediaLicenses:    "media_licenses",
}

var namedSets = map[string]DataTypeSet{
	"site_data": DataSiteData,
	"all":       DataAll,
}

func (d DataType) String() string {
	if name, ok := dataTypeNames[d]; ok {
		return name
	}
	return fmt.Sprintf("data_type(%#x)", uint32(d))
}

// NewDataTypeSet builds a set from individual members.
func NewDataTypeSet(types ...DataType) DataTypeSet {
	var s DataTypeSet
	for _, t := range types {
		s |= DataTypeSet(t)
	}
	return s
}

// Has reports whether t is a member of s.
func (s DataTypeSet) Has(t DataType) bool { return s&DataTypeSet(t) != 0 }

// With returns s with t added.
func (s DataTypeSet) With(t DataType) DataTypeSet { return s | DataTypeSet(t) }

// Without returns s with t removed.
func (s DataTypeSet) Without(t DataType) DataTypeSet { return s &^ DataTypeSet(t) }

// Union returns the members of s and o.
func (s DataTypeSet) Union(o DataTypeSet) DataTypeSet { return s | o }

// IsEmpty reports whether the set has no members.
func (s DataTypeSet) IsEmpty() bool { return s == 0 }

// Len returns the number of members.
func (s DataTypeSet) Len() int { return bits.OnesCount32(uint32(s)) }

// Types returns the members in ascending bit order.
func (s DataTypeSet) Types() []DataType {
	out := make([]DataType, 0, s.Len())
	for v := uint32(s); v != 0; v &= v - 1 {
		out = append(out, DataType(v&-v))
	}
	return out
}

func (s DataTypeSet) String() string {
	if s == 0 {
		return "none"
	}
	types := s.Types()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.String()
	}
	return strings.Join(names, ",")
}

// DataTypeNames lists every known data type name, sorted.
func DataTypeNames() []string {
	names := make([]string, 0, len(dataTypeNames))
	for _, n := range dataTypeNames {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ParseDataTypes parses a comma-separated list of data type names.
// The named unions "site_data" and "all" are also accepted.
func ParseDataTypes(s string) (DataTypeSet, error) {
	var set DataTypeSet
	for _, part := range strings.Split(s, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		if named, ok := namedSets[name]; ok {
			set |= named
			continue
		}
		t, ok := dataTypeByName(name)
		if !ok {
			return 0, NewDomainError("ParseDataTypes", ErrUnknownDataType, name)
		}
		set = set.With(t)
	}
	if set.IsEmpty() {
		return 0, NewDomainError("ParseDataTypes", ErrInvalidInput, "no data types given")
	}
	return set, nil
}

func dataTypeByName(name string) (DataType, bool) {
	for t, n := range dataTypeNames {
		if n == name {
			return t, true
		}
	}
	return 0, false
}

// MarshalText encodes the set as its comma-separated names.
func (s DataTypeSet) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a comma-separated list of names.
func (s *DataTypeSet) UnmarshalText(b []byte) error {
	if string(b) == "none" {
		*s = 0
		return nil
	}
	v, err := ParseDataTypes(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
