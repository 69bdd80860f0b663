package discovery

import (
	"fmt"
	"slices"
	"strings"

	"github.com/linkmq/linkmq-go/pkg/version"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeTXT creates the TXT record of an advertised listener.
func EncodeTXT(info *ServiceInfo) TXTRecordMap {
	txt := TXTRecordMap{
		TXTKeyID:      info.NodeID,
		TXTKeyVersion: version.Current,
		TXTKeyTLS:     "0",
	}
	if info.TLS {
		txt[TXTKeyTLS] = "1"
	}
	return txt
}

// DecodeTXT parses the TXT record of a discovered listener into s.
func DecodeTXT(txt TXTRecordMap, s *Service) error {
	id, ok := txt[TXTKeyID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyID)
	}
	if !ValidateID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	if v, ok := txt[TXTKeyVersion]; ok {
		if err := version.Check(v); err != nil {
			return err
		}
		s.Version = v
	}
	s.NodeID = id
	s.TLS = txt[TXTKeyTLS] == "1"
	return nil
}

// TXTRecordsToStrings converts a TXTRecordMap to "key=value" strings,
// sorted by key.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	slices.Sort(result)
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, found := strings.Cut(s, "=")
		if found {
			txt[k] = v
		} else if k != "" {
			// Key without value (boolean flag)
			txt[k] = ""
		}
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInstanceNameTooLong)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}
