package discovery

import (
	"fmt"
	"sort"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeTXT creates TXT records for an announced listener.
func EncodeTXT(info *ServiceInfo) TXTRecordMap {
	txt := TXTRecordMap{
		TXTKeyProtocol: info.Protocol,
		TXTKeyID:       info.ID,
	}
	if info.Family != "" {
		txt[TXTKeyFamily] = info.Family
	}
	if info.Fingerprint != "" {
		txt[TXTKeyFingerprint] = info.Fingerprint
	}
	return txt
}

// DecodeTXT fills the TXT-derived fields of svc.
func DecodeTXT(txt TXTRecordMap, svc *Service) error {
	var ok bool
	if svc.Protocol, ok = txt[TXTKeyProtocol]; !ok {
		return fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyProtocol)
	}
	if svc.ID, ok = txt[TXTKeyID]; !ok {
		return fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyID)
	}
	svc.Family = txt[TXTKeyFamily]
	svc.Fingerprint = txt[TXTKeyFingerprint]
	if svc.Fingerprint != "" && !ValidateFingerprint(svc.Fingerprint) {
		return fmt.Errorf("%w: %s=%q", ErrInvalidTXTRecord, TXTKeyFingerprint, svc.Fingerprint)
	}
	return nil
}

// TXTRecordsToStrings converts a TXTRecordMap to sorted "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		} else if len(parts) == 1 && parts[0] != "" {
			// Key without value (boolean flag)
			txt[parts[0]] = ""
		}
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrMissingRequired)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}

func txtSize(strs []string) int {
	n := 0
	for _, s := range strs {
		n += len(s) + 1
	}
	return n
}
