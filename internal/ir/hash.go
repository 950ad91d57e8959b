package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes.
// Version suffix enables future algorithm migration.
const (
	DomainEntityKey = "gridsync/entity-key/v1"
	DomainRequest   = "gridsync/request/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EntityKey identifies one logical entity across all of its versions:
// the target table plus the values of its unique-key fields. Two rows with
// the same entity key are duplicates of each other.
//
// Missing key fields hash as null, so callers must validate presence first.
func EntityKey(target string, uniqueKeys []string, fields IRObject) (string, error) {
	keyValues := make(IRObject, len(uniqueKeys))
	for _, k := range uniqueKeys {
		v, ok := fields[k]
		if !ok {
			v = IRNull{}
		}
		keyValues[k] = normalizeKeyValue(v)
	}

	canonical, err := MarshalCanonical(IRObject{
		"target": IRString(target),
		"keys":   keyValues,
	})
	if err != nil {
		return "", fmt.Errorf("EntityKey: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEntityKey, canonical), nil
}

// normalizeKeyValue folds representations a grid may produce for the same
// key ("6", 6, 6.0) onto a single value so they hash identically.
func normalizeKeyValue(v IRValue) IRValue {
	if s, ok := v.(IRString); ok {
		if id, ok := AsID(s); ok {
			return IRInt(id)
		}
		return s
	}
	if f, ok := v.(IRFloat); ok {
		if id, ok := AsID(f); ok {
			return IRInt(id)
		}
	}
	return v
}

// RequestHash computes a content hash for a batch request. Used to tag log
// lines and the server's request log so a retried payload is recognisable.
func RequestHash(req BatchRequest) (string, error) {
	rows := make(IRArray, len(req.Rows))
	for i, r := range req.Rows {
		rows[i] = r.Object()
	}
	keys := make(IRArray, len(req.UniqueKeys))
	for i, k := range req.UniqueKeys {
		keys[i] = IRString(k)
	}

	canonical, err := MarshalCanonical(IRObject{
		"table_name":  IRString(req.Target),
		"operation":   IRString(string(req.Intent)),
		"userid":      IRString(req.CallerID),
		"unique_keys": keys,
		"rows":        rows,
	})
	if err != nil {
		return "", fmt.Errorf("RequestHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRequest, canonical), nil
}
