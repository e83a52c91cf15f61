package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidBucketKey is wrapped by every BucketKey.Validate failure.
var ErrInvalidBucketKey = errors.New("invalid bucket key")

// BucketKey identifies a peer population.
type BucketKey struct {
	Exchange string `json:"exchange"`
	Industry string `json:"industry"`
}

func (k BucketKey) String() string { return k.Exchange + "/" + k.Industry }

func (k BucketKey) Validate() error {
	if strings.TrimSpace(k.Exchange) == "" {
		return fmt.Errorf("%w: exchange is required", ErrInvalidBucketKey)
	}
	if strings.TrimSpace(k.Industry) == "" {
		return fmt.Errorf("%w: industry is required", ErrInvalidBucketKey)
	}
	for _, seg := range []string{k.Exchange, k.Industry} {
		if strings.ContainsAny(seg, `/\:*?"<>|`) {
			return fmt.Errorf("%w: %q contains a path separator or reserved character", ErrInvalidBucketKey, seg)
		}
		// segments become directory and file names
		if t := strings.TrimSpace(seg); t == "." || t == ".." {
			return fmt.Errorf("%w: %q is not a valid name", ErrInvalidBucketKey, seg)
		}
	}
	return nil
}

// IndustryKey normalises a sector label into the industry part of a bucket key.
func IndustryKey(gicSector, sector string) string {
	for _, s := range []string{gicSector, sector} {
		s = strings.TrimSpace(s)
		if s == "" || strings.EqualFold(s, "null") {
			continue
		}
		return strings.ReplaceAll(s, " ", "_")
	}
	return "None"
}
