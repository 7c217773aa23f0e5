package tagcache

import (
	"fmt"
	"strings"
)

// reservedChars are disallowed in keys, tags, and namespaces: they are used
// internally as separators or by a backend's own wire format.
const reservedChars = "{}()/\\@:"

func validateToken(kind, s string) error {
	if s == "" {
		return fmt.Errorf("%s: empty", kind)
	}
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%s: contains control character", kind)
		}
		if strings.ContainsRune(reservedChars, r) {
			return fmt.Errorf("%s: contains reserved character %q", kind, r)
		}
	}
	return nil
}

func validateKey(key string) error {
	if err := validateToken("key", key); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return nil
}

func validateTag(tag string) error {
	if err := validateToken("tag", tag); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTag, err)
	}
	return nil
}

// validateItem checks an item's key and every tag currently attached to it.
func validateItem[V any](item *Item[V]) error {
	if err := validateKey(item.key); err != nil {
		return err
	}
	for t := range item.tags {
		if err := validateTag(t); err != nil {
			return err
		}
	}
	return nil
}

func validateNamespace(ns string) error {
	if ns == "" {
		return nil
	}
	if err := validateToken("namespace", ns); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidNamespace, err)
	}
	return nil
}
