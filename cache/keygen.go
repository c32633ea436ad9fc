package cache

import (
	"crypto/md5"
	"fmt"
)

// KeyGenerators turns cache keys into filesystem-safe names
type KeyGenerators struct{}

// FileName converts a key (usually an absolute URL) to a stable file name.
// URLs carry characters that are unsafe or too long for a path component,
// so the name is always the md5 of the key.
func (kg *KeyGenerators) FileName(key string) string {
	hash := md5.Sum([]byte(key))
	return fmt.Sprintf("%x.json", hash)
}

// DefaultKeyGenerator provides a shared key generator instance
var DefaultKeyGenerator = &KeyGenerators{}
