// Package anchor derives the 8 byte discriminators Anchor programs prefix to
// accounts and instructions.
package anchor

import (
	"crypto/sha256"
	"fmt"
)

// GetDiscriminator returns the first 8 bytes of sha256("namespace:name")
func GetDiscriminator(namespace string, name string) [8]byte {
	preimage := fmt.Sprintf("%s:%s", namespace, name)
	hash := sha256.Sum256([]byte(preimage))
	var discriminator [8]byte
	copy(discriminator[:], hash[:8])
	return discriminator
}

// AccountDiscriminator returns the discriminator of an account type
func AccountDiscriminator(name string) [8]byte {
	return GetDiscriminator("account", name)
}
