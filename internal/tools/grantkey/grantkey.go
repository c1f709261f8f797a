// Package grantkey generates admin grant signing key pairs.
package grantkey

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// Run generates an admin grant key pair and writes exports. The public key
// goes to the control plane; the private key stays with the grant issuer.
func Run(out io.Writer, reader io.Reader) error {
	if out == nil {
		return errors.New("output is required")
	}
	if reader == nil {
		reader = rand.Reader
	}
	publicKey, privateKey, err := ed25519.GenerateKey(reader)
	if err != nil {
		return fmt.Errorf("generate admin grant key: %w", err)
	}
	if _, err := fmt.Fprintf(out, "export FAIRPLANE_ADMIN_GRANT_PRIVATE_KEY=%s\n", base64.StdEncoding.EncodeToString(privateKey)); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "export FAIRPLANE_ADMIN_GRANT_PUBLIC_KEY=%s\n", base64.StdEncoding.EncodeToString(publicKey))
	return err
}
