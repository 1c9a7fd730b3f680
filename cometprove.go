// Package cometprove submits a comet blob inclusion proof to a deployed
// Observatory verifier and reports whether the verifier considers the comet
// proven.
//
// A run loads the proof artifact from disk, submits it with a single
// state-changing call, waits for that call to be settled by the ledger and
// only then queries the verifier state. Backends for EVM chains and for
// Algorand live in the evm and avm sub-packages.
package cometprove

import (
	"bytes"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gowebpki/jcs"
	"github.com/pkg/errors"
)

// Artifact is a proof artifact as produced by the proof generator. Its fields
// are opaque to this package: it is forwarded to the verifier untouched.
type Artifact struct {
	// Source is the locator the artifact was loaded from
	Source string
	raw    []byte
}

// NewArtifact wraps data as an artifact. data must hold a JSON object.
func NewArtifact(source string, data []byte) (*Artifact, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, NewError(MalformedArtifact,
			errors.Errorf("proof artifact %s is empty", source))
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, NewError(MalformedArtifact,
			errors.Wrapf(err, "proof artifact %s is not a JSON object", source))
	}
	// null unmarshals into a nil map without error
	if obj == nil {
		return nil, NewError(MalformedArtifact,
			errors.Errorf("proof artifact %s is not a JSON object", source))
	}
	return &Artifact{Source: source, raw: trimmed}, nil
}

// LoadArtifact reads the proof artifact at path.
// A path that cannot be read fails with ResourceNotFound, content that is not
// a JSON object fails with MalformedArtifact.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, NewError(ResourceNotFound,
			errors.Wrapf(err, "failed to read proof file %s", path))
	}
	return NewArtifact(path, data)
}

// LoadArtifactFS is LoadArtifact reading from fsys
func LoadArtifactFS(fsys fs.FS, name string) (*Artifact, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, NewError(ResourceNotFound,
			errors.Wrapf(err, "failed to read proof file %s", name))
	}
	return NewArtifact(name, data)
}

// Raw returns the artifact bytes as read
func (a *Artifact) Raw() []byte {
	return bytes.Clone(a.raw)
}

// Decode unmarshals the artifact into v. Backends use it to map the artifact
// onto the argument types of their verifier.
func (a *Artifact) Decode(v any) error {
	if err := json.Unmarshal(a.raw, v); err != nil {
		return errors.Wrap(err, "failed to decode proof artifact")
	}
	return nil
}

// Canonical returns the RFC 8785 canonical JSON form of the artifact
func (a *Artifact) Canonical() ([]byte, error) {
	out, err := jcs.Transform(a.raw)
	if err != nil {
		return nil, errors.Wrap(err, "failed to canonicalize proof artifact")
	}
	return out, nil
}

// Digest returns the hex keccak-256 hash of the canonical form, falling back
// to the raw bytes if canonicalization fails.
func (a *Artifact) Digest() string {
	data, err := a.Canonical()
	if err != nil {
		data = a.raw
	}
	return hexutil.Encode(crypto.Keccak256(data))
}
