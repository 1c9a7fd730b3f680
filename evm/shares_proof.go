package evm

import (
	"fmt"
	"math/big"

	"github.com/giuliop/cometprove/utils"
)

// SharesProof is the comet blob inclusion proof as written by the proof
// generator: the Blobstream DAVerifier SharesProof with every byte string hex
// encoded with a 0x prefix.
type SharesProof struct {
	Data             []string                    `json:"data"`
	ShareProofs      []NamespaceMerkleMultiproof `json:"shareProofs"`
	Namespace        Namespace                   `json:"namespace"`
	RowRoots         []NamespaceNode             `json:"rowRoots"`
	RowProofs        []BinaryMerkleProof         `json:"rowProofs"`
	AttestationProof AttestationProof            `json:"attestationProof"`
}

type Namespace struct {
	Version string `json:"version"`
	Id      string `json:"id"`
}

type NamespaceNode struct {
	Min    Namespace `json:"min"`
	Max    Namespace `json:"max"`
	Digest string    `json:"digest"`
}

type NamespaceMerkleMultiproof struct {
	BeginKey  int64           `json:"beginKey"`
	EndKey    int64           `json:"endKey"`
	SideNodes []NamespaceNode `json:"sideNodes"`
}

type BinaryMerkleProof struct {
	SideNodes []string `json:"sideNodes"`
	Key       int64    `json:"key"`
	NumLeaves int64    `json:"numLeaves"`
}

type DataRootTuple struct {
	Height   int64  `json:"height"`
	DataRoot string `json:"dataRoot"`
}

type AttestationProof struct {
	TupleRootNonce *big.Int          `json:"tupleRootNonce"`
	Tuple          DataRootTuple     `json:"tuple"`
	Proof          BinaryMerkleProof `json:"proof"`
}

// Solidity side of the proof. Field names must match the ABI component names
// in abi/*.json.

type abiNamespace struct {
	Version [1]byte
	Id      [28]byte
}

type abiNamespaceNode struct {
	Min    abiNamespace
	Max    abiNamespace
	Digest [32]byte
}

type abiNamespaceMerkleMultiproof struct {
	BeginKey  *big.Int
	EndKey    *big.Int
	SideNodes []abiNamespaceNode
}

type abiBinaryMerkleProof struct {
	SideNodes [][32]byte
	Key       *big.Int
	NumLeaves *big.Int
}

type abiDataRootTuple struct {
	Height   *big.Int
	DataRoot [32]byte
}

type abiAttestationProof struct {
	TupleRootNonce *big.Int
	Tuple          abiDataRootTuple
	Proof          abiBinaryMerkleProof
}

type abiSharesProof struct {
	Data             [][]byte
	ShareProofs      []abiNamespaceMerkleMultiproof
	Namespace        abiNamespace
	RowRoots         []abiNamespaceNode
	RowProofs        []abiBinaryMerkleProof
	AttestationProof abiAttestationProof
}

func (p *SharesProof) toABI() (abiSharesProof, error) {
	var out abiSharesProof
	var err error

	out.Data = make([][]byte, len(p.Data))
	for i, d := range p.Data {
		if out.Data[i], err = utils.ParseHexBytes(d); err != nil {
			return out, fmt.Errorf("data[%d]: %v", i, err)
		}
	}

	out.ShareProofs = make([]abiNamespaceMerkleMultiproof, len(p.ShareProofs))
	for i, sp := range p.ShareProofs {
		if out.ShareProofs[i], err = sp.toABI(); err != nil {
			return out, fmt.Errorf("shareProofs[%d]: %v", i, err)
		}
	}

	if out.Namespace, err = p.Namespace.toABI(); err != nil {
		return out, fmt.Errorf("namespace: %v", err)
	}

	if out.RowRoots, err = nodesToABI(p.RowRoots); err != nil {
		return out, fmt.Errorf("rowRoots: %v", err)
	}

	out.RowProofs = make([]abiBinaryMerkleProof, len(p.RowProofs))
	for i, rp := range p.RowProofs {
		if out.RowProofs[i], err = rp.toABI(); err != nil {
			return out, fmt.Errorf("rowProofs[%d]: %v", i, err)
		}
	}

	if out.AttestationProof, err = p.AttestationProof.toABI(); err != nil {
		return out, fmt.Errorf("attestationProof: %v", err)
	}
	return out, nil
}

func (n Namespace) toABI() (abiNamespace, error) {
	var out abiNamespace
	if err := utils.ParseFixedHex(n.Version, out.Version[:]); err != nil {
		return out, fmt.Errorf("version: %v", err)
	}
	if err := utils.ParseFixedHex(n.Id, out.Id[:]); err != nil {
		return out, fmt.Errorf("id: %v", err)
	}
	return out, nil
}

func (n NamespaceNode) toABI() (abiNamespaceNode, error) {
	var out abiNamespaceNode
	var err error
	if out.Min, err = n.Min.toABI(); err != nil {
		return out, fmt.Errorf("min: %v", err)
	}
	if out.Max, err = n.Max.toABI(); err != nil {
		return out, fmt.Errorf("max: %v", err)
	}
	if err = utils.ParseFixedHex(n.Digest, out.Digest[:]); err != nil {
		return out, fmt.Errorf("digest: %v", err)
	}
	return out, nil
}

func nodesToABI(nodes []NamespaceNode) ([]abiNamespaceNode, error) {
	out := make([]abiNamespaceNode, len(nodes))
	for i, n := range nodes {
		var err error
		if out[i], err = n.toABI(); err != nil {
			return nil, fmt.Errorf("[%d]: %v", i, err)
		}
	}
	return out, nil
}

func (m NamespaceMerkleMultiproof) toABI() (abiNamespaceMerkleMultiproof, error) {
	var out abiNamespaceMerkleMultiproof
	var err error
	if out.BeginKey, err = uint256("beginKey", m.BeginKey); err != nil {
		return out, err
	}
	if out.EndKey, err = uint256("endKey", m.EndKey); err != nil {
		return out, err
	}
	if out.SideNodes, err = nodesToABI(m.SideNodes); err != nil {
		return out, fmt.Errorf("sideNodes%v", err)
	}
	return out, nil
}

func (b BinaryMerkleProof) toABI() (abiBinaryMerkleProof, error) {
	var out abiBinaryMerkleProof
	var err error
	out.SideNodes = make([][32]byte, len(b.SideNodes))
	for i, s := range b.SideNodes {
		if err = utils.ParseFixedHex(s, out.SideNodes[i][:]); err != nil {
			return out, fmt.Errorf("sideNodes[%d]: %v", i, err)
		}
	}
	if out.Key, err = uint256("key", b.Key); err != nil {
		return out, err
	}
	if out.NumLeaves, err = uint256("numLeaves", b.NumLeaves); err != nil {
		return out, err
	}
	return out, nil
}

func (a AttestationProof) toABI() (abiAttestationProof, error) {
	var out abiAttestationProof
	var err error
	if a.TupleRootNonce == nil {
		return out, fmt.Errorf("tupleRootNonce is missing")
	}
	if a.TupleRootNonce.Sign() < 0 {
		return out, fmt.Errorf("tupleRootNonce is negative: %v", a.TupleRootNonce)
	}
	out.TupleRootNonce = new(big.Int).Set(a.TupleRootNonce)
	if out.Tuple.Height, err = uint256("tuple.height", a.Tuple.Height); err != nil {
		return out, err
	}
	if err = utils.ParseFixedHex(a.Tuple.DataRoot, out.Tuple.DataRoot[:]); err != nil {
		return out, fmt.Errorf("tuple.dataRoot: %v", err)
	}
	if out.Proof, err = a.Proof.toABI(); err != nil {
		return out, fmt.Errorf("proof.%v", err)
	}
	return out, nil
}

func uint256(name string, v int64) (*big.Int, error) {
	if v < 0 {
		return nil, fmt.Errorf("%s is negative: %d", name, v)
	}
	return big.NewInt(v), nil
}
