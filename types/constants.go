package types

const (
	// SecretSize is the size in bytes of a voter credential secret.
	SecretSize = 32
	// HashSize is the size in bytes of leaf hashes, tree nodes and roots.
	HashSize = 32
	// MaxIdentityLen is the maximum length of a voter identity in bytes.
	MaxIdentityLen = 256
	// MaxElectionIDLen is the maximum length of an election ID in bytes.
	MaxElectionIDLen = 128
	// MaxReferenceLen is the maximum length of a vote reference in bytes.
	MaxReferenceLen = 256
	// MaxVotersPerElection bounds the size of a single issuance.
	MaxVotersPerElection = 1 << 20
)
