package cram

import "crypto/md5"

// md5Sum hashes bases the way CRAM's slice reference-MD5 checksum requires
// (spec.md §8 P6); this is the format's own choice of hash, not a
// performance-tunable one, so it is not swapped for a faster non-cryptographic
// hash the way e.g. markduplicates hashes duplicate keys.
func md5Sum(bases []byte) [16]byte {
	return md5.Sum(bases)
}
