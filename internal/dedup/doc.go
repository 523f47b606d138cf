// Package dedup detects exact, near and semantic duplicates among text documents.
//
// Documents are compared in three tiers. The exact tier matches normalized
// content hashes. The near tier shingles normalized text, signs the shingle set
// with MinHash and uses LSH banding to find candidate pairs, which are then
// verified against the near threshold. The semantic tier compares embedding
// cosine similarity for pairs the earlier tiers did not relate.
//
// Related pairs are merged with union-find into groups, and each group gets a
// canonical member chosen by quality score, then creation time, then id. The
// package never deletes anything; RemoveDuplicates only produces a plan.
package dedup
