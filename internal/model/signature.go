package model

type MinHashSignature struct {
	ContentHash string   `json:"content_hash"`
	Fingerprint string   `json:"fingerprint"`
	Signature   []uint64 `json:"signature"`
	Ctime       int64    `json:"ctime"`
}
