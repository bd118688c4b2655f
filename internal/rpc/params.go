package rpc

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
)

func unmarshalParams(raw []byte, v any) error {
	return json.Unmarshal(raw, v)
}

func generateToken() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
