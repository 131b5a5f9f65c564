package evidence

import (
	"encoding/base64"
	"os"
)

// Payload is the transportable result of a harvest run.
type Payload struct {
	Grabbed string `json:"grabbed"`
}

func Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func Decode(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// EncodeFile reads the whole file at path and wraps it in a Payload.
func EncodeFile(path string) (Payload, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Payload{}, err
	}
	return Payload{Grabbed: Encode(b)}, nil
}
