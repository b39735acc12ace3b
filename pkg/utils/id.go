package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateConnectionID generates a unique connection ID.
func GenerateConnectionID() string {
	return fmt.Sprintf("conn_%s", uuid.NewString())
}

// GenerateSessionID generates a unique collaboration session ID.
func GenerateSessionID() string {
	return fmt.Sprintf("session_%s", uuid.NewString())
}

// GenerateInstanceID generates a unique gateway instance ID.
func GenerateInstanceID() string {
	return fmt.Sprintf("gw_%s", uuid.NewString())
}

// GenerateRequestID generates a unique request ID.
func GenerateRequestID() string {
	timestamp := time.Now().UnixNano()
	b := make([]byte, 4)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", timestamp, hex.EncodeToString(b))
}
