package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

func GeneratePayoutID() string {
	timestamp := time.Now().Unix()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999999))
	return fmt.Sprintf("po_%d_%06d", timestamp, randomNum.Int64())
}

