package store

import (
	"crypto/rand"
	"fmt"
)

const (
	base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	idHashLength   = 4
	idMaxAttempts  = 20
)

// GenerateID returns a new canonical ID using an entity prefix.
// It retries on collisions using the provided exists function.
func GenerateID(prefix string, exists func(string) (bool, error)) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("id prefix is required")
	}

	for i := 0; i < idMaxAttempts; i++ {
		hash, err := randomBase36(idHashLength)
		if err != nil {
			return "", err
		}
		id := fmt.Sprintf("%s-%s", prefix, hash)
		if exists == nil {
			return id, nil
		}
		ok, err := exists(id)
		if err != nil {
			return "", err
		}
		if !ok {
			return id, nil
		}
	}

	return "", fmt.Errorf("unable to generate unique id")
}

// GeneratePatientID returns a new patient id using the pt- prefix.
func GeneratePatientID(exists func(string) (bool, error)) (string, error) {
	return GenerateID("pt", exists)
}

// GenerateEpisodeID returns a new episode id using the ep- prefix.
func GenerateEpisodeID(exists func(string) (bool, error)) (string, error) {
	return GenerateID("ep", exists)
}

// GenerateStageID returns a new stage id using the st- prefix.
func GenerateStageID(exists func(string) (bool, error)) (string, error) {
	return GenerateID("st", exists)
}

// GenerateFileID returns a new file id using the fl- prefix.
func GenerateFileID(exists func(string) (bool, error)) (string, error) {
	return GenerateID("fl", exists)
}

func randomBase36(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	out := make([]byte, length)
	for i := 0; i < length; i++ {
		out[i] = base36Alphabet[int(b[i])%len(base36Alphabet)]
	}
	return string(out), nil
}
