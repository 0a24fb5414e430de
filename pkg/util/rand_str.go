// Package util contains any functions used across the application that don't match
// any other package
package util

import gonanoid "github.com/matoous/go-nanoid/v2"

const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// RandStr returns n random letters. Used for request and job IDs.
func RandStr(n int) string {
	s, err := gonanoid.Generate(charset, n)
	if err != nil {
		// Only fails when the system's random source is broken
		panic(err)
	}

	return s
}
