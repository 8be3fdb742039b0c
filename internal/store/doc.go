// Package store owns acquired credential material. It defines the normalized
// CredentialRecord the flow engines produce, the RedactedSecret wrapper that
// keeps raw material out of logs and serialized output, and a file-backed
// store writing 0600 files inside a 0700 directory.
package store
