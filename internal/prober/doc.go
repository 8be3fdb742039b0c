// Package prober answers "can the automated-browser strategy run here".
//
// It resolves a chromium-family binary on PATH, confirms it is runnable, and
// caches the answer briefly with concurrent checks collapsed through
// singleflight. It can also drive a best-effort installation through the
// platform package manager, streaming progress to the caller.
package prober
