//go:build !irdebug

package ir

const debugCasts = false
